package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LexiconIndonesia/career-crawler-service/common"
	"github.com/LexiconIndonesia/career-crawler-service/common/config"
	"github.com/LexiconIndonesia/career-crawler-service/common/models"
	"github.com/LexiconIndonesia/career-crawler-service/common/work"
)

type recordingPublisher struct {
	subjects []string
	payloads []string
	err      error
}

func (p *recordingPublisher) PublishSync(_ context.Context, subject string, data []byte) error {
	if p.err != nil {
		return p.err
	}
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, string(data))
	return nil
}

type jobList struct {
	jobs    []models.JobOffer
	lastAll bool
}

func (l *jobList) ListJobs(_ context.Context, companyID int64, all bool) ([]models.JobOffer, error) {
	l.lastAll = all
	if companyID == 404 {
		return nil, common.ErrCompanyNotFound
	}
	return l.jobs, nil
}

type sessionMap map[int64]work.Session

func (m sessionMap) Get(_ context.Context, id int64) (work.Session, error) {
	if s, ok := m[id]; ok {
		return s, nil
	}
	return work.Session{Status: work.StatusNew}, nil
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

func newCompanyHandler(pub *recordingPublisher, jobs *jobList) *CompanyHandler {
	return NewCompanyHandler(pub, jobs, map[config.WorkerMode]SessionReader{
		config.ModeAnalyser: sessionMap{7: {Key: "company_jobs:7", Status: work.StatusInProgress, Exists: true}},
		config.ModeChecker:  sessionMap{},
	})
}

func TestEnqueuePublishesOneMessagePerCompany(t *testing.T) {
	pub := &recordingPublisher{}
	h := newCompanyHandler(pub, &jobList{})

	rec, out := do(t, h.Router(), http.MethodPost, "/analyse", `{"company_ids": [3, 4, 3]}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{common.SubjectAnalyse, common.SubjectAnalyse}, pub.subjects)
	assert.JSONEq(t, `{"company_id": 3}`, pub.payloads[0])
	assert.Equal(t, []any{3.0, 4.0}, out["data"].(map[string]any)["company_ids"])

	rec, _ = do(t, h.Router(), http.MethodPost, "/check", `{"company_ids": [5]}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, common.SubjectCheck, pub.subjects[2])
}

func TestEnqueueRejectsInvalidRequests(t *testing.T) {
	pub := &recordingPublisher{}
	h := newCompanyHandler(pub, &jobList{})

	for _, body := range []string{`not json`, `{}`, `{"company_ids": []}`, `{"company_ids": [0]}`, `{"company_ids": [-2]}`} {
		rec, out := do(t, h.Router(), http.MethodPost, "/analyse", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "Bad Request", out["error"])
	}
	assert.Empty(t, pub.subjects)
}

func TestEnqueueReportsBrokerFailure(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("nats down")}
	rec, _ := do(t, newCompanyHandler(pub, &jobList{}).Router(), http.MethodPost, "/check", `{"company_ids": [1]}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestGetSession(t *testing.T) {
	h := newCompanyHandler(&recordingPublisher{}, &jobList{})

	rec, out := do(t, h.Router(), http.MethodGet, "/7/session", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "in_progress", out["data"].(map[string]any)["status"])

	rec, out = do(t, h.Router(), http.MethodGet, "/7/session?mode=checker", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "new", out["data"].(map[string]any)["status"])

	rec, _ = do(t, h.Router(), http.MethodGet, "/7/session?mode=scraper", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h.Router(), http.MethodGet, "/abc/session", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListJobsPaginates(t *testing.T) {
	jobs := &jobList{jobs: []models.JobOffer{
		{Title: "Engineer", URL: "https://acme.example/jobs/1"},
		{Title: "Designer", URL: "https://acme.example/jobs/2"},
		{Title: "Writer", URL: "https://acme.example/jobs/3"},
	}}
	h := newCompanyHandler(&recordingPublisher{}, jobs)

	rec, out := do(t, h.Router(), http.MethodGet, "/7/jobs?page=2&per_page=2&all=true", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, jobs.lastAll)
	data := out["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, "Writer", data[0].(map[string]any)["job_title"])
	meta := out["meta"].(map[string]any)
	assert.Equal(t, 2.0, meta["last_page"])
	assert.Equal(t, 3.0, meta["total"])

	rec, _ = do(t, h.Router(), http.MethodGet, "/404/jobs", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type connection bool

func (c connection) IsConnected() bool { return bool(c) }

func TestDatabaseHealth(t *testing.T) {
	rec, out := do(t, NewHealthHandler(pinger{}, pinger{}, connection(true)).Router(), http.MethodGet, "/database", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	data := out["data"].(map[string]any)
	assert.Equal(t, "healthy", data["status"])
	assert.Equal(t, "healthy", data["nats"].(map[string]any)["status"])

	rec, out = do(t, NewHealthHandler(pinger{}, pinger{err: errors.New("refused")}, connection(true)).Router(), http.MethodGet, "/database", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	data = out["data"].(map[string]any)
	assert.Equal(t, "unhealthy", data["status"])
	assert.Equal(t, "refused", data["redis"].(map[string]any)["error"])

	rec, _ = do(t, NewHealthHandler(nil, nil, nil).Router(), http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDatabaseHealthReportsBrokerDisconnect(t *testing.T) {
	rec, out := do(t, NewHealthHandler(pinger{}, pinger{}, connection(false)).Router(), http.MethodGet, "/database", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	data := out["data"].(map[string]any)
	assert.Equal(t, "unhealthy", data["status"])
	assert.Equal(t, "unhealthy", data["nats"].(map[string]any)["status"])
	assert.Equal(t, "healthy", data["database"].(map[string]any)["status"])
}

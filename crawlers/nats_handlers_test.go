package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LexiconIndonesia/career-crawler-service/common"
	"github.com/LexiconIndonesia/career-crawler-service/common/config"
	"github.com/LexiconIndonesia/career-crawler-service/common/messaging"
	"github.com/LexiconIndonesia/career-crawler-service/crawlers/browser"
	"github.com/LexiconIndonesia/career-crawler-service/crawlers/browser/browsertest"
)

type fakeMsg struct {
	data []byte

	mu         sync.Mutex
	acks       int
	naks       int
	terms      int
	inProgress int
}

func companyMsg(id int64) *fakeMsg {
	data, _ := json.Marshal(messaging.CompanyMessage{CompanyID: id})
	return &fakeMsg{data: data}
}

func (m *fakeMsg) Data() []byte { return m.data }

func (m *fakeMsg) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acks++
	return nil
}

func (m *fakeMsg) Nak() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.naks++
	return nil
}

func (m *fakeMsg) Term() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terms++
	return nil
}

func (m *fakeMsg) InProgress() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inProgress++
	return nil
}

func (m *fakeMsg) counts() (acks, naks, terms, inProgress int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acks, m.naks, m.terms, m.inProgress
}

type stubCrawler struct {
	mu    sync.Mutex
	calls int
	last  *Session
	run   func(ctx context.Context, s *Session) error
}

func (c *stubCrawler) Mode() config.WorkerMode { return config.ModeAnalyser }

func (c *stubCrawler) Crawl(ctx context.Context, s *Session) error {
	c.mu.Lock()
	c.calls++
	c.last = s
	c.mu.Unlock()
	if c.run == nil {
		return nil
	}
	return c.run(ctx, s)
}

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
}

func (p *recordingPublisher) PublishSync(_ context.Context, subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}

type runnerFixture struct {
	runner    *Runner
	crawler   *stubCrawler
	publisher *recordingPublisher
	page      *browsertest.Page
}

func newRunner(t *testing.T, cfg RunnerConfig) (runnerFixture, func(field string) string, func(k string, fv ...string)) {
	t.Helper()
	tracker, mr := newTracker(t, common.AnalyserSessionPrefix)
	route, err := RouteFor(config.ModeAnalyser)
	require.NoError(t, err)

	f := runnerFixture{crawler: &stubCrawler{}, publisher: &recordingPublisher{}, page: browsertest.New(nil)}
	f.runner, err = NewRunner(RunnerDeps{
		Crawler:   f.crawler,
		Route:     route,
		Sessions:  tracker,
		Publisher: f.publisher,
		OpenPage:  func(context.Context) (browser.Page, error) { return f.page, nil },
	}, cfg)
	require.NoError(t, err)

	get := func(field string) string { return mr.HGet("company_jobs:9", field) }
	set := func(k string, fv ...string) { mr.HSet(k, fv...) }
	return f, get, set
}

func TestHandleMessageRunsSessionAndAcks(t *testing.T) {
	f, get, _ := newRunner(t, RunnerConfig{MaxRetries: 2})
	msg := companyMsg(9)

	require.NoError(t, f.runner.HandleMessage(context.Background(), msg))

	acks, naks, _, _ := msg.counts()
	assert.Equal(t, 1, acks)
	assert.Zero(t, naks)
	assert.Equal(t, "done", get("status"))
	assert.Equal(t, "false", get("job_listings_step_done"))
	assert.Equal(t, int64(9), f.crawler.last.CompanyID)
	assert.True(t, f.page.Closed())
}

func TestHandleMessageNaksFailedSession(t *testing.T) {
	f, get, _ := newRunner(t, RunnerConfig{MaxRetries: 2})
	boom := errors.New("database unavailable")
	f.crawler.run = func(context.Context, *Session) error { return boom }
	msg := companyMsg(9)

	err := f.runner.HandleMessage(context.Background(), msg)
	assert.ErrorIs(t, err, boom)

	acks, naks, _, _ := msg.counts()
	assert.Zero(t, acks)
	assert.Equal(t, 1, naks)
	assert.Equal(t, "failed", get("status"))
	assert.Equal(t, "1", get("retries"))

	// the redelivery is a second attempt
	require.ErrorIs(t, f.runner.HandleMessage(context.Background(), msg), boom)
	assert.Equal(t, "2", get("retries"))
	assert.Equal(t, 2, f.crawler.calls)
}

func TestHandleMessageSkipsSessionInProgress(t *testing.T) {
	f, get, set := newRunner(t, RunnerConfig{MaxRetries: 2})
	set("company_jobs:9", "status", "in_progress", "retries", "0")
	msg := companyMsg(9)

	require.NoError(t, f.runner.HandleMessage(context.Background(), msg))

	acks, naks, _, _ := msg.counts()
	assert.Equal(t, 1, acks)
	assert.Zero(t, naks)
	assert.Zero(t, f.crawler.calls)
	assert.Empty(t, get("status"), "the stale session is deleted")
}

func TestHandleMessageDeadLettersExhaustedSession(t *testing.T) {
	f, get, set := newRunner(t, RunnerConfig{MaxRetries: 2})
	set("company_jobs:9", "status", "failed", "retries", "2")
	msg := companyMsg(9)

	require.NoError(t, f.runner.HandleMessage(context.Background(), msg))

	assert.Zero(t, f.crawler.calls)
	require.Equal(t, []string{common.DeadLetterAnalyser}, f.publisher.subjects)
	var dl messaging.DeadLetter
	require.NoError(t, json.Unmarshal(f.publisher.payloads[0], &dl))
	assert.Equal(t, int64(9), dl.CompanyID)
	assert.Equal(t, common.SubjectAnalyse, dl.Subject)
	assert.Equal(t, 2, dl.Retries)

	acks, _, _, _ := msg.counts()
	assert.Equal(t, 1, acks)
	assert.Empty(t, get("status"))
}

func TestHandleMessageTermsMalformedMessage(t *testing.T) {
	f, _, _ := newRunner(t, RunnerConfig{MaxRetries: 2})
	msg := &fakeMsg{data: []byte(`{"company_id": "seven"}`)}

	assert.Error(t, f.runner.HandleMessage(context.Background(), msg))
	_, _, terms, _ := msg.counts()
	assert.Equal(t, 1, terms)
	assert.Zero(t, f.crawler.calls)
}

func TestHandleMessageTimesOutSession(t *testing.T) {
	f, get, _ := newRunner(t, RunnerConfig{MaxRetries: 2, SessionTimeout: 20 * time.Millisecond})
	f.crawler.run = func(ctx context.Context, _ *Session) error {
		<-ctx.Done()
		return ctx.Err()
	}
	msg := companyMsg(9)

	err := f.runner.HandleMessage(context.Background(), msg)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "failed", get("status"))
	_, naks, _, _ := msg.counts()
	assert.Equal(t, 1, naks)
}

func TestHandleMessageSendsHeartbeats(t *testing.T) {
	f, _, _ := newRunner(t, RunnerConfig{MaxRetries: 2, Heartbeat: 5 * time.Millisecond})
	f.crawler.run = func(ctx context.Context, _ *Session) error {
		time.Sleep(60 * time.Millisecond)
		return nil
	}
	msg := companyMsg(9)

	require.NoError(t, f.runner.HandleMessage(context.Background(), msg))
	_, _, _, inProgress := msg.counts()
	assert.Positive(t, inProgress)
}

func TestSubmitRunsOnPool(t *testing.T) {
	f, get, _ := newRunner(t, RunnerConfig{MaxRetries: 2, Concurrency: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.runner.pool.Start(ctx)
	go f.runner.drainResults()

	msg := companyMsg(9)
	f.runner.Submit(ctx, msg)
	f.runner.Stop()

	acks, _, _, _ := msg.counts()
	assert.Equal(t, 1, acks)
	assert.Equal(t, "done", get("status"))
}

func TestHandleMessageReleasesSessionContext(t *testing.T) {
	f, _, _ := newRunner(t, RunnerConfig{MaxRetries: 2, SessionTimeout: time.Minute})
	var sessionCtx context.Context
	f.crawler.run = func(ctx context.Context, _ *Session) error {
		sessionCtx = ctx
		return nil
	}

	require.NoError(t, f.runner.HandleMessage(context.Background(), companyMsg(9)))
	require.NotNil(t, sessionCtx)
	assert.ErrorIs(t, sessionCtx.Err(), context.Canceled)
}

func TestSubmitWaitsForBusyWorker(t *testing.T) {
	f, _, _ := newRunner(t, RunnerConfig{MaxRetries: 2, Concurrency: 1})
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	f.crawler.run = func(ctx context.Context, _ *Session) error {
		started <- struct{}{}
		<-release
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.runner.pool.Start(ctx)
	go f.runner.drainResults()

	first, second := companyMsg(9), companyMsg(10)
	f.runner.Submit(ctx, first)
	<-started

	queued := make(chan struct{})
	go func() {
		f.runner.Submit(ctx, second)
		close(queued)
	}()
	select {
	case <-queued:
		t.Fatal("Submit returned while the only worker was busy")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-queued
	f.runner.Stop()

	for _, msg := range []*fakeMsg{first, second} {
		acks, naks, _, _ := msg.counts()
		assert.Equal(t, 1, acks)
		assert.Zero(t, naks)
	}
}

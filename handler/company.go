package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/LexiconIndonesia/career-crawler-service/common"
	"github.com/LexiconIndonesia/career-crawler-service/common/config"
	"github.com/LexiconIndonesia/career-crawler-service/common/messaging"
	"github.com/LexiconIndonesia/career-crawler-service/common/models"
	"github.com/LexiconIndonesia/career-crawler-service/common/utils"
	"github.com/LexiconIndonesia/career-crawler-service/common/work"
)

const (
	defaultPerPage = 50
	maxPerPage     = 500
)

// CompanyIDsRequest asks for one session per company.
type CompanyIDsRequest struct {
	CompanyIDs []int64 `json:"company_ids" validate:"required,min=1,max=1000,dive,gt=0" example:"1,2,3"`
}

type JobLister interface {
	ListJobs(ctx context.Context, companyID int64, all bool) ([]models.JobOffer, error)
}

type SessionReader interface {
	Get(ctx context.Context, companyID int64) (work.Session, error)
}

type CompanyHandler struct {
	publisher messaging.Publisher
	jobs      JobLister
	sessions  map[config.WorkerMode]SessionReader
	validate  *validator.Validate
	router    *chi.Mux
}

func NewCompanyHandler(publisher messaging.Publisher, jobs JobLister, sessions map[config.WorkerMode]SessionReader) *CompanyHandler {
	router := chi.NewRouter()

	h := &CompanyHandler{
		publisher: publisher,
		jobs:      jobs,
		sessions:  sessions,
		validate:  validator.New(),
		router:    router,
	}

	router.Post("/analyse", h.handleEnqueue(common.SubjectAnalyse))
	router.Post("/check", h.handleEnqueue(common.SubjectCheck))
	router.Get("/{companyID}/session", h.handleGetSession)
	router.Get("/{companyID}/jobs", h.handleListJobs)
	return h
}

func (h *CompanyHandler) Router() *chi.Mux {
	return h.router
}

// handleEnqueue godoc
// @Summary      Request crawl sessions
// @Description  Publishes one message per company on the analyse or check subject
// @Tags         companies
// @Accept       json
// @Produce      json
// @Param        request body CompanyIDsRequest true "Companies"
// @Success      202 {object} models.BaseResponse{data=models.EnqueueResponse}
// @Failure      400 {object} models.ErrorResponse
// @Failure      502 {object} models.ErrorResponse
// @Security     ApiKeyAuth
// @Router       /companies/analyse [post]
// @Router       /companies/check [post]
func (h *CompanyHandler) handleEnqueue(subject string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p CompanyIDsRequest
		if err := utils.DecodeJSON(r, h.validate, &p); err != nil {
			utils.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}

		ids := lo.Uniq(p.CompanyIDs)
		for _, id := range ids {
			if err := messaging.PublishJSON(r.Context(), h.publisher, subject, messaging.CompanyMessage{CompanyID: id}); err != nil {
				log.Error().Err(err).Int64("companyID", id).Str("subject", subject).Msg("Failed to publish company message")
				utils.WriteError(w, http.StatusBadGateway, "Failed to queue company "+strconv.FormatInt(id, 10))
				return
			}
		}
		log.Info().Str("subject", subject).Int("companies", len(ids)).Msg("Queued crawl sessions")
		utils.WriteJSON(w, http.StatusAccepted, models.EnqueueResponse{Subject: subject, CompanyIDs: ids})
	}
}

// handleGetSession godoc
// @Summary      Crawl session state
// @Tags         companies
// @Produce      json
// @Param        companyID path int true "Company ID"
// @Param        mode query string false "analyser or checker" Enums(analyser, checker)
// @Success      200 {object} models.BaseResponse{data=work.Session}
// @Failure      400 {object} models.ErrorResponse
// @Security     ApiKeyAuth
// @Router       /companies/{companyID}/session [get]
func (h *CompanyHandler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := companyID(w, r)
	if !ok {
		return
	}
	mode := config.WorkerMode(r.URL.Query().Get("mode"))
	if mode == "" {
		mode = config.ModeAnalyser
	}
	sessions, ok := h.sessions[mode]
	if !ok {
		utils.WriteError(w, http.StatusBadRequest, "Unknown mode "+string(mode))
		return
	}

	s, err := sessions.Get(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Int64("companyID", id).Msg("Failed to read session")
		utils.WriteError(w, http.StatusInternalServerError, "Failed to read session")
		return
	}
	utils.WriteJSON(w, http.StatusOK, s)
}

// handleListJobs godoc
// @Summary      Jobs of a company
// @Tags         companies
// @Produce      json
// @Param        companyID path int true "Company ID"
// @Param        all query bool false "Include jobs no longer existing"
// @Param        page query int false "Page, from 1"
// @Param        per_page query int false "Jobs per page"
// @Success      200 {object} models.BasePaginationResponse{data=[]models.JobOffer}
// @Failure      400 {object} models.ErrorResponse
// @Security     ApiKeyAuth
// @Router       /companies/{companyID}/jobs [get]
func (h *CompanyHandler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	id, ok := companyID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	all, _ := strconv.ParseBool(q.Get("all"))
	page := queryInt(q.Get("page"), 1)
	perPage := min(queryInt(q.Get("per_page"), defaultPerPage), maxPerPage)

	jobs, err := h.jobs.ListJobs(r.Context(), id, all)
	if err != nil {
		if errors.Is(err, common.ErrCompanyNotFound) {
			utils.WriteError(w, http.StatusNotFound, "Company not found")
			return
		}
		log.Error().Err(err).Int64("companyID", id).Msg("Failed to list jobs")
		utils.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}
	utils.WritePagination(w, http.StatusOK, utils.Page(jobs, page, perPage), page, perPage, int64(len(jobs)))
}

func companyID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "companyID"), 10, 64)
	if err != nil || id <= 0 {
		utils.WriteError(w, http.StatusBadRequest, "Invalid company id")
		return 0, false
	}
	return id, true
}

func queryInt(raw string, def int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	return n
}

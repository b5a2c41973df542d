package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/LexiconIndonesia/career-crawler-service/common"
	"github.com/LexiconIndonesia/career-crawler-service/common/utils"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnectionChecker reports the state of a connection kept open in the background.
type ConnectionChecker interface {
	IsConnected() bool
}

type HealthHandler struct {
	database Pinger
	redis    Pinger
	broker   ConnectionChecker
	router   *chi.Mux
}

func NewHealthHandler(database, redis Pinger, broker ConnectionChecker) *HealthHandler {
	h := &HealthHandler{database: database, redis: redis, broker: broker}

	r := chi.NewRouter()
	r.Get("/", h.handleHealthCheck)
	r.Get("/database", h.handleDatabaseHealth)

	h.router = r
	return h
}

func (h *HealthHandler) Router() *chi.Mux {
	return h.router
}

// HealthCheck answers the unauthenticated liveness check.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   common.AppName,
	})
}

func (h *HealthHandler) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	HealthCheck(w, r)
}

// handleDatabaseHealth godoc
// @Summary      Postgres, Redis and NATS health
// @Tags         health
// @Produce      json
// @Success      200 {object} models.BaseResponse
// @Failure      503 {object} models.BaseResponse
// @Security     ApiKeyAuth
// @Router       /health/database [get]
func (h *HealthHandler) handleDatabaseHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	response := map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	}
	for name, p := range map[string]Pinger{"database": h.database, "redis": h.redis} {
		check := map[string]any{"status": "healthy"}
		if p == nil {
			check["status"] = "unconfigured"
		} else if err := p.Ping(ctx); err != nil {
			check["status"] = "unhealthy"
			check["error"] = err.Error()
			response["status"] = "unhealthy"
			status = http.StatusServiceUnavailable
		}
		response[name] = check
	}

	nats := map[string]any{"status": "healthy"}
	switch {
	case h.broker == nil:
		nats["status"] = "unconfigured"
	case !h.broker.IsConnected():
		nats["status"] = "unhealthy"
		response["status"] = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	response["nats"] = nats

	utils.WriteJSON(w, status, response)
}

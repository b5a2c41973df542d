package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/LexiconIndonesia/career-crawler-service/common"
	"github.com/LexiconIndonesia/career-crawler-service/common/config"
	"github.com/LexiconIndonesia/career-crawler-service/common/db"
	"github.com/LexiconIndonesia/career-crawler-service/common/messaging"
	"github.com/LexiconIndonesia/career-crawler-service/common/work"
	"github.com/LexiconIndonesia/career-crawler-service/handler"
	"github.com/LexiconIndonesia/career-crawler-service/middlewares"
)

type AppHttpServer struct {
	router    *chi.Mux
	cfg       config.Config
	server    *http.Server
	db        *db.DB
	broker    *messaging.NatsBroker
	sessions  map[config.WorkerMode]handler.SessionReader
}

func NewAppHttpServer(cfg config.Config) (*AppHttpServer, error) {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middlewares.ApiKeyHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Minute))

	server := &AppHttpServer{
		router: r,
		cfg:    cfg,
	}
	return server, nil
}

func (s *AppHttpServer) SetDB(db *db.DB) {
	s.db = db
	s.sessions = map[config.WorkerMode]handler.SessionReader{
		config.ModeAnalyser: work.NewSessionTracker(db.Redis, common.AnalyserSessionPrefix),
		config.ModeChecker:  work.NewSessionTracker(db.Redis, common.CheckerSessionPrefix),
	}
}

func (s *AppHttpServer) SetBroker(b *messaging.NatsBroker) {
	s.broker = b
}

func (s *AppHttpServer) setupRoute() {
	r := s.router

	if s.cfg.Security.BackendApiKey == "" {
		log.Warn().Msg("BACKEND_API_KEY is empty, /v1 is not protected")
	}

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	r.Get("/health", handler.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(middlewares.ApiKey(s.cfg.Security.BackendApiKey))

		companyHandler := handler.NewCompanyHandler(s.broker, s.db.Queries, s.sessions)
		healthHandler := handler.NewHealthHandler(s.db, s.db.Redis, s.broker)

		r.Mount("/companies", companyHandler.Router())
		r.Mount("/health", healthHandler.Router())
	})
}

func (s *AppHttpServer) start() error {
	log.Info().Msg("Starting up server...")

	s.server = &http.Server{
		Addr:         s.cfg.Listen.Addr(),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 75 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// stop gracefully shuts down the server
func (s *AppHttpServer) stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

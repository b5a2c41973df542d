package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/LexiconIndonesia/career-crawler-service/common"
	"github.com/LexiconIndonesia/career-crawler-service/common/config"
	"github.com/LexiconIndonesia/career-crawler-service/common/db"
	"github.com/LexiconIndonesia/career-crawler-service/common/llm"
	"github.com/LexiconIndonesia/career-crawler-service/common/logger"
	"github.com/LexiconIndonesia/career-crawler-service/common/messaging"
	"github.com/LexiconIndonesia/career-crawler-service/common/storage"
	"github.com/LexiconIndonesia/career-crawler-service/common/work"
	crawler "github.com/LexiconIndonesia/career-crawler-service/crawlers"
	"github.com/LexiconIndonesia/career-crawler-service/crawlers/browser"

	_ "github.com/LexiconIndonesia/career-crawler-service/docs"
)

// @title          Career Crawler Service API
// @version        1.0
// @description    Queues company crawl sessions and exposes their state and the jobs they found.

// @host     localhost:8080
// @BasePath /v1
// @schemes  http https

// @securityDefinitions.apikey ApiKeyAuth
// @in                         header
// @name                       X-API-KEY

// ackWaitMargin is added to the session timeout so a running session is
// never redelivered before it times out itself.
const ackWaitMargin = 5 * time.Minute

func main() {
	// INITIATE CONFIGURATION
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("Error loading .env file, using environment variables")
	}

	cfg := config.DefaultConfig()
	cfg.LoadFromEnv()
	logger.Setup(cfg.Log)

	heuristics, err := config.LoadHeuristics(cfg.Crawl.HeuristicsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load heuristics")
	}

	route, err := crawler.RouteFor(cfg.Worker.Mode)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid worker mode")
	}

	// Create a base context with cancel for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// INITIATE DATABASES
	dbConn, err := db.SetupDatabase(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to setup database")
	}
	defer dbConn.Close()

	// INITIATE NATS CLIENT
	natsClient, err := messaging.SetupNatsBroker(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to setup NATS client")
	}
	defer natsClient.Close()

	if err := messaging.SetupStreams(ctx, natsClient); err != nil {
		log.Fatal().Err(err).Msg("Failed to setup streams")
	}

	// gcs
	var capturers crawler.CapturerFactory
	if cfg.GCS.Enabled() {
		gcsStorage, err := storage.NewGCSStorage(ctx, cfg.GCS)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to setup GCS storage")
		}
		defer gcsStorage.Close()
		capturers = func(session string) browser.Capturer {
			return storage.NewCapturer(gcsStorage, cfg.GCS.Bucket, cfg.GCS.CapturePrefix, session)
		}
	} else {
		log.Info().Msg("GCS is not configured, failure captures are disabled")
	}

	// INITIATE BROWSER
	chrome, err := browser.Launch(cfg.Browser)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to launch browser")
	}
	defer chrome.Close()

	llmClient := llm.NewHTTPClient(cfg.LLM).WithLogger(log.Logger)

	// INITIATE WORKER
	sessions := work.NewSessionTracker(dbConn.Redis, route.SessionPrefix)
	crawlerService := crawler.NewCrawlerService(dbConn)
	c, err := crawler.NewCrawler(cfg.Worker.Mode, crawlerService, sessions, llmClient, crawler.NewOptions(cfg, heuristics))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create crawler")
	}

	runner, err := crawler.NewRunner(crawler.RunnerDeps{
		Crawler:   c,
		Route:     route,
		Sessions:  sessions,
		Publisher: natsClient,
		OpenPage: func(ctx context.Context) (browser.Page, error) {
			p, err := chrome.NewPage(ctx)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
		Capturers: capturers,
		Logs:      dbConn.Queries,
	}, crawler.RunnerConfig{
		MaxRetries:     cfg.Crawl.MaxRetries,
		SessionTimeout: cfg.Crawl.SessionTimeout,
		Concurrency:    cfg.Crawl.SessionConcurrency,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create session runner")
	}

	consumer, err := messaging.GetJetStreamConsumer(ctx, natsClient, common.StreamName, route.Subject, messaging.ConsumerOptions{
		AckWait:       cfg.Crawl.SessionTimeout + ackWaitMargin,
		MaxAckPending: max(cfg.Crawl.SessionConcurrency, 1),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to get consumer")
	}

	consumeCtx, err := runner.Start(ctx, consumer)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start session runner")
	}
	log.Info().Str("mode", string(cfg.Worker.Mode)).Str("subject", route.Subject).Msg("Worker started")

	// INITIATE SERVER
	server, err := NewAppHttpServer(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create the server")
	}

	// Inject dependencies
	server.SetDB(dbConn)
	server.SetBroker(natsClient)

	// Setup routes
	server.setupRoute()

	// Start server in a goroutine
	go func() {
		if err := server.start(); err != nil {
			log.Error().Err(err).Msg("Server error")
			shutdown <- syscall.SIGTERM
		}
	}()

	log.Info().Str("address", cfg.Listen.Addr()).Msg("Server started successfully")
	log.Info().Str("swagger", fmt.Sprintf("http://%s/swagger/index.html", cfg.Listen.Addr())).Msg("Swagger documentation available at")

	// Wait for shutdown signal
	<-shutdown
	log.Info().Msg("Shutdown signal received")

	// Stop taking deliveries, then let running sessions see the cancellation.
	consumeCtx.Stop()
	cancel()
	runner.Stop()

	// Create a timeout context for graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	log.Info().Msg("Server gracefully stopped")
}

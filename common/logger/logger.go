package logger

import (
	"context"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/LexiconIndonesia/career-crawler-service/common/config"
	"github.com/LexiconIndonesia/career-crawler-service/common/db"
)

// Setup configures the global logger from cfg. Format "json" writes one
// JSON object per line, anything else a console writer.
func Setup(cfg config.LogConfig) zerolog.Logger {
	return setup(cfg, os.Stderr)
}

func setup(cfg config.LogConfig, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	w := out
	if !strings.EqualFold(cfg.Format, "json") {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.DateTime}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	return log.Logger
}

// LogSink stores log entries. It is implemented by *db.Queries.
type LogSink interface {
	InsertLog(ctx context.Context, e db.LogEntry) error
}

// CrawlerLogHook implements zerolog.Hook, storing warnings and errors of
// a crawl session in the crawler_logs table.
type CrawlerLogHook struct {
	sink      LogSink
	session   string
	companyID int64
	min       zerolog.Level
	wg        sync.WaitGroup
}

func NewCrawlerLogHook(sink LogSink, session string, companyID int64) *CrawlerLogHook {
	return &CrawlerLogHook{sink: sink, session: session, companyID: companyID, min: zerolog.WarnLevel}
}

// Run implements zerolog.Hook.Run. Inserts happen asynchronously.
func (h *CrawlerLogHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	if h.sink == nil || level < h.min || level == zerolog.NoLevel || !e.Enabled() {
		return
	}
	entry := db.LogEntry{
		Session:   h.session,
		CompanyID: h.companyID,
		EventType: level.String(),
		Message:   msg,
		CreatedAt: time.Now(),
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.sink.InsertLog(ctx, entry); err != nil {
			// the global logger has no hook, so this cannot recurse
			log.Error().Err(err).Str("session", h.session).Msg("Failed to store crawler log")
		}
	}()
}

// Wait blocks until pending inserts are done.
func (h *CrawlerLogHook) Wait() {
	h.wg.Wait()
}

// ForSession derives the logger of one crawl session from base. It tags
// every line with the session key and company and stores warnings in sink.
func ForSession(base zerolog.Logger, sink LogSink, kind, session string, companyID int64) (zerolog.Logger, *CrawlerLogHook) {
	hook := NewCrawlerLogHook(sink, session, companyID)
	l := base.With().
		Str("kind", kind).
		Str("session", session).
		Str("company_id", strconv.FormatInt(companyID, 10)).
		Logger().
		Hook(hook)
	return l, hook
}

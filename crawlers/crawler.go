// Package crawler runs company crawl sessions: the analyser discovers
// job listing pages and extracts jobs, the checker re-extracts jobs from
// the pages found earlier.
package crawler

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/LexiconIndonesia/career-crawler-service/common/config"
	"github.com/LexiconIndonesia/career-crawler-service/common/work"
	"github.com/LexiconIndonesia/career-crawler-service/crawlers/browser"
)

// Session is one delivery of a company message being processed.
type Session struct {
	CompanyID int64
	State     work.Session
	// Page is owned by the session and closed by the runner.
	Page     browser.Page
	Capturer browser.Capturer
	Logger   zerolog.Logger
}

// Crawler is the behaviour shared by both session kinds.
type Crawler interface {
	Mode() config.WorkerMode

	// Crawl runs the session to completion. Results are persisted at
	// checkpoints, so a failed crawl keeps what it found before failing.
	Crawl(ctx context.Context, s *Session) error
}

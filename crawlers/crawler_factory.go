package crawler

import (
	"fmt"

	"github.com/LexiconIndonesia/career-crawler-service/common"
	"github.com/LexiconIndonesia/career-crawler-service/common/config"
	"github.com/LexiconIndonesia/career-crawler-service/common/llm"
	"github.com/LexiconIndonesia/career-crawler-service/common/work"
)

// Route is where a worker mode reads its messages and sends the ones
// that exhausted their retries.
type Route struct {
	Subject       string
	DeadLetter    string
	SessionPrefix string
}

// RouteFor returns the route of mode.
func RouteFor(mode config.WorkerMode) (Route, error) {
	switch mode {
	case config.ModeAnalyser:
		return Route{Subject: common.SubjectAnalyse, DeadLetter: common.DeadLetterAnalyser, SessionPrefix: common.AnalyserSessionPrefix}, nil
	case config.ModeChecker:
		return Route{Subject: common.SubjectCheck, DeadLetter: common.DeadLetterChecker, SessionPrefix: common.CheckerSessionPrefix}, nil
	default:
		return Route{}, fmt.Errorf("worker mode %q: %w", mode, common.ErrInvalidConfig)
	}
}

// NewCrawler creates the crawler of mode.
func NewCrawler(mode config.WorkerMode, service CrawlerService, sessions *work.SessionTracker, client llm.Client, opts Options) (Crawler, error) {
	switch mode {
	case config.ModeAnalyser:
		return NewAnalyserCrawler(service, sessions, client, opts), nil
	case config.ModeChecker:
		return NewCheckerCrawler(service, client, opts), nil
	default:
		return nil, fmt.Errorf("worker mode %q: %w", mode, common.ErrInvalidConfig)
	}
}

package crawler

import (
	"time"

	"github.com/LexiconIndonesia/career-crawler-service/common/config"
	"github.com/LexiconIndonesia/career-crawler-service/crawlers/browser"
)

// Options are the crawl settings both session kinds read.
type Options struct {
	Crawl      config.CrawlConfig
	Heuristics config.Heuristics
	Delay      browser.Delay
	// Backoff overrides the site crawler's wait after a timed out URL.
	Backoff func(failed int) time.Duration
}

func NewOptions(cfg config.Config, h config.Heuristics) Options {
	return Options{
		Crawl:      cfg.Crawl,
		Heuristics: h,
		Delay:      browser.Delay{Min: cfg.Browser.DelayMin, Max: cfg.Browser.DelayMax},
	}
}

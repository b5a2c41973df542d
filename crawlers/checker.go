package crawler

import (
	"context"

	"github.com/LexiconIndonesia/career-crawler-service/common/config"
	"github.com/LexiconIndonesia/career-crawler-service/common/llm"
)

// CheckerCrawler re-extracts jobs from the stored job listing pages to
// find new postings and the ones taken down.
type CheckerCrawler struct {
	service CrawlerService
	llm     llm.Client
	opts    Options
}

func NewCheckerCrawler(service CrawlerService, client llm.Client, opts Options) *CheckerCrawler {
	return &CheckerCrawler{service: service, llm: client, opts: opts}
}

func (c *CheckerCrawler) Mode() config.WorkerMode { return config.ModeChecker }

func (c *CheckerCrawler) Crawl(ctx context.Context, s *Session) error {
	company, err := c.service.GetCompany(ctx, s.CompanyID)
	if err != nil {
		return err
	}
	if len(company.JobListingPages()) == 0 {
		s.Logger.Warn().Msg("Company has no stored job listing page")
	}
	return jobsPhase{
		service:       c.service,
		llm:           c.llm,
		opts:          c.opts,
		removeOnEmpty: c.opts.Crawl.RemoveOnEmpty,
	}.run(ctx, s, company, nil)
}

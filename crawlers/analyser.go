package crawler

import (
	"context"
	"fmt"

	"github.com/LexiconIndonesia/career-crawler-service/common/config"
	"github.com/LexiconIndonesia/career-crawler-service/common/llm"
	"github.com/LexiconIndonesia/career-crawler-service/common/work"
	"github.com/LexiconIndonesia/career-crawler-service/crawlers/discovery"
)

// AnalyserCrawler discovers the job listing pages of a company and then
// extracts its jobs. Pages yielding no job are dropped as false positives.
type AnalyserCrawler struct {
	service  CrawlerService
	sessions *work.SessionTracker
	llm      llm.Client
	opts     Options
}

func NewAnalyserCrawler(service CrawlerService, sessions *work.SessionTracker, client llm.Client, opts Options) *AnalyserCrawler {
	return &AnalyserCrawler{service: service, sessions: sessions, llm: client, opts: opts}
}

func (a *AnalyserCrawler) Mode() config.WorkerMode { return config.ModeAnalyser }

func (a *AnalyserCrawler) Crawl(ctx context.Context, s *Session) error {
	log := s.Logger
	company, err := a.service.GetCompany(ctx, s.CompanyID)
	if err != nil {
		return err
	}

	if company.Website == "" {
		website, ok := discovery.FindWebsite(ctx, s.Page, a.opts.Delay, company.Name, log)
		if !ok {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fmt.Errorf("no website found for company %d", company.ID)
		}
		if err := a.service.UpdateWebsite(ctx, company.ID, website); err != nil {
			return err
		}
		company.Website = website
	}

	var emails []string
	if s.State.JobListingsStepDone {
		log.Info().Msg("Job listing pages already discovered, skipping discovery")
	} else {
		found, err := discovery.New(s.Page, a.llm, discovery.Options{
			MaxDepth:      a.opts.Crawl.MaxDepth,
			MaxPerPattern: a.opts.Crawl.MaxPerPattern,
			Delay:         a.opts.Delay,
			Heuristics:    a.opts.Heuristics,
			Backoff:       a.opts.Backoff,
		}, log).WithCapturer(s.Capturer).Run(ctx, company.Name, company.Website)
		if err != nil {
			return fmt.Errorf("discovering job listing pages: %w", err)
		}

		if err := a.service.SaveJobListingPages(ctx, company.ID, found.Internal, found.External, found.Emails); err != nil {
			return err
		}
		if err := a.sessions.MarkJobListingsDone(ctx, company.ID); err != nil {
			return err
		}
		company.InternalJobListingPages = found.Internal
		company.ExternalJobListingPages = found.External
		emails = found.Emails
	}

	if len(company.JobListingPages()) == 0 {
		log.Warn().Msg("Company has no job listing page")
	}
	return jobsPhase{service: a.service, llm: a.llm, opts: a.opts, removeOnEmpty: true}.run(ctx, s, company, emails)
}

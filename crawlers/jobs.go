package crawler

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"github.com/LexiconIndonesia/career-crawler-service/common/db"
	"github.com/LexiconIndonesia/career-crawler-service/common/llm"
	"github.com/LexiconIndonesia/career-crawler-service/common/models"
	"github.com/LexiconIndonesia/career-crawler-service/crawlers/joblisting"
	"github.com/LexiconIndonesia/career-crawler-service/crawlers/pagination"
	"github.com/LexiconIndonesia/career-crawler-service/crawlers/postprocess"
	"github.com/LexiconIndonesia/career-crawler-service/crawlers/showmore"
)

// jobsPhase extracts the jobs of company from its listing pages,
// post-processes them and stores the outcome. It is the second
// checkpoint of both session kinds.
type jobsPhase struct {
	service       CrawlerService
	llm           llm.Client
	opts          Options
	removeOnEmpty bool
}

func (p jobsPhase) run(ctx context.Context, s *Session, company models.Company, emails []string) error {
	log := s.Logger
	current, err := p.service.CurrentJobURLs(ctx, company.ID)
	if err != nil {
		return err
	}

	cache := pagination.CacheFromLists(company.ContainersHTML)
	pg := pagination.NewDetector(s.Page, p.llm, cache, p.opts.Heuristics, p.opts.Delay, log)
	sm := showmore.NewDetector(s.Page, p.llm, p.opts.Delay, p.opts.Crawl.ShowMoreMaxClicks, log)
	extractor := joblisting.New(s.Page, p.llm, pg, sm, joblisting.Options{
		MaxPaginationPages: p.opts.Crawl.MaxPaginationPages,
		RemoveOnEmpty:      p.removeOnEmpty,
		Delay:              p.opts.Delay,
	}, log)

	listed := extractor.Run(ctx, company.JobListingPages())
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("extracting jobs: %w", err)
	}

	processed, err := postprocess.New(s.Page, p.llm, p.opts.Heuristics, p.opts.Delay, log).
		Run(ctx, company.ID, listed.Jobs, current)
	if err != nil {
		return fmt.Errorf("post-processing jobs: %w", err)
	}

	internal := joblisting.DropPages(company.InternalJobListingPages, listed.EmptyPages)
	external := joblisting.DropPages(company.ExternalJobListingPages, listed.EmptyPages)
	if len(listed.EmptyPages) > 0 {
		log.Info().Strs("pages", listed.EmptyPages).Msg("Removing listing pages without jobs")
	}

	err = p.service.SaveResults(ctx, db.SaveResultsParams{
		CompanyID:   company.ID,
		Description: processed.CompanyDescription,
		Emails:      lo.Uniq(append(append([]string(nil), emails...), processed.Emails...)),
		Internal:    internal,
		External:    external,
		Containers:  pg.Cache().Lists(),
		Old:         processed.Old,
		New:         processed.New,
	})
	if err != nil {
		return err
	}
	log.Info().
		Int("new", len(processed.New)).
		Int("old", len(processed.Old)).
		Int("pages", len(internal)+len(external)).
		Msg("Saved session results")
	return nil
}

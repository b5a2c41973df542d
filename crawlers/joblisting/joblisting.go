// Package joblisting extracts job offers from identified listing pages,
// following standard and click-driven pagination and show-more buttons.
package joblisting

import (
	"context"
	"strings"

	gq "github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/LexiconIndonesia/career-crawler-service/common/llm"
	"github.com/LexiconIndonesia/career-crawler-service/common/metrics"
	"github.com/LexiconIndonesia/career-crawler-service/common/models"
	"github.com/LexiconIndonesia/career-crawler-service/crawlers/browser"
	"github.com/LexiconIndonesia/career-crawler-service/crawlers/extract"
	"github.com/LexiconIndonesia/career-crawler-service/crawlers/pagination"
	"github.com/LexiconIndonesia/career-crawler-service/crawlers/showmore"
	"github.com/LexiconIndonesia/career-crawler-service/crawlers/urlnorm"
)

const (
	jobsMaxTokens             = 8192
	defaultMaxPaginationPages = 50
)

type Options struct {
	// MaxPaginationPages caps the pages processed per listing root.
	MaxPaginationPages int
	// RemoveOnEmpty reports listing pages that yield no job at all.
	RemoveOnEmpty bool
	Delay         browser.Delay
}

// Result of one extraction run.
type Result struct {
	Jobs []models.JobOffer
	// EmptyPages are listing pages that produced no job, collected only
	// with RemoveOnEmpty.
	EmptyPages []string
}

// Extractor holds the crawl state of one session. It is not safe for
// concurrent use.
type Extractor struct {
	page       browser.Page
	llm        llm.Client
	pagination *pagination.Detector
	showMore   *showmore.Detector
	opts       Options
	logger     zerolog.Logger

	jobs  []models.JobOffer
	index map[models.JobKey]struct{}
	known map[string]struct{}

	visitedPages   map[string]struct{}
	visitedHashes  map[string]struct{}
	visitedButtons map[string]struct{}

	// per listing root
	processed int
	extracted int
}

func New(page browser.Page, client llm.Client, pg *pagination.Detector, sm *showmore.Detector, opts Options, logger zerolog.Logger) *Extractor {
	if opts.MaxPaginationPages <= 0 {
		opts.MaxPaginationPages = defaultMaxPaginationPages
	}
	return &Extractor{
		page:       page,
		llm:        client,
		pagination: pg,
		showMore:   sm,
		opts:       opts,
		logger:     logger,
		index:      make(map[models.JobKey]struct{}),
		known:      make(map[string]struct{}),
	}
}

// Run processes every listing page in order. Jobs accumulate across pages
// and are unique by title and URL.
func (e *Extractor) Run(ctx context.Context, pages []string) Result {
	e.visitedPages = make(map[string]struct{})
	e.visitedHashes = make(map[string]struct{})
	e.visitedButtons = make(map[string]struct{})

	var empty []string
	e.logger.Info().Strs("pages", pages).Msg("Extracting job listings")
	for i, listing := range pages {
		if ctx.Err() != nil {
			e.logger.Warn().Err(ctx.Err()).Msg("Job extraction interrupted")
			break
		}
		e.logger.Info().Int("index", i+1).Int("total", len(pages)).Str("url", listing).Msg("Processing listing page")
		e.processed, e.extracted = 0, 0

		if buttons := e.pagination.CheckPage(ctx, listing); len(buttons) > 0 {
			e.logger.Info().Strs("buttons", buttons).Msg("Listing is paginated")
			e.processWithPagination(ctx, listing, listing, false)
			e.visitedButtons = make(map[string]struct{})
		} else {
			e.processWithoutPagination(ctx, listing)
		}

		if e.extracted == 0 && e.opts.RemoveOnEmpty {
			e.logger.Info().Str("url", listing).Msg("No job on listing page, dropping it")
			empty = append(empty, listing)
		}
	}
	return Result{Jobs: e.Jobs(), EmptyPages: empty}
}

// Jobs returns the jobs found so far.
func (e *Extractor) Jobs() []models.JobOffer {
	return append([]models.JobOffer(nil), e.jobs...)
}

type loadedPage struct {
	doc  *gq.Document
	text string
}

func (e *Extractor) load(ctx context.Context, url string, navigate bool) (loadedPage, error) {
	raw, err := browser.Render(ctx, e.page, url, navigate, e.opts.Delay)
	if err != nil {
		return loadedPage{}, err
	}
	doc, err := extract.ParseClean(raw)
	if err != nil {
		return loadedPage{}, err
	}
	return loadedPage{doc: doc, text: extract.StructuredText(doc, url, e.known, true)}, nil
}

// processWithPagination handles one page of a paginated listing. With
// dynamic set the page was just changed in place by a click and is read
// without navigating.
func (e *Extractor) processWithPagination(ctx context.Context, url, baseURL string, dynamic bool) {
	if ctx.Err() != nil {
		return
	}
	if _, seen := e.visitedPages[url]; seen && !dynamic {
		return
	}
	if e.processed >= e.opts.MaxPaginationPages {
		e.logger.Warn().Str("baseURL", baseURL).Int("pages", e.processed).Msg("Pagination page cap reached")
		return
	}
	e.processed++
	e.visitedPages[url] = struct{}{}
	log := e.logger.With().Str("url", url).Bool("dynamic", dynamic).Logger()
	log.Info().Msg("Extracting jobs from page")

	var (
		page loadedPage
		err  error
	)
	if dynamic {
		page, err = e.load(ctx, url, false)
	} else {
		page, err = browser.Retry(ctx, e.page, log, url, func() (loadedPage, error) {
			return e.load(ctx, url, true)
		})
	}
	if err != nil {
		log.Error().Err(err).Msg("Loading listing page failed")
		metrics.IncPageFailure("listing")
		return
	}

	hash := extract.Hash(page.text)
	if _, dup := e.visitedHashes[hash]; dup {
		log.Info().Msg("Skipping page with duplicate content")
		return
	}
	e.visitedHashes[hash] = struct{}{}

	buttons := e.pagination.Buttons(ctx, page.doc, baseURL)
	if !dynamic {
		fp := pagination.Fingerprint(buttons)
		if _, dup := e.visitedButtons[fp]; dup {
			log.Info().Msg("Skipping page with duplicate pagination buttons")
			return
		}
		e.visitedButtons[fp] = struct{}{}
	}

	if page.text == "" {
		return
	}
	listings, ok := e.extractJobs(ctx, llm.ExtractJobsMessages(page.text))
	if !ok {
		log.Warn().Msg("No job extraction result")
		return
	}
	e.extracted += len(listings)
	if added := e.merge(listings, url); added == 0 {
		log.Info().Msg("All jobs on page already known, not following pagination")
		return
	}
	log.Info().Int("total", len(e.jobs)).Msg("Jobs merged")

	for _, button := range buttons {
		if ctx.Err() != nil {
			return
		}
		if pagination.IsStandard(button) {
			e.followLink(ctx, button, url, baseURL)
			continue
		}
		e.followClick(ctx, button, url, baseURL)
	}
}

func (e *Extractor) followLink(ctx context.Context, button, url, baseURL string) {
	href, ok := pagination.HrefFromLocator(button)
	if !ok {
		e.logger.Info().Str("locator", button).Msg("Could not read href from locator")
		return
	}
	next := href
	if !urlnorm.IsHTTP(href) {
		if next, ok = urlnorm.Normalize(url, href, false); !ok {
			return
		}
	}
	if !urlnorm.ShareBaseAndPathLevel(next, baseURL) {
		e.logger.Info().Str("next", next).Msg("Pagination link leaves listing scope, skipping")
		return
	}
	e.logger.Info().Str("next", next).Msg("Following pagination link")
	e.processWithPagination(ctx, next, baseURL, false)
}

func (e *Extractor) followClick(ctx context.Context, button, url, baseURL string) {
	e.logger.Info().Str("locator", button).Msg("Clicking pagination button")
	if err := e.page.Click(ctx, button); err != nil {
		e.logger.Warn().Err(err).Str("locator", button).Msg("Pagination button not clickable")
		return
	}
	if err := e.opts.Delay.Pause(ctx); err != nil {
		return
	}
	e.processWithPagination(ctx, url, baseURL, true)
}

// processWithoutPagination handles single-page listings, expanding any
// show-more button first and sending the page in chunks.
func (e *Extractor) processWithoutPagination(ctx context.Context, url string) {
	log := e.logger.With().Str("url", url).Logger()
	log.Info().Msg("Extracting jobs from single page listing")

	if button, ok := e.showMore.CheckPage(ctx, url); ok {
		res := e.showMore.Expand(ctx, url, button)
		log.Info().Int("clicks", res.Clicks).Int("grew", res.Grew).Msg("Show more expanded")
	}

	chunks, err := e.chunks(ctx, url, false)
	if err != nil || len(chunks) == 0 {
		log.Warn().Err(err).Msg("No content on current page, reloading")
		if rerr := e.page.Restart(ctx); rerr != nil {
			log.Error().Err(rerr).Msg("Restarting browser context failed")
			return
		}
		if chunks, err = e.chunks(ctx, url, true); err != nil {
			log.Error().Err(err).Msg("Reading listing page failed, skipping")
			metrics.IncPageFailure("listing")
			return
		}
	}

	var all []llm.JobListing
	for i, chunk := range chunks {
		if ctx.Err() != nil {
			return
		}
		listings, ok := e.extractJobs(ctx, llm.ExtractJobsChunkMessages(chunk, i+1, len(chunks)))
		if !ok {
			continue
		}
		log.Info().Int("chunk", i+1).Int("jobs", len(listings)).Msg("Jobs found in chunk")
		all = append(all, listings...)
	}
	e.extracted += len(all)
	if len(all) == 0 {
		return
	}
	e.merge(all, url)
	log.Info().Int("total", len(e.jobs)).Msg("Jobs merged")
}

func (e *Extractor) chunks(ctx context.Context, url string, navigate bool) ([]string, error) {
	delay := browser.Delay{}
	if navigate {
		delay = e.opts.Delay
	}
	raw, err := browser.Render(ctx, e.page, url, navigate, delay)
	if err != nil {
		return nil, err
	}
	doc, err := extract.ParseClean(raw)
	if err != nil {
		return nil, err
	}
	return extract.StructuredChunks(doc, url, e.known), nil
}

func (e *Extractor) extractJobs(ctx context.Context, messages []llm.Message) ([]llm.JobListing, bool) {
	var resp llm.JobsResponse
	if !e.llm.Call(ctx, messages, &resp, llm.CallOptions{Schema: llm.SchemaJobs, MaxTokens: jobsMaxTokens}) {
		return nil, false
	}
	return resp.Jobs, true
}

// merge adds the listings not seen yet and returns how many were added.
// Relative job URLs resolve against pageURL.
func (e *Extractor) merge(listings []llm.JobListing, pageURL string) int {
	added := 0
	for _, l := range listings {
		job, ok := toOffer(l, pageURL)
		if !ok {
			e.logger.Warn().Str("title", l.JobTitle.String()).Str("jobURL", l.JobURL.String()).Msg("Skipping job without title or url")
			continue
		}
		if _, dup := e.index[job.Key()]; dup {
			continue
		}
		e.index[job.Key()] = struct{}{}
		e.known[job.URL] = struct{}{}
		e.jobs = append(e.jobs, job)
		added++
	}
	metrics.JobsExtracted.Add(float64(added))
	return added
}

func toOffer(l llm.JobListing, pageURL string) (models.JobOffer, bool) {
	title := strings.TrimSpace(l.JobTitle.String())
	jobURL := strings.TrimSpace(l.JobURL.String())
	if title == "" || jobURL == "" {
		return models.JobOffer{}, false
	}
	if !urlnorm.IsHTTP(jobURL) && !strings.HasPrefix(jobURL, "mailto:") {
		normalized, ok := urlnorm.Normalize(pageURL, jobURL, false)
		if !ok {
			return models.JobOffer{}, false
		}
		jobURL = normalized
	}
	return models.JobOffer{
		Title:           title,
		URL:             jobURL,
		LocationCountry: models.OptionalString(l.LocationCountry.String()),
		LocationRegion:  models.OptionalString(l.LocationRegion.String()),
		ContractType:    models.OptionalString(l.ContractType.String()),
	}, true
}

// DropPages returns pages without the ones in drop, keeping order.
func DropPages(pages, drop []string) []string {
	return lo.Without(pages, drop...)
}

// Package discovery finds the job listing pages of a company, on its own
// website and on the external job boards it links to.
package discovery

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/LexiconIndonesia/career-crawler-service/common/config"
	"github.com/LexiconIndonesia/career-crawler-service/common/llm"
	"github.com/LexiconIndonesia/career-crawler-service/crawlers/browser"
	"github.com/LexiconIndonesia/career-crawler-service/crawlers/extract"
	"github.com/LexiconIndonesia/career-crawler-service/crawlers/sitecrawl"
	"github.com/LexiconIndonesia/career-crawler-service/crawlers/urlnorm"
)

const (
	careerPagesMaxTokens = 1024
	isListingMaxTokens   = 32
	prefixCrawlDepth     = 1
)

type Options struct {
	MaxDepth      int
	MaxPerPattern int
	Delay         browser.Delay
	Heuristics    config.Heuristics
	// Backoff overrides the crawler's wait after a timed out URL.
	Backoff func(failed int) time.Duration
}

// Result of a discovery run.
type Result struct {
	// Website is the company site after redirects.
	Website  string
	Internal []string
	External []string
	Emails   []string
}

// Pages returns internal pages followed by external ones.
func (r Result) Pages() []string {
	return append(append([]string(nil), r.Internal...), r.External...)
}

type Discoverer struct {
	page    browser.Page
	llm     llm.Client
	crawler *sitecrawl.Crawler
	opts    Options
	logger  zerolog.Logger
}

func New(page browser.Page, client llm.Client, opts Options, logger zerolog.Logger) *Discoverer {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 1
	}
	crawler := sitecrawl.New(page, sitecrawl.Options{
		MaxPerPattern: opts.MaxPerPattern,
		Delay:         opts.Delay,
		Heuristics:    opts.Heuristics,
		Backoff:       opts.Backoff,
	}, logger)
	return &Discoverer{
		page:    page,
		llm:     client,
		crawler: crawler,
		opts:    opts,
		logger:  logger,
	}
}

// WithCapturer stores captures of pages that fail while crawling.
func (d *Discoverer) WithCapturer(c browser.Capturer) *Discoverer {
	d.crawler.WithCapturer(c)
	return d
}

// Run discovers the listing pages reachable from website. Only context
// errors are returned; every other failure narrows the result.
func (d *Discoverer) Run(ctx context.Context, companyName, website string) (Result, error) {
	base := strings.TrimRight(website, "/")
	d.logger.Info().Str("website", base).Msg("Crawling main website")

	base, internal, err := d.internalPages(ctx, companyName, base)
	if err != nil {
		return Result{}, err
	}
	d.logger.Info().Strs("pages", internal).Msg("Internal job listing pages")

	external, err := d.externalPages(ctx, companyName, internal)
	if err != nil {
		return Result{}, err
	}
	d.logger.Info().Strs("pages", external).Msg("External job listing pages")

	return Result{
		Website:  base,
		Internal: internal,
		External: external,
		Emails:   d.crawler.Emails(),
	}, nil
}

func (d *Discoverer) internalPages(ctx context.Context, companyName, base string) (string, []string, error) {
	crawl, err := d.crawler.Crawl(ctx, base, d.opts.MaxDepth)
	if err != nil {
		return base, nil, err
	}
	base = crawl.BaseURL

	paths := relativePaths(base, lo.Filter(crawl.Visited, func(u string, _ int) bool {
		return strings.TrimRight(u, "/") != base
	}))
	career := d.absolute(base, d.filterCareerPages(ctx, llm.ScopeInternal, companyName, paths))
	career = appendUnique(career, base)

	listing := d.dropBlocked(d.identify(ctx, career))
	d.logger.Info().Strs("pages", listing).Msg("Job listing pages on main website")

	var deeper []string
	for _, page := range listing {
		if page == base {
			deeper = append(deeper, relativePaths(base, []string{page})...)
			continue
		}
		sub, err := d.crawler.CrawlPrefix(ctx, page, prefixCrawlDepth)
		if err != nil {
			return base, nil, err
		}
		deeper = append(deeper, relativePaths(base, sub.Visited)...)
	}
	deeper = lo.Uniq(deeper)
	d.logger.Info().Int("paths", len(deeper)).Msg("Asking again for deeper job listing pages")

	deeperCareer := d.absolute(base, d.filterCareerPages(ctx, llm.ScopeInternal, companyName, deeper))
	deeperListing := d.dropBlocked(d.identify(ctx, deeperCareer))

	merged := lo.Uniq(append(listing, deeperListing...))
	return base, urlnorm.DeduplicateByBaseURL(merged), ctx.Err()
}

func (d *Discoverer) externalPages(ctx context.Context, companyName string, internal []string) ([]string, error) {
	candidates := lo.Reject(d.crawler.External(), func(u string, _ int) bool { return d.blocked(u) })
	d.logger.Info().Int("urls", len(candidates)).Msg("Filtering external URLs")

	filtered := d.filterCareerPages(ctx, llm.ScopeExternal, companyName, candidates)
	var kept []string
	for _, u := range filtered {
		if d.blocked(u) {
			continue
		}
		kept = append(kept, strings.TrimRight(strings.TrimSpace(u), "/"))
	}
	kept = lo.Without(lo.Uniq(kept), internal...)
	roots := urlnorm.KeepOnlyRoots(kept)
	d.logger.Info().Strs("roots", roots).Msg("Crawling external career sites")

	var pages []string
	for _, root := range roots {
		if err := ctx.Err(); err != nil {
			return pages, err
		}
		crawl, err := d.crawler.CrawlPrefix(ctx, root, prefixCrawlDepth)
		if err != nil {
			return pages, err
		}
		paths := relativePaths(root, append(crawl.Visited, root))
		career := d.absolute(root, d.filterCareerPages(ctx, llm.ScopeAll, companyName, paths))
		career = appendUnique(career, root)

		identified := d.dropBlocked(d.identify(ctx, career))
		identified = urlnorm.DeduplicateByBaseURL(identified)
		d.logger.Info().Str("root", root).Strs("pages", identified).Msg("External job listing pages")
		pages = append(pages, identified...)
	}
	return pages, ctx.Err()
}

// filterCareerPages asks the LLM which of pages are career pages.
func (d *Discoverer) filterCareerPages(ctx context.Context, scope llm.CareerPagesScope, companyName string, pages []string) []string {
	if len(pages) == 0 {
		return nil
	}
	var resp llm.CareerPagesResponse
	if !d.llm.Call(ctx, llm.CareerPagesMessages(scope, companyName, pages), &resp, llm.CallOptions{
		Schema:    llm.SchemaCareerPages,
		MaxTokens: careerPagesMaxTokens,
	}) {
		d.logger.Warn().Str("scope", string(scope)).Msg("No career page answer from LLM")
		return nil
	}
	return lo.Compact(lo.Map(resp.CareerPages, func(p string, _ int) string { return strings.TrimSpace(p) }))
}

// identify keeps the urls whose rendered content lists job offers.
func (d *Discoverer) identify(ctx context.Context, urls []string) []string {
	var listing []string
	for _, u := range urls {
		if ctx.Err() != nil {
			return listing
		}
		log := d.logger.With().Str("url", u).Logger()
		text, err := browser.Retry(ctx, d.page, log, u, func() (string, error) {
			raw, err := browser.Render(ctx, d.page, u, true, d.opts.Delay)
			if err != nil {
				return "", err
			}
			doc, err := extract.ParseClean(raw)
			if err != nil {
				return "", err
			}
			return extract.StructuredText(doc, u, nil, false), nil
		})
		if err != nil {
			log.Error().Err(err).Msg("Loading page failed")
			continue
		}
		if text == "" {
			continue
		}

		var resp llm.IsJobListingPage
		if !d.llm.Call(ctx, llm.IdentifyListingMessages(text), &resp, llm.CallOptions{
			Schema:    llm.SchemaIsListing,
			MaxTokens: isListingMaxTokens,
		}) {
			log.Warn().Msg("No listing answer from LLM")
			continue
		}
		if resp.Yes() {
			log.Info().Msg("Identified as job listing page")
			listing = append(listing, u)
		}
	}
	return listing
}

func (d *Discoverer) absolute(base string, paths []string) []string {
	return lo.Uniq(lo.Map(paths, func(p string, _ int) string {
		return strings.TrimRight(urlnorm.Join(base, p), "/")
	}))
}

func (d *Discoverer) dropBlocked(urls []string) []string {
	return lo.Reject(urls, func(u string, _ int) bool { return d.blocked(u) })
}

// blocked reports whether u is on a blocked domain or one of its subdomains.
func (d *Discoverer) blocked(u string) bool {
	host := urlnorm.Host(u)
	if host == "" {
		return false
	}
	return lo.SomeBy(d.opts.Heuristics.BlockedDomains, func(domain string) bool {
		return host == domain || strings.HasSuffix(host, "."+domain)
	})
}

func relativePaths(root string, urls []string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, u := range urls {
		rel, ok := urlnorm.RelativePath(root, strings.TrimRight(u, "/"))
		if !ok {
			continue
		}
		if _, dup := seen[rel]; dup {
			continue
		}
		seen[rel] = struct{}{}
		out = append(out, rel)
	}
	sort.Strings(out)
	return out
}

func appendUnique(list []string, v string) []string {
	if lo.Contains(list, v) {
		return list
	}
	return append(list, v)
}

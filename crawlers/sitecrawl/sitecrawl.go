// Package sitecrawl walks a company website breadth-first, collecting its
// pages, the external links it points to and the email addresses it shows.
package sitecrawl

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"strings"
	"time"

	gq "github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/LexiconIndonesia/career-crawler-service/common/config"
	"github.com/LexiconIndonesia/career-crawler-service/common/metrics"
	"github.com/LexiconIndonesia/career-crawler-service/crawlers/browser"
	"github.com/LexiconIndonesia/career-crawler-service/crawlers/extract"
	"github.com/LexiconIndonesia/career-crawler-service/crawlers/urlnorm"
)

const patternDepth = 2

type Options struct {
	MaxPerPattern int
	Delay         browser.Delay
	Heuristics    config.Heuristics
	// Backoff is the wait before retrying after the n-th timed out URL.
	Backoff func(failed int) time.Duration
}

func DefaultBackoff(failed int) time.Duration {
	return time.Duration(2*failed) * time.Second
}

type frontierItem struct {
	url   string
	depth int
}

// Crawler accumulates external URLs and emails over every crawl it runs.
type Crawler struct {
	page     browser.Page
	opts     Options
	logger   zerolog.Logger
	capturer browser.Capturer

	external map[string]struct{}
	emails   map[string]struct{}
}

func New(page browser.Page, opts Options, logger zerolog.Logger) *Crawler {
	if opts.Backoff == nil {
		opts.Backoff = DefaultBackoff
	}
	if opts.MaxPerPattern <= 0 {
		opts.MaxPerPattern = 5
	}
	return &Crawler{
		page:     page,
		opts:     opts,
		logger:   logger,
		external: make(map[string]struct{}),
		emails:   make(map[string]struct{}),
	}
}

// WithCapturer stores a capture of pages that fail with a non-timeout error.
func (c *Crawler) WithCapturer(capturer browser.Capturer) *Crawler {
	c.capturer = capturer
	return c
}

// External returns the sorted external URLs seen so far.
func (c *Crawler) External() []string { return sortedKeys(c.external) }

// Emails returns the sorted email addresses seen so far.
func (c *Crawler) Emails() []string { return sortedKeys(c.emails) }

// Result of one crawl.
type Result struct {
	// BaseURL is the seed after redirects, without trailing slash.
	BaseURL string
	// Visited lists canonical URLs in visit order.
	Visited []string
}

type walk struct {
	base       string
	prefixOnly bool
	pathPrefix string
	maxDepth   int

	queue   []frontierItem
	pending map[string]struct{}
	visited map[string]struct{}
	order   []string
	failed  map[string]struct{}
	counts  map[string]int
}

func newWalk(seed string, maxDepth int, prefixOnly bool) *walk {
	w := &walk{
		base:       strings.TrimRight(seed, "/"),
		prefixOnly: prefixOnly,
		maxDepth:   maxDepth,
		pending:    map[string]struct{}{},
		visited:    map[string]struct{}{},
		failed:     map[string]struct{}{},
		counts:     map[string]int{},
	}
	if u, err := url.Parse(seed); err == nil {
		w.pathPrefix = strings.TrimRight(u.Path, "/")
	}
	w.push(seed, 0)
	return w
}

func (w *walk) push(u string, depth int) {
	w.queue = append(w.queue, frontierItem{url: u, depth: depth})
	w.pending[canonical(u)] = struct{}{}
}

func (w *walk) pop() frontierItem {
	item := w.queue[0]
	w.queue = w.queue[1:]
	delete(w.pending, canonical(item.url))
	return item
}

// Crawl visits seed and the same-domain pages reachable from it within
// maxDepth links. URL families are capped per pattern so faceted or numbered
// sections cannot blow the crawl up.
func (c *Crawler) Crawl(ctx context.Context, seed string, maxDepth int) (Result, error) {
	return c.run(ctx, newWalk(seed, maxDepth, false))
}

// CrawlPrefix is Crawl restricted to URLs under the seed's path, without
// pattern caps.
func (c *Crawler) CrawlPrefix(ctx context.Context, seed string, maxDepth int) (Result, error) {
	return c.run(ctx, newWalk(seed, maxDepth, true))
}

func (c *Crawler) run(ctx context.Context, w *walk) (Result, error) {
	first := true
	for len(w.queue) > 0 {
		if err := ctx.Err(); err != nil {
			return Result{BaseURL: w.base, Visited: w.order}, err
		}
		item := w.pop()
		target := canonical(item.url)
		if target == "" {
			continue
		}

		// A timed-out URL pushed back for its retry was already counted.
		if _, retry := w.failed[target]; !retry && !w.prefixOnly {
			keys := urlnorm.PatternKeys(target, patternDepth)
			if lo.SomeBy(keys, func(k string) bool { return w.counts[k] >= c.opts.MaxPerPattern }) {
				c.logger.Info().Str("url", target).Msg("Skipping url, pattern cap reached")
				metrics.IncPageFailure("pattern_cap")
				continue
			}
			for _, k := range keys {
				w.counts[k]++
			}
		}

		if _, seen := w.visited[target]; seen || item.depth > w.maxDepth {
			continue
		}

		doc, landed, err := c.fetch(ctx, target)
		if err != nil {
			if ctx.Err() != nil {
				return Result{BaseURL: w.base, Visited: w.order}, ctx.Err()
			}
			if errors.Is(err, browser.ErrTimeout) {
				c.onTimeout(ctx, w, item, target, err)
				continue
			}
			c.logger.Error().Err(err).Str("url", target).Msg("Unexpected error while crawling")
			metrics.IncPageFailure("error")
			browser.CaptureFailure(ctx, c.page, c.capturer, "crawl", c.logger)
			continue
		}

		visitedURL, linkBase := target, target
		if landed != "" {
			linkBase = landed
		}
		if !w.prefixOnly {
			if landed != "" {
				visitedURL = canonical(landed)
			}
			if first {
				w.base = strings.TrimRight(visitedURL, "/")
				c.logger.Info().Str("baseURL", w.base).Msg("Base URL updated")
			}
		}
		first = false

		w.visited[visitedURL] = struct{}{}
		w.visited[target] = struct{}{}
		w.order = append(w.order, visitedURL)
		metrics.PagesVisited.Inc()
		c.logger.Info().Str("url", visitedURL).Int("depth", item.depth).Msg("Visited url")

		c.collect(doc, linkBase, item.depth, w)
	}

	return Result{BaseURL: w.base, Visited: w.order}, nil
}

func (c *Crawler) onTimeout(ctx context.Context, w *walk, item frontierItem, target string, err error) {
	c.logger.Warn().Err(err).Str("url", target).Msg("Timeout while crawling")
	metrics.IncPageFailure("timeout")
	if _, retried := w.failed[target]; retried {
		c.logger.Warn().Str("url", target).Msg("Already retried once, skipping permanently")
		return
	}
	w.failed[target] = struct{}{}
	backoff := c.opts.Backoff(len(w.failed))
	c.logger.Info().Dur("backoff", backoff).Msg("Restarting browser context before retry")
	if err := browser.Pause(ctx, backoff, backoff); err != nil {
		return
	}
	if err := c.page.Restart(ctx); err != nil {
		c.logger.Error().Err(err).Msg("Failed to restart browser context")
		return
	}
	w.push(item.url, item.depth)
}

func (c *Crawler) fetch(ctx context.Context, target string) (*gq.Document, string, error) {
	html, err := browser.Render(ctx, c.page, target, true, c.opts.Delay)
	if err != nil {
		return nil, "", err
	}
	landed, err := c.page.URL(ctx)
	if err != nil {
		return nil, "", err
	}
	doc, err := extract.ParseClean(html)
	if err != nil {
		return nil, "", err
	}
	return doc, landed, nil
}

// collect records emails and routes every iframe and anchor target either
// into the frontier or into the external set. Links resolve against pageURL.
func (c *Crawler) collect(doc *gq.Document, pageURL string, depth int, w *walk) {
	for _, e := range extract.Emails(extract.VisibleText(doc)) {
		if _, ok := c.emails[e]; !ok {
			c.logger.Info().Str("email", e).Msg("Email found")
		}
		c.emails[e] = struct{}{}
	}

	doc.Find("iframe[src]").Each(func(_ int, s *gq.Selection) {
		src, _ := s.Attr("src")
		link, ok := urlnorm.Resolve(pageURL, urlnorm.StripFragment(src))
		if !ok || c.ignored(link) {
			return
		}
		c.enqueue(link, depth, w)
	})

	doc.Find("a[href]").Each(func(_ int, s *gq.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(urlnorm.StripFragment(href))
		if href == "" || strings.HasPrefix(href, "tel:") || strings.HasPrefix(href, "javascript:") {
			return
		}
		link, ok := urlnorm.Resolve(pageURL, href)
		if !ok || c.ignored(link) {
			return
		}
		c.enqueue(link, depth, w)
	})
}

func (c *Crawler) ignored(link string) bool {
	lower := strings.ToLower(link)
	if strings.HasPrefix(lower, "mailto:") || strings.Contains(lower, "javascript:void") {
		return true
	}
	if lo.SomeBy(c.opts.Heuristics.VideoKeywords, func(k string) bool { return strings.Contains(lower, k) }) {
		return true
	}
	return lo.SomeBy(c.opts.Heuristics.SkipExtensions, func(ext string) bool { return strings.HasSuffix(lower, ext) })
}

func (c *Crawler) enqueue(link string, depth int, w *walk) {
	if !urlnorm.SameDomain(link, w.base) {
		if urlnorm.IsHTTP(link) {
			c.external[strings.TrimRight(link, "/")] = struct{}{}
		}
		return
	}

	key := canonical(link)
	if _, seen := w.visited[key]; seen {
		return
	}
	if _, queued := w.pending[key]; queued {
		return
	}
	if depth+1 > w.maxDepth {
		return
	}
	if w.prefixOnly {
		u, err := url.Parse(link)
		if err != nil || !strings.HasPrefix(u.Path, w.pathPrefix) {
			return
		}
	}
	w.push(link, depth+1)
}

// canonical strips the fragment and the trailing slash.
func canonical(raw string) string {
	raw = urlnorm.StripFragment(strings.TrimSpace(raw))
	if !urlnorm.IsHTTP(raw) {
		return ""
	}
	return strings.TrimRight(raw, "/")
}

func sortedKeys(m map[string]struct{}) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}

// Package pagination finds the controls that lead to further pages of a job
// listing and turns them into XPath locators the browser can follow or click.
package pagination

import (
	"context"
	"regexp"
	"sort"
	"strings"

	gq "github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"

	"github.com/LexiconIndonesia/career-crawler-service/common/config"
	"github.com/LexiconIndonesia/career-crawler-service/common/llm"
	"github.com/LexiconIndonesia/career-crawler-service/common/metrics"
	"github.com/LexiconIndonesia/career-crawler-service/crawlers/browser"
	"github.com/LexiconIndonesia/career-crawler-service/crawlers/extract"
)

const (
	maxSnippetChars      = 3000
	attemptsPerCandidate = 2
	containerMaxTokens   = 8192

	clickableExpr = `.//a | .//button | .//input[@type='submit' or @type='button'] | .//*[@onclick] | .//*[@role='button']`
)

var hrefPredicate = regexp.MustCompile(`\[@href=['"]([^'"]+)['"]\]`)

// Container is an accepted pagination container.
type Container struct {
	Identifier string
	HTML       string
	Locators   []string
}

// Detector is bound to one session's page and container cache.
type Detector struct {
	page       browser.Page
	llm        llm.Client
	cache      Cache
	heuristics config.Heuristics
	delay      browser.Delay
	logger     zerolog.Logger
}

func NewDetector(page browser.Page, client llm.Client, cache Cache, h config.Heuristics, delay browser.Delay, logger zerolog.Logger) *Detector {
	if cache == nil {
		cache = NewCache()
	}
	return &Detector{
		page:       page,
		llm:        client,
		cache:      cache,
		heuristics: h,
		delay:      delay,
		logger:     logger,
	}
}

func (d *Detector) Cache() Cache { return d.cache }

// Buttons returns the pagination locators of the parsed page. Cached
// containers for baseURL are tried before asking the LLM for a new one.
func (d *Detector) Buttons(ctx context.Context, doc *gq.Document, baseURL string) []string {
	full := root(doc)
	if full == nil {
		return nil
	}

	if snippets := d.cache.Snippets(baseURL); len(snippets) > 0 {
		d.logger.Info().Str("baseURL", baseURL).Int("containers", len(snippets)).Msg("Trying known pagination containers")
		for _, snippet := range snippets {
			if locators := d.Locators(ctx, snippet, full); len(locators) > 0 {
				metrics.IncPaginationDetection("cache")
				return locators
			}
		}
		d.logger.Info().Msg("No known container matched, falling back to detection")
	}

	container, ok := d.Detect(ctx, doc, baseURL)
	if !ok {
		metrics.IncPaginationDetection("none")
		return nil
	}
	d.cache.Add(baseURL, container.HTML)
	metrics.IncPaginationDetection("llm")
	return container.Locators
}

// Detect runs the candidate pipeline and asks the LLM to confirm the
// candidates in rank order. The first confirmed candidate with live
// locators wins.
func (d *Detector) Detect(ctx context.Context, doc *gq.Document, baseURL string) (Container, bool) {
	if doc.Find("body").Length() == 0 {
		d.logger.Warn().Msg("Page has no body")
		return Container{}, false
	}
	full := root(doc)

	for i, cand := range candidates(doc, baseURL, d.heuristics) {
		snippet, err := gq.OuterHtml(cand)
		if err != nil {
			d.logger.Warn().Err(err).Msg("Rendering pagination candidate")
			continue
		}
		messages := llm.ContainerMessages(i, extract.Truncate(snippet, maxSnippetChars))

	attempts:
		for attempt := 0; attempt < attemptsPerCandidate; attempt++ {
			if ctx.Err() != nil {
				return Container{}, false
			}
			var resp llm.ContainerIdentifier
			if !d.llm.Call(ctx, messages, &resp, llm.CallOptions{Schema: llm.SchemaContainer, MaxTokens: containerMaxTokens}) {
				d.logger.Warn().Int("candidate", i+1).Msg("No valid answer for pagination candidate")
				continue
			}
			identifier := strings.ToLower(strings.TrimSpace(resp.ContainerIdentifier.String()))
			if identifier == "" {
				d.logger.Info().Int("candidate", i+1).Msg("Candidate is not a pagination container")
				break attempts
			}

			locators := d.Locators(ctx, snippet, full)
			if len(locators) == 0 {
				d.logger.Info().Int("candidate", i+1).Msg("Pagination container has no live clickable elements")
				break attempts
			}
			d.logger.Info().Str("container", identifier).Int("buttons", len(locators)).Msg("Pagination container found")
			return Container{Identifier: identifier, HTML: snippet, Locators: locators}, true
		}
	}

	d.logger.Info().Msg("No pagination container identified")
	return Container{}, false
}

// Locators maps a container snippet back onto the full page: every element
// of the same tag carrying the same stable attributes contributes the
// locators of its clickable descendants. Only locators that resolve in the
// live page are kept.
func (d *Detector) Locators(ctx context.Context, snippet string, full *html.Node) []string {
	fragment, err := htmlquery.Parse(strings.NewReader(snippet))
	if err != nil {
		d.logger.Warn().Err(err).Msg("Parsing container snippet")
		return nil
	}
	container := htmlquery.FindOne(fragment, "/html/body/*[1]")
	if container == nil {
		d.logger.Warn().Msg("Container snippet has no element")
		return nil
	}

	sameTag, err := htmlquery.QueryAll(full, "//"+container.Data)
	if err != nil {
		d.logger.Warn().Err(err).Str("tag", container.Data).Msg("Querying page for container tag")
		return nil
	}
	var matching []*html.Node
	for _, n := range sameTag {
		if d.sameStableAttrs(container, n) {
			matching = append(matching, n)
		}
	}
	if len(matching) == 0 {
		d.logger.Warn().Str("tag", container.Data).Msg("No matching container in page")
		return nil
	}

	found := make(map[string]struct{})
	for _, m := range matching {
		clickables, err := htmlquery.QueryAll(m, clickableExpr)
		if err != nil {
			d.logger.Warn().Err(err).Msg("Querying clickable elements")
			continue
		}
		for _, el := range clickables {
			locator := locatorOf(el)
			if _, dup := found[locator]; dup {
				continue
			}
			n, err := d.page.Count(ctx, locator)
			if err != nil {
				d.logger.Info().Err(err).Str("locator", locator).Msg("Live check failed")
				continue
			}
			if n == 0 {
				d.logger.Debug().Str("locator", locator).Msg("Locator not present in live page")
				continue
			}
			found[locator] = struct{}{}
		}
	}

	out := make([]string, 0, len(found))
	for l := range found {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

func (d *Detector) sameStableAttrs(want, got *html.Node) bool {
	for _, a := range want.Attr {
		if containsFold(d.heuristics.VolatileAttributes, a.Key) {
			continue
		}
		v, ok := attr(got, a.Key)
		if !ok || v != a.Val {
			return false
		}
	}
	return true
}

// CheckPage loads url and returns its pagination locators. A timeout
// restarts the browser context and retries once.
func (d *Detector) CheckPage(ctx context.Context, url string) []string {
	buttons, err := browser.Retry(ctx, d.page, d.logger, url, func() ([]string, error) {
		raw, err := browser.Render(ctx, d.page, url, true, d.delay)
		if err != nil {
			return nil, err
		}
		doc, err := extract.ParseClean(raw)
		if err != nil {
			return nil, err
		}
		return d.Buttons(ctx, doc, url), nil
	})
	if err != nil {
		d.logger.Error().Err(err).Str("url", url).Msg("Checking pagination failed")
		return nil
	}
	return buttons
}

// HrefFromLocator returns the href predicate value of a locator.
func HrefFromLocator(locator string) (string, bool) {
	m := hrefPredicate.FindStringSubmatch(locator)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// IsStandard reports whether following the locator is a plain navigation.
func IsStandard(locator string) bool {
	return strings.Contains(locator, "[@href=")
}

// Fingerprint identifies a set of locators regardless of order.
func Fingerprint(locators []string) string {
	sorted := append([]string(nil), locators...)
	sort.Strings(sorted)
	return strings.Join(sorted, "\x1f")
}

func locatorOf(el *html.Node) string {
	path := extract.XPath(el)
	href, ok := attr(el, "href")
	href = strings.TrimSpace(href)
	if !ok || href == "" {
		return path
	}
	switch {
	case !strings.Contains(href, "'"):
		return path + "[@href='" + href + "']"
	case !strings.Contains(href, `"`):
		return path + `[@href="` + href + `"]`
	default:
		return path
	}
}

func root(doc *gq.Document) *html.Node {
	if doc == nil || len(doc.Nodes) == 0 {
		return nil
	}
	return doc.Nodes[0]
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

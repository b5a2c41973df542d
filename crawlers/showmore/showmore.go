// Package showmore handles listings that grow in place behind a "load more"
// style button instead of linking to further pages.
package showmore

import (
	"context"
	"net/url"
	"strings"

	gq "github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/LexiconIndonesia/career-crawler-service/common/llm"
	"github.com/LexiconIndonesia/career-crawler-service/crawlers/browser"
	"github.com/LexiconIndonesia/career-crawler-service/crawlers/extract"
)

const (
	maxPageTextChars = 120000
	buttonMaxTokens  = 1024
	defaultMaxClicks = 50
)

// Button is a detected show-more control.
type Button struct {
	Locator string
	Text    string
}

// Result summarizes one click-and-grow run.
type Result struct {
	// Clicks counts successful clicks, including the one that changed nothing.
	Clicks int
	// Grew counts clicks after which the page showed new content.
	Grew int
	// Fingerprints counts the fingerprints taken after clicks.
	Fingerprints int
}

type Detector struct {
	page      browser.Page
	llm       llm.Client
	delay     browser.Delay
	maxClicks int
	logger    zerolog.Logger
}

func NewDetector(page browser.Page, client llm.Client, delay browser.Delay, maxClicks int, logger zerolog.Logger) *Detector {
	if maxClicks <= 0 {
		maxClicks = defaultMaxClicks
	}
	return &Detector{page: page, llm: client, delay: delay, maxClicks: maxClicks, logger: logger}
}

// TextLocators returns the distinct element texts of the page in document
// order, and every element locator carrying each text.
func TextLocators(doc *gq.Document) ([]string, map[string][]string) {
	var texts []string
	mapping := make(map[string][]string)
	doc.Find("*").Each(func(_ int, s *gq.Selection) {
		text := extract.NodeText(s.Get(0))
		if text == "" {
			return
		}
		if _, seen := mapping[text]; !seen {
			texts = append(texts, text)
		}
		mapping[text] = append(mapping[text], extract.XPath(s.Get(0)))
	})
	return texts, mapping
}

// Detect asks the LLM for the literal text of a show-more button and maps
// it back to the first locator present in the live page.
func (d *Detector) Detect(ctx context.Context, doc *gq.Document, pageURL string) (Button, bool) {
	texts, mapping := TextLocators(doc)
	pageText := extract.TruncateTail(strings.Join(texts, "\n"), maxPageTextChars)

	var resp llm.ShowMoreButton
	if !d.llm.Call(ctx, llm.ShowMoreMessages(pageURL, pageText), &resp, llm.CallOptions{Schema: llm.SchemaShowMore, MaxTokens: buttonMaxTokens}) {
		return Button{}, false
	}
	text := strings.Join(strings.Fields(resp.ButtonText.String()), " ")
	if text == "" {
		d.logger.Info().Str("url", pageURL).Msg("No show more button text detected")
		return Button{}, false
	}

	locators := mapping[text]
	if len(locators) == 0 {
		d.logger.Warn().Str("text", text).Msg("No locator carries the show more text")
		return Button{}, false
	}
	for _, loc := range locators {
		n, err := d.page.Count(ctx, loc)
		if err == nil && n > 0 {
			d.logger.Info().Str("text", text).Str("locator", loc).Msg("Found show more button")
			return Button{Locator: loc, Text: text}, true
		}
	}
	d.logger.Warn().Str("text", text).Msg("Show more text found but no locator resolves in page")
	return Button{}, false
}

// CheckPage loads pageURL and looks for a show-more button on it. A timeout
// restarts the browser context and retries once.
func (d *Detector) CheckPage(ctx context.Context, pageURL string) (Button, bool) {
	type found struct {
		button Button
		ok     bool
	}
	res, err := browser.Retry(ctx, d.page, d.logger, pageURL, func() (found, error) {
		raw, err := browser.Render(ctx, d.page, pageURL, true, d.delay)
		if err != nil {
			return found{}, err
		}
		doc, err := extract.ParseClean(raw)
		if err != nil {
			return found{}, err
		}
		b, ok := d.Detect(ctx, doc, pageURL)
		return found{b, ok}, nil
	})
	if err != nil {
		d.logger.Error().Err(err).Str("url", pageURL).Msg("Checking show more button failed")
		return Button{}, false
	}
	return res.button, res.ok
}

// Expand clicks the button until the page stops growing. It also stops when
// the page navigates away, when no element with the button text can be
// clicked, or after the click cap.
func (d *Detector) Expand(ctx context.Context, pageURL string, button Button) Result {
	var res Result
	log := d.logger.With().Str("url", pageURL).Str("button", button.Text).Logger()
	log.Info().Msg("Expanding show more listing")

	initialPath := pathOf(pageURL)
	first, err := d.fingerprint(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Fingerprinting page")
		return res
	}
	seen := map[string]struct{}{first: {}}

	for res.Clicks < d.maxClicks {
		if ctx.Err() != nil {
			return res
		}
		current, err := d.page.URL(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Reading page URL")
			return res
		}
		if p := pathOf(current); p != initialPath {
			log.Warn().Str("from", initialPath).Str("to", p).Msg("URL path changed, stopping")
			return res
		}

		if !d.click(ctx, button.Text) {
			log.Info().Msg("No more show more button to click")
			return res
		}
		res.Clicks++

		if err := d.page.WaitIdle(ctx); err != nil {
			log.Warn().Err(err).Msg("Waiting for network idle")
			return res
		}
		if err := d.delay.Pause(ctx); err != nil {
			return res
		}

		fp, err := d.fingerprint(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Fingerprinting page")
			return res
		}
		res.Fingerprints++
		if _, dup := seen[fp]; dup {
			log.Info().Int("clicks", res.Clicks).Msg("Content stopped growing")
			return res
		}
		seen[fp] = struct{}{}
		res.Grew++
	}

	log.Warn().Int("clicks", res.Clicks).Msg("Show more click cap reached")
	return res
}

// click re-reads the live DOM and clicks the deepest clickable element
// carrying text, falling back to its ancestors.
func (d *Detector) click(ctx context.Context, text string) bool {
	raw, err := d.page.HTML(ctx)
	if err != nil {
		d.logger.Warn().Err(err).Msg("Reading page HTML")
		return false
	}
	doc, err := extract.ParseClean(raw)
	if err != nil {
		d.logger.Warn().Err(err).Msg("Parsing page HTML")
		return false
	}
	_, mapping := TextLocators(doc)
	locators := mapping[text]
	if len(locators) == 0 {
		return false
	}

	for _, loc := range locators {
		for _, target := range clickTargets(doc, loc) {
			if err := d.page.Click(ctx, target); err != nil {
				d.logger.Debug().Err(err).Str("target", target).Msg("Click failed")
				continue
			}
			return true
		}
	}
	d.logger.Warn().Str("text", text).Msg("Could not click any element with the button text")
	return false
}

// clickTargets lists the descendants of the element at locator, deepest
// last-first, followed by the element itself.
func clickTargets(doc *gq.Document, locator string) []string {
	var el *gq.Selection
	doc.Find("*").EachWithBreak(func(_ int, s *gq.Selection) bool {
		if extract.XPath(s.Get(0)) == locator {
			el = s
			return false
		}
		return true
	})
	if el == nil {
		return []string{locator}
	}

	desc := el.Find("*")
	targets := make([]string, 0, desc.Length()+1)
	for i := desc.Length() - 1; i >= 0; i-- {
		targets = append(targets, extract.XPath(desc.Get(i)))
	}
	return append(targets, locator)
}

func (d *Detector) fingerprint(ctx context.Context) (string, error) {
	raw, err := d.page.HTML(ctx)
	if err != nil {
		return "", err
	}
	doc, err := extract.ParseClean(raw)
	if err != nil {
		return "", err
	}
	return extract.Hash(extract.VisibleText(doc)), nil
}

func pathOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Path
}

package discovery

import (
	"context"
	"net/url"
	"strings"

	gq "github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/LexiconIndonesia/career-crawler-service/crawlers/browser"
)

const searchEndpoint = "https://duckduckgo.com/"

func searchURL(companyName string) string {
	q := url.Values{}
	q.Set("q", companyName+" official company website")
	return searchEndpoint + "?" + q.Encode() + "&kl=ch-en&t=h_&ia=web"
}

// FindWebsite searches the web for the official website of companyName and
// returns the first organic result.
func FindWebsite(ctx context.Context, page browser.Page, delay browser.Delay, companyName string, logger zerolog.Logger) (string, bool) {
	target := searchURL(companyName)
	raw, err := browser.Retry(ctx, page, logger, target, func() (string, error) {
		return browser.Render(ctx, page, target, true, delay)
	})
	if err != nil {
		logger.Error().Err(err).Str("company", companyName).Msg("Website search failed")
		return "", false
	}

	doc, err := gq.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		logger.Error().Err(err).Msg("Parsing search results failed")
		return "", false
	}

	var website string
	doc.Find("ol.react-results--main li[data-layout='organic']").EachWithBreak(func(_ int, li *gq.Selection) bool {
		href, ok := li.Find("a[data-testid='result-extras-url-link']").First().Attr("href")
		if !ok || strings.Contains(href, "duckduckgo.com") {
			return true
		}
		website = strings.TrimSpace(href)
		return false
	})
	if website == "" {
		logger.Warn().Str("company", companyName).Msg("No website found in search results")
		return "", false
	}
	logger.Info().Str("company", companyName).Str("website", website).Msg("Found company website")
	return website, true
}

package discovery

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LexiconIndonesia/career-crawler-service/common/config"
	"github.com/LexiconIndonesia/career-crawler-service/common/llm"
	"github.com/LexiconIndonesia/career-crawler-service/common/llm/llmtest"
	"github.com/LexiconIndonesia/career-crawler-service/crawlers/browser"
	"github.com/LexiconIndonesia/career-crawler-service/crawlers/browser/browsertest"
)

func page(body string) string {
	return "<html><body>" + body + "</body></html>"
}

func acmeSite() map[string]string {
	return map[string]string{
		"https://acme.example": page(`
			<a href="/about">About</a>
			<a href="/careers">Careers</a>
			<a href="https://boards.example/acme/">Open roles</a>
			<a href="https://www.linkedin.com/company/acme">LinkedIn</a>`),
		"https://acme.example/about": page(`<p>Reach us at hr@acme.example</p>`),
		"https://acme.example/careers": page(`
			<ul><li><a href="/careers/jobs/1">Engineer</a></li></ul>
			<a href="/careers/teams">Teams</a>`),
		"https://acme.example/careers/jobs/1": page(`<h1>Engineer</h1>`),
		"https://acme.example/careers/teams":  page(`<p>Our teams</p>`),
		"https://boards.example/acme":         page(`<ul><li><a href="/acme/jobs/9">Designer</a></li></ul>`),
		"https://boards.example/acme/jobs/9":  page(`<h1>Designer</h1>`),
	}
}

func userContent(messages []llm.Message) string {
	return messages[len(messages)-1].Content
}

// listingByJobLinks says yes to pages linking to a job detail.
func listingByJobLinks(messages []llm.Message) (string, bool) {
	if strings.Contains(userContent(messages), "/jobs/") {
		return `{"is_job_listing_page": "yes"}`, true
	}
	return `{"is_job_listing_page": "no"}`, true
}

func newDiscoverer(p browser.Page, client llm.Client) *Discoverer {
	return New(p, client, Options{
		MaxDepth:      1,
		MaxPerPattern: 5,
		Heuristics:    config.DefaultHeuristics(),
		Backoff:       func(int) time.Duration { return 0 },
	}, zerolog.Nop())
}

func TestRunFindsInternalAndExternalListings(t *testing.T) {
	p := browsertest.New(acmeSite())
	var externalAsked string
	fake := llmtest.New().
		On(llm.SchemaCareerPages, func(messages []llm.Message) (string, bool) {
			content := userContent(messages)
			switch {
			case strings.Contains(content, "official website"):
				return `{"career_pages": ["/careers"]}`, true
			case strings.Contains(content, "external websites"):
				externalAsked = content
				return `{"career_pages": ["https://boards.example/acme/", "https://www.linkedin.com/company/acme"]}`, true
			default:
				return `{"career_pages": ["/"]}`, true
			}
		}).
		On(llm.SchemaIsListing, listingByJobLinks)

	res, err := newDiscoverer(p, fake).Run(context.Background(), "Acme", "https://acme.example/")
	require.NoError(t, err)

	assert.Equal(t, "https://acme.example", res.Website)
	assert.Equal(t, []string{"https://acme.example/careers"}, res.Internal)
	assert.Equal(t, []string{"https://boards.example/acme"}, res.External)
	assert.Equal(t, []string{"hr@acme.example"}, res.Emails)
	assert.Equal(t, []string{"https://acme.example/careers", "https://boards.example/acme"}, res.Pages())

	assert.Contains(t, externalAsked, "https://boards.example/acme")
	assert.NotContains(t, externalAsked, "linkedin", "blocked domains never reach the model")
}

func TestRunFallsBackToWebsiteWhenFilterFails(t *testing.T) {
	p := browsertest.New(map[string]string{
		"https://acme.example":       page(`<ul><li><a href="/jobs/1">Engineer</a></li></ul>`),
		"https://acme.example/jobs/1": page(`<h1>Engineer</h1>`),
	})
	fake := llmtest.New().On(llm.SchemaIsListing, listingByJobLinks)

	res, err := newDiscoverer(p, fake).Run(context.Background(), "Acme", "https://acme.example")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://acme.example"}, res.Internal)
	assert.Empty(t, res.External)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newDiscoverer(browsertest.New(acmeSite()), llmtest.New()).Run(ctx, "Acme", "https://acme.example")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBlocked(t *testing.T) {
	d := newDiscoverer(browsertest.New(nil), llmtest.New())
	tests := []struct {
		url  string
		want bool
	}{
		{"https://www.linkedin.com/jobs", true},
		{"https://careers.x.com/open", true},
		{"https://netflix.com/jobs", false},
		{"https://acme.example", false},
		{"not a url", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, d.blocked(tt.url), tt.url)
	}
}

func TestRelativePaths(t *testing.T) {
	got := relativePaths("https://acme.example/en", []string{
		"https://acme.example/en/jobs/",
		"https://acme.example/en",
		"https://acme.example/fr/jobs",
		"https://other.example/en/jobs",
		"https://acme.example/en/jobs",
	})
	assert.Equal(t, []string{"/", "/jobs"}, got)
}

func TestFindWebsite(t *testing.T) {
	results := page(`
		<ol class="react-results--main">
			<li data-layout="ad"><a data-testid="result-extras-url-link" href="https://ads.example">Ad</a></li>
			<li data-layout="organic"><a data-testid="result-extras-url-link" href="https://duckduckgo.com/y.js?u=1">Tracker</a></li>
			<li data-layout="organic"><a data-testid="result-extras-url-link" href="https://acme.example/">Acme</a></li>
			<li data-layout="organic"><a data-testid="result-extras-url-link" href="https://wiki.example/Acme">Wiki</a></li>
		</ol>`)
	p := browsertest.New(map[string]string{searchURL("Acme Corp"): results})

	website, ok := FindWebsite(context.Background(), p, browser.Delay{}, "Acme Corp", zerolog.Nop())
	require.True(t, ok)
	assert.Equal(t, "https://acme.example/", website)

	_, ok = FindWebsite(context.Background(), browsertest.New(nil), browser.Delay{}, "Nobody", zerolog.Nop())
	assert.False(t, ok)
}

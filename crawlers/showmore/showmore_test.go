package showmore

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LexiconIndonesia/career-crawler-service/common/llm"
	"github.com/LexiconIndonesia/career-crawler-service/common/llm/llmtest"
	"github.com/LexiconIndonesia/career-crawler-service/crawlers/browser"
	"github.com/LexiconIndonesia/career-crawler-service/crawlers/browser/browsertest"
	"github.com/LexiconIndonesia/career-crawler-service/crawlers/extract"
)

const listingURL = "https://acme.example/jobs"

func listing(items int) string {
	var b strings.Builder
	b.WriteString("<html><body><h1>Open roles</h1><ul>")
	for i := 0; i < items; i++ {
		fmt.Fprintf(&b, "<li>Role %d</li>", i)
	}
	b.WriteString("</ul><button>Load more</button></body></html>")
	return b.String()
}

// growing serves a listing that gains ten items per click for the given
// number of clicks and then stops changing.
func growing(t *testing.T, growth int) *browsertest.Page {
	t.Helper()
	page := browsertest.New(map[string]string{listingURL: listing(10)})
	clicks := 0
	page.OnClick = func(p *browsertest.Page, _ string) error {
		clicks++
		if clicks <= growth {
			p.SetHTML(listing(10 + 10*clicks))
		}
		return nil
	}
	require.NoError(t, page.Goto(context.Background(), listingURL))
	return page
}

func TestExpandStopsWhenContentRepeats(t *testing.T) {
	page := growing(t, 3)
	d := NewDetector(page, llmtest.New(), browser.Delay{}, 50, zerolog.Nop())

	res := d.Expand(context.Background(), listingURL, Button{Locator: "/html/body/button", Text: "Load more"})

	assert.Equal(t, 3, res.Grew)
	assert.Equal(t, 4, res.Fingerprints)
	assert.Equal(t, 4, res.Clicks)
	assert.Len(t, page.Clicks(), 4)
}

func TestExpandHonorsClickCap(t *testing.T) {
	page := growing(t, 100)
	d := NewDetector(page, llmtest.New(), browser.Delay{}, 5, zerolog.Nop())

	res := d.Expand(context.Background(), listingURL, Button{Text: "Load more"})
	assert.Equal(t, 5, res.Clicks)
	assert.Equal(t, 5, res.Grew)
}

func TestExpandStopsWhenNavigatedAway(t *testing.T) {
	page := browsertest.New(map[string]string{listingURL: listing(1)})
	page.OnClick = func(p *browsertest.Page, _ string) error {
		p.SetHTML(listing(2))
		p.SetURL("https://acme.example/jobs/42")
		return nil
	}
	require.NoError(t, page.Goto(context.Background(), listingURL))
	d := NewDetector(page, llmtest.New(), browser.Delay{}, 50, zerolog.Nop())

	res := d.Expand(context.Background(), listingURL, Button{Text: "Load more"})
	assert.Equal(t, 1, res.Clicks)
}

func TestExpandStopsWhenButtonDisappears(t *testing.T) {
	page := browsertest.New(map[string]string{listingURL: listing(1)})
	page.OnClick = func(p *browsertest.Page, _ string) error {
		p.SetHTML("<html><body><ul><li>Role 0</li><li>Role 1</li></ul></body></html>")
		return nil
	}
	require.NoError(t, page.Goto(context.Background(), listingURL))
	d := NewDetector(page, llmtest.New(), browser.Delay{}, 50, zerolog.Nop())

	res := d.Expand(context.Background(), listingURL, Button{Text: "Load more"})
	assert.Equal(t, 1, res.Clicks)
	assert.Equal(t, 1, res.Grew)
}

func TestDetectMapsTextToLiveLocator(t *testing.T) {
	page := growing(t, 0)
	fake := llmtest.New().Always(llm.SchemaShowMore, `{"button_text": " Load   more "}`)
	d := NewDetector(page, fake, browser.Delay{}, 50, zerolog.Nop())

	doc, err := extract.ParseClean(listing(10))
	require.NoError(t, err)
	button, ok := d.Detect(context.Background(), doc, listingURL)
	require.True(t, ok)
	assert.Equal(t, Button{Locator: "/html/body/button", Text: "Load more"}, button)
	assert.Contains(t, fake.LastMessages(llm.SchemaShowMore)[1].Content, "Role 9")
}

func TestDetectWithoutButton(t *testing.T) {
	page := growing(t, 0)
	fake := llmtest.New().Always(llm.SchemaShowMore, `{"button_text": null}`)
	d := NewDetector(page, fake, browser.Delay{}, 50, zerolog.Nop())

	_, ok := d.CheckPage(context.Background(), listingURL)
	assert.False(t, ok)
	assert.Equal(t, 1, fake.Calls(llm.SchemaShowMore))
}

func TestTextLocators(t *testing.T) {
	doc, err := extract.ParseClean(`<html><body><p>Same</p><p>Same</p><div><span>Other</span></div></body></html>`)
	require.NoError(t, err)

	texts, mapping := TextLocators(doc)
	assert.Equal(t, []string{"Same Same Other", "Same", "Other"}, texts)
	assert.Equal(t, []string{"/html/body/p[1]", "/html/body/p[2]"}, mapping["Same"])
	assert.Equal(t, []string{"/html/body/div", "/html/body/div/span"}, mapping["Other"])
}

func TestClickTargetsDeepestFirst(t *testing.T) {
	doc, err := extract.ParseClean(`<html><body><button><span><i>Load more</i></span></button></body></html>`)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/html/body/button/span/i",
		"/html/body/button/span",
		"/html/body/button",
	}, clickTargets(doc, "/html/body/button"))
}

func TestExpandSkipsHiddenTargets(t *testing.T) {
	page := browsertest.New(map[string]string{
		listingURL: `<html><body><h1>Open roles</h1><ul><li>Role 0</li></ul><button>Load more<span style="display: none"></span></button></body></html>`,
	})
	page.OnClick = func(p *browsertest.Page, _ string) error {
		p.SetHTML("<html><body><h1>Open roles</h1><ul><li>Role 0</li><li>Role 1</li></ul></body></html>")
		return nil
	}
	require.NoError(t, page.Goto(context.Background(), listingURL))
	d := NewDetector(page, llmtest.New(), browser.Delay{}, 50, zerolog.Nop())

	res := d.Expand(context.Background(), listingURL, Button{Text: "Load more"})
	assert.Equal(t, 1, res.Clicks)
	assert.Equal(t, []string{"/html/body/button"}, page.Clicks())
}

package joblisting

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LexiconIndonesia/career-crawler-service/common/config"
	"github.com/LexiconIndonesia/career-crawler-service/common/llm"
	"github.com/LexiconIndonesia/career-crawler-service/common/llm/llmtest"
	"github.com/LexiconIndonesia/career-crawler-service/common/models"
	"github.com/LexiconIndonesia/career-crawler-service/crawlers/browser"
	"github.com/LexiconIndonesia/career-crawler-service/crawlers/browser/browsertest"
	"github.com/LexiconIndonesia/career-crawler-service/crawlers/pagination"
	"github.com/LexiconIndonesia/career-crawler-service/crawlers/showmore"
)

const (
	careers = "https://acme.example/careers"

	firstPage = `<html><body><h1>Careers</h1>
<ul class="jobs"><li><a href="/jobs/123">Engineer</a></li></ul>
<nav class="pagination"><span>1</span><a href="?page=2">2</a></nav>
</body></html>`

	secondPage = `<html><body><h1>Careers</h1>
<ul class="jobs"><li><a href="/jobs/123">Engineer</a></li><li><a href="/jobs/456">Designer</a></li></ul>
<nav class="pagination"><a href="?page=1">1</a><span>2</span></nav>
</body></html>`

	engineer = `{"job_title": "Engineer", "job_url": "/jobs/123", "contract_type": "Full_Time"}`
	designer = `{"job_title": "Designer", "job_url": "/jobs/456", "location_country": "Indonesia"}`
)

// jobsFromText answers like a model that reads the page: Designer is only
// reported when it is on the page, Engineer always.
func jobsFromText(messages []llm.Message) (string, bool) {
	if strings.Contains(messages[len(messages)-1].Content, "Designer") {
		return `{"jobs": [` + engineer + `, ` + designer + `]}`, true
	}
	return `{"jobs": [` + engineer + `]}`, true
}

func newExtractor(page *browsertest.Page, fake *llmtest.Fake, opts Options) *Extractor {
	h := config.DefaultHeuristics()
	pg := pagination.NewDetector(page, fake, nil, h, browser.Delay{}, zerolog.Nop())
	sm := showmore.NewDetector(page, fake, browser.Delay{}, 50, zerolog.Nop())
	return New(page, fake, pg, sm, opts, zerolog.Nop())
}

func titles(jobs []models.JobOffer) []string {
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.Title
	}
	return out
}

func TestRunFollowsStandardPaginationAndDedupsJobs(t *testing.T) {
	page := browsertest.New(map[string]string{
		careers:                                firstPage,
		"https://acme.example/careers/?page=2": secondPage,
		"https://acme.example/careers/?page=1": firstPage,
	})
	fake := llmtest.New().
		Always(llm.SchemaContainer, `{"container_identifier": "nav.pagination"}`).
		On(llm.SchemaJobs, jobsFromText)
	e := newExtractor(page, fake, Options{})

	res := e.Run(context.Background(), []string{careers})

	require.Len(t, res.Jobs, 2)
	assert.Equal(t, []string{"Engineer", "Designer"}, titles(res.Jobs))
	assert.Equal(t, "https://acme.example/jobs/123", res.Jobs[0].URL)
	assert.Equal(t, "full_time", res.Jobs[0].ContractType.OrEmpty())
	assert.Equal(t, "Indonesia", res.Jobs[1].LocationCountry.OrEmpty())
	assert.True(t, res.Jobs[1].ContractType.IsAbsent())

	// page 1 reached again through page 2 has the same buttons and is not sent to the LLM
	assert.Contains(t, page.Visits(), "https://acme.example/careers/?page=1")
	assert.Equal(t, 2, fake.Calls(llm.SchemaJobs))
	assert.Equal(t, 1, fake.Calls(llm.SchemaContainer), "later pages reuse the cached container")
	assert.Empty(t, res.EmptyPages)
}

func TestRunFollowsClickPagination(t *testing.T) {
	withButton := func(jobs string) string {
		return `<html><body><ul class="jobs">` + jobs + `</ul>
<nav class="pagination"><button onclick="next()">Next</button></nav></body></html>`
	}
	page := browsertest.New(map[string]string{
		careers: withButton(`<li><a href="/jobs/123">Engineer</a></li>`),
	})
	page.OnClick = func(p *browsertest.Page, _ string) error {
		p.SetHTML(withButton(`<li><a href="/jobs/456">Designer</a></li>`))
		return nil
	}
	fake := llmtest.New().
		Always(llm.SchemaContainer, `{"container_identifier": "nav.pagination"}`).
		On(llm.SchemaJobs, jobsFromText)
	e := newExtractor(page, fake, Options{})

	res := e.Run(context.Background(), []string{careers})

	assert.Equal(t, []string{"Engineer", "Designer"}, titles(res.Jobs))
	assert.Equal(t, []string{"/html/body/nav/button", "/html/body/nav/button"}, page.Clicks())
	assert.Equal(t, 2, fake.Calls(llm.SchemaJobs), "the unchanged page after the last click is a duplicate")
}

func TestRunCapsPaginationPages(t *testing.T) {
	page := browsertest.New(map[string]string{
		careers:                                firstPage,
		"https://acme.example/careers/?page=2": secondPage,
	})
	fake := llmtest.New().
		Always(llm.SchemaContainer, `{"container_identifier": "nav.pagination"}`).
		On(llm.SchemaJobs, jobsFromText)
	e := newExtractor(page, fake, Options{MaxPaginationPages: 1})

	res := e.Run(context.Background(), []string{careers})
	assert.Equal(t, []string{"Engineer"}, titles(res.Jobs))
	assert.Equal(t, 1, fake.Calls(llm.SchemaJobs))
}

func TestRunSinglePageInChunks(t *testing.T) {
	page := browsertest.New(map[string]string{
		careers: `<html><body><ul><li><a href="/jobs/123">Engineer</a></li><li><a href="/jobs/456">Designer</a></li></ul></body></html>`,
	})
	fake := llmtest.New().On(llm.SchemaJobs, jobsFromText)
	e := newExtractor(page, fake, Options{RemoveOnEmpty: true})

	res := e.Run(context.Background(), []string{careers})
	assert.Equal(t, []string{"Engineer", "Designer"}, titles(res.Jobs))
	assert.Empty(t, res.EmptyPages)
	assert.Contains(t, fake.LastMessages(llm.SchemaJobs)[1].Content, "chunk 1/1")
	assert.Equal(t, 1, fake.Calls(llm.SchemaShowMore))
}

func TestRunReportsEmptyPages(t *testing.T) {
	site := map[string]string{careers: `<html><body><p><a href="/about">About us</a></p></body></html>`}

	for _, remove := range []bool{true, false} {
		fake := llmtest.New().Always(llm.SchemaJobs, `{"jobs": []}`)
		e := newExtractor(browsertest.New(site), fake, Options{RemoveOnEmpty: remove})

		res := e.Run(context.Background(), []string{careers})
		assert.Empty(t, res.Jobs)
		if remove {
			assert.Equal(t, []string{careers}, res.EmptyPages)
		} else {
			assert.Empty(t, res.EmptyPages)
		}
	}
}

func TestRunExpandsShowMore(t *testing.T) {
	page := browsertest.New(map[string]string{
		careers: `<html><body><ul><li><a href="/jobs/123">Engineer</a></li></ul><button>Load more</button></body></html>`,
	})
	page.OnClick = func(p *browsertest.Page, _ string) error {
		p.SetHTML(`<html><body><ul><li><a href="/jobs/123">Engineer</a></li><li><a href="/jobs/456">Designer</a></li></ul><button>Load more</button></body></html>`)
		return nil
	}
	fake := llmtest.New().
		Always(llm.SchemaShowMore, `{"button_text": "Load more"}`).
		On(llm.SchemaJobs, jobsFromText)
	e := newExtractor(page, fake, Options{})

	res := e.Run(context.Background(), []string{careers})
	assert.Equal(t, []string{"Engineer", "Designer"}, titles(res.Jobs))
	assert.Len(t, page.Clicks(), 2)
}

func TestMergeSkipsIncompleteAndDuplicateJobs(t *testing.T) {
	e := newExtractor(browsertest.New(nil), llmtest.New(), Options{})
	added := e.merge([]llm.JobListing{
		{JobTitle: "Engineer", JobURL: "/jobs/123"},
		{JobTitle: "Engineer", JobURL: "https://acme.example/jobs/123"},
		{JobTitle: "", JobURL: "/jobs/1"},
		{JobTitle: "Recruiter", JobURL: ""},
		{JobTitle: "Apply by mail", JobURL: "mailto:jobs@acme.example"},
	}, careers)

	assert.Equal(t, 2, added)
	assert.Equal(t, []string{"Engineer", "Apply by mail"}, titles(e.Jobs()))
	assert.Equal(t, "mailto:jobs@acme.example", e.Jobs()[1].URL)
}

func TestDropPages(t *testing.T) {
	assert.Equal(t, []string{"a", "c"}, DropPages([]string{"a", "b", "c"}, []string{"b"}))
}

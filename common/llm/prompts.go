package llm

import (
	"encoding/json"
	"fmt"
	"sort"
)

const PromptPaginationContainer = `You analyse HTML fragments taken from web pages and decide whether a fragment is the container of pagination controls.

A pagination container is a <nav>, <div> or <ul> element whose children move between result pages: page numbers ("1", "2", "3"), "Next" / "Previous" controls, or arrow symbols such as <<, >>, < and >. It should hold nothing but navigation between pages.

If the fragment is a clear pagination container, answer with its XPath.
If it is not, answer with null.

Answer with JSON only:
{"container_identifier": "<xpath>" | null}`

const PromptShowMoreButton = `You read the visible text of a web page and return the exact visible text of its "show more" button, if it has one.

Valid buttons reveal more content in place: "Show more", "Load more", "View more", "See more", "More results" and similar, in any language.
Page navigation is never valid: "Next", "Previous", "Back", "First", "Last", "Page 2", bare page numbers.
When several valid texts exist, pick the one nearest the end of the page text.
Copy the text exactly as it appears.

Answer with JSON only:
{"button_text": "<text>"}
Use an empty string when there is no such button.`

const PromptExtractJobs = `You extract job offers from the text and links of a careers web page.

Only real job offers count. Each needs a clear job title. Its link must be one that appears in the given content; never invent a URL, and use null when a job has no link.
Ignore advertisements, testimonials, company descriptions, job category pages, search filters, press releases and blog posts.
Write countries and regions as full official English names ("US" becomes "United States", "NY" becomes "New York"). location_region is a region, state or province, never a city.
contract_type is one of full_time, part_time, internship, freelance, short_term, apprenticeship, graduate_program, remote, or null.

Answer with JSON only:
{"jobs": [{"job_title": "...", "job_url": "..." | null, "location_country": "..." | null, "location_region": "..." | null, "contract_type": "..." | null}]}`

const PromptIdentifyListingPage = `You decide whether the text of a web page lists job offers.

Answer "yes" when the page lists one or more open positions.
Answer "no" for anything else, including career blogs, company presentations and press releases.

Answer with JSON only:
{"is_job_listing_page": "yes" | "no"}`

const PromptCompanyDescription = `You read a job description and extract the part that describes the hiring company.

Leave out responsibilities, qualifications, benefits and application instructions. Use an empty string when the description says nothing about the company.

Answer with JSON only:
{"company_description": "..."}`

const promptJobInfosWithLocation = `You read a job description and list the skills it requires, plus its salary.

salary holds only amounts with their currency, or null when no salary is stated.

Answer with JSON only:
{"skills_required": ["..."], "salary": "..." | null}`

const promptJobInfos = `You read a job description and list the skills it requires, where the job is located and its salary.

Write countries and regions as full official English names ("UK" becomes "United Kingdom", "TX" becomes "Texas"). location_region is a region, never a city.
salary holds only amounts with their currency, or null when no salary is stated.

Answer with JSON only:
{"skills_required": ["..."], "location_country": "..." | null, "location_region": "..." | null, "salary": "..." | null}`

const careerPagesSystem = "You help a web crawler find the pages of a website that list job offers."

// CareerPagesScope selects the career page filter prompt.
type CareerPagesScope string

const (
	ScopeInternal CareerPagesScope = "internal"
	ScopeExternal CareerPagesScope = "external"
	ScopeAll      CareerPagesScope = "all"
)

// CareerPagesMessages builds the request asking which of pages list jobs.
func CareerPagesMessages(scope CareerPagesScope, companyName string, pages []string) []Message {
	sorted := append([]string(nil), pages...)
	sort.Strings(sorted)
	list, _ := json.MarshalIndent(sorted, "", "  ")

	var task string
	switch scope {
	case ScopeInternal:
		task = fmt.Sprintf(`These are pages of the official website of %q.
Return only the pages likely to list job offers or open positions.
Leave out single job descriptions and unrelated pages such as blog, news, about or contact.`, companyName)
	case ScopeExternal:
		task = fmt.Sprintf(`These are external websites linked from the website of %q, such as job boards or applicant tracking systems.
Return only the URLs that could be career or job listing pages, not single job details.
Also keep URLs whose domain or path contains the company name or a variation of it.`, companyName)
	default:
		task = `These are pages of one website.
Return only job listing or career overview pages where several jobs are listed or browsed.
Leave out pages about one specific role; they usually have long slugs with a title, a location or an id.`
	}

	user := fmt.Sprintf(`%s
Do not modify or rewrite any URL.

Answer with JSON only:
{"career_pages": ["..."]}

Pages:
%s`, task, list)
	return []Message{System(careerPagesSystem), User(user)}
}

func ContainerMessages(index int, snippet string) []Message {
	return []Message{
		System(PromptPaginationContainer),
		User(fmt.Sprintf("Pagination candidate %d (nav, div or ul):\n%s", index+1, snippet)),
	}
}

func ShowMoreMessages(pageURL, pageText string) []Message {
	return []Message{
		System(PromptShowMoreButton),
		User(fmt.Sprintf("URL: %s\n\nPAGE TEXT:\n%s", pageURL, pageText)),
	}
}

func ExtractJobsMessages(text string) []Message {
	return []Message{
		System(PromptExtractJobs),
		User("Extracted text content:\n" + text),
	}
}

func ExtractJobsChunkMessages(text string, chunk, total int) []Message {
	return []Message{
		System(PromptExtractJobs),
		User(fmt.Sprintf("Extracted text content (chunk %d/%d):\n%s", chunk, total, text)),
	}
}

func IdentifyListingMessages(text string) []Message {
	return []Message{System(PromptIdentifyListingPage), User(text)}
}

func CompanyDescriptionMessages(jobDescription string) []Message {
	return []Message{
		System(PromptCompanyDescription),
		User("Job description:\n" + jobDescription),
	}
}

// JobInfosMessages asks for location only when the job has no country yet.
func JobInfosMessages(hasCountry bool, jobDescription string) []Message {
	system := promptJobInfos
	if hasCountry {
		system = promptJobInfosWithLocation
	}
	return []Message{
		System(system),
		User("Job description:\n" + jobDescription),
	}
}

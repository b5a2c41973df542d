// Package postprocess enriches newly found job offers with their description,
// required skills, location and salary, and works out which stored offers
// have disappeared.
package postprocess

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/samber/mo"

	"github.com/LexiconIndonesia/career-crawler-service/common/config"
	"github.com/LexiconIndonesia/career-crawler-service/common/llm"
	"github.com/LexiconIndonesia/career-crawler-service/common/models"
	"github.com/LexiconIndonesia/career-crawler-service/crawlers/browser"
	"github.com/LexiconIndonesia/career-crawler-service/crawlers/extract"
)

const (
	jobInfosMaxTokens    = 1024
	companyDescMaxTokens = 256
	// maxSalaryChars drops answers that are sentences rather than salaries.
	maxSalaryChars = 100
)

type Result struct {
	// New offers, enriched and ready to be stored as existing.
	New []models.JobOffer
	// Old holds stored URLs that were not found again.
	Old                []string
	CompanyDescription mo.Option[string]
	Emails             []string
}

type Processor struct {
	page       browser.Page
	llm        llm.Client
	heuristics config.Heuristics
	delay      browser.Delay
	logger     zerolog.Logger
}

func New(page browser.Page, client llm.Client, h config.Heuristics, delay browser.Delay, logger zerolog.Logger) *Processor {
	return &Processor{page: page, llm: client, heuristics: h, delay: delay, logger: logger}
}

// Split separates found jobs into new ones and the current URLs no longer found.
func Split(found []models.JobOffer, current []string) (fresh []models.JobOffer, old []string) {
	currentSet := lo.SliceToMap(current, func(u string) (string, struct{}) { return u, struct{}{} })
	foundSet := lo.SliceToMap(found, func(j models.JobOffer) (string, struct{}) { return j.URL, struct{}{} })

	for _, u := range current {
		if _, ok := foundSet[u]; !ok {
			old = append(old, u)
		}
	}
	sort.Strings(old)

	seen := make(map[string]struct{})
	for _, j := range found {
		if j.Title == "" || j.URL == "" {
			continue
		}
		if _, ok := currentSet[j.URL]; ok {
			continue
		}
		if _, dup := seen[j.URL]; dup {
			continue
		}
		seen[j.URL] = struct{}{}
		fresh = append(fresh, j)
	}
	return fresh, lo.Uniq(old)
}

// Run enriches the new jobs of companyID. Jobs whose page cannot be loaded
// are treated as dead links and left out.
func (p *Processor) Run(ctx context.Context, companyID int64, found []models.JobOffer, current []string) (Result, error) {
	fresh, old := Split(found, current)
	p.logger.Info().Int("found", len(found)).Int("new", len(fresh)).Int("old", len(old)).Msg("Post-processing jobs")

	res := Result{Old: old}
	emails := make(map[string]struct{})
	describedCompany := false

	for i, job := range fresh {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		log := p.logger.With().Str("url", job.URL).Logger()
		log.Info().Msgf("Processing job offer %d/%d", i+1, len(fresh))

		job.ID = uuid.New()
		job.CompanyID = companyID
		job.IsExisting = true

		if p.isDocumentLink(job.URL) {
			log.Debug().Msg("Attachment or mailto link, skipping description")
			job.SkillsRequired = []string{}
			job.Salary = mo.None[string]()
			res.New = append(res.New, job)
			continue
		}

		description, ok := p.description(ctx, job.URL, log)
		if !ok {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			log.Warn().Msg("Job page unreachable, dropping offer")
			continue
		}
		for _, e := range extract.Emails(description) {
			emails[e] = struct{}{}
		}

		job.Description = models.OptionalString(description)
		if description != "" {
			p.enrich(ctx, &job, description)
			if !describedCompany {
				describedCompany = true
				res.CompanyDescription = p.companyDescription(ctx, description)
			}
		}
		res.New = append(res.New, job)
	}

	res.Emails = lo.Keys(emails)
	sort.Strings(res.Emails)
	return res, nil
}

func (p *Processor) isDocumentLink(u string) bool {
	lower := strings.ToLower(u)
	if strings.HasPrefix(lower, "mailto:") {
		return true
	}
	return lo.SomeBy(p.heuristics.AttachmentExtensions, func(ext string) bool {
		return strings.HasSuffix(lower, ext)
	})
}

// description loads the job page and returns its body as markdown. The
// boolean is false when the page could not be loaded at all.
func (p *Processor) description(ctx context.Context, u string, log zerolog.Logger) (string, bool) {
	raw, err := browser.Retry(ctx, p.page, log, u, func() (string, error) {
		if err := p.page.Goto(ctx, u); err != nil {
			return "", err
		}
		if err := p.delay.Pause(ctx); err != nil {
			return "", err
		}
		return p.page.HTML(ctx)
	})
	if err != nil {
		log.Error().Err(err).Msg("Loading job page failed")
		return "", false
	}

	text, err := extract.Markdown(raw, u)
	if err != nil {
		log.Warn().Err(err).Msg("Converting job page failed")
		return "", true
	}
	return text, true
}

func (p *Processor) enrich(ctx context.Context, job *models.JobOffer, description string) {
	var infos llm.JobInfos
	ok := p.llm.Call(ctx, llm.JobInfosMessages(job.LocationCountry.IsPresent(), description), &infos, llm.CallOptions{
		Schema:    llm.SchemaJobInfos,
		MaxTokens: jobInfosMaxTokens,
	})
	if !ok {
		p.logger.Warn().Str("url", job.URL).Msg("No job infos from LLM")
		job.SkillsRequired = []string{}
		job.Salary = mo.None[string]()
		return
	}

	job.SkillsRequired = lo.Compact(lo.Map(infos.SkillsRequired, func(s string, _ int) string {
		return strings.TrimSpace(s)
	}))
	if country := models.OptionalString(infos.LocationCountry.String()); country.IsPresent() {
		job.LocationCountry = country
	}
	if region := models.OptionalString(infos.LocationRegion.String()); region.IsPresent() {
		job.LocationRegion = region
	}

	job.Salary = models.OptionalString(infos.Salary.String())
	if len(job.Salary.OrEmpty()) >= maxSalaryChars {
		job.Salary = mo.None[string]()
	}
}

func (p *Processor) companyDescription(ctx context.Context, description string) mo.Option[string] {
	var out llm.CompanyDescription
	if !p.llm.Call(ctx, llm.CompanyDescriptionMessages(description), &out, llm.CallOptions{
		Schema:    llm.SchemaCompanyDesc,
		MaxTokens: companyDescMaxTokens,
	}) {
		p.logger.Warn().Msg("No company description from LLM")
		return mo.None[string]()
	}
	return models.OptionalString(out.CompanyDescription.String())
}

package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

// JobOffer is one posting found on a listing page. Title and URL are always
// set; everything else may be missing.
type JobOffer struct {
	ID              uuid.UUID         `json:"id"`
	CompanyID       int64             `json:"company_id"`
	Title           string            `json:"job_title"`
	URL             string            `json:"job_url"`
	LocationCountry mo.Option[string] `json:"location_country"`
	LocationRegion  mo.Option[string] `json:"location_region"`
	ContractType    mo.Option[string] `json:"contract_type"`
	Description     mo.Option[string] `json:"job_description"`
	SkillsRequired  []string          `json:"skills_required"`
	Salary          mo.Option[string] `json:"salary"`
	IsExisting      bool              `json:"is_existing"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// JobKey identifies a job within one crawl.
type JobKey struct {
	Title string
	URL   string
}

func (j JobOffer) Key() JobKey {
	return JobKey{Title: j.Title, URL: j.URL}
}

// OptionalString maps blank strings to None.
func OptionalString(s string) mo.Option[string] {
	s = strings.TrimSpace(s)
	if s == "" {
		return mo.None[string]()
	}
	return mo.Some(s)
}

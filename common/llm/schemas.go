package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	SchemaContainer   = "container_identifier"
	SchemaShowMore    = "show_more_button"
	SchemaJobs        = "jobs"
	SchemaCareerPages = "career_pages"
	SchemaIsListing   = "is_job_listing_page"
	SchemaJobInfos    = "job_infos"
	SchemaCompanyDesc = "company_description"
)

// FlexString accepts a JSON string, number or null. Models answer "None" or
// "null" as text often enough that those also decode to empty.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case nil:
		*f = ""
	case string:
		s := strings.TrimSpace(t)
		switch strings.ToLower(s) {
		case "none", "null", "n/a":
			s = ""
		}
		*f = FlexString(s)
	case float64:
		*f = FlexString(strconv.FormatFloat(t, 'f', -1, 64))
	default:
		return fmt.Errorf("unexpected JSON value %s", string(data))
	}
	return nil
}

func (f FlexString) String() string { return string(f) }

type ContainerIdentifier struct {
	ContainerIdentifier FlexString `json:"container_identifier"`
}

type ShowMoreButton struct {
	ButtonText FlexString `json:"button_text"`
}

var ContractTypes = map[string]struct{}{
	"full_time":        {},
	"part_time":        {},
	"internship":       {},
	"freelance":        {},
	"short_term":       {},
	"apprenticeship":   {},
	"graduate_program": {},
	"remote":           {},
}

type JobListing struct {
	JobTitle        FlexString `json:"job_title"`
	JobURL          FlexString `json:"job_url"`
	LocationCountry FlexString `json:"location_country"`
	LocationRegion  FlexString `json:"location_region"`
	ContractType    FlexString `json:"contract_type"`
}

type JobsResponse struct {
	Jobs []JobListing `json:"jobs"`
}

// Validate drops contract types outside the known enum.
func (r *JobsResponse) Validate() error {
	for i := range r.Jobs {
		ct := strings.ToLower(strings.TrimSpace(string(r.Jobs[i].ContractType)))
		if _, ok := ContractTypes[ct]; !ok {
			ct = ""
		}
		r.Jobs[i].ContractType = FlexString(ct)
	}
	return nil
}

type CareerPagesResponse struct {
	CareerPages []string `json:"career_pages"`
}

type IsJobListingPage struct {
	IsJobListingPage string `json:"is_job_listing_page"`
}

func (r *IsJobListingPage) Validate() error {
	r.IsJobListingPage = strings.ToLower(strings.TrimSpace(r.IsJobListingPage))
	if r.IsJobListingPage != "yes" && r.IsJobListingPage != "no" {
		return errors.New(`is_job_listing_page must be "yes" or "no"`)
	}
	return nil
}

func (r IsJobListingPage) Yes() bool { return r.IsJobListingPage == "yes" }

type JobInfos struct {
	SkillsRequired  []string   `json:"skills_required"`
	LocationCountry FlexString `json:"location_country"`
	LocationRegion  FlexString `json:"location_region"`
	Salary          FlexString `json:"salary"`
}

type CompanyDescription struct {
	CompanyDescription FlexString `json:"company_description"`
}

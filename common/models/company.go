package models

import (
	"time"

	"github.com/samber/mo"
)

type Company struct {
	ID                      int64               `json:"id"`
	Name                    string              `json:"name"`
	Website                 string              `json:"website"`
	Emails                  []string            `json:"emails"`
	Description             mo.Option[string]   `json:"description"`
	InternalJobListingPages []string            `json:"internal_job_listing_pages"`
	ExternalJobListingPages []string            `json:"external_job_listing_pages"`
	ContainersHTML          map[string][]string `json:"containers_html"`
	UpdatedAt               time.Time           `json:"updated_at"`
}

// JobListingPages returns internal pages followed by external ones.
func (c Company) JobListingPages() []string {
	pages := make([]string, 0, len(c.InternalJobListingPages)+len(c.ExternalJobListingPages))
	pages = append(pages, c.InternalJobListingPages...)
	return append(pages, c.ExternalJobListingPages...)
}

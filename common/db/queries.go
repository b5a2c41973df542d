package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/lo"
	"github.com/samber/mo"

	"github.com/LexiconIndonesia/career-crawler-service/common"
	"github.com/LexiconIndonesia/career-crawler-service/common/models"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxStarter is implemented by the pool.
type TxStarter interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Queries struct {
	db DBTX
}

func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

const getCompany = `
SELECT id, name, website, emails, description, internal_job_listing_pages,
       external_job_listing_pages, containers_html, updated_at
FROM companies
WHERE id = $1`

func (q *Queries) GetCompany(ctx context.Context, id int64) (models.Company, error) {
	var (
		c           models.Company
		description *string
	)
	err := q.db.QueryRow(ctx, getCompany, id).Scan(
		&c.ID, &c.Name, &c.Website, &c.Emails, &description,
		&c.InternalJobListingPages, &c.ExternalJobListingPages, &c.ContainersHTML, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return c, fmt.Errorf("company %d: %w", id, common.ErrCompanyNotFound)
	}
	if err != nil {
		return c, fmt.Errorf("loading company %d: %w", id, err)
	}
	c.Description = fromPtr(description)
	if c.ContainersHTML == nil {
		c.ContainersHTML = map[string][]string{}
	}
	return c, nil
}

const updateWebsite = `UPDATE companies SET website = $2, updated_at = now() WHERE id = $1`

func (q *Queries) UpdateWebsite(ctx context.Context, id int64, website string) error {
	tag, err := q.db.Exec(ctx, updateWebsite, id, website)
	if err != nil {
		return fmt.Errorf("updating website of company %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("company %d: %w", id, common.ErrCompanyNotFound)
	}
	return nil
}

const saveJobListingPages = `
UPDATE companies
SET internal_job_listing_pages = $2,
    external_job_listing_pages = $3,
    emails = ARRAY(SELECT DISTINCT e FROM unnest(emails || $4::text[]) AS e ORDER BY e),
    updated_at = now()
WHERE id = $1`

// SaveJobListingPages stores the discovered pages and merges emails into
// the ones already known.
func (q *Queries) SaveJobListingPages(ctx context.Context, id int64, internal, external, emails []string) error {
	tag, err := q.db.Exec(ctx, saveJobListingPages, id, nonNil(internal), nonNil(external), nonNil(emails))
	if err != nil {
		return fmt.Errorf("saving job listing pages of company %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("company %d: %w", id, common.ErrCompanyNotFound)
	}
	return nil
}

const currentJobURLs = `SELECT job_url FROM jobs WHERE company_id = $1 AND is_existing ORDER BY job_url`

func (q *Queries) CurrentJobURLs(ctx context.Context, companyID int64) ([]string, error) {
	rows, err := q.db.Query(ctx, currentJobURLs, companyID)
	if err != nil {
		return nil, fmt.Errorf("listing current job urls: %w", err)
	}
	urls, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("reading current job urls: %w", err)
	}
	return urls, nil
}

const listJobs = `
SELECT id, company_id, job_title, job_url, location_country, location_region, contract_type,
       job_description, skills_required, salary, is_existing, created_at, updated_at
FROM jobs
WHERE company_id = $1 AND ($2 OR is_existing)
ORDER BY created_at DESC, job_url`

// ListJobs returns the jobs of a company, only the existing ones unless all is set.
func (q *Queries) ListJobs(ctx context.Context, companyID int64, all bool) ([]models.JobOffer, error) {
	rows, err := q.db.Query(ctx, listJobs, companyID, all)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	jobs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.JobOffer, error) {
		var (
			j                                       models.JobOffer
			country, region, contract, desc, salary *string
		)
		err := row.Scan(&j.ID, &j.CompanyID, &j.Title, &j.URL, &country, &region, &contract,
			&desc, &j.SkillsRequired, &salary, &j.IsExisting, &j.CreatedAt, &j.UpdatedAt)
		j.LocationCountry = fromPtr(country)
		j.LocationRegion = fromPtr(region)
		j.ContractType = fromPtr(contract)
		j.Description = fromPtr(desc)
		j.Salary = fromPtr(salary)
		return j, err
	})
	if err != nil {
		return nil, fmt.Errorf("reading jobs: %w", err)
	}
	return jobs, nil
}

const lockContainers = `SELECT containers_html FROM companies WHERE id = $1 FOR UPDATE`

const updateCompanyResults = `
UPDATE companies
SET description = COALESCE($2, description),
    emails = ARRAY(SELECT DISTINCT e FROM unnest(emails || $3::text[]) AS e ORDER BY e),
    internal_job_listing_pages = $4,
    external_job_listing_pages = $5,
    containers_html = $6,
    updated_at = now()
WHERE id = $1`

const markJobsGone = `
UPDATE jobs SET is_existing = FALSE, updated_at = now()
WHERE company_id = $1 AND job_url = ANY($2::text[])`

const upsertJob = `
INSERT INTO jobs (id, company_id, job_title, location_country, location_region, job_url,
                  job_description, skills_required, contract_type, salary, is_existing)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE)
ON CONFLICT (job_url) DO UPDATE
SET job_title = EXCLUDED.job_title,
    location_country = EXCLUDED.location_country,
    location_region = EXCLUDED.location_region,
    job_description = EXCLUDED.job_description,
    skills_required = EXCLUDED.skills_required,
    contract_type = EXCLUDED.contract_type,
    salary = EXCLUDED.salary,
    is_existing = TRUE,
    updated_at = now()`

type SaveResultsParams struct {
	CompanyID   int64
	Description mo.Option[string]
	Emails      []string
	Internal    []string
	External    []string
	// Containers are merged into the stored containers_html sets.
	Containers map[string][]string
	// Old job URLs are marked as no longer existing.
	Old []string
	New []models.JobOffer
}

// SaveResults writes a finished session in one transaction.
func SaveResults(ctx context.Context, conn TxStarter, p SaveResultsParams) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := NewQueries(tx).saveResults(ctx, tx, p); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing results: %w", err)
	}
	return nil
}

func (q *Queries) saveResults(ctx context.Context, tx pgx.Tx, p SaveResultsParams) error {
	var stored map[string][]string
	if err := q.db.QueryRow(ctx, lockContainers, p.CompanyID).Scan(&stored); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("company %d: %w", p.CompanyID, common.ErrCompanyNotFound)
		}
		return fmt.Errorf("locking company %d: %w", p.CompanyID, err)
	}

	containers, err := json.Marshal(MergeContainers(stored, p.Containers))
	if err != nil {
		return fmt.Errorf("encoding containers: %w", err)
	}
	if _, err := q.db.Exec(ctx, updateCompanyResults, p.CompanyID, toPtr(p.Description),
		nonNil(p.Emails), nonNil(p.Internal), nonNil(p.External), containers); err != nil {
		return fmt.Errorf("updating company %d: %w", p.CompanyID, err)
	}

	if len(p.Old) > 0 {
		if _, err := q.db.Exec(ctx, markJobsGone, p.CompanyID, p.Old); err != nil {
			return fmt.Errorf("marking old jobs: %w", err)
		}
	}

	if len(p.New) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, j := range p.New {
		id := j.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		batch.Queue(upsertJob, id, p.CompanyID, j.Title, toPtr(j.LocationCountry), toPtr(j.LocationRegion),
			j.URL, toPtr(j.Description), nonNil(j.SkillsRequired), toPtr(j.ContractType), toPtr(j.Salary))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting jobs: %w", err)
	}
	return nil
}

type LogEntry struct {
	Session   string
	CompanyID int64
	EventType string
	Message   string
	Details   map[string]any
	CreatedAt time.Time
}

const insertLog = `
INSERT INTO crawler_logs (id, session, company_id, event_type, message, details, created_at)
VALUES ($1, $2, NULLIF($3::bigint, 0), $4, NULLIF($5::text, ''), $6, $7)`

func (q *Queries) InsertLog(ctx context.Context, e LogEntry) error {
	details := []byte("{}")
	if len(e.Details) > 0 {
		raw, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("encoding log details: %w", err)
		}
		details = raw
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if _, err := q.db.Exec(ctx, insertLog, uuid.New(), e.Session, e.CompanyID, e.EventType, e.Message, details, e.CreatedAt); err != nil {
		return fmt.Errorf("inserting crawler log: %w", err)
	}
	return nil
}

// MergeContainers unions the snippet sets per base URL. Snippets stay sorted.
func MergeContainers(stored, found map[string][]string) map[string][]string {
	out := make(map[string][]string, len(stored)+len(found))
	for _, m := range []map[string][]string{stored, found} {
		for base, snippets := range m {
			out[base] = append(out[base], snippets...)
		}
	}
	for base, snippets := range out {
		merged := lo.Uniq(snippets)
		sort.Strings(merged)
		out[base] = merged
	}
	return out
}

func toPtr(o mo.Option[string]) *string {
	if v, ok := o.Get(); ok {
		return &v
	}
	return nil
}

func fromPtr(p *string) mo.Option[string] {
	if p == nil {
		return mo.None[string]()
	}
	return mo.Some(*p)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

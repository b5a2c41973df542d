package crawler

import (
	"context"

	"github.com/LexiconIndonesia/career-crawler-service/common/db"
	"github.com/LexiconIndonesia/career-crawler-service/common/models"
)

// CrawlerService is the persistence a session needs.
type CrawlerService interface {
	GetCompany(ctx context.Context, id int64) (models.Company, error)
	UpdateWebsite(ctx context.Context, id int64, website string) error
	// SaveJobListingPages is the checkpoint after discovery.
	SaveJobListingPages(ctx context.Context, id int64, internal, external, emails []string) error
	CurrentJobURLs(ctx context.Context, companyID int64) ([]string, error)
	// SaveResults is the checkpoint after extraction.
	SaveResults(ctx context.Context, p db.SaveResultsParams) error
}

// CrawlerServiceImpl is the Postgres implementation of CrawlerService.
type CrawlerServiceImpl struct {
	*db.Queries
	conn db.TxStarter
}

func NewCrawlerService(d *db.DB) *CrawlerServiceImpl {
	return &CrawlerServiceImpl{Queries: d.Queries, conn: d.Pool}
}

func (s *CrawlerServiceImpl) SaveResults(ctx context.Context, p db.SaveResultsParams) error {
	return db.SaveResults(ctx, s.conn, p)
}

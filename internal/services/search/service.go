// Package search maintains the secondary search index: a best-effort,
// eventually-consistent mirror of crash store writes. It is never
// authoritative - the store can rebuild it at any time.
package search

import (
	"context"
	"fmt"
	"regexp"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fragor/internal/interfaces"
	"github.com/ternarybob/fragor/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

const defaultSearchLimit = 50

// Service implements SearchIndex over badgerhold-stored search documents.
type Service struct {
	store  *badgerhold.Store
	logger arbor.ILogger
}

// NewService creates a new search index service.
func NewService(store *badgerhold.Store, logger arbor.ILogger) *Service {
	return &Service{
		store:  store,
		logger: logger,
	}
}

// IndexOne mirrors a single crash report revision into the index.
func (s *Service) IndexOne(ctx context.Context, report *models.CrashReport) error {
	doc := models.SearchDocumentFor(report)
	if err := s.store.Upsert(doc.ID, doc); err != nil {
		return fmt.Errorf("failed to index crash report: %w", err)
	}
	return nil
}

// IndexBatch mirrors a batch of revisions. Individual failures are logged and
// skipped so one bad record does not abort the batch.
func (s *Service) IndexBatch(ctx context.Context, reports []*models.CrashReport) error {
	failed := 0
	for _, report := range reports {
		if err := s.IndexOne(ctx, report); err != nil {
			s.logger.Warn().Err(err).Str("id", report.ID).Msg("Failed to index crash report")
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("failed to index %d of %d crash reports", failed, len(reports))
	}
	return nil
}

// DeleteAll removes every document from the index. Administrative, used
// before a rebuild.
func (s *Service) DeleteAll(ctx context.Context) error {
	if err := s.store.DeleteMatching(&models.SearchDocument{}, nil); err != nil {
		return fmt.Errorf("failed to clear search index: %w", err)
	}
	s.logger.Info().Msg("Search index cleared")
	return nil
}

// Search runs a case-insensitive literal match over indexed crash text.
// Non-authoritative; callers wanting current state must read the store.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]*models.SearchDocument, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	regex, err := regexp.Compile("(?i)" + regexp.QuoteMeta(query))
	if err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}

	var docs []models.SearchDocument
	err = s.store.Find(&docs, badgerhold.Where("Crash").RegExp(regex).Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	result := make([]*models.SearchDocument, len(docs))
	for i := range docs {
		result[i] = &docs[i]
	}
	return result, nil
}

// Ensure Service implements SearchIndex interface
var _ interfaces.SearchIndex = (*Service)(nil)

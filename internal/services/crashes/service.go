// Package crashes is the facade over fingerprinting, the crash store, the
// counter cache and the search mirror.
package crashes

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fragor/internal/common"
	"github.com/ternarybob/fragor/internal/interfaces"
	"github.com/ternarybob/fragor/internal/models"
)

// scanBatch is the page size used for internal cursor scans of the store.
const scanBatch = 100

// ErrEmptyCrash is returned when a submission carries no crash text.
var ErrEmptyCrash = errors.New("crash text cannot be empty")

// Service implements CrashReportService.
type Service struct {
	storage    interfaces.CrashReportStorage
	cache      interfaces.CacheService
	index      interfaces.SearchIndex
	counterTTL time.Duration
	logger     arbor.ILogger
}

// NewService creates a new crash report service.
func NewService(storage interfaces.CrashReportStorage, cache interfaces.CacheService, index interfaces.SearchIndex, counterTTL time.Duration, logger arbor.ILogger) *Service {
	return &Service{
		storage:    storage,
		cache:      cache,
		index:      index,
		counterTTL: counterTTL,
		logger:     logger,
	}
}

// AddCrashReport ingests a raw crash text: fingerprint it, create or increment
// its group, invalidate the counter cache and mirror the revision into the
// search index. The index write is best-effort and never fails the ingest.
func (s *Service) AddCrashReport(ctx context.Context, crash string, labels []string) (*models.CrashReport, error) {
	crash = strings.TrimSpace(crash)
	if crash == "" {
		return nil, ErrEmptyCrash
	}

	fingerprint := common.Fingerprint(crash)

	report, err := s.storage.AddOrIncrement(ctx, fingerprint, crash, labels)
	if err != nil {
		return nil, fmt.Errorf("failed to store crash report: %w", err)
	}

	if err := s.cache.Delete(counterKey(report.Name)); err != nil {
		s.logger.Warn().Err(err).Str("name", report.Name).Msg("Failed to invalidate counter cache")
	}

	if err := s.index.IndexOne(ctx, report); err != nil {
		s.logger.Warn().Err(err).Str("fingerprint", fingerprint).Msg("Failed to mirror crash report into search index")
	}

	s.logger.Info().
		Str("fingerprint", fingerprint).
		Int("count", report.Count).
		Msg("Crash report recorded")

	return report, nil
}

// GetCrash resolves the latest revision of a crash group.
func (s *Service) GetCrash(ctx context.Context, fingerprint string) (*models.CrashReport, error) {
	return s.storage.GetLatest(ctx, fingerprint)
}

// GetCount returns the authoritative group total, served from the counter
// cache when fresh. A stale total here only shifts notification timing.
func (s *Service) GetCount(ctx context.Context, fingerprint string) (int, error) {
	name := models.KeyName(fingerprint)
	key := counterKey(name)

	if cached, ok := s.cache.Get(key); ok {
		if count, err := strconv.Atoi(cached); err == nil {
			return count, nil
		}
	}

	count, err := s.storage.CountFor(ctx, name)
	if err != nil {
		return 0, err
	}

	if err := s.cache.Set(key, strconv.Itoa(count), s.counterTTL); err != nil {
		s.logger.Warn().Err(err).Str("name", name).Msg("Failed to cache group count")
	}

	return count, nil
}

// ClearCountCache drops the cached total for a group.
func (s *Service) ClearCountCache(fingerprint string) {
	if err := s.cache.Delete(counterKey(models.KeyName(fingerprint))); err != nil {
		s.logger.Warn().Err(err).Str("fingerprint", fingerprint).Msg("Failed to clear counter cache")
	}
}

// UpdateCrashReport applies a partial update to every revision of a group and
// refreshes the search mirror for the group.
func (s *Service) UpdateCrashReport(ctx context.Context, fingerprint string, update models.CrashReportUpdate) (*models.CrashReport, error) {
	if update.IsEmpty() {
		return s.storage.GetLatest(ctx, fingerprint)
	}
	if update.State != nil && !update.State.IsValid() {
		return nil, fmt.Errorf("invalid crash state: %s", *update.State)
	}

	report, err := s.storage.UpdateFields(ctx, fingerprint, update)
	if err != nil {
		return nil, err
	}

	s.ClearCountCache(fingerprint)
	s.reindexGroup(ctx, report.Name)

	return report, nil
}

// UpdateReportState moves every revision of a group to the given state.
func (s *Service) UpdateReportState(ctx context.Context, fingerprint string, state models.CrashState) (*models.CrashReport, error) {
	return s.UpdateCrashReport(ctx, fingerprint, models.CrashReportUpdate{State: &state})
}

// Trending returns one page of open crash groups ordered by total count
// descending. Pagination walks the store in key order and deduplicates
// revisions by group name, so a group appears on exactly one page; the
// count ordering applies within a page, not across pages.
func (s *Service) Trending(ctx context.Context, startCursor string, limit int) (*models.TrendingResult, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}

	result := &models.TrendingResult{Trending: []models.CrashReportView{}}
	seen := make(map[string]bool)
	cursor := startCursor

	for {
		records, more, err := s.storage.Scan(ctx, interfaces.ScanQuery{
			StartAfter: cursor,
			States:     models.OpenStates,
			Limit:      scanBatch,
		})
		if err != nil {
			return nil, fmt.Errorf("trending scan failed: %w", err)
		}

		for _, record := range records {
			if seen[record.Name] {
				// Later revision of a group already on this page; consume it
				// so the next page resumes past the whole group.
				cursor = record.ID
				continue
			}
			if len(result.Trending) == limit {
				result.HasMore = true
				result.NextCursor = cursor
				return s.sorted(result), nil
			}

			total, err := s.storage.CountFor(ctx, record.Name)
			if err != nil {
				return nil, fmt.Errorf("failed to total group %s: %w", record.Name, err)
			}

			seen[record.Name] = true
			result.Trending = append(result.Trending, record.View(total))
			cursor = record.ID
		}

		if !more {
			return s.sorted(result), nil
		}
	}
}

// View builds the API representation of a report with its group total. Falls
// back to the revision's own count if the total cannot be resolved.
func (s *Service) View(ctx context.Context, report *models.CrashReport) models.CrashReportView {
	total, err := s.GetCount(ctx, report.Fingerprint)
	if err != nil {
		s.logger.Warn().Err(err).Str("fingerprint", report.Fingerprint).Msg("Failed to resolve group total")
		total = report.Count
	}
	return report.View(total)
}

func (s *Service) sorted(result *models.TrendingResult) *models.TrendingResult {
	sort.SliceStable(result.Trending, func(i, j int) bool {
		return result.Trending[i].Count > result.Trending[j].Count
	})
	return result
}

// reindexGroup refreshes the search mirror for every revision of a group.
// Best-effort: failures are logged, never surfaced.
func (s *Service) reindexGroup(ctx context.Context, name string) {
	revisions, err := s.storage.ListRevisions(ctx, name)
	if err != nil {
		s.logger.Warn().Err(err).Str("name", name).Msg("Failed to list revisions for reindex")
		return
	}
	if err := s.index.IndexBatch(ctx, revisions); err != nil {
		s.logger.Warn().Err(err).Str("name", name).Msg("Failed to refresh search mirror")
	}
}

func counterKey(name string) string {
	return "counter:" + name
}

// Ensure Service implements CrashReportService interface
var _ interfaces.CrashReportService = (*Service)(nil)

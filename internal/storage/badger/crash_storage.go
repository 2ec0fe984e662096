package badger

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fragor/internal/interfaces"
	"github.com/ternarybob/fragor/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// maxWriteAttempts bounds the conflict retry loop on conditional updates.
const maxWriteAttempts = 5

// conflictRetryBase is the backoff unit between conflict retries. The actual
// delay is jittered and doubles per attempt so colliding writers spread out
// instead of conflicting again in lockstep.
const conflictRetryBase = 2 * time.Millisecond

func conflictBackoff(attempt int) time.Duration {
	ceiling := conflictRetryBase * time.Duration(1<<uint(attempt))
	return time.Duration(rand.Int63n(int64(ceiling)))
}

// CrashStorage implements the CrashReportStorage interface for Badger.
// A crash group is keyed by its derived name; each physical record is one
// revision of the group. Writes run inside a single badger transaction so
// concurrent increments on the same group conflict and retry instead of
// losing updates.
type CrashStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewCrashStorage creates a new CrashStorage instance
func NewCrashStorage(db *BadgerDB, logger arbor.ILogger) interfaces.CrashReportStorage {
	return &CrashStorage{
		db:     db,
		logger: logger,
	}
}

// recordID builds a key-ordered record ID. The name prefix keeps every
// revision of a group adjacent in the key space, which the trending scan
// relies on for cursor pagination.
func recordID(name string) string {
	return fmt.Sprintf("%s:%s", name, uuid.NewString())
}

func (s *CrashStorage) AddOrIncrement(ctx context.Context, fingerprint, crash string, labels []string) (*models.CrashReport, error) {
	name := models.KeyName(fingerprint)

	var result *models.CrashReport
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		err := s.db.Badger().Update(func(txn *badgerdb.Txn) error {
			var revisions []models.CrashReport
			if err := s.db.Store().TxFind(txn, &revisions, badgerhold.Where("Name").Eq(name)); err != nil {
				return err
			}

			now := time.Now()
			if len(revisions) == 0 {
				report := models.CrashReport{
					ID:          recordID(name),
					Name:        name,
					Fingerprint: fingerprint,
					Crash:       crash,
					Count:       1,
					State:       models.StateUnresolved,
					Labels:      labels,
					Version:     models.SchemaVersion,
					CreatedAt:   now,
					UpdatedAt:   now,
				}
				if err := s.db.Store().TxInsert(txn, report.ID, report); err != nil {
					return err
				}
				result = &report
				return nil
			}

			latest := latestRevision(revisions)
			latest.Count++
			latest.Labels = mergeLabels(latest.Labels, labels)
			latest.UpdatedAt = now
			if err := s.db.Store().TxUpdate(txn, latest.ID, *latest); err != nil {
				return err
			}
			result = latest
			return nil
		})
		if err == nil {
			return result, nil
		}
		if errors.Is(err, badgerdb.ErrConflict) {
			s.logger.Debug().
				Str("fingerprint", fingerprint).
				Int("attempt", attempt).
				Msg("Write conflict on crash group, backing off")
			time.Sleep(conflictBackoff(attempt))
			continue
		}
		return nil, fmt.Errorf("failed to add or increment crash report: %w", err)
	}

	// Retry budget spent under persistent contention. Record the submission as
	// its own revision instead of rejecting it: CountFor sums across revisions,
	// so this is lossless, and the insert touches a fresh key so it cannot
	// conflict with the increments that starved us out.
	return s.insertFallbackRevision(fingerprint, crash, labels)
}

// insertFallbackRevision persists a submission as a new Count=1 revision.
// State and issue are carried forward from the group's visible latest revision
// so a contention fallback never resurrects an already-filed group as new.
func (s *CrashStorage) insertFallbackRevision(fingerprint, crash string, labels []string) (*models.CrashReport, error) {
	name := models.KeyName(fingerprint)

	state := models.StateUnresolved
	issue := ""
	var revisions []models.CrashReport
	if err := s.db.Store().Find(&revisions, badgerhold.Where("Name").Eq(name)); err == nil && len(revisions) > 0 {
		latest := latestRevision(revisions)
		state = latest.State
		issue = latest.Issue
	}

	now := time.Now()
	report := models.CrashReport{
		ID:          recordID(name),
		Name:        name,
		Fingerprint: fingerprint,
		Crash:       crash,
		Count:       1,
		State:       state,
		Issue:       issue,
		Labels:      labels,
		Version:     models.SchemaVersion,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.Store().Insert(report.ID, report); err != nil {
		return nil, fmt.Errorf("failed to record crash report revision: %w", err)
	}

	s.logger.Debug().
		Str("fingerprint", fingerprint).
		Str("id", report.ID).
		Msg("Contention on crash group, recorded as separate revision")

	return &report, nil
}

func (s *CrashStorage) GetLatest(ctx context.Context, fingerprint string) (*models.CrashReport, error) {
	revisions, err := s.ListRevisions(ctx, models.KeyName(fingerprint))
	if err != nil {
		return nil, err
	}
	if len(revisions) == 0 {
		return nil, interfaces.ErrNotFound
	}
	return revisions[len(revisions)-1], nil
}

// ListRevisions returns every revision of a group, oldest update first.
func (s *CrashStorage) ListRevisions(ctx context.Context, name string) ([]*models.CrashReport, error) {
	var revisions []models.CrashReport
	if err := s.db.Store().Find(&revisions, badgerhold.Where("Name").Eq(name)); err != nil {
		return nil, fmt.Errorf("failed to list crash revisions: %w", err)
	}

	sort.Slice(revisions, func(i, j int) bool {
		if revisions[i].UpdatedAt.Equal(revisions[j].UpdatedAt) {
			return revisions[i].ID < revisions[j].ID
		}
		return revisions[i].UpdatedAt.Before(revisions[j].UpdatedAt)
	})

	result := make([]*models.CrashReport, len(revisions))
	for i := range revisions {
		result[i] = &revisions[i]
	}
	return result, nil
}

// UpdateFields applies a partial update to every revision of the group.
// Counts are never touched here, so concurrent increments are not clobbered.
func (s *CrashStorage) UpdateFields(ctx context.Context, fingerprint string, update models.CrashReportUpdate) (*models.CrashReport, error) {
	if update.IsEmpty() {
		return s.GetLatest(ctx, fingerprint)
	}

	name := models.KeyName(fingerprint)
	var result *models.CrashReport
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		err := s.db.Badger().Update(func(txn *badgerdb.Txn) error {
			var revisions []models.CrashReport
			if err := s.db.Store().TxFind(txn, &revisions, badgerhold.Where("Name").Eq(name)); err != nil {
				return err
			}
			if len(revisions) == 0 {
				return interfaces.ErrNotFound
			}

			now := time.Now()
			for i := range revisions {
				if update.State != nil {
					revisions[i].State = *update.State
				}
				if update.Issue != nil {
					revisions[i].Issue = *update.Issue
				}
				revisions[i].UpdatedAt = now
				if err := s.db.Store().TxUpdate(txn, revisions[i].ID, revisions[i]); err != nil {
					return err
				}
			}
			result = latestRevision(revisions)
			return nil
		})
		if err == nil {
			return result, nil
		}
		if errors.Is(err, badgerdb.ErrConflict) {
			s.logger.Debug().
				Str("fingerprint", fingerprint).
				Int("attempt", attempt).
				Msg("Write conflict on partial update, backing off")
			time.Sleep(conflictBackoff(attempt))
			continue
		}
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update crash report: %w", err)
	}

	return nil, fmt.Errorf("crash group %s: %w", name, interfaces.ErrConflict)
}

// PutRevisions rewrites existing revisions in place. Migration path only.
func (s *CrashStorage) PutRevisions(ctx context.Context, reports []*models.CrashReport) error {
	for _, report := range reports {
		if report.ID == "" {
			return fmt.Errorf("crash report ID is required")
		}
		if err := s.db.Store().Upsert(report.ID, *report); err != nil {
			return fmt.Errorf("failed to save crash report %s: %w", report.ID, err)
		}
	}
	return nil
}

// CountFor sums the occurrence count across all revisions of a group.
func (s *CrashStorage) CountFor(ctx context.Context, name string) (int, error) {
	var revisions []models.CrashReport
	if err := s.db.Store().Find(&revisions, badgerhold.Where("Name").Eq(name)); err != nil {
		return 0, fmt.Errorf("failed to count crash reports: %w", err)
	}
	total := 0
	for i := range revisions {
		total += revisions[i].Count
	}
	return total, nil
}

// Scan walks crash records in key order, starting strictly after the cursor.
// Returns the page and whether records remain beyond it.
func (s *CrashStorage) Scan(ctx context.Context, query interfaces.ScanQuery) ([]*models.CrashReport, bool, error) {
	if query.Limit <= 0 {
		return nil, false, fmt.Errorf("scan limit must be positive")
	}
	for _, state := range query.States {
		if !state.IsValid() {
			return nil, false, fmt.Errorf("invalid scan state: %s", state)
		}
	}

	q := badgerhold.Where(badgerhold.Key).Gt(query.StartAfter)
	if len(query.States) > 0 {
		states := make([]interface{}, len(query.States))
		for i, state := range query.States {
			states[i] = state
		}
		q = q.And("State").In(states...)
	}
	// Fetch one extra record to detect whether the scan has more.
	q = q.Limit(query.Limit + 1)

	var records []models.CrashReport
	if err := s.db.Store().Find(&records, q); err != nil {
		return nil, false, fmt.Errorf("failed to scan crash reports: %w", err)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	hasMore := false
	if len(records) > query.Limit {
		hasMore = true
		records = records[:query.Limit]
	}

	result := make([]*models.CrashReport, len(records))
	for i := range records {
		result[i] = &records[i]
	}
	return result, hasMore, nil
}

func latestRevision(revisions []models.CrashReport) *models.CrashReport {
	latest := &revisions[0]
	for i := 1; i < len(revisions); i++ {
		r := &revisions[i]
		if r.UpdatedAt.After(latest.UpdatedAt) ||
			(r.UpdatedAt.Equal(latest.UpdatedAt) && r.ID > latest.ID) {
			latest = r
		}
	}
	return latest
}

func mergeLabels(existing, incoming []string) []string {
	if len(incoming) == 0 {
		return existing
	}
	seen := make(map[string]bool, len(existing))
	for _, label := range existing {
		seen[label] = true
	}
	for _, label := range incoming {
		if !seen[label] {
			existing = append(existing, label)
			seen[label] = true
		}
	}
	return existing
}

package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/fragor/internal/models"
)

// ErrNotFound is returned when no crash group exists for a fingerprint.
// A normal outcome on the read path, not a failure.
var ErrNotFound = errors.New("crash report not found")

// ErrKeyNotFound is returned when a key/value pair does not exist.
var ErrKeyNotFound = errors.New("key not found")

// ErrConflict is returned when a conditional write keeps losing against
// concurrent writers after the bounded retry budget is spent.
var ErrConflict = errors.New("storage conflict")

// ScanQuery is the typed query specification for cursor scans over crash
// records. Filters and orderings are enumerated here rather than chained ad
// hoc at call sites; the scan order is always primary key ascending.
type ScanQuery struct {
	// StartAfter resumes the scan strictly after this record ID.
	StartAfter string
	// States restricts the scan to records in any of these states.
	// Empty means no state filter.
	States []models.CrashState
	// Limit caps the number of records returned.
	Limit int
}

// CrashReportStorage persists crash group revisions.
type CrashReportStorage interface {
	// AddOrIncrement creates the group with count=1 on first submission of a
	// fingerprint, or atomically increments the latest revision by exactly 1.
	// Conflicting concurrent writes are retried a bounded number of times.
	AddOrIncrement(ctx context.Context, fingerprint, crash string, labels []string) (*models.CrashReport, error)

	// GetLatest resolves the latest revision for a fingerprint.
	GetLatest(ctx context.Context, fingerprint string) (*models.CrashReport, error)

	// ListRevisions returns every physical revision sharing a name.
	ListRevisions(ctx context.Context, name string) ([]*models.CrashReport, error)

	// UpdateFields applies a targeted partial update to every revision of the
	// group and returns the updated latest revision.
	UpdateFields(ctx context.Context, fingerprint string, update models.CrashReportUpdate) (*models.CrashReport, error)

	// PutRevisions rewrites existing revisions in place (migration path).
	PutRevisions(ctx context.Context, reports []*models.CrashReport) error

	// CountFor sums the authoritative occurrence count across revisions.
	CountFor(ctx context.Context, name string) (int, error)

	// Scan walks records in key order. The second return value is true when
	// records beyond the returned page remain.
	Scan(ctx context.Context, query ScanQuery) ([]*models.CrashReport, bool, error)
}

// KeyValuePair is a stored key/value entry with metadata.
type KeyValuePair struct {
	Key         string `badgerhold:"key"`
	Value       string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// KeyValueStorage persists small configuration values such as global
// preferences.
type KeyValueStorage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value, description string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]KeyValuePair, error)
}

// StorageManager aggregates the storage interfaces behind one connection.
type StorageManager interface {
	CrashReportStorage() CrashReportStorage
	KeyValueStorage() KeyValueStorage
	Close() error
}

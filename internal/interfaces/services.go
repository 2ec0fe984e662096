package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/fragor/internal/models"
)

// CacheService is a short-TTL cache. Entries are an optimization only - loss
// of an entry is always harmless.
type CacheService interface {
	Get(key string) (string, bool)
	Set(key, value string, ttl time.Duration) error
	// Add sets the entry only if it is absent and reports whether it was set.
	Add(key, value string, ttl time.Duration) (bool, error)
	Delete(key string) error
}

// GuardService provides the at-most-one-in-flight marker per
// (workflow, fingerprint). Guards expire on their own so an orphaned job can
// never permanently block future triggers.
type GuardService interface {
	Acquire(workflow models.Workflow, fingerprint string) (bool, error)
	Release(workflow models.Workflow, fingerprint string) error
}

// PreferenceService reads and writes global preference flags.
type PreferenceService interface {
	Get(ctx context.Context, key, defaultValue string) string
	Set(ctx context.Context, key, value string) error
}

// SearchIndex is the best-effort secondary index mirror of store writes.
// Writers never wait on it and never roll back when it fails.
type SearchIndex interface {
	IndexOne(ctx context.Context, report *models.CrashReport) error
	IndexBatch(ctx context.Context, reports []*models.CrashReport) error
	DeleteAll(ctx context.Context) error
	Search(ctx context.Context, query string, limit int) ([]*models.SearchDocument, error)
}

// CrashReportService is the facade over fingerprinting, the store, the
// counter cache and the search mirror.
type CrashReportService interface {
	AddCrashReport(ctx context.Context, crash string, labels []string) (*models.CrashReport, error)
	GetCrash(ctx context.Context, fingerprint string) (*models.CrashReport, error)
	GetCount(ctx context.Context, fingerprint string) (int, error)
	ClearCountCache(fingerprint string)
	UpdateCrashReport(ctx context.Context, fingerprint string, update models.CrashReportUpdate) (*models.CrashReport, error)
	UpdateReportState(ctx context.Context, fingerprint string, state models.CrashState) (*models.CrashReport, error)
	Trending(ctx context.Context, startCursor string, limit int) (*models.TrendingResult, error)
	View(ctx context.Context, report *models.CrashReport) models.CrashReportView
}

// IssueTracker formats and issues external tracker calls.
type IssueTracker interface {
	CreateIssue(ctx context.Context, report *models.CrashReport) (int, error)
	CreateComment(ctx context.Context, report *models.CrashReport, count int) (int64, error)
	IssueURL(number int) string
}

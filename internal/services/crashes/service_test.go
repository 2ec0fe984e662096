package crashes

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fragor/internal/common"
	"github.com/ternarybob/fragor/internal/interfaces"
	"github.com/ternarybob/fragor/internal/models"
	"github.com/ternarybob/fragor/internal/services/cache"
	"github.com/ternarybob/fragor/internal/services/search"
	badgerstorage "github.com/ternarybob/fragor/internal/storage/badger"
)

func newTestService(t *testing.T) (*Service, interfaces.CrashReportStorage) {
	t.Helper()

	logger := arbor.NewLogger()
	manager, err := badgerstorage.NewManager(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	storage := manager.CrashReportStorage()
	svc := NewService(
		storage,
		cache.NewService(manager.Badger(), logger),
		search.NewService(manager.Store(), logger),
		time.Minute,
		logger,
	)
	return svc, storage
}

func TestAddCrashReportRejectsEmpty(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.AddCrashReport(context.Background(), "   \n  ", nil)
	assert.ErrorIs(t, err, ErrEmptyCrash)
}

func TestAddCrashReportGroupsDuplicates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	trace := "Error: device not found\n    at Tessel.connect (tessel.js:10:5)"

	first, err := svc.AddCrashReport(ctx, trace, nil)
	require.NoError(t, err)
	second, err := svc.AddCrashReport(ctx, trace, nil)
	require.NoError(t, err)

	assert.Equal(t, first.Fingerprint, second.Fingerprint)

	count, err := svc.GetCount(ctx, first.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestGetCountUsesCache(t *testing.T) {
	svc, storage := newTestService(t)
	ctx := context.Background()

	_, err := storage.AddOrIncrement(ctx, "fp1", "Error: boom", nil)
	require.NoError(t, err)

	count, err := svc.GetCount(ctx, "fp1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// A direct store write without cache invalidation is not visible until the
	// cache is cleared.
	_, err = storage.AddOrIncrement(ctx, "fp1", "Error: boom", nil)
	require.NoError(t, err)

	count, err = svc.GetCount(ctx, "fp1")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "stale cached count expected")

	svc.ClearCountCache("fp1")

	count, err = svc.GetCount(ctx, "fp1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestUpdateReportState(t *testing.T) {
	svc, storage := newTestService(t)
	ctx := context.Background()

	_, err := storage.AddOrIncrement(ctx, "fp1", "Error: boom", nil)
	require.NoError(t, err)

	report, err := svc.UpdateReportState(ctx, "fp1", models.StateResolved)
	require.NoError(t, err)
	assert.Equal(t, models.StateResolved, report.State)

	_, err = svc.UpdateReportState(ctx, "missing", models.StateResolved)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func seedGroups(t *testing.T, storage interfaces.CrashReportStorage, groups int) {
	t.Helper()
	ctx := context.Background()
	// Group i is submitted i+1 times, so counts are 1..groups and every group
	// has a distinct total.
	for i := 0; i < groups; i++ {
		fp := fmt.Sprintf("fp%03d", i)
		for j := 0; j <= i; j++ {
			_, err := storage.AddOrIncrement(ctx, fp, fmt.Sprintf("Error: crash %d", i), nil)
			require.NoError(t, err)
		}
	}
}

func TestTrendingSortsByCount(t *testing.T) {
	svc, storage := newTestService(t)
	seedGroups(t, storage, 5)

	result, err := svc.Trending(context.Background(), "", 10)
	require.NoError(t, err)

	require.Len(t, result.Trending, 5)
	assert.False(t, result.HasMore)
	for i := 1; i < len(result.Trending); i++ {
		assert.GreaterOrEqual(t, result.Trending[i-1].Count, result.Trending[i].Count,
			"results must be ordered by count descending")
	}
	assert.Equal(t, 5, result.Trending[0].Count)
}

func TestTrendingPaginationExactlyOnce(t *testing.T) {
	svc, storage := newTestService(t)
	seedGroups(t, storage, 25)
	ctx := context.Background()

	first, err := svc.Trending(ctx, "", 20)
	require.NoError(t, err)
	require.Len(t, first.Trending, 20)
	assert.True(t, first.HasMore)
	require.NotEmpty(t, first.NextCursor)

	second, err := svc.Trending(ctx, first.NextCursor, 20)
	require.NoError(t, err)
	assert.Len(t, second.Trending, 5)
	assert.False(t, second.HasMore)

	seen := make(map[string]int)
	for _, v := range append(first.Trending, second.Trending...) {
		seen[v.Fingerprint]++
	}
	assert.Len(t, seen, 25, "every group appears across the pages")
	for fp, n := range seen {
		assert.Equal(t, 1, n, "group %s appeared %d times", fp, n)
	}
}

func TestTrendingExcludesResolved(t *testing.T) {
	svc, storage := newTestService(t)
	ctx := context.Background()

	_, err := storage.AddOrIncrement(ctx, "open", "Error: open", nil)
	require.NoError(t, err)
	_, err = storage.AddOrIncrement(ctx, "done", "Error: done", nil)
	require.NoError(t, err)

	state := models.StateResolved
	_, err = storage.UpdateFields(ctx, "done", models.CrashReportUpdate{State: &state})
	require.NoError(t, err)

	result, err := svc.Trending(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, result.Trending, 1)
	assert.Equal(t, "open", result.Trending[0].Fingerprint)
}

func TestTrendingEmptyStore(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.Trending(context.Background(), "", 20)
	require.NoError(t, err)
	assert.Empty(t, result.Trending)
	assert.False(t, result.HasMore)
	assert.Empty(t, result.NextCursor)
}

func TestTrendingRejectsBadLimit(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Trending(context.Background(), "", 0)
	assert.Error(t, err)
}

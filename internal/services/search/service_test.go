package search

import (
	"context"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fragor/internal/common"
	"github.com/ternarybob/fragor/internal/models"
	badgerstorage "github.com/ternarybob/fragor/internal/storage/badger"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	manager, err := badgerstorage.NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { manager.Close() })
	return NewService(manager.Store(), arbor.NewLogger())
}

func report(id, fp, crash string) *models.CrashReport {
	return &models.CrashReport{
		ID:          id,
		Name:        models.KeyName(fp),
		Fingerprint: fp,
		Crash:       crash,
		State:       models.StateUnresolved,
	}
}

func TestIndexAndSearch(t *testing.T) {
	index := newTestService(t)
	ctx := context.Background()

	if err := index.IndexOne(ctx, report("r1", "fp1", "TypeError: cannot read property")); err != nil {
		t.Fatalf("IndexOne failed: %v", err)
	}
	if err := index.IndexOne(ctx, report("r2", "fp2", "RangeError: out of bounds")); err != nil {
		t.Fatal(err)
	}

	docs, err := index.Search(ctx, "typeerror", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("Expected 1 match, got %d", len(docs))
	}
	if docs[0].Fingerprint != "fp1" {
		t.Errorf("Wrong document matched: %s", docs[0].Fingerprint)
	}
}

func TestSearchEscapesRegexMeta(t *testing.T) {
	index := newTestService(t)
	ctx := context.Background()

	if err := index.IndexOne(ctx, report("r1", "fp1", "Error: bad input [42]")); err != nil {
		t.Fatal(err)
	}

	docs, err := index.Search(ctx, "[42]", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("Query with regex metacharacters should match literally, got %d matches", len(docs))
	}
}

func TestIndexOneIsIdempotent(t *testing.T) {
	index := newTestService(t)
	ctx := context.Background()

	r := report("r1", "fp1", "Error: boom")
	if err := index.IndexOne(ctx, r); err != nil {
		t.Fatal(err)
	}
	if err := index.IndexOne(ctx, r); err != nil {
		t.Fatalf("Re-index of same revision should upsert: %v", err)
	}

	docs, err := index.Search(ctx, "boom", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 {
		t.Errorf("Expected 1 document after re-index, got %d", len(docs))
	}
}

func TestDeleteAll(t *testing.T) {
	index := newTestService(t)
	ctx := context.Background()

	if err := index.IndexBatch(ctx, []*models.CrashReport{
		report("r1", "fp1", "Error: one"),
		report("r2", "fp2", "Error: two"),
	}); err != nil {
		t.Fatal(err)
	}

	if err := index.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}

	docs, err := index.Search(ctx, "Error", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 0 {
		t.Errorf("Expected empty index, got %d documents", len(docs))
	}
}

package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fragor/internal/common"
	badgerstorage "github.com/ternarybob/fragor/internal/storage/badger"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	manager, err := badgerstorage.NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { manager.Close() })
	return NewService(manager.Badger(), arbor.NewLogger())
}

func TestSetAndGet(t *testing.T) {
	cache := newTestService(t)

	if err := cache.Set("k", "v", time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	value, ok := cache.Get("k")
	if !ok || value != "v" {
		t.Errorf("Expected (v, true), got (%s, %v)", value, ok)
	}
}

func TestGetMissing(t *testing.T) {
	cache := newTestService(t)

	if _, ok := cache.Get("missing"); ok {
		t.Error("Expected miss for absent key")
	}
}

func TestTTLExpiry(t *testing.T) {
	cache := newTestService(t)

	if err := cache.Set("k", "v", 50*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	if _, ok := cache.Get("k"); ok {
		t.Error("Expected entry to expire")
	}
}

func TestAddIsExclusive(t *testing.T) {
	cache := newTestService(t)

	added, err := cache.Add("k", "first", time.Minute)
	if err != nil || !added {
		t.Fatalf("First add should win: added=%v err=%v", added, err)
	}
	added, err = cache.Add("k", "second", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if added {
		t.Error("Second add should lose")
	}

	value, _ := cache.Get("k")
	if value != "first" {
		t.Errorf("Winner's value should be kept, got %s", value)
	}
}

func TestAddConcurrentSingleWinner(t *testing.T) {
	cache := newTestService(t)

	const attempts = 10
	var wg sync.WaitGroup
	winners := make(chan bool, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			added, err := cache.Add("contested", "v", time.Minute)
			if err != nil {
				t.Errorf("Add failed: %v", err)
				return
			}
			if added {
				winners <- true
			}
		}()
	}
	wg.Wait()
	close(winners)

	if len(winners) != 1 {
		t.Errorf("Expected exactly 1 winner, got %d", len(winners))
	}
}

func TestDelete(t *testing.T) {
	cache := newTestService(t)

	if err := cache.Set("k", "v", time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := cache.Delete("k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := cache.Get("k"); ok {
		t.Error("Entry should be gone after delete")
	}

	// Deleting an absent key is a no-op.
	if err := cache.Delete("missing"); err != nil {
		t.Errorf("Delete of missing key should not error: %v", err)
	}
}

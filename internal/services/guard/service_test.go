package guard

import (
	"sync"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fragor/internal/common"
	"github.com/ternarybob/fragor/internal/models"
	"github.com/ternarybob/fragor/internal/services/cache"
	badgerstorage "github.com/ternarybob/fragor/internal/storage/badger"
)

func newTestService(t *testing.T, ttl time.Duration) *Service {
	t.Helper()

	manager, err := badgerstorage.NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { manager.Close() })

	logger := arbor.NewLogger()
	return NewService(cache.NewService(manager.Badger(), logger), ttl, logger)
}

func TestAcquireRelease(t *testing.T) {
	guard := newTestService(t, time.Minute)

	acquired, err := guard.Acquire(models.WorkflowNewCrash, "fp1")
	if err != nil || !acquired {
		t.Fatalf("First acquire should win: acquired=%v err=%v", acquired, err)
	}

	acquired, err = guard.Acquire(models.WorkflowNewCrash, "fp1")
	if err != nil {
		t.Fatal(err)
	}
	if acquired {
		t.Error("Second acquire should lose while guard is held")
	}

	if err := guard.Release(models.WorkflowNewCrash, "fp1"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	acquired, err = guard.Acquire(models.WorkflowNewCrash, "fp1")
	if err != nil || !acquired {
		t.Errorf("Acquire after release should win: acquired=%v err=%v", acquired, err)
	}
}

func TestGuardsAreIndependentPerPair(t *testing.T) {
	guard := newTestService(t, time.Minute)

	if acquired, _ := guard.Acquire(models.WorkflowNewCrash, "fp1"); !acquired {
		t.Fatal("First pair should acquire")
	}
	// Different workflow, same fingerprint.
	if acquired, _ := guard.Acquire(models.WorkflowNewComment, "fp1"); !acquired {
		t.Error("Different workflow should have its own guard")
	}
	// Same workflow, different fingerprint.
	if acquired, _ := guard.Acquire(models.WorkflowNewCrash, "fp2"); !acquired {
		t.Error("Different fingerprint should have its own guard")
	}
}

func TestGuardExpires(t *testing.T) {
	guard := newTestService(t, 50*time.Millisecond)

	if acquired, _ := guard.Acquire(models.WorkflowNewCrash, "fp1"); !acquired {
		t.Fatal("First acquire should win")
	}
	time.Sleep(100 * time.Millisecond)

	acquired, err := guard.Acquire(models.WorkflowNewCrash, "fp1")
	if err != nil || !acquired {
		t.Errorf("Acquire after TTL expiry should win: acquired=%v err=%v", acquired, err)
	}
}

func TestConcurrentAcquireSingleWinner(t *testing.T) {
	guard := newTestService(t, time.Minute)

	const attempts = 10
	var wg sync.WaitGroup
	winners := make(chan bool, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			acquired, err := guard.Acquire(models.WorkflowNewCrash, "contested")
			if err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			if acquired {
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

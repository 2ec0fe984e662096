package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fragor/internal/common"
	"github.com/ternarybob/fragor/internal/interfaces"
	"github.com/ternarybob/fragor/internal/models"
	badgerstorage "github.com/ternarybob/fragor/internal/storage/badger"
)

func newTestQueue(t *testing.T, visibility time.Duration, maxReceive int) *Manager {
	t.Helper()

	manager, err := badgerstorage.NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { manager.Close() })
	return NewManager(manager.Store(), visibility, maxReceive, arbor.NewLogger())
}

func TestEnqueueReceiveDelete(t *testing.T) {
	q := newTestQueue(t, time.Minute, 3)
	ctx := context.Background()

	msg := models.NewQueueMessage(models.MessageTypeNewCrash, "fp1")
	if err := q.Enqueue(ctx, msg); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	received, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if received.ID != msg.ID || received.Fingerprint != "fp1" {
		t.Errorf("Wrong message received: %+v", received)
	}

	// Leased message is invisible until the lease expires.
	if _, err := q.Receive(ctx); !errors.Is(err, interfaces.ErrNoMessage) {
		t.Errorf("Expected ErrNoMessage while leased, got %v", err)
	}

	if err := q.Delete(ctx, received.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	length, err := q.Length(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if length != 0 {
		t.Errorf("Expected empty queue, got length %d", length)
	}
}

func TestReceiveOrderedByEnqueueTime(t *testing.T) {
	q := newTestQueue(t, time.Minute, 3)
	ctx := context.Background()

	first := models.NewQueueMessage(models.MessageTypeNewCrash, "fp1")
	first.EnqueuedAt = time.Now().Add(-time.Hour)
	first.VisibleAt = first.EnqueuedAt
	second := models.NewQueueMessage(models.MessageTypeNewCrash, "fp2")

	if err := q.Enqueue(ctx, second); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(ctx, first); err != nil {
		t.Fatal(err)
	}

	received, err := q.Receive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if received.ID != first.ID {
		t.Errorf("Expected oldest message first, got %s", received.Fingerprint)
	}
}

func TestLeaseExpiryRedelivers(t *testing.T) {
	q := newTestQueue(t, 50*time.Millisecond, 3)
	ctx := context.Background()

	msg := models.NewQueueMessage(models.MessageTypeNewCrash, "fp1")
	if err := q.Enqueue(ctx, msg); err != nil {
		t.Fatal(err)
	}

	if _, err := q.Receive(ctx); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	received, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("Expected redelivery after lease expiry: %v", err)
	}
	if received.ID != msg.ID {
		t.Errorf("Wrong message redelivered: %s", received.ID)
	}
	if received.ReceiveCount != 2 {
		t.Errorf("Expected receive count 2, got %d", received.ReceiveCount)
	}
}

func TestDeadLetterAfterMaxReceive(t *testing.T) {
	q := newTestQueue(t, time.Millisecond, 2)
	ctx := context.Background()

	msg := models.NewQueueMessage(models.MessageTypeNewCrash, "fp1")
	if err := q.Enqueue(ctx, msg); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if _, err := q.Receive(ctx); err != nil {
			t.Fatalf("Receive %d failed: %v", i+1, err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Third attempt crosses maxReceive and dead-letters instead.
	if _, err := q.Receive(ctx); !errors.Is(err, interfaces.ErrNoMessage) {
		t.Errorf("Expected ErrNoMessage after dead-letter, got %v", err)
	}

	length, err := q.Length(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if length != 0 {
		t.Errorf("Dead letters should not count as live, got %d", length)
	}
}

func TestPurgeDead(t *testing.T) {
	q := newTestQueue(t, time.Millisecond, 1)
	ctx := context.Background()

	msg := models.NewQueueMessage(models.MessageTypeNewCrash, "fp1")
	msg.EnqueuedAt = time.Now().Add(-48 * time.Hour)
	if err := q.Enqueue(ctx, msg); err != nil {
		t.Fatal(err)
	}

	if _, err := q.Receive(ctx); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := q.Receive(ctx); !errors.Is(err, interfaces.ErrNoMessage) {
		t.Fatalf("Message should be dead-lettered: %v", err)
	}

	purged, err := q.PurgeDead(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("PurgeDead failed: %v", err)
	}
	if purged != 1 {
		t.Errorf("Expected 1 purged message, got %d", purged)
	}
}

func TestDeleteMissingIsNoop(t *testing.T) {
	q := newTestQueue(t, time.Minute, 3)

	if err := q.Delete(context.Background(), "missing"); err != nil {
		t.Errorf("Delete of missing message should not error: %v", err)
	}
}

func TestExtend(t *testing.T) {
	q := newTestQueue(t, 50*time.Millisecond, 3)
	ctx := context.Background()

	msg := models.NewQueueMessage(models.MessageTypeNewCrash, "fp1")
	if err := q.Enqueue(ctx, msg); err != nil {
		t.Fatal(err)
	}
	if _, err := q.Receive(ctx); err != nil {
		t.Fatal(err)
	}

	if err := q.Extend(ctx, msg.ID, time.Minute); err != nil {
		t.Fatalf("Extend failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	// Original lease would have expired, but the extension holds it.
	if _, err := q.Receive(ctx); !errors.Is(err, interfaces.ErrNoMessage) {
		t.Errorf("Extended message should stay leased, got %v", err)
	}
}

// Package queue provides a durable at-least-once message queue backed by the
// embedded store. Messages survive restarts; a leased message that is never
// deleted becomes visible again when its lease expires.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fragor/internal/interfaces"
	"github.com/ternarybob/fragor/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// Manager implements QueueManager over badgerhold.
type Manager struct {
	store      *badgerhold.Store
	visibility time.Duration
	maxReceive int
	mu         sync.Mutex // serializes Receive so two workers never lease the same message
	logger     arbor.ILogger
}

// NewManager creates a new queue manager.
func NewManager(store *badgerhold.Store, visibility time.Duration, maxReceive int, logger arbor.ILogger) *Manager {
	return &Manager{
		store:      store,
		visibility: visibility,
		maxReceive: maxReceive,
		logger:     logger,
	}
}

// Enqueue persists a message. The message becomes receivable at its VisibleAt.
func (m *Manager) Enqueue(ctx context.Context, msg *models.QueueMessage) error {
	if err := m.store.Upsert(msg.ID, msg); err != nil {
		return fmt.Errorf("failed to enqueue message: %w", err)
	}
	m.logger.Debug().Str("id", msg.ID).Str("type", msg.Type).Msg("Message enqueued")
	return nil
}

// Receive leases the oldest visible message for the visibility timeout.
// Messages received more than maxReceive times are dead-lettered instead of
// being delivered again. Returns ErrNoMessage when nothing is visible.
func (m *Manager) Receive(ctx context.Context) (*models.QueueMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()

	var candidates []models.QueueMessage
	err := m.store.Find(&candidates, badgerhold.Where("Dead").Eq(false).
		And("VisibleAt").Le(now))
	if err != nil {
		return nil, fmt.Errorf("failed to query queue: %w", err)
	}
	if len(candidates) == 0 {
		return nil, interfaces.ErrNoMessage
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].EnqueuedAt.Before(candidates[j].EnqueuedAt)
	})

	for i := range candidates {
		msg := candidates[i]
		msg.ReceiveCount++

		if msg.ReceiveCount > m.maxReceive {
			msg.Dead = true
			if err := m.store.Update(msg.ID, &msg); err != nil {
				return nil, fmt.Errorf("failed to dead-letter message %s: %w", msg.ID, err)
			}
			m.logger.Warn().
				Str("id", msg.ID).
				Str("type", msg.Type).
				Int("receive_count", msg.ReceiveCount).
				Msg("Message dead-lettered")
			continue
		}

		msg.VisibleAt = now.Add(m.visibility)
		if err := m.store.Update(msg.ID, &msg); err != nil {
			return nil, fmt.Errorf("failed to lease message %s: %w", msg.ID, err)
		}
		return &msg, nil
	}

	return nil, interfaces.ErrNoMessage
}

// Delete acknowledges a message. Deleting an already-deleted message is a
// no-op so handlers can be retried safely.
func (m *Manager) Delete(ctx context.Context, id string) error {
	err := m.store.Delete(id, &models.QueueMessage{})
	if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to delete message %s: %w", id, err)
	}
	return nil
}

// Extend pushes a leased message's redelivery time further out. Used by
// long-running handlers that need more than one visibility window.
func (m *Manager) Extend(ctx context.Context, id string, d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var msg models.QueueMessage
	if err := m.store.Get(id, &msg); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return interfaces.ErrNoMessage
		}
		return fmt.Errorf("failed to load message %s: %w", id, err)
	}

	msg.VisibleAt = time.Now().Add(d)
	if err := m.store.Update(id, &msg); err != nil {
		return fmt.Errorf("failed to extend message %s: %w", id, err)
	}
	return nil
}

// Length returns the number of live (non-dead-lettered) messages, leased or
// not.
func (m *Manager) Length(ctx context.Context) (int, error) {
	count, err := m.store.Count(&models.QueueMessage{}, badgerhold.Where("Dead").Eq(false))
	if err != nil {
		return 0, fmt.Errorf("failed to count queue: %w", err)
	}
	return int(count), nil
}

// PurgeDead removes dead-lettered messages enqueued before the retention
// window and returns how many were removed.
func (m *Manager) PurgeDead(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)

	var dead []models.QueueMessage
	err := m.store.Find(&dead, badgerhold.Where("Dead").Eq(true).
		And("EnqueuedAt").Lt(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to query dead letters: %w", err)
	}

	purged := 0
	for i := range dead {
		if err := m.store.Delete(dead[i].ID, &models.QueueMessage{}); err != nil {
			m.logger.Warn().Err(err).Str("id", dead[i].ID).Msg("Failed to purge dead letter")
			continue
		}
		purged++
	}

	if purged > 0 {
		m.logger.Info().Int("purged", purged).Msg("Dead letters purged")
	}
	return purged, nil
}

// Ensure Manager implements QueueManager interface
var _ interfaces.QueueManager = (*Manager)(nil)

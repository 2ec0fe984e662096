// Package migration rewrites stored crash records to the current schema in
// small queue-driven batches, and rebuilds the search index from the store.
package migration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fragor/internal/interfaces"
	"github.com/ternarybob/fragor/internal/models"
)

// batchSize is the number of records rewritten per queue job. Small batches
// keep each job short; the continuation cursor rides on the next message.
const batchSize = 100

// batchLeaseExtension is how far a batch pushes its queue lease out before
// rewriting. A batch that outlives the default visibility window must not be
// redelivered mid-rewrite.
const batchLeaseExtension = 2 * time.Minute

// Service runs schema migrations and index rebuilds.
type Service struct {
	storage interfaces.CrashReportStorage
	index   interfaces.SearchIndex
	queue   interfaces.QueueManager
	logger  arbor.ILogger
}

// NewService creates a new migration service.
func NewService(storage interfaces.CrashReportStorage, index interfaces.SearchIndex, queue interfaces.QueueManager, logger arbor.ILogger) *Service {
	return &Service{
		storage: storage,
		index:   index,
		queue:   queue,
		logger:  logger,
	}
}

// Start kicks off a full-store schema migration by enqueueing the first
// batch. Progress continues via the queue even across restarts.
func (s *Service) Start(ctx context.Context) error {
	if err := s.queue.Enqueue(ctx, models.NewSchemaUpdateMessage("")); err != nil {
		return fmt.Errorf("failed to start schema migration: %w", err)
	}
	s.logger.Info().Msg("Schema migration started")
	return nil
}

// HandleSchemaUpdate is the queue handler for one migration batch. It rewrites
// up to batchSize records starting after the message cursor, mirrors them into
// the search index, and enqueues the next batch if records remain. Rewrites
// are idempotent, so a redelivered batch is harmless.
func (s *Service) HandleSchemaUpdate(ctx context.Context, msg *models.QueueMessage) error {
	if err := s.queue.Extend(ctx, msg.ID, batchLeaseExtension); err != nil && !errors.Is(err, interfaces.ErrNoMessage) {
		s.logger.Warn().Err(err).Str("id", msg.ID).Msg("Failed to extend batch lease")
	}

	records, more, err := s.storage.Scan(ctx, interfaces.ScanQuery{
		StartAfter: msg.Cursor,
		Limit:      batchSize,
	})
	if err != nil {
		return fmt.Errorf("migration scan failed: %w", err)
	}
	if len(records) == 0 {
		s.logger.Info().Msg("Schema migration complete")
		return nil
	}

	for _, record := range records {
		record.Version = models.SchemaVersion
		if !record.State.IsValid() {
			record.State = models.StateUnresolved
		}
	}

	if err := s.storage.PutRevisions(ctx, records); err != nil {
		return fmt.Errorf("migration batch write failed: %w", err)
	}

	if err := s.index.IndexBatch(ctx, records); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to mirror migrated batch into search index")
	}

	cursor := records[len(records)-1].ID
	s.logger.Info().
		Int("migrated", len(records)).
		Str("cursor", cursor).
		Msg("Schema migration batch complete")

	if more {
		if err := s.queue.Enqueue(ctx, models.NewSchemaUpdateMessage(cursor)); err != nil {
			return fmt.Errorf("failed to enqueue next migration batch: %w", err)
		}
	} else {
		s.logger.Info().Msg("Schema migration complete")
	}

	return nil
}

// RebuildIndex drops and repopulates the entire search index from the store.
func (s *Service) RebuildIndex(ctx context.Context) error {
	if err := s.index.DeleteAll(ctx); err != nil {
		return err
	}

	cursor := ""
	indexed := 0
	for {
		records, more, err := s.storage.Scan(ctx, interfaces.ScanQuery{
			StartAfter: cursor,
			Limit:      batchSize,
		})
		if err != nil {
			return fmt.Errorf("index rebuild scan failed: %w", err)
		}
		if len(records) == 0 {
			break
		}

		if err := s.index.IndexBatch(ctx, records); err != nil {
			s.logger.Warn().Err(err).Msg("Index rebuild batch had failures")
		}
		indexed += len(records)
		cursor = records[len(records)-1].ID

		if !more {
			break
		}
	}

	s.logger.Info().Int("indexed", indexed).Msg("Search index rebuilt")
	return nil
}

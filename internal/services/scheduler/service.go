// Package scheduler runs periodic maintenance: dead-letter purges and badger
// value-log garbage collection.
package scheduler

import (
	"context"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fragor/internal/interfaces"
)

// Service owns the cron runner for background maintenance jobs.
type Service struct {
	cron       *cron.Cron
	queue      interfaces.QueueManager
	db         *badgerdb.DB
	purgeAfter time.Duration
	logger     arbor.ILogger
}

// NewService creates a new scheduler service.
func NewService(queue interfaces.QueueManager, db *badgerdb.DB, purgeAfter time.Duration, logger arbor.ILogger) *Service {
	return &Service{
		cron:       cron.New(),
		queue:      queue,
		db:         db,
		purgeAfter: purgeAfter,
		logger:     logger,
	}
}

// Start registers the maintenance jobs and launches the cron runner.
func (s *Service) Start() error {
	if _, err := s.cron.AddFunc("@hourly", s.purgeDeadLetters); err != nil {
		return fmt.Errorf("failed to schedule dead-letter purge: %w", err)
	}
	if _, err := s.cron.AddFunc("@every 10m", s.runValueLogGC); err != nil {
		return fmt.Errorf("failed to schedule value log GC: %w", err)
	}

	s.cron.Start()
	s.logger.Info().Msg("Scheduler started")
	return nil
}

// Stop halts the cron runner and waits for running jobs to finish.
func (s *Service) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Scheduler stopped")
}

func (s *Service) purgeDeadLetters() {
	purged, err := s.queue.PurgeDead(context.Background(), s.purgeAfter)
	if err != nil {
		s.logger.Error().Err(err).Msg("Dead-letter purge failed")
		return
	}
	if purged > 0 {
		s.logger.Info().Int("purged", purged).Msg("Dead-letter purge complete")
	}
}

func (s *Service) runValueLogGC() {
	// badger asks for repeated calls while there is garbage to reclaim.
	for {
		if err := s.db.RunValueLogGC(0.5); err != nil {
			return
		}
	}
}

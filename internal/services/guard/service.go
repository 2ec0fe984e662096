// Package guard provides the backoff guard: an ephemeral in-flight marker per
// (workflow, fingerprint) that keeps the orchestrator from scheduling
// duplicate jobs. The guard bounds duplication, it does not provide
// exactly-once execution: losing a marker may cause a duplicate job, never a
// lost one.
package guard

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fragor/internal/interfaces"
	"github.com/ternarybob/fragor/internal/models"
)

const inProgress = "in_progress"

// Service implements GuardService on top of the TTL cache. Every marker
// carries the configured TTL so a job that dies before its release step can
// never permanently block future triggers for its pair.
type Service struct {
	cache  interfaces.CacheService
	ttl    time.Duration
	logger arbor.ILogger
}

// NewService creates a new guard service.
func NewService(cache interfaces.CacheService, ttl time.Duration, logger arbor.ILogger) *Service {
	return &Service{
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

// Acquire sets the in-flight marker if absent and reports whether this caller
// won it.
func (s *Service) Acquire(workflow models.Workflow, fingerprint string) (bool, error) {
	acquired, err := s.cache.Add(guardKey(workflow, fingerprint), inProgress, s.ttl)
	if err != nil {
		return false, fmt.Errorf("failed to acquire guard: %w", err)
	}
	return acquired, nil
}

// Release clears the marker. Safe to call when the marker already expired.
func (s *Service) Release(workflow models.Workflow, fingerprint string) error {
	if err := s.cache.Delete(guardKey(workflow, fingerprint)); err != nil {
		return fmt.Errorf("failed to release guard: %w", err)
	}
	return nil
}

func guardKey(workflow models.Workflow, fingerprint string) string {
	return fmt.Sprintf("github_task_%s_%s", workflow, fingerprint)
}

// Ensure Service implements GuardService interface
var _ interfaces.GuardService = (*Service)(nil)

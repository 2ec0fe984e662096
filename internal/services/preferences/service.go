// Package preferences exposes global preference flags stored in the
// key/value store.
package preferences

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fragor/internal/interfaces"
)

// KeyIntegrateWithGitHub gates all orchestrator action. Read before every
// decision, never cached beyond it.
const KeyIntegrateWithGitHub = "integrate_with_github"

// Service provides preference reads and writes over KeyValueStorage.
type Service struct {
	kv     interfaces.KeyValueStorage
	logger arbor.ILogger
}

// NewService creates a new preference service.
func NewService(kv interfaces.KeyValueStorage, logger arbor.ILogger) *Service {
	return &Service{
		kv:     kv,
		logger: logger,
	}
}

// Get returns the stored value, or defaultValue when the key is absent or the
// read fails. A preference read never blocks a decision path on an error.
func (s *Service) Get(ctx context.Context, key, defaultValue string) string {
	value, err := s.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, interfaces.ErrKeyNotFound) {
			s.logger.Warn().Err(err).Str("key", key).Msg("Preference read failed, using default")
		}
		return defaultValue
	}
	return value
}

// Set stores a preference value.
func (s *Service) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return fmt.Errorf("preference key cannot be empty")
	}
	if err := s.kv.Set(ctx, key, value, "global preference"); err != nil {
		return err
	}
	s.logger.Info().Str("key", key).Str("value", value).Msg("Preference updated")
	return nil
}

// Ensure Service implements PreferenceService interface
var _ interfaces.PreferenceService = (*Service)(nil)

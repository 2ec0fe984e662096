package handlers

import (
	"context"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fragor/internal/services/migration"
)

// AdminHandler serves administrative maintenance endpoints.
type AdminHandler struct {
	migration *migration.Service
	logger    arbor.ILogger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(migration *migration.Service, logger arbor.ILogger) *AdminHandler {
	return &AdminHandler{
		migration: migration,
		logger:    logger,
	}
}

// Migrate handles POST /api/admin/migrate. Enqueues the first migration batch;
// progress continues on the queue.
func (h *AdminHandler) Migrate(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if err := h.migration.Start(r.Context()); err != nil {
		h.logger.Error().Err(err).Msg("Failed to start schema migration")
		WriteError(w, http.StatusInternalServerError, "Failed to start schema migration")
		return
	}

	WriteStarted(w, "Schema migration started")
}

// Reindex handles POST /api/admin/reindex. The rebuild runs in the background
// because a full store walk can take a while.
func (h *AdminHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	go func() {
		if err := h.migration.RebuildIndex(context.Background()); err != nil {
			h.logger.Error().Err(err).Msg("Search index rebuild failed")
		}
	}()

	WriteStarted(w, "Search index rebuild started")
}

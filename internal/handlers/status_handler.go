package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fragor/internal/common"
	"github.com/ternarybob/fragor/internal/interfaces"
)

// StatusHandler serves the service status endpoint.
type StatusHandler struct {
	queue         interfaces.QueueManager
	githubEnabled bool
	logger        arbor.ILogger
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(queue interfaces.QueueManager, githubEnabled bool, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		queue:         queue,
		githubEnabled: githubEnabled,
		logger:        logger,
	}
}

// Status handles GET /api/status.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	queueLength, err := h.queue.Length(r.Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to read queue length")
		queueLength = -1
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"version":        common.GetVersion(),
		"queue_length":   queueLength,
		"github_enabled": h.githubEnabled,
	})
}

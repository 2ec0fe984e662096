package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fragor/internal/interfaces"
)

// PreferencesHandler serves reads and writes of global preference flags.
type PreferencesHandler struct {
	prefs  interfaces.PreferenceService
	logger arbor.ILogger
}

// NewPreferencesHandler creates a new preferences handler.
func NewPreferencesHandler(prefs interfaces.PreferenceService, logger arbor.ILogger) *PreferencesHandler {
	return &PreferencesHandler{
		prefs:  prefs,
		logger: logger,
	}
}

// Handle routes GET and PUT for /api/preferences/{key}.
func (h *PreferencesHandler) Handle(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/api/preferences/")
	if key == "" || strings.Contains(key, "/") {
		WriteError(w, http.StatusBadRequest, "preference key is required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, r, key)
	case http.MethodPut:
		h.put(w, r, key)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *PreferencesHandler) get(w http.ResponseWriter, r *http.Request, key string) {
	value := h.prefs.Get(r.Context(), key, "")
	WriteJSON(w, http.StatusOK, map[string]string{
		"key":   key,
		"value": value,
	})
}

func (h *PreferencesHandler) put(w http.ResponseWriter, r *http.Request, key string) {
	var req struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	if err := h.prefs.Set(r.Context(), key, req.Value); err != nil {
		h.logger.Error().Err(err).Str("key", key).Msg("Preference write failed")
		WriteError(w, http.StatusInternalServerError, "Failed to store preference")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"key":   key,
		"value": req.Value,
	})
}

package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fragor/internal/interfaces"
	"github.com/ternarybob/fragor/internal/models"
	"github.com/ternarybob/fragor/internal/services/crashes"
	"github.com/ternarybob/fragor/internal/services/github"
)

const defaultTrendingLimit = 20

// CrashHandler serves crash submission, lookup and the trending view.
type CrashHandler struct {
	crashes      interfaces.CrashReportService
	orchestrator *github.Orchestrator // nil when GitHub integration is disabled
	logger       arbor.ILogger
}

// NewCrashHandler creates a new crash handler.
func NewCrashHandler(crashes interfaces.CrashReportService, orchestrator *github.Orchestrator, logger arbor.ILogger) *CrashHandler {
	return &CrashHandler{
		crashes:      crashes,
		orchestrator: orchestrator,
		logger:       logger,
	}
}

type submitRequest struct {
	Crash  string   `json:"crash"`
	Labels []string `json:"labels"`
}

// Submit handles POST /api/crashes. Accepts a JSON body or a form field
// named "crash".
func (h *CrashHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	req, err := parseSubmitRequest(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.crashes.AddCrashReport(r.Context(), req.Crash, req.Labels)
	if err != nil {
		if errors.Is(err, crashes.ErrEmptyCrash) {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error().Err(err).Msg("Crash submission failed")
		WriteError(w, http.StatusInternalServerError, "Failed to store crash report")
		return
	}

	if h.orchestrator != nil {
		if _, err := h.orchestrator.Manage(r.Context(), report); err != nil {
			// Issue sync is best-effort; the report itself is already stored.
			h.logger.Warn().Err(err).Str("fingerprint", report.Fingerprint).Msg("Issue sync decision failed")
		}
	}

	count, err := h.crashes.GetCount(r.Context(), report.Fingerprint)
	if err != nil {
		count = report.Count
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "success",
		"message": fmt.Sprintf("Added crash report with (fingerprint, count) => (%s, %d)",
			report.Fingerprint, count),
		"fingerprint": report.Fingerprint,
	})
}

// Get handles GET /api/crashes?fingerprint=<fp>.
func (h *CrashHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	fingerprint := r.URL.Query().Get("fingerprint")
	if fingerprint == "" {
		WriteError(w, http.StatusBadRequest, "fingerprint parameter is required")
		return
	}

	report, err := h.crashes.GetCrash(r.Context(), fingerprint)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "No crash report found for fingerprint")
			return
		}
		h.logger.Error().Err(err).Str("fingerprint", fingerprint).Msg("Crash lookup failed")
		WriteError(w, http.StatusInternalServerError, "Failed to load crash report")
		return
	}

	view := h.crashes.View(r.Context(), report)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"report": view,
		"crash":  report.Crash,
	})
}

// Trending handles GET /api/trending?cursor=<id>&limit=<n>.
func (h *CrashHandler) Trending(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	limit := defaultTrendingLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 || parsed > 100 {
			WriteError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = parsed
	}

	result, err := h.crashes.Trending(r.Context(), r.URL.Query().Get("cursor"), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Trending query failed")
		WriteError(w, http.StatusInternalServerError, "Failed to load trending crashes")
		return
	}

	WriteJSON(w, http.StatusOK, result)
}

// UpdateState handles PUT /api/crashes/state with {"fingerprint": ..., "state": ...}.
func (h *CrashHandler) UpdateState(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPut) {
		return
	}

	var req struct {
		Fingerprint string            `json:"fingerprint"`
		State       models.CrashState `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Fingerprint == "" {
		WriteError(w, http.StatusBadRequest, "fingerprint is required")
		return
	}
	if !req.State.IsValid() {
		WriteError(w, http.StatusBadRequest, "invalid state")
		return
	}

	report, err := h.crashes.UpdateReportState(r.Context(), req.Fingerprint, req.State)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "No crash report found for fingerprint")
			return
		}
		h.logger.Error().Err(err).Str("fingerprint", req.Fingerprint).Msg("State update failed")
		WriteError(w, http.StatusInternalServerError, "Failed to update crash report")
		return
	}

	WriteJSON(w, http.StatusOK, h.crashes.View(r.Context(), report))
}

func parseSubmitRequest(r *http.Request) (*submitRequest, error) {
	contentType := r.Header.Get("Content-Type")

	if strings.Contains(contentType, "application/json") {
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, fmt.Errorf("invalid JSON body")
		}
		return &req, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("invalid form body")
	}
	return &submitRequest{
		Crash:  r.PostFormValue("crash"),
		Labels: r.PostForm["label"],
	}, nil
}

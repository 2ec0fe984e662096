package server

import (
	"net/http"

	"github.com/ternarybob/fragor/internal/handlers"
)

// setupRoutes registers all API routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	crashHandler := handlers.NewCrashHandler(s.app.Crashes, s.app.Orchestrator, s.app.Logger)
	prefsHandler := handlers.NewPreferencesHandler(s.app.Preferences, s.app.Logger)
	adminHandler := handlers.NewAdminHandler(s.app.Migration, s.app.Logger)
	statusHandler := handlers.NewStatusHandler(s.app.Queue, s.app.Orchestrator != nil, s.app.Logger)

	// Crash reports
	mux.HandleFunc("/api/crashes", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			crashHandler.Submit(w, r)
		case http.MethodGet:
			crashHandler.Get(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/crashes/state", crashHandler.UpdateState)
	mux.HandleFunc("/api/trending", crashHandler.Trending)

	// Preferences
	mux.HandleFunc("/api/preferences/", prefsHandler.Handle)

	// Admin
	mux.HandleFunc("/api/admin/migrate", adminHandler.Migrate)
	mux.HandleFunc("/api/admin/reindex", adminHandler.Reindex)

	// Status
	mux.HandleFunc("/api/status", statusHandler.Status)

	return mux
}

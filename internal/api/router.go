package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check
		r.Get("/health", s.handleHealth)

		// Bridge metrics
		r.Get("/metrics", s.handleMetrics)

		// Hub information
		r.Get("/hub", s.handleHubInfo)

		// Room endpoints
		r.Route("/rooms", func(r chi.Router) {
			r.Get("/", s.handleListRooms)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/channels", s.handleListRoomChannels)
				r.Get("/levels", s.handleListRoomLevels)
				r.Get("/scenes", s.handleListRoomScenes)
			})
		})

		// Site-wide collections
		r.Get("/channels", s.handleListChannels)
		r.Get("/levels", s.handleListLevels)
		r.Get("/scenes", s.handleListScenes)
		r.Get("/colours", s.handleListColours)
		r.Get("/colour-levels", s.handleListColourLevels)

		// Recorded level history
		r.Get("/history/{room}/{channel}", s.handleGetHistory)

		// Command execution
		r.Post("/commands", s.handleCommand)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	metrics := s.bridge.GetMetrics()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"version":       s.version,
		"hub_connected": metrics.Connected,
	})
}

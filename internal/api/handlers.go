package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nerrad567/rako-bridge/internal/bridges/rako"
)

// ===== Bridge status =====

// handleMetrics returns the bridge's operational counters.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	metrics := s.bridge.GetMetrics()
	writeJSON(w, http.StatusOK, map[string]any{
		"connected":    metrics.Connected,
		"status":       metrics.Status,
		"commands_tx":  metrics.CommandsTx,
		"queries_tx":   metrics.QueriesTx,
		"rows_rx":      metrics.RowsRx,
		"errors_total": metrics.ErrorsTotal,
		"reconnects":   metrics.Reconnects,
	})
}

// handleHubInfo returns the hub's version information.
func (s *Server) handleHubInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.hub.GetHubInfo(r.Context())
	if err != nil {
		s.writeHubError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// ===== Room-scoped queries =====

// roomIDParam parses the {id} URL parameter as a hub room number.
// Returns false after writing a 400 response if the parameter is invalid.
func roomIDParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 0 {
		writeBadRequest(w, "invalid room id: "+raw)
		return 0, false
	}
	return id, true
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.hub.GetRooms(r.Context())
	if err != nil {
		s.writeHubError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

func (s *Server) handleListRoomChannels(w http.ResponseWriter, r *http.Request) {
	id, ok := roomIDParam(w, r)
	if !ok {
		return
	}
	channels, err := s.hub.GetChannels(r.Context(), id)
	if err != nil {
		s.writeHubError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, channels)
}

func (s *Server) handleListRoomLevels(w http.ResponseWriter, r *http.Request) {
	id, ok := roomIDParam(w, r)
	if !ok {
		return
	}
	levels, err := s.hub.GetLevels(r.Context(), id)
	if err != nil {
		s.writeHubError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, levels)
}

func (s *Server) handleListRoomScenes(w http.ResponseWriter, r *http.Request) {
	id, ok := roomIDParam(w, r)
	if !ok {
		return
	}
	scenes, err := s.hub.GetScenes(r.Context(), id)
	if err != nil {
		s.writeHubError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scenes)
}

// ===== Site-wide queries =====

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.hub.GetChannels(r.Context())
	if err != nil {
		s.writeHubError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, channels)
}

func (s *Server) handleListLevels(w http.ResponseWriter, r *http.Request) {
	levels, err := s.hub.GetLevels(r.Context())
	if err != nil {
		s.writeHubError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, levels)
}

func (s *Server) handleListScenes(w http.ResponseWriter, r *http.Request) {
	scenes, err := s.hub.GetScenes(r.Context())
	if err != nil {
		s.writeHubError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scenes)
}

func (s *Server) handleListColours(w http.ResponseWriter, r *http.Request) {
	colours, err := s.hub.GetColours(r.Context())
	if err != nil {
		s.writeHubError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, colours)
}

func (s *Server) handleListColourLevels(w http.ResponseWriter, r *http.Request) {
	levels, err := s.hub.GetColourLevels(r.Context())
	if err != nil {
		s.writeHubError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, levels)
}

// ===== History =====

// handleGetHistory returns recorded level changes for a channel, newest first.
// Accepts an optional ?limit= query parameter.
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeNotFound(w, "history recording is disabled")
		return
	}

	roomID := chi.URLParam(r, "room")
	channelID := chi.URLParam(r, "channel")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeBadRequest(w, "invalid limit: "+raw)
			return
		}
		limit = parsed
	}

	entries, err := s.history.GetHistory(r.Context(), roomID, channelID, limit)
	if err != nil {
		writeInternalError(w, "history query failed")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// ===== Commands =====

// handleCommand executes a lighting command through the bridge.
//
// The request body is a CommandMessage; id, timestamp and source are
// filled in when absent. Hub rejections map to 409 and transport
// failures to 502.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var cmd rako.CommandMessage
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeBadRequest(w, "invalid command payload: "+err.Error())
		return
	}

	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	if cmd.Source == "" {
		cmd.Source = "api"
	}
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now().UTC()
	}

	if err := s.bridge.Execute(cmd); err != nil {
		switch {
		case errors.Is(err, rako.ErrCommandRejected):
			writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
		case errors.Is(err, rako.ErrConnectionFailed):
			writeBadGateway(w, err.Error())
		default:
			writeBadRequest(w, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":     cmd.ID,
		"status": "accepted",
	})
}

// writeHubError maps hub query failures to HTTP responses. Transport
// failures surface as 502 so callers can distinguish an unreachable hub
// from a bridge fault.
func (s *Server) writeHubError(w http.ResponseWriter, err error) {
	if errors.Is(err, rako.ErrConnectionFailed) {
		writeBadGateway(w, "hub unreachable: "+err.Error())
		return
	}
	s.logger.Error("hub query failed", "error", err)
	writeInternalError(w, "hub query failed")
}

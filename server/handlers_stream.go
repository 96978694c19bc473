package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/atlist/relay/googleauth"
	"github.com/atlist/relay/monitor"
	"github.com/atlist/relay/youtubeapi"
)

type startRequest struct {
	VideoID string `json:"videoId"`
}

// HandleStreamStart launches a chat monitor for the caller's video. Any
// monitor the user already has running is replaced.
func (h *Handlers) HandleStreamStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	user, ok := userFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.VideoID == "" {
		writeError(w, http.StatusBadRequest, "videoId is required")
		return
	}

	sessionID, err := h.manager.Start(r.Context(), user.ID, req.VideoID)
	if err != nil {
		switch {
		case errors.Is(err, googleauth.ErrAuthUnavailable):
			writeError(w, http.StatusUnauthorized, "YouTube authorization expired, please sign in again")
		case errors.Is(err, youtubeapi.ErrTargetNotReady):
			writeError(w, http.StatusNotFound, "no active live chat found for this video")
		default:
			slog.Error("monitor start failed", slog.String("user_id", user.ID), slog.Any("err", err))
			writeError(w, http.StatusInternalServerError, "failed to start monitoring")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "sessionId": sessionID})
}

type stopRequest struct {
	VideoID   string `json:"videoId"`
	SessionID string `json:"sessionId"`
}

// HandleStreamStop halts the caller's monitor. The body may narrow the target
// by video or session id; with an empty body the user's active monitor stops.
func (h *Handlers) HandleStreamStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	user, ok := userFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req stopRequest
	if r.Body != nil {
		// An empty or absent body is fine; it means "stop whatever is running".
		_ = json.NewDecoder(r.Body).Decode(&req) //nolint:errcheck
	}

	stopped, err := h.manager.Stop(r.Context(), user.ID, req.VideoID, req.SessionID)
	if err != nil {
		if errors.Is(err, monitor.ErrNoActiveMonitor) {
			writeJSON(w, http.StatusNotFound, map[string]any{"stopped": false, "error": "no active monitor found"})
			return
		}
		slog.Error("monitor stop failed", slog.String("user_id", user.ID), slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "failed to stop monitoring")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stopped": stopped})
}

type statusResponse struct {
	IsActive     bool       `json:"isActive"`
	SessionID    string     `json:"sessionId,omitempty"`
	VideoID      string     `json:"videoId,omitempty"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	LastPolledAt *time.Time `json:"lastPolledAt,omitempty"`
}

// HandleStreamStatus reports the caller's durable monitor state.
func (h *Handlers) HandleStreamStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	user, ok := userFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	rec, err := h.manager.Status(r.Context(), user.ID)
	if err != nil {
		slog.Error("monitor status failed", slog.String("user_id", user.ID), slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "failed to read monitor status")
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusOK, statusResponse{IsActive: false})
		return
	}
	started := rec.StartedAt
	writeJSON(w, http.StatusOK, statusResponse{
		IsActive:     true,
		SessionID:    rec.ID,
		VideoID:      rec.VideoID,
		StartedAt:    &started,
		LastPolledAt: rec.LastPolledAt,
	})
}

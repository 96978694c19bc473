package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	dbpkg "github.com/atlist/relay/db"
	"github.com/atlist/relay/discord"
)

type webhookRequest struct {
	WebhookURL string `json:"webhookUrl"`
}

// HandleSetWebhook stores the caller's Discord webhook URL. An empty URL
// clears it; anything else must look like a real Discord webhook.
func (h *Handlers) HandleSetWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	user, ok := userFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.WebhookURL != "" && !discord.ValidWebhookURL(req.WebhookURL) {
		writeError(w, http.StatusBadRequest, "invalid Discord webhook URL")
		return
	}

	if err := dbpkg.SetWebhookURL(r.Context(), h.db, user.ID, req.WebhookURL); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		slog.Error("webhook update failed", slog.String("user_id", user.ID), slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "failed to save webhook")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// HandleUserSettings returns the caller's relay settings.
func (h *Handlers) HandleUserSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	user, ok := userFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	p, err := dbpkg.GetUserProfile(r.Context(), h.db, user.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		slog.Error("settings read failed", slog.String("user_id", user.ID), slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"discordWebhookUrl":   p.DiscordWebhookURL,
		"youtubeChannelTitle": p.YouTubeChannelTitle,
	})
}

// HandleMe returns the caller's profile.
func (h *Handlers) HandleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	user, ok := userFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	p, err := dbpkg.GetUserProfile(r.Context(), h.db, user.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		slog.Error("profile read failed", slog.String("user_id", user.ID), slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":                  p.ID,
		"email":               p.Email,
		"name":                p.Name,
		"avatarUrl":           p.AvatarURL,
		"youtubeChannelTitle": p.YouTubeChannelTitle,
	})
}

// Package server exposes the HTTP API: Google sign-in, stream monitor
// controls, per-user settings, health, and metrics. It includes permissive
// CORS for development and injects correlation IDs into request contexts for
// consistent logging.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/atlist/relay/config"
	"github.com/atlist/relay/googleauth"
	"github.com/atlist/relay/monitor"
)

const (
	// Maximum number of OAuth states to keep in memory
	maxOAuthStates = 10000
)

// StreamManager is the monitor surface the stream handlers drive.
// Implemented by monitor.Manager.
type StreamManager interface {
	Start(ctx context.Context, ownerID, videoID string) (string, error)
	Stop(ctx context.Context, ownerID, videoID, sessionID string) (bool, error)
	Status(ctx context.Context, ownerID string) (*monitor.Record, error)
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	db      *sql.DB
	cfg     *config.Config
	auth    *googleauth.Service
	manager StreamManager
	ctx     context.Context

	stateStore map[string]time.Time
	stateMu    sync.RWMutex
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(ctx context.Context, db *sql.DB, cfg *config.Config, auth *googleauth.Service, manager StreamManager) *Handlers {
	return &Handlers{
		db:         db,
		cfg:        cfg,
		auth:       auth,
		manager:    manager,
		ctx:        ctx,
		stateStore: make(map[string]time.Time),
	}
}

// addOAuthState adds a new OAuth state to the store with cleanup if needed.
func (h *Handlers) addOAuthState(state string, expiry time.Time) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	if len(h.stateStore)%100 == 0 {
		now := time.Now()
		for st, exp := range h.stateStore {
			if now.After(exp) {
				delete(h.stateStore, st)
			}
		}
	}
	// Over the cap, refuse to add: the flow fails instead of exhausting memory.
	if len(h.stateStore) >= maxOAuthStates {
		return
	}
	h.stateStore[state] = expiry
}

// takeOAuthState consumes a state, reporting whether it was valid and fresh.
func (h *Handlers) takeOAuthState(state string) bool {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	exp, ok := h.stateStore[state]
	if !ok {
		return false
	}
	delete(h.stateStore, state)
	return time.Now().Before(exp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode JSON response", slog.Any("err", err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

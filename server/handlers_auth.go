package server

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// HandleGoogleOAuthStart initiates the Google sign-in flow by redirecting to
// the consent screen.
func (h *Handlers) HandleGoogleOAuthStart(w http.ResponseWriter, r *http.Request) {
	if err := h.cfg.ValidateGoogleReady(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		writeError(w, http.StatusInternalServerError, "state gen error")
		return
	}
	st := hex.EncodeToString(b)
	h.addOAuthState(st, time.Now().Add(10*time.Minute))
	http.Redirect(w, r, h.auth.AuthCodeURL(st), http.StatusFound)
}

// HandleGoogleOAuthCallback completes the sign-in: validates state, exchanges
// the code, upserts the user, and redirects to the frontend with a bearer
// token for subsequent API calls.
func (h *Handlers) HandleGoogleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	st := r.URL.Query().Get("state")
	if code == "" || st == "" {
		writeError(w, http.StatusBadRequest, "missing code/state")
		return
	}
	if !h.takeOAuthState(st) {
		writeError(w, http.StatusBadRequest, "invalid state")
		return
	}

	identity, err := h.auth.Exchange(r.Context(), code)
	if err != nil {
		slog.Error("google code exchange failed", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "sign-in failed")
		return
	}

	token, err := issueToken(h.cfg.JWTSecret, h.cfg.JWTTTL, identity.UserID, identity.Email)
	if err != nil {
		slog.Error("token issue failed", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "sign-in failed")
		return
	}

	slog.Info("user signed in", slog.String("user_id", identity.UserID))
	http.Redirect(w, r, h.cfg.FrontendURL+"/auth/callback?token="+url.QueryEscape(token), http.StatusFound)
}

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	dbpkg "github.com/atlist/relay/db"
	"github.com/atlist/relay/googleauth"
	"github.com/atlist/relay/testutil"
)

func TestSetWebhookRejectsInvalidURL(t *testing.T) {
	h := testHandlers(t, &fakeManager{})
	for _, body := range []string{
		`{"webhookUrl":"http://discord.com/api/webhooks/1/t"}`,
		`{"webhookUrl":"https://example.com/api/webhooks/1/t"}`,
		`not json`,
	} {
		rec := httptest.NewRecorder()
		h.requireUser(http.HandlerFunc(h.HandleSetWebhook)).
			ServeHTTP(rec, authedRequest(t, http.MethodPut, "/settings/discord-webhook", body))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestSetWebhookMethodNotAllowed(t *testing.T) {
	h := testHandlers(t, &fakeManager{})
	rec := httptest.NewRecorder()
	h.requireUser(http.HandlerFunc(h.HandleSetWebhook)).
		ServeHTTP(rec, authedRequest(t, http.MethodPost, "/settings/discord-webhook", `{}`))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	database := testutil.SetupTestDB(t)
	cfg := serverTestConfig()
	h := NewHandlers(context.Background(), database, cfg, googleauth.New(cfg, nil), &fakeManager{})

	userID, err := dbpkg.UpsertUser(context.Background(), database, &dbpkg.UserRecord{
		GoogleUserID: "g-" + uuid.NewString(),
		Email:        "settings@example.com",
		Name:         "Settings Tester",
		TokenExpiry:  time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	t.Cleanup(func() { _, _ = database.Exec(`DELETE FROM users WHERE id=$1`, userID) })

	auth := func(req *http.Request) *http.Request {
		req.Header.Set("Authorization", "Bearer "+testToken(t, userID, "settings@example.com"))
		return req
	}

	// Store a webhook.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/settings/discord-webhook",
		strings.NewReader(`{"webhookUrl":"https://discord.com/api/webhooks/1/t"}`))
	h.requireUser(http.HandlerFunc(h.HandleSetWebhook)).ServeHTTP(rec, auth(req))
	if rec.Code != http.StatusOK {
		t.Fatalf("set webhook = %d, body %s", rec.Code, rec.Body.String())
	}

	// Read it back via settings.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/settings/user-settings", nil)
	h.requireUser(http.HandlerFunc(h.HandleUserSettings)).ServeHTTP(rec, auth(req))
	if rec.Code != http.StatusOK {
		t.Fatalf("get settings = %d", rec.Code)
	}
	var settings map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&settings); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if settings["discordWebhookUrl"] != "https://discord.com/api/webhooks/1/t" {
		t.Errorf("settings = %v", settings)
	}

	// Profile endpoint.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	h.requireUser(http.HandlerFunc(h.HandleMe)).ServeHTTP(rec, auth(req))
	if rec.Code != http.StatusOK {
		t.Fatalf("me = %d", rec.Code)
	}
	var me map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&me); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if me["id"] != userID || me["email"] != "settings@example.com" {
		t.Errorf("me = %v", me)
	}

	// Clear the webhook.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/settings/discord-webhook", strings.NewReader(`{"webhookUrl":""}`))
	h.requireUser(http.HandlerFunc(h.HandleSetWebhook)).ServeHTTP(rec, auth(req))
	if rec.Code != http.StatusOK {
		t.Fatalf("clear webhook = %d", rec.Code)
	}
}

func TestSetWebhookUnknownUser(t *testing.T) {
	database := testutil.SetupTestDB(t)
	cfg := serverTestConfig()
	h := NewHandlers(context.Background(), database, cfg, googleauth.New(cfg, nil), &fakeManager{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/settings/discord-webhook",
		strings.NewReader(`{"webhookUrl":"https://discord.com/api/webhooks/1/t"}`))
	req.Header.Set("Authorization", "Bearer "+testToken(t, uuid.NewString(), "ghost@example.com"))
	h.requireUser(http.HandlerFunc(h.HandleSetWebhook)).ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

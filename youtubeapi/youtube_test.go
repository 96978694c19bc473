package youtubeapi

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/atlist/relay/testutil"
)

func TestResolveLiveChatID(t *testing.T) {
	srv := testutil.NewMockYouTubeServer(t)
	srv.MockVideoResponse("v1", "chat-1")

	c := &Client{BaseURL: srv.URL}
	id, err := c.ResolveLiveChatID(context.Background(), http.DefaultClient, "v1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id != "chat-1" {
		t.Errorf("live chat id = %q, want chat-1", id)
	}
}

func TestResolveLiveChatIDNotReady(t *testing.T) {
	srv := testutil.NewMockYouTubeServer(t)
	srv.MockVideoResponse("v2", "")

	c := &Client{BaseURL: srv.URL}
	_, err := c.ResolveLiveChatID(context.Background(), http.DefaultClient, "v2")
	if !errors.Is(err, ErrTargetNotReady) {
		t.Fatalf("expected ErrTargetNotReady, got %v", err)
	}
}

func TestResolveLiveChatIDEmptyVideo(t *testing.T) {
	c := &Client{}
	if _, err := c.ResolveLiveChatID(context.Background(), http.DefaultClient, ""); err == nil {
		t.Fatal("expected error for empty video id")
	}
}

func TestFetchMessages(t *testing.T) {
	srv := testutil.NewMockYouTubeServer(t)
	srv.MockChatMessagesResponse([]map[string]any{
		{
			"id": "m1",
			"snippet": map[string]any{
				"displayMessage": "hello",
				"publishedAt":    "2026-01-02T15:04:05Z",
			},
			"authorDetails": map[string]any{
				"displayName":     "alice",
				"profileImageUrl": "https://example.com/a.png",
			},
		},
		{
			"id":            "m2",
			"snippet":       map[string]any{"displayMessage": "world"},
			"authorDetails": map[string]any{"displayName": "bob"},
		},
	}, "cursor-2", 7000)

	c := &Client{BaseURL: srv.URL}
	page, err := c.FetchMessages(context.Background(), http.DefaultClient, "chat-1", "cursor-1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(page.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(page.Messages))
	}
	if page.Messages[0].Author != "alice" || page.Messages[0].Text != "hello" {
		t.Errorf("first message = %+v", page.Messages[0])
	}
	if page.Messages[0].PublishedAt.IsZero() {
		t.Error("published at not parsed")
	}
	if page.NextPageToken != "cursor-2" {
		t.Errorf("next page token = %q", page.NextPageToken)
	}
	if page.PollingInterval != 7*time.Second {
		t.Errorf("polling interval = %v, want 7s", page.PollingInterval)
	}
}

func TestFetchMessagesErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		reason  string
		wantErr error
	}{
		{"chat disabled", http.StatusForbidden, "liveChatDisabled", ErrChatDisabled},
		{"chat ended", http.StatusForbidden, "liveChatEnded", ErrChatEnded},
		{"chat not found", http.StatusNotFound, "liveChatNotFound", ErrChatEnded},
		{"auth error", http.StatusUnauthorized, "authError", ErrAuthExpired},
		{"plain 401", http.StatusUnauthorized, "somethingElse", ErrAuthExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testutil.NewMockYouTubeServer(t)
			srv.MockChatMessagesError(tt.code, tt.reason, "upstream says no")

			c := &Client{BaseURL: srv.URL}
			_, err := c.FetchMessages(context.Background(), http.DefaultClient, "chat-1", "")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestFetchMessagesTransientErrorPassesThrough(t *testing.T) {
	srv := testutil.NewMockYouTubeServer(t)
	srv.MockChatMessagesError(http.StatusInternalServerError, "backendError", "try again")

	c := &Client{BaseURL: srv.URL}
	_, err := c.FetchMessages(context.Background(), http.DefaultClient, "chat-1", "")
	if err == nil {
		t.Fatal("expected error")
	}
	for _, sentinel := range []error{ErrChatDisabled, ErrChatEnded, ErrAuthExpired, ErrTargetNotReady} {
		if errors.Is(err, sentinel) {
			t.Fatalf("500 should not map to %v", sentinel)
		}
	}
}

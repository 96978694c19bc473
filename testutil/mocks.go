package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// MockYouTubeServer creates a test server that mocks YouTube Data API responses
type MockYouTubeServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockYouTubeServer creates a new mock YouTube API server. Handlers are
// keyed by path suffix (e.g. "/videos", "/liveChat/messages") so the generated
// client's base-path prefix doesn't matter.
func NewMockYouTubeServer(t *testing.T) *MockYouTubeServer {
	t.Helper()
	m := &MockYouTubeServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for suffix, handler := range m.Handlers {
			if strings.HasSuffix(r.URL.Path, suffix) {
				handler(w, r)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockVideoResponse adds a handler for the videos.list endpoint. An empty
// liveChatID produces a video without live streaming details.
func (m *MockYouTubeServer) MockVideoResponse(videoID, liveChatID string) {
	m.Handlers["/videos"] = func(w http.ResponseWriter, r *http.Request) {
		item := map[string]any{"id": videoID}
		if liveChatID != "" {
			item["liveStreamingDetails"] = map[string]any{"activeLiveChatId": liveChatID}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"items": []any{item}}) //nolint:errcheck // test mock response
	}
}

// MockChatMessagesResponse adds a handler for the liveChatMessages.list endpoint.
func (m *MockYouTubeServer) MockChatMessagesResponse(messages []map[string]any, nextPageToken string, pollingIntervalMillis int64) {
	m.Handlers["/liveChat/messages"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck // test mock response
			"items":                 messages,
			"nextPageToken":         nextPageToken,
			"pollingIntervalMillis": pollingIntervalMillis,
		})
	}
}

// MockChatMessagesError makes the liveChatMessages.list endpoint fail with a
// googleapi-shaped error body.
func (m *MockYouTubeServer) MockChatMessagesError(code int, reason, message string) {
	m.Handlers["/liveChat/messages"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck // test mock response
			"error": map[string]any{
				"code":    code,
				"message": message,
				"errors":  []map[string]string{{"reason": reason, "message": message}},
			},
		})
	}
}

// Package monitor is the session engine: it owns the lifecycle of chat
// monitors (one user watching one live video), drives the repeated
// fetch-relay-persist cycle per session, classifies mid-poll failures, and
// reconciles in-memory sessions against the durable store on startup.
package monitor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/atlist/relay/youtubeapi"
)

// ErrNoActiveMonitor indicates stop/status could not resolve an active
// monitor for the given owner, video, or session id.
var ErrNoActiveMonitor = errors.New("no active monitor found")

// CredentialProvider supplies authenticated upstream clients per user.
// Implemented by googleauth.Service.
type CredentialProvider interface {
	ClientFor(ctx context.Context, userID string) (*http.Client, error)
	Refresh(ctx context.Context, userID string) error
}

// ChatSource resolves live chat handles and fetches message pages.
// Implemented by youtubeapi.Client.
type ChatSource interface {
	ResolveLiveChatID(ctx context.Context, hc *http.Client, videoID string) (string, error)
	FetchMessages(ctx context.Context, hc *http.Client, liveChatID, pageToken string) (*youtubeapi.ChatPage, error)
}

// Sink delivers a relayed message to a per-user destination.
// Implemented by discord.Sender.
type Sink interface {
	Send(ctx context.Context, webhookURL string, msg youtubeapi.ChatMessage, videoID string) error
}

// Intervals are the poll loop's rearm delays. The source-suggested interval
// takes precedence over Default when present.
type Intervals struct {
	Default time.Duration // successful cycle with messages, no suggestion
	Empty   time.Duration // successful cycle, zero messages
	Error   time.Duration // transient failure
	Reauth  time.Duration // after a successful credential refresh
}

// DefaultIntervals returns the production rearm delays.
func DefaultIntervals() Intervals {
	return Intervals{
		Default: 7 * time.Second,
		Empty:   15 * time.Second,
		Error:   30 * time.Second,
		Reauth:  5 * time.Second,
	}
}

// Package discord delivers relayed chat messages to per-user Discord webhooks.
// Delivery is best-effort: the caller logs failures and moves on.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/atlist/relay/youtubeapi"
)

// embedColor is the blue Discord renders on relayed messages.
const embedColor = 3447003

// ValidWebhookURL reports whether s looks like a real Discord webhook URL:
// https, a discord.com host, and an /api/webhooks/ path.
func ValidWebhookURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	if u.Scheme != "https" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host != "discord.com" && !strings.HasSuffix(host, ".discord.com") {
		return false
	}
	return strings.HasPrefix(u.Path, "/api/webhooks/")
}

// Sender posts chat messages to Discord webhooks as embeds.
type Sender struct {
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
	// Username overrides the webhook's display name on each post.
	Username string
}

func (s *Sender) http() *http.Client {
	if s.HTTPClient != nil {
		return s.HTTPClient
	}
	return http.DefaultClient
}

type embedAuthor struct {
	Name    string `json:"name"`
	IconURL string `json:"icon_url,omitempty"`
}

type embedFooter struct {
	Text string `json:"text"`
}

type embed struct {
	Author      embedAuthor `json:"author"`
	Description string      `json:"description"`
	Color       int         `json:"color"`
	Footer      embedFooter `json:"footer"`
	Timestamp   string      `json:"timestamp,omitempty"`
}

type webhookPayload struct {
	Username string  `json:"username,omitempty"`
	Embeds   []embed `json:"embeds"`
}

// Send posts one chat message to webhookURL. An empty webhookURL is a no-op
// so sessions without a configured destination keep polling silently.
func (s *Sender) Send(ctx context.Context, webhookURL string, msg youtubeapi.ChatMessage, videoID string) error {
	if webhookURL == "" {
		return nil
	}
	e := embed{
		Author:      embedAuthor{Name: msg.Author, IconURL: msg.AuthorAvatarURL},
		Description: msg.Text,
		Color:       embedColor,
		Footer:      embedFooter{Text: fmt.Sprintf("From YouTube Live Chat (Video: %s)", videoID)},
	}
	if !msg.PublishedAt.IsZero() {
		e.Timestamp = msg.PublishedAt.UTC().Format(time.RFC3339)
	}
	body, err := json.Marshal(webhookPayload{Username: s.Username, Embeds: []embed{e}})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http().Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}

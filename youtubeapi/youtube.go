// Package youtubeapi wraps the YouTube Data API live chat endpoints: resolving
// a video's active live chat and fetching cursor-paged chat messages. Failures
// are mapped to a closed set of sentinel errors so callers classify with
// errors.Is instead of matching message text.
package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

// Sentinel failure kinds returned by the chat source.
var (
	// ErrTargetNotReady: the video has no resolvable active live chat
	// (not live, or chat not enabled).
	ErrTargetNotReady = errors.New("no active live chat for video")
	// ErrChatDisabled: the stream's live chat was explicitly disabled.
	ErrChatDisabled = errors.New("live chat disabled")
	// ErrChatEnded: the live chat is over (stream finished).
	ErrChatEnded = errors.New("live chat ended")
	// ErrAuthExpired: the credential was rejected; a token refresh may recover.
	ErrAuthExpired = errors.New("credential rejected by youtube api")
)

const maxResults = 50

// ChatMessage is one relayed live chat message.
type ChatMessage struct {
	ID              string
	Author          string
	AuthorAvatarURL string
	Text            string
	PublishedAt     time.Time
}

// ChatPage is one page of live chat messages plus the continuation cursor and
// the API's suggested delay before the next fetch.
type ChatPage struct {
	Messages        []ChatMessage
	NextPageToken   string
	PollingInterval time.Duration
}

// Client calls the YouTube Data API with a caller-provided authenticated
// *http.Client (one per user credential).
type Client struct {
	// BaseURL overrides the YouTube API endpoint (tests).
	BaseURL string
}

func (c *Client) service(ctx context.Context, hc *http.Client) (*yt.Service, error) {
	opts := []option.ClientOption{option.WithHTTPClient(hc)}
	if c.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(c.BaseURL))
	}
	return yt.NewService(ctx, opts...)
}

// ResolveLiveChatID looks up the active live chat id for a video.
// Returns ErrTargetNotReady when the video isn't live or chat is off.
func (c *Client) ResolveLiveChatID(ctx context.Context, hc *http.Client, videoID string) (string, error) {
	if videoID == "" {
		return "", fmt.Errorf("video id empty")
	}
	svc, err := c.service(ctx, hc)
	if err != nil {
		return "", fmt.Errorf("youtube service: %w", err)
	}
	resp, err := svc.Videos.List([]string{"liveStreamingDetails"}).Id(videoID).Context(ctx).Do()
	if err != nil {
		return "", mapAPIError(err)
	}
	if len(resp.Items) == 0 || resp.Items[0].LiveStreamingDetails == nil || resp.Items[0].LiveStreamingDetails.ActiveLiveChatId == "" {
		return "", fmt.Errorf("video %s: %w", videoID, ErrTargetNotReady)
	}
	return resp.Items[0].LiveStreamingDetails.ActiveLiveChatId, nil
}

// FetchMessages fetches one page of live chat messages. An empty pageToken
// starts from the current live edge.
func (c *Client) FetchMessages(ctx context.Context, hc *http.Client, liveChatID, pageToken string) (*ChatPage, error) {
	if liveChatID == "" {
		return nil, fmt.Errorf("live chat id empty")
	}
	svc, err := c.service(ctx, hc)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	call := svc.LiveChatMessages.List(liveChatID, []string{"id", "snippet", "authorDetails"}).
		MaxResults(maxResults).Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	resp, err := call.Do()
	if err != nil {
		return nil, mapAPIError(err)
	}

	page := &ChatPage{
		NextPageToken:   resp.NextPageToken,
		PollingInterval: time.Duration(resp.PollingIntervalMillis) * time.Millisecond,
	}
	for _, item := range resp.Items {
		msg := ChatMessage{ID: item.Id}
		if item.Snippet != nil {
			msg.Text = item.Snippet.DisplayMessage
			if t, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt); err == nil {
				msg.PublishedAt = t
			}
		}
		if item.AuthorDetails != nil {
			msg.Author = item.AuthorDetails.DisplayName
			msg.AuthorAvatarURL = item.AuthorDetails.ProfileImageUrl
		}
		page.Messages = append(page.Messages, msg)
	}
	return page, nil
}

// mapAPIError converts googleapi/oauth2 failures into the sentinel set.
func mapAPIError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return fmt.Errorf("token retrieve failed (%v): %w", err, ErrAuthExpired)
	}

	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	for _, e := range apiErr.Errors {
		switch e.Reason {
		case "liveChatDisabled":
			return fmt.Errorf("%v: %w", apiErr.Message, ErrChatDisabled)
		case "liveChatEnded":
			return fmt.Errorf("%v: %w", apiErr.Message, ErrChatEnded)
		case "liveChatNotFound":
			return fmt.Errorf("%v: %w", apiErr.Message, ErrChatEnded)
		case "authError", "invalidCredentials", "expired":
			return fmt.Errorf("%v: %w", apiErr.Message, ErrAuthExpired)
		}
	}
	if apiErr.Code == http.StatusUnauthorized {
		return fmt.Errorf("http %d: %w", apiErr.Code, ErrAuthExpired)
	}
	return err
}

// Package googleauth wraps the Google OAuth2 flow and per-user credential
// management. Tokens are persisted via the provided UserStore so refreshes
// survive restarts; refresh is an explicit step rather than a hidden side
// effect so failures stay attributable.
package googleauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/atlist/relay/config"
)

// ErrAuthUnavailable indicates no usable Google credential exists for a user:
// either no refresh token is stored or the refresh grant was rejected.
var ErrAuthUnavailable = errors.New("google credentials unavailable")

// refreshWindow is how close to expiry an access token may get before
// ClientFor refreshes it proactively.
const refreshWindow = 5 * time.Minute

// UserStore persists user identity and Google tokens.
type UserStore interface {
	UpsertUser(ctx context.Context, googleUserID, email, name, avatarURL, channelID, channelTitle, accessToken, refreshToken string, expiry time.Time) (string, error)
	GetUserTokens(ctx context.Context, userID string) (access, refresh string, expiry time.Time, err error)
	UpdateUserTokens(ctx context.Context, userID, access, refresh string, expiry time.Time) error
}

type Service struct {
	store UserStore
	oauth *oauth2.Config

	// APIBase overrides the Google API endpoint (tests).
	APIBase string
}

func New(cfg *config.Config, store UserStore) *Service {
	scopes := strings.Fields(strings.ReplaceAll(cfg.GoogleScopes, ",", " "))
	oc := &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.GoogleRedirectURI,
		Scopes:       scopes,
	}
	return &Service{store: store, oauth: oc}
}

// SetTokenEndpoint overrides the OAuth token endpoint (tests).
func (s *Service) SetTokenEndpoint(authURL, tokenURL string) {
	s.oauth.Endpoint = oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL}
}

// AuthCodeURL builds the consent URL for the authorization-code flow.
// offline access + forced consent so Google returns a refresh token.
func (s *Service) AuthCodeURL(state string) string {
	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Identity is what the callback learns about the signed-in Google account.
type Identity struct {
	UserID string // internal user id
	Email  string
	Name   string
}

// Exchange trades an authorization code for tokens, resolves the Google
// identity (and, best-effort, the YouTube channel title), and upserts the
// user row. Returns the internal user id.
func (s *Service) Exchange(ctx context.Context, code string) (*Identity, error) {
	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth code exchange: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, errors.New("empty access token from google")
	}
	hc := s.oauth.Client(ctx, tok)

	osvc, err := oauth2api.NewService(ctx, s.options(hc)...)
	if err != nil {
		return nil, fmt.Errorf("oauth2 service: %w", err)
	}
	ui, err := osvc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("fetch userinfo: %w", err)
	}
	if ui.Id == "" || ui.Email == "" {
		return nil, errors.New("userinfo missing id or email")
	}

	// Channel info is cosmetic; a missing channel must not block sign-in.
	var channelID, channelTitle string
	if ysvc, err := yt.NewService(ctx, s.options(hc)...); err == nil {
		if resp, err := ysvc.Channels.List([]string{"snippet"}).Mine(true).Context(ctx).Do(); err == nil && len(resp.Items) > 0 {
			channelID = resp.Items[0].Id
			if resp.Items[0].Snippet != nil {
				channelTitle = resp.Items[0].Snippet.Title
			}
		} else if err != nil {
			slog.Warn("could not fetch youtube channel info", slog.Any("err", err))
		}
	}

	id, err := s.store.UpsertUser(ctx, ui.Id, ui.Email, ui.Name, ui.Picture, channelID, channelTitle,
		tok.AccessToken, tok.RefreshToken, tok.Expiry)
	if err != nil {
		return nil, fmt.Errorf("persist user: %w", err)
	}
	return &Identity{UserID: id, Email: ui.Email, Name: ui.Name}, nil
}

// ClientFor returns an authenticated HTTP client for the user's upstream API
// calls. When the stored access token is missing or expires within
// refreshWindow, it refreshes and persists the rotated tokens first.
// Returns ErrAuthUnavailable when no refresh token exists or refresh fails.
func (s *Service) ClientFor(ctx context.Context, userID string) (*http.Client, error) {
	access, refresh, expiry, err := s.store.GetUserTokens(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load tokens for user %s: %w", userID, err)
	}
	if refresh == "" {
		return nil, fmt.Errorf("user %s has no refresh token: %w", userID, ErrAuthUnavailable)
	}

	tok := &oauth2.Token{AccessToken: access, RefreshToken: refresh, Expiry: expiry}
	if access == "" || time.Until(expiry) < refreshWindow {
		tok, err = s.refresh(ctx, userID, refresh)
		if err != nil {
			return nil, err
		}
	}
	return s.oauth.Client(ctx, tok), nil
}

// Refresh forces a token refresh for the user and persists the result.
// Used by the background refresher and the poll loop's reauth path.
func (s *Service) Refresh(ctx context.Context, userID string) error {
	_, refresh, _, err := s.store.GetUserTokens(ctx, userID)
	if err != nil {
		return fmt.Errorf("load tokens for user %s: %w", userID, err)
	}
	if refresh == "" {
		return fmt.Errorf("user %s has no refresh token: %w", userID, ErrAuthUnavailable)
	}
	_, err = s.refresh(ctx, userID, refresh)
	return err
}

func (s *Service) refresh(ctx context.Context, userID, refreshToken string) (*oauth2.Token, error) {
	ts := s.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	newTok, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh for user %s failed (%v): %w", userID, err, ErrAuthUnavailable)
	}
	// Google typically omits the refresh token on rotation; the store keeps
	// the old one when the new value is empty.
	rotated := ""
	if newTok.RefreshToken != refreshToken {
		rotated = newTok.RefreshToken
	}
	if err := s.store.UpdateUserTokens(ctx, userID, newTok.AccessToken, rotated, newTok.Expiry); err != nil {
		slog.Warn("persist refreshed tokens failed", slog.String("user_id", userID), slog.Any("err", err))
	}
	slog.Info("google token refreshed", slog.String("user_id", userID), slog.Time("expiry", newTok.Expiry))
	return newTok, nil
}

func (s *Service) options(hc *http.Client) []option.ClientOption {
	opts := []option.ClientOption{option.WithHTTPClient(hc)}
	if s.APIBase != "" {
		opts = append(opts, option.WithEndpoint(s.APIBase))
	}
	return opts
}

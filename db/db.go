// Package db provides database connection helpers, schema migration, and small data access helpers.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'

	"github.com/atlist/relay/crypto"
)

var (
	// encryptor is the global encryptor instance for refresh-token encryption
	encryptor     crypto.Encryptor
	encryptorOnce sync.Once
	encryptorErr  error
)

// initEncryptor initializes the global encryptor from ENCRYPTION_KEY environment variable.
// If ENCRYPTION_KEY is not set, encryption is disabled (token_encryption_version = 0).
// This is called lazily on first use.
func initEncryptor() {
	encryptorOnce.Do(func() {
		key := os.Getenv("ENCRYPTION_KEY")
		if key == "" {
			slog.Warn("ENCRYPTION_KEY not set, refresh tokens will be stored in plaintext (not recommended for production)", slog.String("component", "db_encryption"))
			return
		}

		enc, err := crypto.NewAESEncryptor(key)
		if err != nil {
			encryptorErr = fmt.Errorf("failed to initialize encryption: %w", err)
			slog.Error("encryption initialization failed", slog.Any("error", encryptorErr), slog.String("component", "db_encryption"))
			return
		}

		encryptor = enc
		slog.Info("refresh token encryption enabled (AES-256-GCM)", slog.String("component", "db_encryption"))
	})
}

// getEncryptor returns the global encryptor instance, initializing it if necessary.
// Returns nil if encryption is not configured (ENCRYPTION_KEY not set).
func getEncryptor() (crypto.Encryptor, error) {
	initEncryptor()
	if encryptorErr != nil {
		return nil, encryptorErr
	}
	return encryptor, nil
}

// Connect opens a Postgres connection for the given DSN. The DSN comes from
// config so there is exactly one place that defaults it.
func Connect(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty db dsn")
	}
	return sql.Open("pgx", dsn)
}

// UserRecord is the persisted shape of a user row, tokens in the clear.
// Refresh tokens are encrypted transparently on write and decrypted on read
// when ENCRYPTION_KEY is configured.
type UserRecord struct {
	ID                  string
	GoogleUserID        string
	Email               string
	Name                string
	AvatarURL           string
	YouTubeChannelID    string
	YouTubeChannelTitle string
	AccessToken         string
	RefreshToken        string
	TokenExpiry         time.Time
}

// UpsertUser inserts or updates a user row keyed by google_user_id and returns
// the internal user id. A new id is generated on first sign-in. An empty
// refresh token on update preserves the stored one (Google usually omits the
// refresh token on repeat consent).
func UpsertUser(ctx context.Context, dbx *sql.DB, u *UserRecord) (string, error) {
	enc, err := getEncryptor()
	if err != nil {
		return "", fmt.Errorf("get encryptor: %w", err)
	}

	encVersion := 0
	refreshToStore := u.RefreshToken
	if enc != nil && u.RefreshToken != "" {
		encVersion = 1
		encRefresh, err := crypto.EncryptString(enc, u.RefreshToken)
		if err != nil {
			return "", fmt.Errorf("encrypt refresh token: %w", err)
		}
		refreshToStore = encRefresh
	}

	var id string
	err = dbx.QueryRowContext(ctx, `SELECT id FROM users WHERE google_user_id=$1`, u.GoogleUserID).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		id = uuid.New().String()
		_, err = dbx.ExecContext(ctx, `INSERT INTO users
			(id, google_user_id, email, name, avatar_url, youtube_channel_id, youtube_channel_title,
			 google_access_token, google_refresh_token, google_token_expiry, token_encryption_version, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW(),NOW())`,
			id, u.GoogleUserID, u.Email, u.Name, u.AvatarURL, u.YouTubeChannelID, u.YouTubeChannelTitle,
			u.AccessToken, refreshToStore, u.TokenExpiry, encVersion)
		if err != nil {
			return "", fmt.Errorf("insert user: %w", err)
		}
	case err != nil:
		return "", fmt.Errorf("find user: %w", err)
	default:
		q := `UPDATE users SET email=$1, name=$2, avatar_url=$3, youtube_channel_id=$4, youtube_channel_title=$5,
			google_access_token=$6, google_token_expiry=$7, updated_at=NOW()`
		args := []any{u.Email, u.Name, u.AvatarURL, u.YouTubeChannelID, u.YouTubeChannelTitle, u.AccessToken, u.TokenExpiry}
		if u.RefreshToken != "" {
			q += `, google_refresh_token=$8, token_encryption_version=$9 WHERE id=$10`
			args = append(args, refreshToStore, encVersion, id)
		} else {
			q += ` WHERE id=$8`
			args = append(args, id)
		}
		if _, err := dbx.ExecContext(ctx, q, args...); err != nil {
			return "", fmt.Errorf("update user: %w", err)
		}
	}
	return id, nil
}

// GetUserTokens retrieves the stored Google tokens for a user; returns zero
// values if the user does not exist. The refresh token is decrypted when the
// row was written with encryption enabled.
func GetUserTokens(ctx context.Context, dbx *sql.DB, userID string) (access, refresh string, expiry time.Time, err error) {
	var encVersion int
	var exp sql.NullTime
	row := dbx.QueryRowContext(ctx,
		`SELECT google_access_token, google_refresh_token, google_token_expiry, COALESCE(token_encryption_version, 0)
		 FROM users WHERE id = $1`, userID)
	err = row.Scan(&access, &refresh, &exp, &encVersion)
	if err == sql.ErrNoRows {
		return "", "", time.Time{}, nil
	}
	if err != nil {
		return "", "", time.Time{}, err
	}
	if exp.Valid {
		expiry = exp.Time
	}

	if encVersion == 1 && refresh != "" {
		enc, encErr := getEncryptor()
		if encErr != nil {
			return "", "", time.Time{}, fmt.Errorf("get encryptor for decryption: %w", encErr)
		}
		if enc == nil {
			return "", "", time.Time{}, fmt.Errorf("refresh token is encrypted but ENCRYPTION_KEY not configured")
		}
		decRefresh, decErr := crypto.DecryptString(enc, refresh)
		if decErr != nil {
			return "", "", time.Time{}, fmt.Errorf("decrypt refresh token: %w", decErr)
		}
		refresh = decRefresh
	}

	return access, refresh, expiry, nil
}

// UpdateUserTokens persists rotated tokens after a refresh. An empty refresh
// token preserves the stored one.
func UpdateUserTokens(ctx context.Context, dbx *sql.DB, userID, access, refresh string, expiry time.Time) error {
	if refresh == "" {
		_, err := dbx.ExecContext(ctx,
			`UPDATE users SET google_access_token=$1, google_token_expiry=$2, updated_at=NOW() WHERE id=$3`,
			access, expiry, userID)
		return err
	}

	enc, err := getEncryptor()
	if err != nil {
		return fmt.Errorf("get encryptor: %w", err)
	}
	encVersion := 0
	refreshToStore := refresh
	if enc != nil {
		encVersion = 1
		refreshToStore, err = crypto.EncryptString(enc, refresh)
		if err != nil {
			return fmt.Errorf("encrypt refresh token: %w", err)
		}
	}
	_, err = dbx.ExecContext(ctx,
		`UPDATE users SET google_access_token=$1, google_refresh_token=$2, google_token_expiry=$3, token_encryption_version=$4, updated_at=NOW() WHERE id=$5`,
		access, refreshToStore, expiry, encVersion, userID)
	return err
}

// UserProfile is the non-secret slice of a user row served by the API.
type UserProfile struct {
	ID                  string
	Email               string
	Name                string
	AvatarURL           string
	YouTubeChannelTitle string
	DiscordWebhookURL   string
	CreatedAt           time.Time
}

// GetUserProfile reads the profile fields for a user; returns sql.ErrNoRows if absent.
func GetUserProfile(ctx context.Context, dbx *sql.DB, userID string) (*UserProfile, error) {
	var p UserProfile
	var email, name, avatar, channel, webhook sql.NullString
	err := dbx.QueryRowContext(ctx,
		`SELECT id, email, name, avatar_url, youtube_channel_title, discord_webhook_url, created_at
		 FROM users WHERE id = $1`, userID).
		Scan(&p.ID, &email, &name, &avatar, &channel, &webhook, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.Email = email.String
	p.Name = name.String
	p.AvatarURL = avatar.String
	p.YouTubeChannelTitle = channel.String
	p.DiscordWebhookURL = webhook.String
	return &p, nil
}

// SetWebhookURL stores (or clears, with empty string) the user's Discord webhook URL.
func SetWebhookURL(ctx context.Context, dbx *sql.DB, userID, url string) error {
	res, err := dbx.ExecContext(ctx,
		`UPDATE users SET discord_webhook_url=NULLIF($1,''), updated_at=NOW() WHERE id=$2`, url, userID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetWebhookURL returns the user's Discord webhook URL, or empty if unset/unknown user.
func GetWebhookURL(ctx context.Context, dbx *sql.DB, userID string) (string, error) {
	var url sql.NullString
	err := dbx.QueryRowContext(ctx, `SELECT discord_webhook_url FROM users WHERE id=$1`, userID).Scan(&url)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return url.String, nil
}

// UserStoreAdapter implements googleauth.UserStore and reuses the helpers here.
type UserStoreAdapter struct{ DB *sql.DB }

func (a *UserStoreAdapter) UpsertUser(ctx context.Context, googleUserID, email, name, avatarURL, channelID, channelTitle, accessToken, refreshToken string, expiry time.Time) (string, error) {
	return UpsertUser(ctx, a.DB, &UserRecord{
		GoogleUserID:        googleUserID,
		Email:               email,
		Name:                name,
		AvatarURL:           avatarURL,
		YouTubeChannelID:    channelID,
		YouTubeChannelTitle: channelTitle,
		AccessToken:         accessToken,
		RefreshToken:        refreshToken,
		TokenExpiry:         expiry,
	})
}

func (a *UserStoreAdapter) GetUserTokens(ctx context.Context, userID string) (string, string, time.Time, error) {
	return GetUserTokens(ctx, a.DB, userID)
}

func (a *UserStoreAdapter) UpdateUserTokens(ctx context.Context, userID, access, refresh string, expiry time.Time) error {
	return UpdateUserTokens(ctx, a.DB, userID, access, refresh, expiry)
}

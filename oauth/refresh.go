// Package oauth provides background refresh scheduling for per-user Google
// tokens persisted in the users table. It performs jittered checks and
// refreshes every user whose access token expires within a configured window.
package oauth

import (
	"context"
	"database/sql"
	"log/slog"
	"math/rand"
	"time"

	"github.com/atlist/relay/telemetry"
)

// Refresher performs the provider-specific refresh for one user.
// Implemented by googleauth.Service.
type Refresher interface {
	Refresh(ctx context.Context, userID string) error
}

// dueUsers returns ids of users holding a refresh token whose access token
// expires within window.
func dueUsers(ctx context.Context, db *sql.DB, window time.Duration) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT id FROM users
        WHERE google_refresh_token IS NOT NULL AND google_refresh_token <> ''
          AND google_token_expiry IS NOT NULL AND google_token_expiry <= $1`,
		time.Now().Add(window))
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// StartRefresher launches a goroutine that periodically refreshes near-expiry
// Google tokens so long-running poll sessions rarely hit a 401 mid-cycle.
// interval: how often to wake up and check.
// window: refresh when remaining lifetime <= window.
func StartRefresher(ctx context.Context, db *sql.DB, svc Refresher, interval, window time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	telemetry.Init()
	// Randomize initial delay to spread load across instances.
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
	initialJitter := time.Duration(rand.Int63n(int64(interval / 2)))
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(initialJitter):
		}
		for {
			ids, err := dueUsers(ctx, db, window)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("token refresh scan failed", slog.Any("err", err))
			}
			for _, id := range ids {
				if ctx.Err() != nil {
					return
				}
				ctx2, cancel := context.WithTimeout(ctx, 15*time.Second)
				err := svc.Refresh(ctx2, id)
				cancel()
				if err != nil {
					telemetry.TokenRefreshFailures.Inc()
					slog.Warn("token refresh failed", slog.String("user_id", id), slog.Any("err", err))
					continue
				}
				slog.Info("token refreshed", slog.String("user_id", id))
			}

			// Per-iteration jitter (±20% of interval) for scheduling diversity.
			jitterRange := int64(interval / 5)
			//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
			jitter := time.Duration(rand.Int63n(jitterRange*2) - jitterRange)
			nextSleep := interval + jitter
			if nextSleep < interval/2 {
				nextSleep = interval / 2
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(nextSleep):
			}
		}
	}()
}

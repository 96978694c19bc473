package monitor

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Record is the durable monitor row. The row outlives the in-memory session
// and serves as history once the monitor stops.
type Record struct {
	ID           string
	OwnerID      string
	VideoID      string
	LiveChatID   string
	PageToken    string
	Active       bool
	StartedAt    time.Time
	StoppedAt    *time.Time
	LastPolledAt *time.Time
	LastError    string
}

// Store persists monitor records.
type Store interface {
	Insert(ctx context.Context, rec *Record) error
	ListActiveByOwner(ctx context.Context, ownerID string) ([]Record, error)
	ListActive(ctx context.Context) ([]Record, error)
	UpdateCursor(ctx context.Context, id, pageToken string, polledAt time.Time) error
	// MarkInactive deactivates the row if it is still active. A non-empty
	// ownerID restricts the update to that owner's rows. Returns the number
	// of rows changed (0 means nothing was active).
	MarkInactive(ctx context.Context, id, ownerID, reason string, stoppedAt time.Time) (int64, error)
	// GetWebhookURL returns the owner's relay destination, empty when unset.
	GetWebhookURL(ctx context.Context, ownerID string) (string, error)
}

// SQLStore implements Store over the active_monitors and users tables.
type SQLStore struct {
	DB *sql.DB
}

const recordColumns = `id, user_id, video_id, live_chat_id, next_page_token, is_active, started_at, stopped_at, last_polled_at, last_error_message`

func (s *SQLStore) Insert(ctx context.Context, rec *Record) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO active_monitors (id, user_id, video_id, live_chat_id, next_page_token, is_active, started_at, created_at)
        VALUES ($1,$2,$3,$4,NULLIF($5,''),$6,$7,NOW())`,
		rec.ID, rec.OwnerID, rec.VideoID, rec.LiveChatID, rec.PageToken, rec.Active, rec.StartedAt)
	if err != nil {
		return fmt.Errorf("insert monitor %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLStore) ListActiveByOwner(ctx context.Context, ownerID string) ([]Record, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+recordColumns+` FROM active_monitors WHERE user_id=$1 AND is_active=TRUE ORDER BY started_at`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list active monitors for %s: %w", ownerID, err)
	}
	return scanRecords(rows)
}

func (s *SQLStore) ListActive(ctx context.Context) ([]Record, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+recordColumns+` FROM active_monitors WHERE is_active=TRUE ORDER BY started_at`)
	if err != nil {
		return nil, fmt.Errorf("list active monitors: %w", err)
	}
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close() //nolint:errcheck
	var out []Record
	for rows.Next() {
		var rec Record
		var token, lastErr sql.NullString
		var started, stopped, polled sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.OwnerID, &rec.VideoID, &rec.LiveChatID, &token, &rec.Active, &started, &stopped, &polled, &lastErr); err != nil {
			return nil, fmt.Errorf("scan monitor row: %w", err)
		}
		rec.PageToken = token.String
		rec.LastError = lastErr.String
		if started.Valid {
			rec.StartedAt = started.Time
		}
		if stopped.Valid {
			t := stopped.Time
			rec.StoppedAt = &t
		}
		if polled.Valid {
			t := polled.Time
			rec.LastPolledAt = &t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdateCursor(ctx context.Context, id, pageToken string, polledAt time.Time) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE active_monitors SET next_page_token=NULLIF($2,''), last_polled_at=$3, updated_at=NOW() WHERE id=$1`,
		id, pageToken, polledAt)
	if err != nil {
		return fmt.Errorf("update cursor for monitor %s: %w", id, err)
	}
	return nil
}

func (s *SQLStore) MarkInactive(ctx context.Context, id, ownerID, reason string, stoppedAt time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `UPDATE active_monitors SET is_active=FALSE, stopped_at=$3, last_error_message=NULLIF($4,''), updated_at=NOW()
        WHERE id=$1 AND ($2='' OR user_id=$2) AND is_active=TRUE`,
		id, ownerID, stoppedAt, reason)
	if err != nil {
		return 0, fmt.Errorf("deactivate monitor %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deactivate monitor %s: %w", id, err)
	}
	return n, nil
}

func (s *SQLStore) GetWebhookURL(ctx context.Context, ownerID string) (string, error) {
	var url sql.NullString
	err := s.DB.QueryRowContext(ctx, `SELECT discord_webhook_url FROM users WHERE id=$1`, ownerID).Scan(&url)
	if err != nil {
		return "", fmt.Errorf("load webhook url for %s: %w", ownerID, err)
	}
	return url.String, nil
}

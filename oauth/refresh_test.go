package oauth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/atlist/relay/testutil"
)

type recordingRefresher struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingRefresher) Refresh(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, userID)
	return nil
}

func (r *recordingRefresher) refreshed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func TestDueUsers(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()

	insert := func(refresh string, expiry any) string {
		id := uuid.NewString()
		_, err := database.ExecContext(ctx,
			`INSERT INTO users (id, google_user_id, google_refresh_token, google_token_expiry, created_at) VALUES ($1,$2,NULLIF($3,''),$4,NOW())`,
			id, "g-"+id, refresh, expiry)
		if err != nil {
			t.Fatalf("seed user: %v", err)
		}
		t.Cleanup(func() { _, _ = database.Exec(`DELETE FROM users WHERE id=$1`, id) })
		return id
	}

	due := insert("enc-refresh", time.Now().Add(5*time.Minute))
	notDue := insert("enc-refresh", time.Now().Add(2*time.Hour))
	noRefresh := insert("", time.Now().Add(5*time.Minute))

	ids, err := dueUsers(ctx, database, 15*time.Minute)
	if err != nil {
		t.Fatalf("due users: %v", err)
	}
	got := map[string]bool{}
	for _, id := range ids {
		got[id] = true
	}
	if !got[due] {
		t.Error("near-expiry user not selected")
	}
	if got[notDue] {
		t.Error("far-expiry user selected")
	}
	if got[noRefresh] {
		t.Error("user without refresh token selected")
	}
}

func TestStartRefresherRefreshesDueUsers(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id := uuid.NewString()
	_, err := database.ExecContext(ctx,
		`INSERT INTO users (id, google_user_id, google_refresh_token, google_token_expiry, created_at) VALUES ($1,$2,$3,$4,NOW())`,
		id, "g-"+id, "enc-refresh", time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	t.Cleanup(func() { _, _ = database.Exec(`DELETE FROM users WHERE id=$1`, id) })

	rec := &recordingRefresher{}
	StartRefresher(ctx, database, rec, 20*time.Millisecond, 15*time.Minute)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, got := range rec.refreshed() {
			if got == id {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("refresher never touched the due user")
}

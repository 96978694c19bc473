package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/atlist/relay/telemetry"
)

// Manager exposes the public monitor operations: start, stop, status,
// startup recovery, and shutdown. It mediates between the durable store and
// the in-memory registry, and owns every poll loop goroutine.
type Manager struct {
	store     Store
	creds     CredentialProvider
	source    ChatSource
	sink      Sink
	intervals Intervals

	reg *registry
	// startMu serializes start's clear-existing-then-insert sequence so a
	// racing start for the same owner cannot interleave.
	startMu sync.Mutex
	wg      sync.WaitGroup
}

func New(store Store, creds CredentialProvider, source ChatSource, sink Sink, intervals Intervals) *Manager {
	telemetry.Init()
	return &Manager{
		store:     store,
		creds:     creds,
		source:    source,
		sink:      sink,
		intervals: intervals,
		reg:       newRegistry(),
	}
}

// Start begins monitoring videoID's live chat for ownerID. Any active
// monitors the owner already has are stopped first, one at a time, so at
// most one active monitor exists per owner. Returns the new session id; the
// first page fetch happens asynchronously after return.
func (m *Manager) Start(ctx context.Context, ownerID, videoID string) (string, error) {
	if ownerID == "" {
		return "", fmt.Errorf("owner id empty")
	}
	if videoID == "" {
		return "", fmt.Errorf("video id empty")
	}
	ctx, span := telemetry.StartSpan(ctx, "monitor", "monitor.start",
		attribute.String("owner_id", ownerID), attribute.String("video_id", videoID))
	defer span.End()

	m.startMu.Lock()
	defer m.startMu.Unlock()

	existing, err := m.store.ListActiveByOwner(ctx, ownerID)
	if err != nil {
		telemetry.RecordError(span, err)
		return "", err
	}
	for _, rec := range existing {
		slog.Info("stopping previous monitor before start",
			slog.String("owner_id", ownerID), slog.String("session_id", rec.ID))
		if _, err := m.Stop(ctx, ownerID, "", rec.ID); err != nil {
			telemetry.RecordError(span, err)
			return "", fmt.Errorf("stop previous monitor %s: %w", rec.ID, err)
		}
	}

	hc, err := m.creds.ClientFor(ctx, ownerID)
	if err != nil {
		telemetry.RecordError(span, err)
		return "", fmt.Errorf("acquire credential: %w", err)
	}
	chatID, err := m.source.ResolveLiveChatID(ctx, hc, videoID)
	if err != nil {
		telemetry.RecordError(span, err)
		return "", fmt.Errorf("resolve live chat: %w", err)
	}

	rec := &Record{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		VideoID:    videoID,
		LiveChatID: chatID,
		Active:     true,
		StartedAt:  time.Now().UTC(),
	}
	if err := m.store.Insert(ctx, rec); err != nil {
		telemetry.RecordError(span, err)
		return "", err
	}

	m.launch(rec, hc)
	telemetry.SessionsStarted.Inc()
	telemetry.SetSpanSuccess(span)
	slog.Info("monitor started", slog.String("owner_id", ownerID),
		slog.String("video_id", videoID), slog.String("session_id", rec.ID))
	return rec.ID, nil
}

// launch registers the in-memory session and starts its poll loop. The loop
// gets its own lifetime, detached from any request context, so it only ends
// on stop, terminal failure, or Shutdown.
func (m *Manager) launch(rec *Record, hc *http.Client) {
	sctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:         rec.ID,
		ownerID:    rec.OwnerID,
		videoID:    rec.VideoID,
		liveChatID: rec.LiveChatID,
		cursor:     rec.PageToken,
		active:     true,
		client:     hc,
		cancel:     cancel,
	}
	m.reg.put(s)
	telemetry.SetSessionsActive(m.reg.len())
	m.wg.Add(1)
	go m.runSession(sctx, s)
}

// Stop halts a monitor. The session id wins when given; otherwise the
// owner's active rows are searched, narrowed by videoID when non-empty. The
// durable row is always deactivated even when no in-memory session exists,
// which covers monitors orphaned by a restart. Returns ErrNoActiveMonitor
// when nothing matched, making repeated stops detectable.
func (m *Manager) Stop(ctx context.Context, ownerID, videoID, sessionID string) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "monitor", "monitor.stop",
		attribute.String("owner_id", ownerID))
	defer span.End()

	id := sessionID
	if id == "" {
		recs, err := m.store.ListActiveByOwner(ctx, ownerID)
		if err != nil {
			telemetry.RecordError(span, err)
			return false, err
		}
		for _, r := range recs {
			if videoID == "" || r.VideoID == videoID {
				id = r.ID
				break
			}
		}
	}
	if id == "" {
		return false, ErrNoActiveMonitor
	}

	// Flip the in-memory flag and cancel the pending timer first; an
	// in-flight fetch finishes, sees the flag, and exits without rearming.
	// Only the session's owner may kill the loop, mirroring the store guard,
	// so a guessed session id from another user is a no-op.
	if s, ok := m.reg.get(id); ok && (ownerID == "" || s.ownerID == ownerID) {
		s.markInactive()
		s.cancel()
	}

	n, err := m.store.MarkInactive(ctx, id, ownerID, "", time.Now().UTC())
	if err != nil {
		telemetry.RecordError(span, err)
		return false, err
	}
	if n == 0 {
		return false, ErrNoActiveMonitor
	}
	telemetry.SetSpanSuccess(span)
	slog.Info("monitor stopped", slog.String("owner_id", ownerID), slog.String("session_id", id))
	return true, nil
}

// Status returns the owner's active monitor from the durable store, or nil
// when none is active. The registry is deliberately not consulted so status
// stays truthful across restarts.
func (m *Manager) Status(ctx context.Context, ownerID string) (*Record, error) {
	recs, err := m.store.ListActiveByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

// Shutdown cancels every running session and waits for the loops to exit.
// Durable rows stay active so the next process recovers them.
func (m *Manager) Shutdown() {
	for _, s := range m.reg.all() {
		s.cancel()
	}
	m.wg.Wait()
}

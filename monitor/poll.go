package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/atlist/relay/telemetry"
)

// terminalDelay signals runSession to exit without rearming.
const terminalDelay = time.Duration(-1)

// runSession drives one monitor until it goes inactive. Iterations are
// strictly sequential within a session: the next fetch never starts before
// the previous relay and persist steps finish.
func (m *Manager) runSession(ctx context.Context, s *session) {
	defer m.wg.Done()
	defer func() {
		m.reg.remove(s.id)
		telemetry.SetSessionsActive(m.reg.len())
	}()

	log := slog.With(
		slog.String("session_id", s.id),
		slog.String("owner_id", s.ownerID),
		slog.String("video_id", s.videoID),
	)
	log.Info("poll loop started")

	var delay time.Duration
	for {
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				log.Info("poll loop cancelled")
				return
			case <-timer.C:
			}
		}
		if ctx.Err() != nil || !s.isActive() {
			log.Info("poll loop exiting, session inactive")
			return
		}
		delay = m.pollOnce(ctx, s, log)
		if delay == terminalDelay {
			return
		}
	}
}

// pollOnce runs one fetch-relay-persist cycle and returns the delay before
// the next one, or terminalDelay when the session must end.
func (m *Manager) pollOnce(ctx context.Context, s *session, log *slog.Logger) time.Duration {
	telemetry.PollsTotal.Inc()
	start := time.Now()
	page, err := m.source.FetchMessages(ctx, s.getClient(), s.liveChatID, s.getCursor())
	telemetry.PollDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return m.handlePollError(ctx, s, err, log)
	}

	if len(page.Messages) > 0 {
		dest := m.destinationFor(ctx, s, log)
		for _, msg := range page.Messages {
			if err := m.sink.Send(ctx, dest, msg, s.videoID); err != nil {
				telemetry.DeliveryFailures.Inc()
				log.Warn("message delivery failed", slog.String("message_id", msg.ID), slog.Any("err", err))
				continue
			}
			telemetry.MessagesRelayed.Inc()
		}
	}

	s.advanceCursor(page.NextPageToken)
	// The in-memory cursor stays authoritative when persistence fails; the
	// next successful cycle writes it again.
	if err := m.store.UpdateCursor(ctx, s.id, s.getCursor(), time.Now().UTC()); err != nil {
		log.Warn("cursor persist failed", slog.Any("err", err))
	}

	if len(page.Messages) == 0 {
		return m.intervals.Empty
	}
	if page.PollingInterval > 0 {
		return page.PollingInterval
	}
	return m.intervals.Default
}

// destinationFor resolves the owner's webhook URL once and caches it on the
// session. A store failure leaves the cache unset so the next batch retries.
func (m *Manager) destinationFor(ctx context.Context, s *session, log *slog.Logger) string {
	if dest, ok := s.destination(); ok {
		return dest
	}
	dest, err := m.store.GetWebhookURL(ctx, s.ownerID)
	if err != nil {
		log.Warn("webhook url lookup failed", slog.Any("err", err))
		return ""
	}
	s.setDestination(dest)
	if dest == "" {
		log.Info("no webhook configured, messages will be dropped")
	}
	return dest
}

func (m *Manager) handlePollError(ctx context.Context, s *session, err error, log *slog.Logger) time.Duration {
	if ctx.Err() != nil {
		return terminalDelay
	}
	v := classify(err)
	telemetry.IncPollFailure(v.String())
	switch v {
	case verdictTerminal:
		log.Info("live chat over, stopping session", slog.Any("err", err))
		m.deactivate(ctx, s, err.Error(), log)
		return terminalDelay

	case verdictReauth:
		log.Warn("credential rejected, attempting refresh", slog.Any("err", err))
		if rerr := m.creds.Refresh(ctx, s.ownerID); rerr != nil {
			log.Warn("re-authentication failed, stopping session", slog.Any("err", rerr))
			m.deactivate(ctx, s, "Failed to re-authenticate", log)
			return terminalDelay
		}
		hc, cerr := m.creds.ClientFor(ctx, s.ownerID)
		if cerr != nil {
			log.Warn("credential unavailable after refresh, stopping session", slog.Any("err", cerr))
			m.deactivate(ctx, s, "Failed to re-authenticate", log)
			return terminalDelay
		}
		s.setClient(hc)
		return m.intervals.Reauth

	default:
		log.Warn("poll failed, will retry", slog.Any("err", err))
		return m.intervals.Error
	}
}

// deactivate is the loop's self-stop: flip the flag and persist the outcome.
func (m *Manager) deactivate(ctx context.Context, s *session, reason string, log *slog.Logger) {
	s.markInactive()
	if _, err := m.store.MarkInactive(ctx, s.id, s.ownerID, reason, time.Now().UTC()); err != nil {
		log.Warn("deactivate persist failed", slog.Any("err", err))
	}
}

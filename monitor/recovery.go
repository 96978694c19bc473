package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/atlist/relay/telemetry"
)

// RecoverActiveSessions reattaches monitors left active by a previous
// process. Run once per start, after the service is ready. Rows already in
// the registry are skipped; rows whose owner has no usable credential are
// marked inactive with a diagnostic and not retried.
func (m *Manager) RecoverActiveSessions(ctx context.Context) error {
	recs, err := m.store.ListActive(ctx)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		slog.Info("startup recovery: no active monitors to resume")
		return nil
	}
	slog.Info("startup recovery: resuming monitors", slog.Int("count", len(recs)))

	for _, rec := range recs {
		if _, ok := m.reg.get(rec.ID); ok {
			continue
		}
		log := slog.With(slog.String("session_id", rec.ID), slog.String("owner_id", rec.OwnerID))

		hc, err := m.creds.ClientFor(ctx, rec.OwnerID)
		if err != nil {
			// A canceled context means the process is shutting down, not
			// that the owner's credential is bad. Leave the rows active for
			// the next start.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn("startup recovery: credential unavailable, deactivating monitor", slog.Any("err", err))
			if _, merr := m.store.MarkInactive(ctx, rec.ID, rec.OwnerID, "Failed to re-authenticate on startup", time.Now().UTC()); merr != nil {
				log.Warn("startup recovery: deactivate persist failed", slog.Any("err", merr))
			}
			continue
		}

		rec := rec
		m.launch(&rec, hc)
		telemetry.SessionsRecovered.Inc()
		log.Info("startup recovery: monitor resumed", slog.String("cursor", rec.PageToken))
	}
	return nil
}

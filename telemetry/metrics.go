// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	PollsTotal           prometheus.Counter
	PollFailures         *prometheus.CounterVec // label: class (transient|reauth|terminal)
	MessagesRelayed      prometheus.Counter
	DeliveryFailures     prometheus.Counter
	SessionsStarted      prometheus.Counter
	SessionsRecovered    prometheus.Counter
	TokenRefreshFailures prometheus.Counter

	// Histograms (seconds)
	PollDuration prometheus.Observer

	// Gauges
	SessionsActiveGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		PollsTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_polls_total", Help: "Number of chat poll cycles executed"})
		PollFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "relay_poll_failures_total", Help: "Number of failed poll cycles by failure class"}, []string{"class"})
		MessagesRelayed = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_messages_relayed_total", Help: "Number of chat messages delivered downstream"})
		DeliveryFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_delivery_failures_total", Help: "Number of downstream delivery failures"})
		SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_sessions_started_total", Help: "Number of monitor sessions started"})
		SessionsRecovered = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_sessions_recovered_total", Help: "Number of monitor sessions reattached at startup"})
		TokenRefreshFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_token_refresh_failures_total", Help: "Number of background Google token refresh failures"})
		PollDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "relay_poll_duration_seconds", Help: "Poll cycle duration seconds", Buckets: prometheus.DefBuckets})
		SessionsActiveGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "relay_sessions_active", Help: "Current number of in-process monitor sessions"})
	})
}

// SetSessionsActive records the current in-memory session count.
func SetSessionsActive(n int) {
	if SessionsActiveGauge != nil {
		SessionsActiveGauge.Set(float64(n))
	}
}

// IncPollFailure increments the poll failure counter for a failure class.
func IncPollFailure(class string) {
	if PollFailures != nil {
		PollFailures.WithLabelValues(class).Inc()
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}

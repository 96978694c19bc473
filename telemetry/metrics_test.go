package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestInitIdempotent(t *testing.T) {
	Init()
	Init() // second call must not re-register (would panic)

	if PollsTotal == nil {
		t.Error("PollsTotal not initialized")
	}
	if PollFailures == nil {
		t.Error("PollFailures not initialized")
	}
	if MessagesRelayed == nil {
		t.Error("MessagesRelayed not initialized")
	}
	if SessionsActiveGauge == nil {
		t.Error("SessionsActiveGauge not initialized")
	}
	if PollDuration == nil {
		t.Error("PollDuration histogram not initialized")
	}
}

func TestSessionGaugeAndFailureClasses(t *testing.T) {
	Init()

	for _, n := range []int{0, 3, 1} {
		SetSessionsActive(n)
	}
	for _, class := range []string{"transient", "reauth", "terminal"} {
		IncPollFailure(class)
	}
}

func TestTimeFuncRecordsObservation(t *testing.T) {
	Init()

	testHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_duration_seconds",
		Help:    "Test duration",
		Buckets: prometheus.DefBuckets,
	})
	prometheus.MustRegister(testHistogram)
	defer prometheus.Unregister(testHistogram)

	executed := false
	duration := TimeFunc(testHistogram, func() {
		time.Sleep(10 * time.Millisecond)
		executed = true
	})

	if !executed {
		t.Error("TimeFunc did not execute provided function")
	}
	if duration < 10*time.Millisecond {
		t.Errorf("TimeFunc duration = %v, want >= 10ms", duration)
	}

	metric := &dto.Metric{}
	if err := testHistogram.Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Histogram == nil || *metric.Histogram.SampleCount == 0 {
		t.Error("TimeFunc did not record observation in histogram")
	}
}

func TestCorrelationRoundTrip(t *testing.T) {
	ctx := context.Background()
	if got := GetCorrelation(ctx); got != "" {
		t.Errorf("empty context correlation = %q", got)
	}
	ctx = WithCorrelation(ctx, "corr-1")
	if got := GetCorrelation(ctx); got != "corr-1" {
		t.Errorf("correlation = %q, want corr-1", got)
	}
	if l := LoggerWithCorr(ctx); l == nil {
		t.Error("LoggerWithCorr returned nil")
	}
}

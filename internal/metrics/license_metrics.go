package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rcourtman/license-watcher/internal/license"
)

var (
	// Verdict of the last completed check
	LicenseActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "license_watcher_active",
			Help: "1 when the last completed license check allows the product to run",
		},
	)

	LicenseState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "license_watcher_state",
			Help: "1 for the license state reported by the last completed check, 0 for the others",
		},
		[]string{"state"},
	)

	// Check execution metrics
	ChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "license_watcher_checks_total",
			Help: "Total number of completed license checks by resulting state",
		},
		[]string{"state"},
	)

	CheckDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "license_watcher_check_duration_seconds",
			Help:    "Duration of completed license checks, including retry pauses",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 3, 6, 10, 30},
		},
	)

	SecretFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "license_watcher_secret_fetch_total",
			Help: "Total number of license secret fetch attempts by outcome",
		},
		[]string{"outcome"}, // found, empty, error
	)

	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "license_watcher_events_total",
			Help: "Total number of license diagnostic events by state and publish result",
		},
		[]string{"state", "result"},
	)
)

// Secret fetch outcomes
const (
	FetchFound = "found"
	FetchEmpty = "empty"
	FetchError = "error"
)

// RecordCheck records a completed check and its verdict.
func RecordCheck(state license.State, duration time.Duration) {
	ChecksTotal.WithLabelValues(state.String()).Inc()
	CheckDurationSeconds.Observe(duration.Seconds())

	for _, s := range license.States() {
		value := 0.0
		if s == state {
			value = 1
		}
		LicenseState.WithLabelValues(s.String()).Set(value)
	}

	if state.Entitled() {
		LicenseActive.Set(1)
	} else {
		LicenseActive.Set(0)
	}
}

// RecordSecretFetch records one secret store attempt.
func RecordSecretFetch(outcome string) {
	SecretFetchTotal.WithLabelValues(outcome).Inc()
}

// RecordEvent records a diagnostic event publish attempt.
func RecordEvent(state license.State, published bool) {
	result := "published"
	if !published {
		result = "failed"
	}
	EventsTotal.WithLabelValues(state.String(), result).Inc()
}

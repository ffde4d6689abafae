// Package watcher periodically re-reads the license secret, verifies and
// evaluates the license, and publishes the resulting entitlement flag.
package watcher

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	licerrors "github.com/rcourtman/license-watcher/internal/errors"
	"github.com/rcourtman/license-watcher/internal/license"
	"github.com/rcourtman/license-watcher/internal/metrics"
	"github.com/rcourtman/license-watcher/internal/schedule"
)

const (
	DefaultInterval      = 10 * time.Minute
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = 3 * time.Second
	DefaultStopTimeout   = 5 * time.Second

	// SecretKey is the secret entry holding the base64 encoded license.
	SecretKey = "license"
)

// SecretStore reads secrets. Values are base64 encoded.
type SecretStore interface {
	Get(ctx context.Context, namespace, name string) (map[string]string, error)
}

// EventPublisher delivers diagnostic events.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// Validator verifies license documents and evaluates them.
type Validator interface {
	Verify(armored []byte) (*license.License, error)
	State(l *license.License) license.State
	Feature() string
}

// Config controls a Watcher.
type Config struct {
	Namespace  string
	SecretName string
	// Regarding is the workload diagnostics are attached to.
	Regarding ObjectReference

	Interval      time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	StopTimeout   time.Duration
	Clock         clockwork.Clock
}

// Status is the outcome of the last completed check.
type Status struct {
	State     license.State    `json:"state"`
	Active    bool             `json:"active"`
	Reason    string           `json:"reason"`
	CheckedAt time.Time        `json:"checkedAt"`
	License   *license.License `json:"license,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// Watcher owns the active flag. Only its own checks write it.
type Watcher struct {
	cfg       Config
	secrets   SecretStore
	events    EventPublisher
	validator Validator
	clock     clockwork.Clock
	task      *schedule.IntervalTask

	// checkMu serializes checks from the schedule and from direct callers.
	checkMu sync.Mutex
	active  atomic.Bool
	status  atomic.Pointer[Status]
}

// New builds a stopped watcher. Zero config values take the package
// defaults.
func New(cfg Config, secrets SecretStore, events EventPublisher, validator Validator) *Watcher {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = DefaultRetryAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	w := &Watcher{
		cfg:       cfg,
		secrets:   secrets,
		events:    events,
		validator: validator,
		clock:     cfg.Clock,
	}
	w.task = schedule.NewIntervalTask("license_check", cfg.Interval, func(ctx context.Context) {
		w.Check(ctx, true)
	}, schedule.WithClock(cfg.Clock), schedule.WithStopTimeout(cfg.StopTimeout))
	return w
}

// Start runs a check immediately and then every interval after the previous
// check completes. It returns false if the watcher is already running.
func (w *Watcher) Start(ctx context.Context) bool {
	if !w.task.Start(ctx) {
		return false
	}
	log.Info().
		Str("component", "license_watcher").
		Str("namespace", w.cfg.Namespace).
		Str("secret", w.cfg.SecretName).
		Dur("interval", w.cfg.Interval).
		Msg("License watcher started")
	return true
}

// Stop cancels the schedule, interrupting a running check, and waits for it
// to finish up to the stop timeout. It is safe to call more than once.
func (w *Watcher) Stop() bool {
	clean := w.task.Stop()
	log.Info().
		Str("component", "license_watcher").
		Bool("clean", clean).
		Msg("License watcher stopped")
	return clean
}

// Running reports whether the schedule is active.
func (w *Watcher) Running() bool {
	return w.task.Running()
}

// IsActive reports the verdict of the last completed check. It never blocks.
func (w *Watcher) IsActive() bool {
	return w.active.Load()
}

// Status returns the last completed check, or false before the first one.
func (w *Watcher) Status() (Status, bool) {
	s := w.status.Load()
	if s == nil {
		return Status{}, false
	}
	return *s, true
}

// Check fetches, verifies and evaluates the license once and commits the
// verdict. With retryAllowed the secret is read up to RetryAttempts times,
// pausing RetryDelay between attempts. Cancelling ctx during a pause
// abandons the check without touching the verdict. Concurrent calls run one
// after another.
func (w *Watcher) Check(ctx context.Context, retryAllowed bool) {
	w.checkMu.Lock()
	defer w.checkMu.Unlock()

	started := w.clock.Now()

	value, err := w.fetch(ctx, retryAllowed)
	if err != nil {
		log.Warn().
			Str("component", "license_watcher").
			Err(err).
			Msg("License check interrupted")
		return
	}

	if value == "" {
		log.Error().
			Str("component", "license_watcher").
			Str("namespace", w.cfg.Namespace).
			Str("secret", w.cfg.SecretName).
			Msg("No license found in license secret")
		w.commit(ctx, license.StateMissing, nil, noLicenseDiagnostic, nil, started)
		return
	}

	l, err := w.verify(value)
	if err != nil {
		log.Error().
			Str("component", "license_watcher").
			Str("secret", w.cfg.SecretName).
			Err(err).
			Msg("License verification failed")
		w.commit(ctx, license.StateMissing, nil, verificationFailedDiagnostic, err, started)
		return
	}

	state := w.validator.State(l)
	w.commit(ctx, state, l, diagnosticFor(state, w.validator.Feature()), nil, started)
}

func (w *Watcher) fetch(ctx context.Context, retryAllowed bool) (string, error) {
	attempts := 1
	if retryAllowed {
		attempts = w.cfg.RetryAttempts
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := w.pause(ctx); err != nil {
				return "", err
			}
		}

		data, err := w.secrets.Get(ctx, w.cfg.Namespace, w.cfg.SecretName)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			metrics.RecordSecretFetch(metrics.FetchError)
			if !licerrors.IsRetryableError(err) {
				log.Error().
					Str("component", "license_watcher").
					Str("namespace", w.cfg.Namespace).
					Str("secret", w.cfg.SecretName).
					Int("attempt", attempt).
					Err(err).
					Msg("License secret is not readable, giving up")
				return "", nil
			}
			log.Debug().
				Str("component", "license_watcher").
				Int("attempt", attempt).
				Err(err).
				Msg("Failed to read license secret")
			continue
		}

		if value := strings.TrimSpace(data[SecretKey]); value != "" {
			metrics.RecordSecretFetch(metrics.FetchFound)
			return value, nil
		}
		metrics.RecordSecretFetch(metrics.FetchEmpty)
		log.Debug().
			Str("component", "license_watcher").
			Int("attempt", attempt).
			Msg("License secret is empty or missing")
	}
	return "", nil
}

func (w *Watcher) pause(ctx context.Context) error {
	timer := w.clock.NewTimer(w.cfg.RetryDelay)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}

func (w *Watcher) verify(value string) (*license.License, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(value), ""))
	if err != nil {
		return nil, licerrors.Decode("decode_license_secret", err)
	}
	return w.validator.Verify(raw)
}

func (w *Watcher) commit(ctx context.Context, state license.State, l *license.License, d diagnostic, cause error, started time.Time) {
	now := w.clock.Now()
	status := &Status{
		State:     state,
		Active:    state.Entitled(),
		Reason:    d.reason,
		CheckedAt: now,
		License:   l,
	}
	if cause != nil {
		status.Error = cause.Error()
	}

	w.active.Store(status.Active)
	w.status.Store(status)
	metrics.RecordCheck(state, now.Sub(started))

	log.WithLevel(d.level).
		Str("component", "license_watcher").
		Str("state", state.String()).
		Bool("active", status.Active).
		Msg(d.reason)

	if state == license.StateActive {
		return
	}

	event := newEvent(state, d, w.cfg.Regarding, now)
	if err := w.events.Publish(ctx, event); err != nil {
		metrics.RecordEvent(state, false)
		log.Warn().
			Str("component", "license_watcher").
			Str("state", state.String()).
			Err(err).
			Msg("Failed to publish license event")
		return
	}
	metrics.RecordEvent(state, true)
}

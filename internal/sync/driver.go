// Package sync drives sync attempts: push, then pull, then integrate.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cybertec-postgresql/sitesync/internal/pull"
	"github.com/cybertec-postgresql/sitesync/internal/push"
)

// ErrSyncInProgress is returned when a sync is requested while one is running
var ErrSyncInProgress = errors.New("sync already in progress")

// State of the driver
type State string

const (
	StateIdle        State = "idle"
	StatePushing     State = "pushing"
	StatePulling     State = "pulling"
	StateIntegrating State = "integrating"
	StateError       State = "error"
)

// Status is a snapshot of the driver. State stays StateError after a failed
// attempt until the next attempt starts; timer and manual triggers are
// accepted in StateError as in StateIdle. LastError is cleared by the next
// successful attempt.
type Status struct {
	State         State      `json:"state"`
	LastError     string     `json:"last_error,omitempty"`
	LastAttempt   *time.Time `json:"last_attempt,omitempty"`
	LastSuccess   *time.Time `json:"last_success,omitempty"`
	Pushed        int        `json:"pushed"`
	Pulled        int        `json:"pulled"`
	Integrated    int        `json:"integrated"`
	NotMatched    int        `json:"not_matched"`
	FailedRecords int        `json:"failed_records"`
	BlockedTables []string   `json:"blocked_tables,omitempty"`
	PushCursor    int64      `json:"push_cursor"`
	PullCursor    int64      `json:"pull_cursor"`
}

// StatusListener is called after every state change
type StatusListener func(Status)

// Pusher runs the push phase
type Pusher interface {
	Run(ctx context.Context) (push.Result, error)
}

// Puller runs the pull and integration phases
type Puller interface {
	Pull(ctx context.Context) (pull.Result, error)
	Integrate(ctx context.Context) (pull.IntegrationResult, error)
	Purge(ctx context.Context, retention time.Duration) (int64, error)
}

// Config controls scheduling
type Config struct {
	Interval        time.Duration
	BufferRetention time.Duration
}

// Driver runs one sync attempt at a time
type Driver struct {
	pusher    Pusher
	puller    Puller
	config    Config
	listeners []StatusListener

	syncing atomic.Bool
	trigger chan struct{}

	mu     sync.RWMutex
	status Status

	logger *logrus.Entry
}

// NewDriver creates a driver in the idle state
func NewDriver(pusher Pusher, puller Puller, config Config, listeners ...StatusListener) *Driver {
	return &Driver{
		pusher:    pusher,
		puller:    puller,
		config:    config,
		listeners: listeners,
		trigger:   make(chan struct{}, 1),
		status:    Status{State: StateIdle},
		logger:    logrus.WithField("component", "driver"),
	}
}

// Status returns the current status
func (d *Driver) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

// IsSyncing reports whether an attempt is running
func (d *Driver) IsSyncing() bool {
	return d.syncing.Load()
}

// SyncOnce runs a full attempt in the calling goroutine
func (d *Driver) SyncOnce(ctx context.Context) error {
	if !d.syncing.CompareAndSwap(false, true) {
		return ErrSyncInProgress
	}
	defer d.syncing.Store(false)
	return d.attempt(ctx)
}

// TriggerManualSync asks Run to start an attempt now. It returns false when
// an attempt is running or one is already queued.
func (d *Driver) TriggerManualSync() bool {
	if d.syncing.Load() {
		return false
	}
	select {
	case d.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Run syncs once immediately, then on every interval tick or manual trigger
func (d *Driver) Run(ctx context.Context) error {
	d.logger.WithField("interval", d.config.Interval).Info("Starting sync driver")

	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	d.runOnce(ctx, "startup")
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Sync driver stopped due to context cancellation")
			return ctx.Err()
		case <-ticker.C:
			d.runOnce(ctx, "timer")
		case <-d.trigger:
			d.runOnce(ctx, "manual")
		}
	}
}

func (d *Driver) runOnce(ctx context.Context, reason string) {
	err := d.SyncOnce(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrSyncInProgress):
		d.logger.WithField("reason", reason).Debug("Sync already running, trigger ignored")
	case ctx.Err() != nil:
		d.logger.WithField("reason", reason).Info("Sync attempt aborted")
	default:
		d.logger.WithError(err).WithField("reason", reason).Error("Sync attempt failed")
	}
}

func (d *Driver) attempt(ctx context.Context) error {
	started := time.Now()
	d.update(func(s *Status) {
		s.State = StatePushing
		s.LastAttempt = &started
	})

	pushRes, err := d.pusher.Run(ctx)
	d.update(func(s *Status) {
		s.Pushed = pushRes.Pushed
		s.PushCursor = pushRes.Cursor
	})
	if err != nil {
		return d.fail("push", err)
	}

	d.update(func(s *Status) { s.State = StatePulling })
	pullRes, err := d.puller.Pull(ctx)
	d.update(func(s *Status) {
		s.Pulled = pullRes.Records
		s.PullCursor = pullRes.Cursor
	})
	if err != nil {
		return d.fail("pull", err)
	}

	d.update(func(s *Status) { s.State = StateIntegrating })
	intRes, err := d.puller.Integrate(ctx)
	d.update(func(s *Status) {
		s.Integrated = intRes.Integrated
		s.NotMatched = intRes.NotMatched
		s.FailedRecords = intRes.Failed
		s.BlockedTables = intRes.Blocked
	})
	if err != nil {
		return d.fail("integrate", err)
	}

	if d.config.BufferRetention > 0 {
		if n, err := d.puller.Purge(ctx, d.config.BufferRetention); err != nil {
			d.logger.WithError(err).Warn("Failed to purge sync buffer")
		} else if n > 0 {
			d.logger.WithField("count", n).Debug("Purged integrated buffer records")
		}
	}

	finished := time.Now()
	d.update(func(s *Status) {
		s.State = StateIdle
		s.LastError = ""
		s.LastSuccess = &finished
	})
	d.logger.WithFields(logrus.Fields{
		"pushed":     pushRes.Pushed,
		"pulled":     pullRes.Records,
		"integrated": intRes.Integrated,
		"duration":   finished.Sub(started),
	}).Info("Sync attempt completed")
	return nil
}

func (d *Driver) fail(phase string, err error) error {
	err = fmt.Errorf("%s failed: %w", phase, err)
	d.update(func(s *Status) {
		s.State = StateError
		s.LastError = err.Error()
	})
	return err
}

func (d *Driver) update(fn func(*Status)) {
	d.mu.Lock()
	fn(&d.status)
	snapshot := d.status
	d.mu.Unlock()

	for _, l := range d.listeners {
		l(snapshot)
	}
}

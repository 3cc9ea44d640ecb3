package sync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybertec-postgresql/sitesync/internal/pull"
	"github.com/cybertec-postgresql/sitesync/internal/push"
)

type stubPusher struct {
	mu    sync.Mutex
	calls int
	err   error
	block chan struct{}
}

func (s *stubPusher) Run(ctx context.Context) (push.Result, error) {
	s.mu.Lock()
	s.calls++
	block, err := s.block, s.err
	s.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return push.Result{}, ctx.Err()
		}
	}
	return push.Result{Pushed: 2, Cursor: 9}, err
}

func (s *stubPusher) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubPuller struct {
	pullErr      error
	integrateErr error
	blocked      []string
	pulls        int
	integrals    int
	purges       int
}

func (s *stubPuller) Pull(context.Context) (pull.Result, error) {
	s.pulls++
	return pull.Result{Records: 3, Cursor: 30}, s.pullErr
}

func (s *stubPuller) Integrate(context.Context) (pull.IntegrationResult, error) {
	s.integrals++
	return pull.IntegrationResult{Integrated: 2, NotMatched: 1, Blocked: s.blocked}, s.integrateErr
}

func (s *stubPuller) Purge(context.Context, time.Duration) (int64, error) {
	s.purges++
	return 0, nil
}

type recorder struct {
	mu     sync.Mutex
	states []State
}

func (r *recorder) listen(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 || r.states[len(r.states)-1] != s.State {
		r.states = append(r.states, s.State)
	}
}

func TestSyncOnceRunsPhasesInOrder(t *testing.T) {
	rec := &recorder{}
	pusher, puller := &stubPusher{}, &stubPuller{}
	d := NewDriver(pusher, puller, Config{Interval: time.Hour, BufferRetention: time.Hour}, rec.listen)

	require.NoError(t, d.SyncOnce(context.Background()))
	assert.Equal(t, []State{StatePushing, StatePulling, StateIntegrating, StateIdle}, rec.states)

	st := d.Status()
	assert.Equal(t, StateIdle, st.State)
	assert.Empty(t, st.LastError)
	require.NotNil(t, st.LastSuccess)
	assert.Equal(t, 2, st.Pushed)
	assert.Equal(t, 3, st.Pulled)
	assert.Equal(t, 2, st.Integrated)
	assert.Equal(t, 1, st.NotMatched)
	assert.Equal(t, int64(9), st.PushCursor)
	assert.Equal(t, int64(30), st.PullCursor)
	assert.Equal(t, 1, puller.purges)
}

func TestPushFailureStopsAttempt(t *testing.T) {
	pusher, puller := &stubPusher{err: errors.New("central unreachable")}, &stubPuller{}
	d := NewDriver(pusher, puller, Config{Interval: time.Hour})

	err := d.SyncOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "push failed")
	assert.Equal(t, 0, puller.pulls)

	st := d.Status()
	assert.Equal(t, StateError, st.State)
	assert.Contains(t, st.LastError, "central unreachable")
	assert.Nil(t, st.LastSuccess)
	assert.False(t, d.IsSyncing())

	pusher.err = nil
	require.NoError(t, d.SyncOnce(context.Background()))
	assert.Equal(t, StateIdle, d.Status().State)
	assert.Empty(t, d.Status().LastError)
}

func TestPullFailureSkipsIntegration(t *testing.T) {
	puller := &stubPuller{pullErr: errors.New("503")}
	d := NewDriver(&stubPusher{}, puller, Config{Interval: time.Hour})

	require.Error(t, d.SyncOnce(context.Background()))
	assert.Equal(t, 0, puller.integrals)
	assert.Equal(t, StateError, d.Status().State)
	assert.Contains(t, d.Status().LastError, "pull failed")
}

func TestIntegrationFailureReportsBlockedTables(t *testing.T) {
	puller := &stubPuller{integrateErr: errors.New("foreign key violation"), blocked: []string{"item_line", "requisition"}}
	d := NewDriver(&stubPusher{}, puller, Config{Interval: time.Hour, BufferRetention: time.Hour})

	require.Error(t, d.SyncOnce(context.Background()))
	st := d.Status()
	assert.Equal(t, StateError, st.State)
	assert.Contains(t, st.LastError, "integrate failed")
	assert.Equal(t, []string{"item_line", "requisition"}, st.BlockedTables)
	assert.Equal(t, 0, puller.purges)

	puller.integrateErr, puller.blocked = nil, nil
	require.NoError(t, d.SyncOnce(context.Background()))
	assert.Empty(t, d.Status().BlockedTables)
}

func TestErrorStateAcceptsTriggers(t *testing.T) {
	rec := &recorder{}
	pusher := &stubPusher{err: errors.New("central unreachable")}
	d := NewDriver(pusher, &stubPuller{}, Config{Interval: time.Hour}, rec.listen)

	require.Error(t, d.SyncOnce(context.Background()))
	assert.Equal(t, []State{StatePushing, StateError}, rec.states)
	assert.Equal(t, StateError, d.Status().State, "error is reported until the next attempt starts")
	assert.True(t, d.TriggerManualSync(), "a failed attempt does not block the next one")

	pusher.mu.Lock()
	pusher.err = nil
	pusher.mu.Unlock()
	require.NoError(t, d.SyncOnce(context.Background()))
	assert.Equal(t, []State{StatePushing, StateError, StatePushing, StatePulling, StateIntegrating, StateIdle}, rec.states)
}

func TestConcurrentSyncIsRejected(t *testing.T) {
	pusher := &stubPusher{block: make(chan struct{})}
	d := NewDriver(pusher, &stubPuller{}, Config{Interval: time.Hour})

	done := make(chan error)
	go func() { done <- d.SyncOnce(context.Background()) }()
	require.Eventually(t, d.IsSyncing, time.Second, time.Millisecond)

	assert.ErrorIs(t, d.SyncOnce(context.Background()), ErrSyncInProgress)
	assert.False(t, d.TriggerManualSync())
	assert.Equal(t, StatePushing, d.Status().State)

	close(pusher.block)
	require.NoError(t, <-done)
	assert.Equal(t, 1, pusher.Calls())
}

func TestRunSyncsOnStartAndOnTrigger(t *testing.T) {
	pusher := &stubPusher{}
	d := NewDriver(pusher, &stubPuller{}, Config{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool { return pusher.Calls() == 1 && !d.IsSyncing() }, time.Second, time.Millisecond)
	assert.True(t, d.TriggerManualSync())
	require.Eventually(t, func() bool { return pusher.Calls() == 2 }, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestRunSyncsOnTimer(t *testing.T) {
	pusher := &stubPusher{}
	d := NewDriver(pusher, &stubPuller{}, Config{Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Run(ctx) }()

	require.Eventually(t, func() bool { return pusher.Calls() >= 3 }, time.Second, 5*time.Millisecond)
}

package sync

import (
	"context"
	"errors"
	"io"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasksync/backend"
	backendsync "tasksync/backend/sync"
)

// fakeEngine counts calls and lets tests script pending changes, failures and slowness
type fakeEngine struct {
	mu        gosync.Mutex
	pushCalls int
	pullCalls int
	pending   int
	pushErr   error
	pullErr   error
	block     chan struct{}
	started   chan struct{}
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{started: make(chan struct{}, 16)}
}

func (f *fakeEngine) wait() {
	f.mu.Lock()
	block := f.block
	f.mu.Unlock()
	if block == nil {
		return
	}
	select {
	case f.started <- struct{}{}:
	default:
	}
	<-block
}

func (f *fakeEngine) Push(ctx context.Context, userID string) (*backendsync.PushResult, error) {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushCalls++
	if f.pushErr != nil {
		return nil, f.pushErr
	}
	sent := f.pending
	f.pending = 0
	return &backendsync.PushResult{Sent: sent, Pushed: sent}, nil
}

func (f *fakeEngine) Pull(ctx context.Context, userID string) (*backendsync.PullResult, error) {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pullCalls++
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	return &backendsync.PullResult{}, nil
}

func (f *fakeEngine) RefreshPending() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending, nil
}

func (f *fakeEngine) Status() backend.SyncStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return backend.SyncStatus{PendingChanges: f.pending}
}

func (f *fakeEngine) calls() (push, pull int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pushCalls, f.pullCalls
}

func (f *fakeEngine) set(fn func(f *fakeEngine)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func newTestScheduler(t *testing.T, engine Engine, opts Options) *Scheduler {
	t.Helper()
	s, err := NewScheduler(engine, opts)
	require.NoError(t, err)
	s.SetLogOutput(io.Discard)
	t.Cleanup(func() { s.Shutdown(time.Second) })
	return s
}

func TestNewSchedulerValidation(t *testing.T) {
	_, err := NewScheduler(nil, Options{Interval: time.Second})
	assert.Error(t, err)

	_, err = NewScheduler(newFakeEngine(), Options{})
	assert.Error(t, err)

	s, err := NewScheduler(newFakeEngine(), Options{Interval: time.Minute, MaxBackoff: time.Second})
	require.NoError(t, err)
	assert.Equal(t, time.Minute, s.opts.MaxBackoff, "max backoff is never below the interval")

	s, err = NewScheduler(newFakeEngine(), Options{Interval: time.Minute})
	require.NoError(t, err)
	assert.Equal(t, 16*time.Minute, s.opts.MaxBackoff)
}

func TestStartRunsPushThenPull(t *testing.T) {
	engine := newFakeEngine()
	s := newTestScheduler(t, engine, Options{Interval: time.Hour})

	var rounds []Round
	var mu gosync.Mutex
	s.OnRound(func(r Round) {
		mu.Lock()
		defer mu.Unlock()
		rounds = append(rounds, r)
	})

	s.Start("alice")
	assert.True(t, s.Running())

	assert.Eventually(t, func() bool {
		push, pull := engine.calls()
		return push == 1 && pull == 1
	}, time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(rounds) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, TriggerStart, rounds[0].Trigger)
	assert.NoError(t, rounds[0].Err)
	mu.Unlock()
}

func TestTimerPushesOnlyWhenPending(t *testing.T) {
	engine := newFakeEngine()
	s := newTestScheduler(t, engine, Options{Interval: 20 * time.Millisecond})

	s.Start("alice")
	assert.Eventually(t, func() bool {
		_, pull := engine.calls()
		return pull >= 3
	}, 2*time.Second, 5*time.Millisecond)

	push, _ := engine.calls()
	assert.Equal(t, 1, push, "only the start round pushes when nothing is pending")

	engine.set(func(f *fakeEngine) { f.pending = 2 })
	assert.Eventually(t, func() bool {
		push, _ := engine.calls()
		return push == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestTriggersSkippedWhileRoundInFlight(t *testing.T) {
	engine := newFakeEngine()
	s := newTestScheduler(t, engine, Options{Interval: 10 * time.Millisecond, Debounce: 5 * time.Millisecond})

	s.Start("alice")
	assert.Eventually(t, func() bool {
		_, pull := engine.calls()
		return pull >= 1
	}, time.Second, 5*time.Millisecond)

	// The next timer round gets stuck in its pull
	release := make(chan struct{})
	engine.set(func(f *fakeEngine) { f.block = release })
	<-engine.started

	engine.set(func(f *fakeEngine) { f.pending = 1 })
	s.Notify()
	time.Sleep(50 * time.Millisecond)

	push, _ := engine.calls()
	assert.Equal(t, 1, push, "a change round must not start while another round is in flight")

	_, err := s.SyncNow(context.Background(), "alice")
	assert.ErrorIs(t, err, ErrSyncInProgress)

	engine.set(func(f *fakeEngine) { f.block = nil })
	close(release)

	assert.Eventually(t, func() bool {
		push, _ := engine.calls()
		return push == 2
	}, time.Second, 5*time.Millisecond, "the pending change is pushed by a later round")
}

func TestStopNeverAbortsInFlightRound(t *testing.T) {
	engine := newFakeEngine()
	engine.block = make(chan struct{})
	s := newTestScheduler(t, engine, Options{Interval: time.Hour})

	s.Start("alice")
	<-engine.started

	s.Stop()
	assert.False(t, s.Running())

	release := engine.block
	engine.set(func(f *fakeEngine) { f.block = nil })
	close(release)

	assert.Eventually(t, func() bool {
		push, pull := engine.calls()
		return push == 1 && pull == 1
	}, time.Second, 5*time.Millisecond, "the stopped round still completes push and pull")
}

func TestStopCancelsFutureRounds(t *testing.T) {
	engine := newFakeEngine()
	s := newTestScheduler(t, engine, Options{Interval: 10 * time.Millisecond})

	s.Start("alice")
	assert.Eventually(t, func() bool {
		_, pull := engine.calls()
		return pull >= 2
	}, time.Second, 5*time.Millisecond)

	s.Shutdown(time.Second)
	_, before := engine.calls()
	time.Sleep(80 * time.Millisecond)
	_, after := engine.calls()
	assert.Equal(t, before, after, "no round may run after Stop")
}

func TestStartTwiceKeepsOneTimer(t *testing.T) {
	engine := newFakeEngine()
	s := newTestScheduler(t, engine, Options{Interval: 10 * time.Millisecond})

	s.Start("alice")
	s.Start("alice")
	assert.Eventually(t, func() bool {
		_, pull := engine.calls()
		return pull >= 2
	}, time.Second, 5*time.Millisecond)

	// If the first Start had left a timer behind, it would keep firing after Stop
	s.Shutdown(time.Second)
	_, before := engine.calls()
	time.Sleep(80 * time.Millisecond)
	_, after := engine.calls()
	assert.Equal(t, before, after)
}

func TestSyncNowReportsErrors(t *testing.T) {
	engine := newFakeEngine()
	pushErr := errors.New("push failed: remote unreachable")
	engine.pushErr = pushErr
	s := newTestScheduler(t, engine, Options{Interval: time.Hour})

	round, err := s.SyncNow(context.Background(), "alice")
	require.Error(t, err)
	assert.ErrorIs(t, err, pushErr)
	assert.Equal(t, TriggerManual, round.Trigger)

	_, pull := engine.calls()
	assert.Equal(t, 1, pull, "pull runs even when push fails")

	engine.set(func(f *fakeEngine) { f.pushErr = nil })
	_, err = s.SyncNow(context.Background(), "alice")
	assert.NoError(t, err)
}

func TestBackoff(t *testing.T) {
	interval := 10 * time.Second
	max := 2 * time.Minute

	tests := []struct {
		failures int
		want     time.Duration
	}{
		{0, 10 * time.Second},
		{1, 20 * time.Second},
		{2, 40 * time.Second},
		{3, 80 * time.Second},
		{4, 2 * time.Minute},
		{50, 2 * time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, backoff(interval, max, tt.failures), "failures=%d", tt.failures)
	}
}

func TestBackoffGrowsAndResets(t *testing.T) {
	engine := newFakeEngine()
	engine.pullErr = errors.New("offline")
	s := newTestScheduler(t, engine, Options{Interval: time.Second, MaxBackoff: 5 * time.Second})

	assert.Equal(t, time.Second, s.NextDelay())
	for _, want := range []time.Duration{2 * time.Second, 4 * time.Second, 5 * time.Second} {
		_, err := s.SyncNow(context.Background(), "alice")
		require.Error(t, err)
		assert.Equal(t, want, s.NextDelay())
	}

	engine.set(func(f *fakeEngine) { f.pullErr = nil })
	_, err := s.SyncNow(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, time.Second, s.NextDelay(), "success resets the backoff")
}

func TestNotifyDebouncesIntoOnePush(t *testing.T) {
	engine := newFakeEngine()
	s := newTestScheduler(t, engine, Options{Interval: time.Hour, Debounce: 30 * time.Millisecond})

	s.Start("alice")
	assert.Eventually(t, func() bool {
		push, pull := engine.calls()
		return push == 1 && pull == 1
	}, time.Second, 5*time.Millisecond)

	engine.set(func(f *fakeEngine) { f.pending = 3 })
	for i := 0; i < 5; i++ {
		s.Notify()
		time.Sleep(5 * time.Millisecond)
	}

	assert.Eventually(t, func() bool {
		push, _ := engine.calls()
		return push == 2
	}, time.Second, 5*time.Millisecond)

	time.Sleep(60 * time.Millisecond)
	push, pull := engine.calls()
	assert.Equal(t, 2, push, "a burst of notifications collapses into one round")
	assert.Equal(t, 1, pull, "change rounds do not pull")

	// Nothing pending: a notification (e.g. our own database write) does nothing
	s.Notify()
	time.Sleep(60 * time.Millisecond)
	push, _ = engine.calls()
	assert.Equal(t, 2, push)
}

func TestNotifyIgnoredWhenStopped(t *testing.T) {
	engine := newFakeEngine()
	engine.pending = 1
	s := newTestScheduler(t, engine, Options{Interval: time.Hour, Debounce: 10 * time.Millisecond})

	s.Notify()
	time.Sleep(40 * time.Millisecond)
	push, pull := engine.calls()
	assert.Zero(t, push)
	assert.Zero(t, pull)
}

func TestShutdownRefusesNewRounds(t *testing.T) {
	engine := newFakeEngine()
	s, err := NewScheduler(engine, Options{Interval: time.Hour})
	require.NoError(t, err)
	s.SetLogOutput(io.Discard)

	s.Shutdown(time.Second)

	_, err = s.SyncNow(context.Background(), "alice")
	assert.ErrorIs(t, err, ErrSchedulerClosed)

	s.Start("alice")
	assert.False(t, s.Running(), "Start after Shutdown must not arm a timer")
	time.Sleep(20 * time.Millisecond)
	push, pull := engine.calls()
	assert.Zero(t, push)
	assert.Zero(t, pull)
}

func TestSyncNowConcurrentWithShutdown(t *testing.T) {
	engine := newFakeEngine()
	s, err := NewScheduler(engine, Options{Interval: time.Hour})
	require.NoError(t, err)
	s.SetLogOutput(io.Discard)

	var wg gosync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.SyncNow(context.Background(), "alice")
			if err != nil && !errors.Is(err, ErrSyncInProgress) && !errors.Is(err, ErrSchedulerClosed) {
				t.Errorf("SyncNow() error = %v", err)
			}
		}()
	}
	s.Shutdown(time.Second)
	wg.Wait()

	_, err = s.SyncNow(context.Background(), "alice")
	assert.ErrorIs(t, err, ErrSchedulerClosed)
}

package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"tasksync/backend"
	backendsync "tasksync/backend/sync"
)

// ErrSyncInProgress is returned by SyncNow when a round is already running
var ErrSyncInProgress = backendsync.ErrSyncInProgress

// ErrSchedulerClosed is returned by SyncNow after Shutdown
var ErrSchedulerClosed = errors.New("sync scheduler is shut down")

// Engine is the push/pull engine the scheduler drives
type Engine interface {
	Push(ctx context.Context, userID string) (*backendsync.PushResult, error)
	Pull(ctx context.Context, userID string) (*backendsync.PullResult, error)
	RefreshPending() (int, error)
	Status() backend.SyncStatus
}

// Options tunes the scheduler
type Options struct {
	// Interval between rounds while the remote is healthy
	Interval time.Duration
	// MaxBackoff caps the delay after consecutive failures (zero means 16x Interval)
	MaxBackoff time.Duration
	// Debounce delays a round triggered by Notify (zero disables Notify)
	Debounce time.Duration
}

// Round describes the outcome of one push/pull round
type Round struct {
	At      time.Time
	Trigger string
	Push    *backendsync.PushResult
	Pull    *backendsync.PullResult
	Err     error
}

// Scheduler runs push/pull rounds periodically for one user session.
// At most one round is ever in flight; a trigger that finds one running is dropped.
type Scheduler struct {
	engine Engine
	opts   Options
	logger *log.Logger

	mu         sync.Mutex
	running    bool
	closed     bool
	userID     string
	generation uint64
	timer      *time.Timer
	debounce   *time.Timer
	failures   int
	observers  []func(Round)

	inFlight atomic.Bool
	wg       sync.WaitGroup
}

// NewScheduler creates a stopped scheduler
func NewScheduler(engine Engine, opts Options) (*Scheduler, error) {
	if engine == nil {
		return nil, fmt.Errorf("sync engine is required")
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("sync interval must be positive, got %s", opts.Interval)
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 16 * opts.Interval
	}
	if opts.MaxBackoff < opts.Interval {
		opts.MaxBackoff = opts.Interval
	}

	return &Scheduler{
		engine: engine,
		opts:   opts,
		logger: log.New(os.Stderr, "[AutoSync] ", log.LstdFlags),
	}, nil
}

// SetLogOutput redirects scheduler logs
func (s *Scheduler) SetLogOutput(w io.Writer) {
	s.logger.SetOutput(w)
}

// OnRound registers an observer called after every round, from the round's goroutine
func (s *Scheduler) OnRound(fn func(Round)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Running reports whether the scheduler is started
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Status returns the engine's sync status
func (s *Scheduler) Status() backend.SyncStatus {
	return s.engine.Status()
}

// Start begins auto-sync for userID. It returns immediately: a first push and pull run in
// the background, then a timer is armed. Starting a running scheduler restarts it with a
// fresh timer, so two timers never coexist.
func (s *Scheduler) Start(userID string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Printf("Auto-sync not started: scheduler is shut down")
		return
	}
	if s.running {
		s.stopLocked()
	}
	s.running = true
	s.userID = userID
	s.failures = 0
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	s.logger.Printf("Auto-sync started (interval %s)", s.opts.Interval)

	go func() {
		s.runGuarded(gen, TriggerStart)
		s.schedule(gen)
	}()
}

// Stop cancels future rounds. A round already in flight finishes normally.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.stopLocked()
	s.logger.Printf("Auto-sync stopped")
}

func (s *Scheduler) stopLocked() {
	s.running = false
	s.generation++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
}

// Shutdown stops the scheduler for good and waits for an in-flight round, up to timeout.
// Rounds register under s.mu and check closed, so Wait never races an Add.
func (s *Scheduler) Shutdown(timeout time.Duration) {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.Stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		s.logger.Printf("Warning: in-flight sync did not complete within %v", timeout)
	}
}

// SyncNow runs one push and pull immediately and reports their failure to the caller.
// It returns ErrSyncInProgress without touching anything if a round is already running,
// and ErrSchedulerClosed after Shutdown.
func (s *Scheduler) SyncNow(ctx context.Context, userID string) (Round, error) {
	if !s.register() {
		return Round{}, ErrSchedulerClosed
	}
	defer s.wg.Done()

	if !s.inFlight.CompareAndSwap(false, true) {
		return Round{}, ErrSyncInProgress
	}
	defer s.inFlight.Store(false)

	round, _ := s.round(ctx, userID, TriggerManual)
	s.record(round)
	return round, round.Err
}

// Notify asks for a round soon, typically after a local write. Calls within the
// debounce window collapse into one round.
func (s *Scheduler) Notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.opts.Debounce <= 0 {
		return
	}

	if s.debounce != nil {
		s.debounce.Stop()
	}
	gen := s.generation
	s.debounce = time.AfterFunc(s.opts.Debounce, func() {
		s.runGuarded(gen, TriggerChange)
	})
}

// NextDelay returns the wait before the next timer tick given the current failure streak
func (s *Scheduler) NextDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return backoff(s.opts.Interval, s.opts.MaxBackoff, s.failures)
}

// schedule arms the timer for generation gen, unless the scheduler was stopped or restarted since
func (s *Scheduler) schedule(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || gen != s.generation {
		return
	}

	delay := backoff(s.opts.Interval, s.opts.MaxBackoff, s.failures)
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(delay, func() {
		s.runGuarded(gen, TriggerTimer)
		s.schedule(gen)
	})
}

// runGuarded runs a round for generation gen unless one is already in flight
func (s *Scheduler) runGuarded(gen uint64, trigger string) {
	userID, ok := s.acquire(gen)
	if !ok {
		return
	}
	defer s.wg.Done()

	if !s.inFlight.CompareAndSwap(false, true) {
		s.logger.Printf("Skipping %s sync: a sync is already in progress", trigger)
		return
	}
	defer s.inFlight.Store(false)

	// Recover from panics so auto-sync never dies silently
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("Panic in %s sync: %v", trigger, r)
		}
	}()

	// Stop never aborts a round that already started
	if round, ran := s.round(context.Background(), userID, trigger); ran {
		s.record(round)
	}
}

// acquire registers a round of generation gen with the wait group.
// It fails once the scheduler was stopped or restarted, so Shutdown never races a late Add.
func (s *Scheduler) acquire(gen uint64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.running || gen != s.generation {
		return "", false
	}
	s.wg.Add(1)
	return s.userID, true
}

// register adds a manual round to the wait group unless Shutdown was called
func (s *Scheduler) register() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	return true
}

// Round triggers
const (
	TriggerStart  = "start"
	TriggerTimer  = "timer"
	TriggerChange = "change"
	TriggerManual = "manual"
)

// round runs push then pull. Pull runs even when push fails.
// Timer rounds push only when something is pending. Change rounds push only, and do
// nothing at all when nothing is pending: our own writes to the database wake the
// watcher too and must not feed back into new rounds.
func (s *Scheduler) round(ctx context.Context, userID, trigger string) (Round, bool) {
	ctx = context.WithoutCancel(ctx)
	round := Round{At: time.Now(), Trigger: trigger}

	var pushErr, pullErr error
	doPush, doPull := true, trigger != TriggerChange
	if trigger == TriggerTimer || trigger == TriggerChange {
		pending, err := s.engine.RefreshPending()
		if err != nil {
			pushErr = fmt.Errorf("failed to count pending changes: %w", err)
			doPush = false
		} else {
			doPush = pending > 0
		}
	}
	if !doPush && !doPull && pushErr == nil {
		return round, false
	}

	if doPush {
		round.Push, pushErr = s.engine.Push(ctx, userID)
	}
	if doPull {
		round.Pull, pullErr = s.engine.Pull(ctx, userID)
	}

	round.Err = errors.Join(pushErr, pullErr)
	return round, true
}

func (s *Scheduler) record(round Round) {
	s.mu.Lock()
	if round.Err != nil {
		s.failures++
	} else {
		s.failures = 0
	}
	failures := s.failures
	observers := append([]func(Round)(nil), s.observers...)
	s.mu.Unlock()

	if round.Err != nil {
		s.logger.Printf("Sync (%s) failed, attempt %d: %v", round.Trigger, failures, round.Err)
	} else if round.Push != nil && round.Push.Pushed > 0 || round.Pull != nil && round.Pull.Applied > 0 {
		pushed, applied := 0, 0
		if round.Push != nil {
			pushed = round.Push.Pushed
		}
		if round.Pull != nil {
			applied = round.Pull.Applied
		}
		s.logger.Printf("Sync (%s) completed: %d pushed, %d pulled", round.Trigger, pushed, applied)
	}

	for _, fn := range observers {
		fn(round)
	}
}

// backoff doubles interval for every consecutive failure, capped at max
func backoff(interval, max time.Duration, failures int) time.Duration {
	delay := interval
	for i := 0; i < failures; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	return delay
}

package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tasksync/backend"
	"tasksync/backend/sqlite"
	"tasksync/internal/utils"
)

// ErrSyncInProgress is returned when a push or pull is requested while another one is in flight
var ErrSyncInProgress = errors.New("a sync is already in progress")

// LocalStore is the part of the local store the engine needs
type LocalStore interface {
	SnapshotChanges(since backend.LocalCheckpoint) (sqlite.Snapshot, error)
	CountPending(since backend.LocalCheckpoint) (int, int64, error)
	ApplyRemote(incoming backend.Entity, wins func(incoming, local backend.Entity) bool) (sqlite.ApplyOutcome, error)
}

// Engine reconciles the local store with the remote authority.
// Push and Pull never run concurrently; a second caller gets ErrSyncInProgress.
type Engine struct {
	local    LocalStore
	register backend.StatusRegister
	remote   backend.RemoteClient
	now      func() time.Time

	// round is held for the whole duration of a Push or Pull
	round sync.Mutex

	mu     sync.RWMutex
	status backend.SyncStatus
}

// NewEngine creates an engine, loading the last persisted status
func NewEngine(local LocalStore, register backend.StatusRegister, remote backend.RemoteClient) (*Engine, error) {
	if local == nil || register == nil || remote == nil {
		return nil, fmt.Errorf("local store, status register, and remote client are required")
	}

	status, err := register.LoadStatus()
	if err != nil {
		return nil, fmt.Errorf("failed to load sync status: %w", err)
	}

	e := &Engine{
		local:    local,
		register: register,
		remote:   remote,
		now:      time.Now,
		status:   status,
	}

	// pendingChanges is derived state; never trust the persisted value
	if pending, err := e.PendingCount(status.Local()); err == nil {
		e.status.PendingChanges = pending
	} else {
		utils.Warnf("Failed to recompute pending changes: %v", err)
	}

	return e, nil
}

// SetClock replaces the clock used for checkpoints
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

// Status returns a snapshot of the current sync status
func (e *Engine) Status() backend.SyncStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return copyStatus(e.status)
}

// RefreshPending recomputes pendingChanges against the current checkpoint.
// Called after local mutations so the status display stays accurate between rounds.
func (e *Engine) RefreshPending() (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pending, err := e.PendingCount(e.status.Local())
	if err != nil {
		return 0, err
	}
	e.status.PendingChanges = pending
	return pending, nil
}

// PushResult contains statistics about a push
type PushResult struct {
	Sent      int
	Pushed    int
	Conflicts int
	Duration  time.Duration
}

// PullResult contains statistics about a pull
type PullResult struct {
	Received  int
	Applied   int
	Conflicts int
	Deleted   int
	Duration  time.Duration
}

// Push sends every local change since the checkpoint to the remote authority.
// An empty change-set makes no network call.
func (e *Engine) Push(ctx context.Context, userID string) (*PushResult, error) {
	if !e.round.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer e.round.Unlock()

	start := e.clock()
	result := &PushResult{}

	checkpoint, err := e.begin()
	if err != nil {
		return nil, e.fail("push", err)
	}

	changes, err := e.ChangeSet(checkpoint.Local())
	if err != nil {
		return nil, e.fail("push", err)
	}

	if changes.IsEmpty() {
		utils.Debugf("Push: no local changes since %s", formatCheckpoint(checkpoint.LastSyncAt))
		e.finishNoop()
		result.Duration = time.Since(start)
		return result, nil
	}

	result.Sent = changes.Len()
	utils.Debugf("Push: sending %d tasks and %d domains", len(changes.Tasks), len(changes.Domains))

	resp, err := e.remote.Push(ctx, userID, backend.PushRequest{
		Tasks:      changes.Tasks,
		Domains:    changes.Domains,
		LastSyncAt: checkpoint.Checkpoint(),
	})
	if err != nil {
		return nil, e.fail("push", err)
	}

	result.Pushed = resp.Pushed
	result.Conflicts = resp.Conflicts
	// Only a pull may move the remote cursor: other devices may have written
	// before this push and we have not received their changes yet.
	e.succeed(&start, changes.Revision, nil)

	result.Duration = time.Since(start)
	utils.Debugf("Push: %d pushed, %d conflicts in %s", result.Pushed, result.Conflicts, result.Duration)
	return result, nil
}

// Pull fetches every remote change since the checkpoint and applies it with last-write-wins
func (e *Engine) Pull(ctx context.Context, userID string) (*PullResult, error) {
	if !e.round.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer e.round.Unlock()

	start := e.clock()
	result := &PullResult{}

	checkpoint, err := e.begin()
	if err != nil {
		return nil, e.fail("pull", err)
	}

	// Local edits not pushed yet must stay after the local checkpoint
	pending, rev, err := e.pending(checkpoint.Local())
	if err != nil {
		return nil, e.fail("pull", err)
	}

	resp, err := e.remote.Pull(ctx, userID, backend.PullRequest{LastSyncAt: checkpoint.Checkpoint()})
	if err != nil {
		return nil, e.fail("pull", err)
	}

	// Domains first so tasks never reference a domain this device has not seen yet
	for i := range resp.Domains {
		if err := e.apply(&resp.Domains[i], result); err != nil {
			return nil, e.fail("pull", err)
		}
	}
	for i := range resp.Tasks {
		if err := e.apply(&resp.Tasks[i], result); err != nil {
			return nil, e.fail("pull", err)
		}
	}

	if pending > 0 {
		utils.Debugf("Pull: %d local changes still pending, local checkpoint kept", pending)
		e.succeed(nil, 0, resp.ServerTime)
	} else {
		e.succeed(&start, rev, resp.ServerTime)
	}

	result.Duration = time.Since(start)
	utils.Debugf("Pull: %d received, %d applied, %d conflicts in %s",
		result.Received, result.Applied, result.Conflicts, result.Duration)
	return result, nil
}

func (e *Engine) apply(incoming backend.Entity, result *PullResult) error {
	result.Received++

	outcome, err := e.local.ApplyRemote(incoming, remoteWins)
	if err != nil {
		return err
	}

	switch outcome {
	case sqlite.Inserted:
		result.Applied++
	case sqlite.Replaced:
		result.Applied++
		result.Conflicts++
	case sqlite.KeptLocal:
		return nil
	}
	if incoming.IsDeleted() {
		result.Deleted++
	}
	return nil
}

func (e *Engine) clock() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return backend.Timestamp(e.now())
}

// begin marks the status as syncing and returns the status as it was before the round
func (e *Engine) begin() (backend.SyncStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	before := copyStatus(e.status)
	e.status.IsSyncing = true
	e.status.Error = ""
	if err := e.register.SaveStatus(e.status); err != nil {
		return before, err
	}
	return before, nil
}

// finishNoop ends a round that found nothing to push. The checkpoint stays put;
// pending is recounted since a write may have landed after the empty snapshot.
func (e *Engine) finishNoop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.status.IsSyncing = false
	e.recountPending()
	e.persist()
}

// succeed advances the local checkpoint to the instant the round started and the
// local revision its snapshot read. A write committed after the snapshot has a higher
// revision, so it stays pending even when its updatedAt is not after start.
// A nil start leaves the local checkpoint where it is.
// The remote cursor follows the authority's own clock when it reports one.
func (e *Engine) succeed(start *time.Time, rev int64, serverTime *time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if start != nil {
		e.status.LastSyncAt = laterOf(e.status.LastSyncAt, start)
		if rev > e.status.LocalRevision {
			e.status.LocalRevision = rev
		}
	}
	if serverTime != nil {
		ts := backend.Timestamp(*serverTime)
		e.status.RemoteCursor = laterOf(e.status.RemoteCursor, &ts)
	}

	e.recountPending()

	e.status.IsSyncing = false
	e.status.Error = ""
	e.persist()
}

// fail records err in the status without touching the checkpoint
func (e *Engine) fail(op string, err error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.status.IsSyncing = false
	e.status.Error = describeError(op, err)
	e.recountPending()
	e.persist()

	utils.Debugf("Sync %s failed: %v", op, err)
	return fmt.Errorf("%s failed: %w", op, err)
}

// recountPending refreshes PendingChanges against the current checkpoint. Callers hold e.mu.
func (e *Engine) recountPending() {
	if pending, err := e.PendingCount(e.status.Local()); err == nil {
		e.status.PendingChanges = pending
	} else {
		utils.Warnf("Failed to recompute pending changes: %v", err)
	}
}

// persist saves the in-memory status. Callers hold e.mu.
func (e *Engine) persist() {
	if err := e.register.SaveStatus(e.status); err != nil {
		utils.Warnf("Failed to persist sync status: %v", err)
	}
}

// describeError turns any failure into the message shown to the user
func describeError(op string, err error) string {
	var backendErr *backend.BackendError
	if errors.As(err, &backendErr) {
		switch {
		case backendErr.IsTransport():
			return fmt.Sprintf("%s failed: remote unreachable (%v)", op, backendErr.Err)
		case backendErr.IsUnauthorized():
			return fmt.Sprintf("%s failed: not authorized by the remote", op)
		default:
			return backendErr.Error()
		}
	}

	var storeErr *backend.StoreError
	if errors.As(err, &storeErr) {
		return fmt.Sprintf("%s failed: local storage error: %v", op, storeErr)
	}

	return fmt.Sprintf("%s failed: %v", op, err)
}

func laterOf(current, candidate *time.Time) *time.Time {
	if candidate == nil {
		return current
	}
	if current == nil || candidate.After(*current) {
		t := *candidate
		return &t
	}
	return current
}

func copyStatus(s backend.SyncStatus) backend.SyncStatus {
	if s.LastSyncAt != nil {
		t := *s.LastSyncAt
		s.LastSyncAt = &t
	}
	if s.RemoteCursor != nil {
		t := *s.RemoteCursor
		s.RemoteCursor = &t
	}
	return s
}

func formatCheckpoint(t *time.Time) string {
	if t == nil {
		return "the beginning"
	}
	return t.Format(time.RFC3339)
}

package sync

import (
	"fmt"

	"tasksync/backend"
)

// ChangeSet is the set of local entities modified after a checkpoint, tombstones included
type ChangeSet struct {
	Tasks   []backend.Task
	Domains []backend.Domain
	// Revision is the local revision the change-set was read at
	Revision int64
}

// Len returns the number of entities in the change-set
func (c ChangeSet) Len() int {
	return len(c.Tasks) + len(c.Domains)
}

// IsEmpty reports whether there is nothing to push
func (c ChangeSet) IsEmpty() bool {
	return c.Len() == 0
}

// PendingCount counts local entities changed after checkpoint: a later updatedAt or a
// later local revision. A nil checkpoint.At means nothing was ever synced, so every
// stored entity is pending.
func (e *Engine) PendingCount(checkpoint backend.LocalCheckpoint) (int, error) {
	n, _, err := e.pending(checkpoint)
	return n, err
}

func (e *Engine) pending(checkpoint backend.LocalCheckpoint) (int, int64, error) {
	n, rev, err := e.local.CountPending(checkpoint)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count pending changes: %w", err)
	}
	return n, rev, nil
}

// ChangeSet loads the entities PendingCount counts
func (e *Engine) ChangeSet(checkpoint backend.LocalCheckpoint) (ChangeSet, error) {
	snap, err := e.local.SnapshotChanges(checkpoint)
	if err != nil {
		return ChangeSet{}, fmt.Errorf("failed to list local changes: %w", err)
	}
	return ChangeSet{
		Tasks:    backend.TasksOf(snap.Changed[backend.KindTask]),
		Domains:  backend.DomainsOf(snap.Changed[backend.KindDomain]),
		Revision: snap.Revision,
	}, nil
}

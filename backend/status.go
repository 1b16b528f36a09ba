package backend

import "time"

// SyncStatus describes the engine's current condition for display.
// It is mutated only by the sync engine.
type SyncStatus struct {
	// LastSyncAt is the local checkpoint: local entities with a later updatedAt are pending
	LastSyncAt *time.Time `json:"lastSyncAt"`
	// LocalRevision is the highest local write revision covered by the last successful round.
	// Local writes with a higher revision are pending whatever their updatedAt.
	LocalRevision int64 `json:"localRevision,omitempty"`
	// RemoteCursor is the authority's clock at the last successful round, sent as lastSyncAt on pull
	RemoteCursor   *time.Time `json:"remoteCursor,omitempty"`
	PendingChanges int        `json:"pendingChanges"`
	IsSyncing      bool       `json:"isSyncing"`
	Error          string     `json:"error,omitempty"`
}

// HasError reports whether the last attempt failed
func (s SyncStatus) HasError() bool {
	return s.Error != ""
}

// Checkpoint returns the instant Pull should ask changes from: the remote cursor when the
// authority reports its own clock, otherwise the local checkpoint.
func (s SyncStatus) Checkpoint() *time.Time {
	if s.RemoteCursor != nil {
		return s.RemoteCursor
	}
	return s.LastSyncAt
}

// Local returns the checkpoint the change-set is computed from
func (s SyncStatus) Local() LocalCheckpoint {
	return LocalCheckpoint{At: s.LastSyncAt, Revision: s.LocalRevision}
}

// LocalCheckpoint marks what the last successful round covered on this device.
// A local entity is pending when its updatedAt is after At or its revision is after Revision.
// The revision catches writes that committed after a round read the store but carry an
// updatedAt at or before the round start.
type LocalCheckpoint struct {
	At       *time.Time
	Revision int64
}

// StatusRegister persists the SyncStatus across restarts
type StatusRegister interface {
	// LoadStatus returns the persisted status, or defaults if none exists.
	// IsSyncing is always false in the returned value.
	LoadStatus() (SyncStatus, error)
	SaveStatus(status SyncStatus) error
}

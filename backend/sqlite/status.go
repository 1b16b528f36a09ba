package sqlite

import (
	"database/sql"
	"errors"
	"time"

	"tasksync/backend"
)

// syncStatusName keys the singleton status row
const syncStatusName = "sync"

// LoadStatus reads the persisted sync status, or returns defaults if none exists.
// IsSyncing is never trusted across a restart and always comes back false.
func (s *Store) LoadStatus() (backend.SyncStatus, error) {
	var (
		status                   backend.SyncStatus
		lastSyncAt, remoteCursor sql.NullInt64
		errMsg                   sql.NullString
	)

	err := s.db.QueryRow(`
		SELECT last_sync_at, remote_cursor, local_revision, pending_changes, error
		FROM sync_status
		WHERE name = ?
	`, syncStatusName).Scan(&lastSyncAt, &remoteCursor, &status.LocalRevision, &status.PendingChanges, &errMsg)
	if errors.Is(err, sql.ErrNoRows) {
		return backend.SyncStatus{}, nil
	}
	if err != nil {
		return backend.SyncStatus{}, &backend.StoreError{Op: "load status", Err: err}
	}

	status.LastSyncAt = fromNullMillis(lastSyncAt)
	status.RemoteCursor = fromNullMillis(remoteCursor)
	status.Error = errMsg.String
	status.IsSyncing = false
	return status, nil
}

// SaveStatus persists the sync status
func (s *Store) SaveStatus(status backend.SyncStatus) error {
	isSyncing := 0
	if status.IsSyncing {
		isSyncing = 1
	}

	_, err := s.db.Exec(`
		INSERT INTO sync_status (name, last_sync_at, remote_cursor, local_revision, pending_changes, is_syncing, error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			last_sync_at = excluded.last_sync_at,
			remote_cursor = excluded.remote_cursor,
			local_revision = excluded.local_revision,
			pending_changes = excluded.pending_changes,
			is_syncing = excluded.is_syncing,
			error = excluded.error,
			updated_at = excluded.updated_at
	`,
		syncStatusName,
		TimeToNullInt64(status.LastSyncAt),
		TimeToNullInt64(status.RemoteCursor),
		status.LocalRevision,
		status.PendingChanges,
		isSyncing,
		NullString(status.Error),
		time.Now().UnixMilli(),
	)
	if err != nil {
		return &backend.StoreError{Op: "save status", Err: err}
	}
	return nil
}

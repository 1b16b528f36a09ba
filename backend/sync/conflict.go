package sync

import (
	"tasksync/backend"
	"tasksync/internal/utils"
)

// Resolution is the decision taken for one incoming version
type Resolution string

const (
	// TakeRemote replaces the local version with the incoming one
	TakeRemote Resolution = "remote"
	// KeepLocal leaves the local version untouched
	KeepLocal Resolution = "local"
)

// resolveLastWriteWins picks the version with the strictly later updatedAt.
// Equal timestamps keep the local version, so re-applying an echo of our own write is a no-op.
func resolveLastWriteWins(local, remote backend.Entity) Resolution {
	if backend.NewerThan(remote, local) {
		utils.Debugf("conflict on %s %s: remote wins (%s > %s)",
			remote.Kind(), remote.EntityID(), remote.LastModified(), local.LastModified())
		return TakeRemote
	}
	utils.Debugf("conflict on %s %s: local kept (%s >= %s)",
		local.Kind(), local.EntityID(), local.LastModified(), remote.LastModified())
	return KeepLocal
}

// remoteWins adapts resolveLastWriteWins to the store's apply callback
func remoteWins(incoming, local backend.Entity) bool {
	return resolveLastWriteWins(local, incoming) == TakeRemote
}

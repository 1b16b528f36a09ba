package sync

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"
)

// ErrDaemonRunning is returned when another process already owns auto-sync for a database
var ErrDaemonRunning = errors.New("another sync daemon is already running for this database")

// DaemonLock guarantees a single auto-sync process per database file
type DaemonLock struct {
	lock *flock.Flock
}

// LockPath returns the lock file used for the database at dbPath
func LockPath(dbPath string) string {
	return dbPath + ".sync.lock"
}

// AcquireDaemonLock takes the lock for dbPath without blocking
func AcquireDaemonLock(dbPath string) (*DaemonLock, error) {
	lock := flock.New(LockPath(dbPath))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring sync lock: %w", err)
	}
	if !locked {
		return nil, ErrDaemonRunning
	}
	return &DaemonLock{lock: lock}, nil
}

// Path returns the lock file path
func (l *DaemonLock) Path() string {
	return l.lock.Path()
}

// Release unlocks the lock file
func (l *DaemonLock) Release() error {
	return l.lock.Unlock()
}

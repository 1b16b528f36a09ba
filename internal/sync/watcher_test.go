package sync

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDBWatcherNotifiesOnDatabaseWrites(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "tasks.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("x"), 0644))

	var hits atomic.Int32
	w, err := NewDBWatcher(dbPath, func() { hits.Add(1) })
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	assert.Error(t, w.Start(), "starting twice should fail")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("y"), 0644))
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, hits.Load(), "unrelated files must be ignored")

	require.NoError(t, os.WriteFile(dbPath+"-wal", []byte("wal"), 0644))
	assert.Eventually(t, func() bool { return hits.Load() > 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestDBWatcherRelevant(t *testing.T) {
	w := &DBWatcher{base: "/data/tasks.db"}

	tests := []struct {
		event fsnotify.Event
		want  bool
	}{
		{fsnotify.Event{Name: "/data/tasks.db", Op: fsnotify.Write}, true},
		{fsnotify.Event{Name: "/data/tasks.db-wal", Op: fsnotify.Write}, true},
		{fsnotify.Event{Name: "/data/tasks.db-journal", Op: fsnotify.Create}, true},
		{fsnotify.Event{Name: "/data/tasks.db", Op: fsnotify.Chmod}, false},
		{fsnotify.Event{Name: "/data/tasks.db", Op: fsnotify.Remove}, false},
		{fsnotify.Event{Name: "/data/tasks.db.sync.lock", Op: fsnotify.Write}, false},
		{fsnotify.Event{Name: "/data/other.db", Op: fsnotify.Write}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, w.relevant(tt.event), "%s %s", tt.event.Op, tt.event.Name)
	}
}

func TestDBWatcherStopWithoutStart(t *testing.T) {
	w, err := NewDBWatcher(filepath.Join(t.TempDir(), "tasks.db"), func() {})
	require.NoError(t, err)
	assert.NoError(t, w.Stop())
}

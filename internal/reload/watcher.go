package reload

import (
	"os"
	"sort"
	"sync"
	"time"

	"github.com/timzifer/repolocator/config"
)

type fileState struct {
	modTime time.Time
	size    int64
}

// Watcher tracks the configuration file and repository catalogue and reports
// which of them changed since the last snapshot.
type Watcher struct {
	mu    sync.Mutex
	files map[string]fileState
}

// NewWatcher snapshots the files the configuration depends on.
func NewWatcher(cfg *config.Config) *Watcher {
	watcher := &Watcher{}
	watcher.Update(cfg)
	return watcher
}

// Update replaces the snapshot with the current state of the configuration's files.
// Files that do not exist yet are tracked as missing and reported once they appear.
func (w *Watcher) Update(cfg *config.Config) {
	if w == nil {
		return
	}
	paths := config.SourceFiles(cfg)
	states := make(map[string]fileState, len(paths))
	for _, path := range paths {
		states[path] = statFile(path)
	}
	w.mu.Lock()
	w.files = states
	w.mu.Unlock()
}

// Check reports the files that changed since the last snapshot and advances
// the snapshot, so every modification is reported once.
func (w *Watcher) Check() []string {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	changed := make([]string, 0)
	for path, previous := range w.files {
		current := statFile(path)
		if current == previous {
			continue
		}
		changed = append(changed, path)
		w.files[path] = current
	}
	sort.Strings(changed)
	return changed
}

func statFile(path string) fileState {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return fileState{}
	}
	return fileState{modTime: info.ModTime(), size: info.Size()}
}

package vault

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	appLog "calnotes/internal/log"
)

// Watcher tracks the last local write anywhere in the vault. The sync
// orchestrator's idle gate samples it so a cycle never reads note state
// mid-edit.
type Watcher struct {
	fsw *fsnotify.Watcher

	mu        sync.Mutex
	lastWrite time.Time
}

// NewWatcher watches root and every subdirectory (new subdirectories are
// picked up as they appear).
func NewWatcher(root string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{fsw: fsw, lastWrite: time.Now()}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
	if err != nil {
		fsw.Close()
		return nil, err
	}

	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) != 0 {
				w.mark()
			}
			if ev.Op&fsnotify.Create != 0 {
				// New directories need their own watch.
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.fsw.Add(ev.Name); err == nil {
						appLog.Debug("watching new vault folder", "path", ev.Name)
					}
				}
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			appLog.Warn("vault watcher error", "err", err)
		}
	}
}

func (w *Watcher) mark() {
	w.mu.Lock()
	w.lastWrite = time.Now()
	w.mu.Unlock()
}

// LastWrite returns the time of the most recent observed vault write.
func (w *Watcher) LastWrite() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastWrite
}

func (w *Watcher) Close() error {
	return w.fsw.Close()
}

package watcher

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/AvengeMedia/dankbooru/internal/config"
	"github.com/AvengeMedia/dankbooru/internal/errdefs"
	"github.com/AvengeMedia/dankbooru/internal/log"
	"github.com/fsnotify/fsnotify"
)

type Ingester interface {
	ShouldIngest(path string) bool
	IngestFile(path string) error
	Remove(path string) error
}

// Watcher ingests files dropped into the spool directory as they appear or
// change, and forgets them when they are removed.
type Watcher struct {
	watcher  *fsnotify.Watcher
	ingester Ingester
	config   *config.Config
	running  bool
	mu       sync.Mutex
	done     chan struct{}
}

func New(ingester Ingester, cfg *config.Config) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errdefs.NewCustomError(errdefs.ErrTypeWatcherFailed, "failed to create watcher", err)
	}

	return &Watcher{
		watcher:  w,
		ingester: ingester,
		config:   cfg,
		done:     make(chan struct{}),
	}, nil
}

func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}

	if w.watcher == nil {
		newWatcher, err := fsnotify.NewWatcher()
		if err != nil {
			w.mu.Unlock()
			return errdefs.NewCustomError(errdefs.ErrTypeWatcherFailed, "failed to create watcher", err)
		}
		w.watcher = newWatcher
		w.done = make(chan struct{})
	}

	w.running = true
	w.mu.Unlock()

	if err := os.MkdirAll(w.config.SpoolDir, 0755); err != nil {
		w.Stop()
		return errdefs.NewCustomError(errdefs.ErrTypeWatcherFailed, "failed to create spool dir", err)
	}
	if err := w.addWatches(w.config.SpoolDir); err != nil {
		w.Stop()
		return errdefs.NewCustomError(errdefs.ErrTypeWatcherFailed, "failed to watch spool dir", err)
	}

	go w.eventLoop()
	log.Infof("watching %s", w.config.SpoolDir)
	return nil
}

func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	w.running = false
	close(w.done)
	err := w.watcher.Close()
	w.watcher = nil
	log.Infof("watcher stopped")
	return err
}

func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func hidden(root, path string) bool {
	return path != root && strings.HasPrefix(filepath.Base(path), ".")
}

func (w *Watcher) addWatches(root string) error {
	watchCount := 0
	errorCount := 0

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				log.Debugf("permission denied: %s", path)
				return nil
			}
			return err
		}

		if !d.IsDir() {
			return nil
		}
		if hidden(root, path) {
			return filepath.SkipDir
		}

		if err := w.watcher.Add(path); err != nil {
			errorCount++
			if errorCount == 1 {
				log.Warnf("failed to add watch for %s: %v", path, err)
			}
			return nil
		}

		watchCount++
		return nil
	})

	if errorCount > 0 {
		log.Warnf("failed to add %d watches (added %d successfully)", errorCount, watchCount)
	} else {
		log.Debugf("added %d directory watches", watchCount)
	}

	return err
}

func (w *Watcher) eventLoop() {
	w.mu.Lock()
	fw, done := w.watcher, w.done
	w.mu.Unlock()

	for {
		select {
		case <-done:
			return
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handleEvent(fw, event)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			log.Errorf("watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(fw *fsnotify.Watcher, event fsnotify.Event) {
	path := event.Name

	if event.Has(fsnotify.Create) {
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			if hidden(w.config.SpoolDir, path) {
				return
			}
			if err := fw.Add(path); err != nil {
				log.Debugf("failed to watch new dir %s: %v", path, err)
			}
			return
		}
	}

	if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
		if w.ingester.ShouldIngest(path) {
			if err := w.ingester.IngestFile(path); err != nil {
				log.Debugf("failed to ingest %s: %v", path, err)
			}
		}
	}

	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		if err := w.ingester.Remove(path); err != nil {
			log.Debugf("failed to remove %s: %v", path, err)
		}
	}
}

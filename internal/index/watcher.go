package index

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher observes the episodes directory for records written by
// external tooling (shell hooks, sync scripts) and queues them for
// indexing. Events are debounced so a burst of writes triggers one
// reconcile pass.
type Watcher struct {
	indexer  *Indexer
	dir      string
	debounce time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewWatcher creates a watcher over <dataDir>/episodes.
func NewWatcher(indexer *Indexer, dataDir string, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		indexer:  indexer,
		dir:      filepath.Join(dataDir, "episodes"),
		debounce: 2 * time.Second,
		logger:   logger,
	}
}

// Start begins watching. Starting a watcher that is already running is a
// no-op.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.dir); err != nil {
		fw.Close()
		return err
	}
	// Partition directories are watched individually; fsnotify does not
	// recurse.
	entries, err := os.ReadDir(w.dir)
	if err == nil {
		for _, entry := range entries {
			if entry.IsDir() {
				if err := fw.Add(filepath.Join(w.dir, entry.Name())); err != nil {
					w.logger.Warn("watching partition", zap.String("dir", entry.Name()), zap.Error(err))
				}
			}
		}
	}

	w.running = true
	w.stop = make(chan struct{})
	w.done = make(chan struct{})

	go w.run(ctx, fw)
	return nil
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher) {
	defer close(w.done)
	defer fw.Close()

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			isDir := false
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					// A new partition may already hold records whose
					// events we missed; reconcile covers them.
					isDir = true
					if err := fw.Add(event.Name); err != nil {
						w.logger.Warn("watching new partition", zap.Error(err))
					}
				}
			}
			if !isDir {
				if !strings.HasSuffix(event.Name, ".json") {
					continue
				}
				if strings.HasPrefix(filepath.Base(event.Name), ".tmp-") {
					continue // our own in-flight atomic writes
				}
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			if _, err := w.indexer.Reconcile(ctx); err != nil {
				w.logger.Warn("watcher reconcile failed", zap.Error(err))
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

// Stop stops the watcher and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	close(w.stop)
	<-w.done
	w.running = false
}

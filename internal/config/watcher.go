package config

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads the configuration file whenever it changes on disk and
// invokes onReload with the newly parsed Config. Grounded on the teacher's
// (github.com/BaSui01/agentflow) config/watcher.go file-watch shape,
// backed here directly by fsnotify rather than a polling fallback (a
// teacher dependency the original file never actually imported).
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	logger   *zap.Logger
	done     chan struct{}
	debounce time.Duration
}

// NewWatcher builds a Watcher over path. Call Start to begin watching.
func NewWatcher(path string, logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{path: path, watcher: fw, logger: logger, done: make(chan struct{}), debounce: 250 * time.Millisecond}, nil
}

// Start runs the watch loop in a goroutine, calling onReload with the
// freshly loaded Config each time path is written. Reload errors (e.g. a
// transiently truncated file mid-write) are logged and skipped rather than
// propagated, so a single bad write never kills the watcher.
func (w *Watcher) Start(onReload func(Config)) {
	go func() {
		var timer *time.Timer
		for {
			select {
			case ev, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(w.debounce, func() {
					cfg, err := Load(w.path)
					if err != nil {
						w.logger.Warn("config reload failed, keeping previous config", zap.Error(err))
						return
					}
					w.logger.Info("config reloaded", zap.String("path", w.path))
					onReload(cfg)
				})
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("config watcher error", zap.Error(err))
			case <-w.done:
				return
			}
		}
	}()
}

// Close stops the watch loop and releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

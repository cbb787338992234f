// Package loader watches an inbox directory and feeds settled files into the
// ingest pipeline, archiving them by date afterwards.
package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

type Config struct {
	InboxDir   string
	ArchiveDir string
	BadDir     string
	// Settle is how long a file must stay unmodified before it is picked up.
	Settle time.Duration
	// Interval is the readiness check period.
	Interval time.Duration
}

// Watcher emits inbox files once they stopped changing for Settle.
type Watcher struct {
	cfg    Config
	logger *zap.Logger

	mu         sync.Mutex
	lastSeen   map[string]time.Time
	processing map[string]bool
	now        func() time.Time
}

func NewWatcher(cfg Config, logger *zap.Logger) (*Watcher, error) {
	for _, dir := range []string{cfg.InboxDir, cfg.ArchiveDir, cfg.BadDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		cfg:        cfg,
		logger:     logger.Named("watcher"),
		lastSeen:   make(map[string]time.Time),
		processing: make(map[string]bool),
		now:        time.Now,
	}, nil
}

// Watch runs until ctx is done. Ready files are sent to out; the receiver
// must call Done for each once it has moved the file away.
func (w *Watcher) Watch(ctx context.Context, out chan<- string) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fs watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.cfg.InboxDir); err != nil {
		return fmt.Errorf("watch %s: %w", w.cfg.InboxDir, err)
	}

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.logger.Info("start monitoring folder", zap.String("dir", w.cfg.InboxDir))
	defer w.logger.Info("file watcher stopped")

	// files already waiting at startup
	w.scan()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("fs watcher error", zap.Error(err))
		case <-ticker.C:
			w.scan()
			for _, path := range w.ready() {
				select {
				case out <- path:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		if w.processing[ev.Name] {
			return
		}
		if _, known := w.lastSeen[ev.Name]; !known {
			w.logger.Debug("new file detected", zap.String("file", ev.Name))
		}
		w.lastSeen[ev.Name] = w.now()
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		if !w.processing[ev.Name] {
			delete(w.lastSeen, ev.Name)
		}
	}
}

// scan picks up regular files that arrived without an event and forgets vanished ones.
func (w *Watcher) scan() {
	entries, err := os.ReadDir(w.cfg.InboxDir)
	if err != nil {
		w.logger.Warn("read inbox", zap.Error(err))
		return
	}
	present := make(map[string]bool, len(entries))

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		path := filepath.Join(w.cfg.InboxDir, e.Name())
		present[path] = true
		if _, ok := w.lastSeen[path]; !ok && !w.processing[path] {
			w.lastSeen[path] = w.now()
		}
	}
	for path := range w.lastSeen {
		if !present[path] && !w.processing[path] {
			delete(w.lastSeen, path)
		}
	}
}

// ready marks and returns files that have settled.
func (w *Watcher) ready() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	now := w.now()
	for path, seen := range w.lastSeen {
		if w.processing[path] || now.Sub(seen) < w.cfg.Settle {
			continue
		}
		w.processing[path] = true
		out = append(out, path)
	}
	return out
}

// Done releases path after the receiver handled it.
func (w *Watcher) Done(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.processing, path)
	delete(w.lastSeen, path)
}

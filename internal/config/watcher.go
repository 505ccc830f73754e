package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchInterval is how often a [Watcher] polls when no interval is set.
const DefaultWatchInterval = 5 * time.Second

// ChangeFunc receives the previous and the freshly loaded config after a
// successful reload. Both are validated.
type ChangeFunc func(old, updated *Config)

// Watcher keeps the most recent valid config loaded from a file and reloads it
// on edits. An edit that fails to parse or validate is logged and the
// previous config stays in effect.
type Watcher struct {
	path     string
	interval time.Duration

	mu      sync.Mutex
	current *Config
	stamp   fileStamp
}

// fileStamp identifies one version of the file. The modification time is a
// cheap pre-check; the digest decides.
type fileStamp struct {
	mod time.Time
	sum [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads the file at path. It fails when the initial config cannot
// be loaded; watching starts with [Watcher.Run].
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{path: path, interval: DefaultWatchInterval}
	for _, opt := range opts {
		opt(w)
	}
	cfg, stamp, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	w.current, w.stamp = cfg, stamp
	return w, nil
}

// Path returns the watched file path.
func (w *Watcher) Path() string { return w.path }

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Reload checks the file once. It returns the previous config and true when
// the content changed and the new config was accepted. A touch without a
// content change is not a change.
func (w *Watcher) Reload() (old *Config, changed bool, err error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, false, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if info.ModTime().Equal(w.stamp.mod) {
		return nil, false, nil
	}
	cfg, stamp, err := w.read()
	if err != nil {
		return nil, false, err
	}
	if stamp.sum == w.stamp.sum {
		w.stamp.mod = stamp.mod
		return nil, false, nil
	}
	old = w.current
	w.current, w.stamp = cfg, stamp
	return old, true, nil
}

// Run watches the file until ctx is cancelled and calls onChange after every
// accepted reload. Filesystem notifications trigger an immediate check; the
// polling interval still applies when notifications are unavailable or
// missed. It always returns nil.
func (w *Watcher) Run(ctx context.Context, onChange ChangeFunc) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	events, closeNotify := w.notify()
	defer closeNotify()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-events:
		}
		old, changed, err := w.Reload()
		if err != nil {
			slog.Warn("config reload failed; keeping previous config", "path", w.path, "err", err)
			continue
		}
		if !changed {
			continue
		}
		slog.Info("configuration reloaded", "path", w.path)
		if onChange != nil {
			onChange(old, w.Current())
		}
	}
}

// notify subscribes to writes of the watched file. The directory is watched
// so that editors replacing the file by rename are seen too. When the
// subscription fails the returned channel never fires.
func (w *Watcher) notify() (<-chan struct{}, func()) {
	out := make(chan struct{}, 1)
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Debug("config watch falls back to polling", "err", err)
		return out, func() {}
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		slog.Debug("config watch falls back to polling", "err", err)
		return out, func() {}
	}

	target := filepath.Clean(w.path)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
					continue
				}
				select {
				case out <- struct{}{}:
				default:
				}
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				slog.Debug("config watch error", "path", w.path, "err", err)
			}
		}
	}()
	return out, func() {
		close(done)
		fw.Close()
	}
}

func (w *Watcher) read() (*Config, fileStamp, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fileStamp{}, err
	}
	return cfg, fileStamp{mod: info.ModTime(), sum: sha256.Sum256(data)}, nil
}

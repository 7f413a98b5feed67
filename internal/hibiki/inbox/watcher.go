// Package inbox turns files dropped into a directory into commands.
//
// Each regular file is one command: its trimmed content is submitted and the
// file is removed. Files are picked up after writes have settled for the
// debounce interval, so a writer that creates and then fills a file is read
// once, complete. Hidden files (leading dot) are ignored, which lets writers
// stage content under a dot name and rename it into place.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a file must stay quiet before it is read.
const DefaultDebounce = 300 * time.Millisecond

// MaxCommandBytes bounds the size of a command file.
const MaxCommandBytes = 64 << 10

// Submit receives the text of one command file.
type Submit func(ctx context.Context, text string)

// Watcher watches one directory.
type Watcher struct {
	dir      string
	submit   Submit
	debounce time.Duration
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the settle interval. Non-positive values keep the default.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// New returns a watcher for dir. The directory is created by Run if missing.
func New(dir string, submit Submit, opts ...Option) *Watcher {
	w := &Watcher{dir: dir, submit: submit, debounce: DefaultDebounce}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string {
	return w.dir
}

// Run processes files already present, then watches for new ones until ctx
// is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o700); err != nil {
		return fmt.Errorf("inbox: create %s: %w", w.dir, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("inbox: create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("inbox: watch %s: %w", w.dir, err)
	}
	slog.Info("inbox: watching", "dir", w.dir)

	pending := make(map[string]time.Time)
	if entries, err := os.ReadDir(w.dir); err == nil {
		now := time.Now()
		for _, e := range entries {
			if e.Type().IsRegular() && !hidden(e.Name()) {
				pending[filepath.Join(w.dir, e.Name())] = now
			}
		}
	}

	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("inbox: stopped", "dir", w.dir)
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if hidden(filepath.Base(ev.Name)) {
				continue
			}
			switch {
			case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
				pending[ev.Name] = time.Now()
			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				delete(pending, ev.Name)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("inbox: watcher error", "dir", w.dir, "err", err)

		case now := <-ticker.C:
			for path, last := range pending {
				if now.Sub(last) < w.debounce {
					continue
				}
				delete(pending, path)
				w.consume(ctx, path)
			}
		}
	}
}

// consume reads, removes and submits one file.
func (w *Watcher) consume(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err != nil {
		slog.Warn("inbox: stat failed", "path", path, "err", err)
		return
	}
	if !info.Mode().IsRegular() {
		return
	}
	if info.Size() > MaxCommandBytes {
		slog.Warn("inbox: command file too large; discarding", "path", path, "size", info.Size())
		w.remove(path)
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("inbox: read failed", "path", path, "err", err)
		return
	}
	w.remove(path)

	text := strings.TrimSpace(string(data))
	if text == "" {
		slog.Debug("inbox: empty command file", "path", path)
		return
	}
	slog.Info("inbox: command received", "file", filepath.Base(path))
	w.submit(ctx, text)
}

func (w *Watcher) remove(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("inbox: remove failed", "path", path, "err", err)
	}
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

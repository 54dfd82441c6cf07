package filter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/aatumaykin/botsweep/internal/logger"
	"github.com/fsnotify/fsnotify"
)

// Watcher keeps a Filter compiled from inline lines plus a signature file,
// and recompiles it when the file changes on disk.
type Watcher struct {
	path    string
	inline  []string
	logger  *logger.Logger
	current atomic.Pointer[Filter]
}

// NewWatcher loads path once. An ErrEmptyFilter result is returned together
// with a usable Watcher; any other error leaves the Watcher nil.
func NewWatcher(path string, inline []string, log *logger.Logger) (*Watcher, error) {
	w := &Watcher{
		path:   filepath.Clean(path),
		inline: inline,
		logger: log,
	}
	if err := w.Reload(); err != nil {
		if errors.Is(err, ErrEmptyFilter) {
			return w, err
		}
		return nil, err
	}
	return w, nil
}

// Current returns the most recently compiled Filter.
func (w *Watcher) Current() *Filter {
	return w.current.Load()
}

// Reload re-reads the signature file. The previous Filter stays active when
// the file cannot be read or does not compile.
func (w *Watcher) Reload() error {
	lines, err := ReadLines(w.path)
	if err != nil {
		return err
	}

	f, err := Compile(append(append([]string{}, w.inline...), lines...))
	if f != nil {
		w.current.Store(f)
	}
	return err
}

// Run watches the directory holding the signature file until ctx is done.
// Editors often replace files instead of writing in place, so create and
// rename events on the file name trigger a reload as well.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create filter watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}

	w.logger.Info("watching bot filter file", logger.Field{Key: "path", Value: w.path})

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			err := w.Reload()
			if errors.Is(err, ErrEmptyFilter) {
				w.logger.Warn("bot filter reloaded empty, no session will be classified as bot",
					logger.Field{Key: "path", Value: w.path})
				continue
			}
			if err != nil {
				w.logger.Error("bot filter reload failed, keeping previous filter", err,
					logger.Field{Key: "path", Value: w.path})
				continue
			}
			w.logger.Info("bot filter reloaded",
				logger.Field{Key: "path", Value: w.path},
				logger.Field{Key: "fragments", Value: w.Current().Len()})

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("bot filter watcher error", logger.Field{Key: "error", Value: err})
		}
	}
}

// ReadLines returns the raw lines of a signature file.
func ReadLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bot filter file: %w", err)
	}
	return strings.Split(string(data), "\n"), nil
}

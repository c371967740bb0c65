package ingest

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/magic-research/ragd/internal/errors"
	"github.com/magic-research/ragd/internal/source"
)

// DefaultDebounce coalesces bursts of filesystem events into one
// re-ingest. Editors and sync tools commonly touch a file several times
// in quick succession.
const DefaultDebounce = 2 * time.Second

// Watcher re-ingests a directory when its documents change.
type Watcher struct {
	pipeline *Pipeline
	dir      string
	debounce time.Duration
	logger   *slog.Logger
}

// NewWatcher creates a watcher over dir. debounce <= 0 uses the default.
func NewWatcher(pipeline *Pipeline, dir string, debounce time.Duration, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		pipeline: pipeline,
		dir:      dir,
		debounce: debounce,
		logger:   logger,
	}
}

// Run watches until the context is cancelled. Relevant events schedule
// a debounced directory re-ingest.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.New(errors.ErrCodeInternal, "failed to create filesystem watcher", err)
	}
	defer func() { _ = fsw.Close() }()

	if err := w.addRecursive(fsw, w.dir); err != nil {
		return err
	}

	w.logger.Info("watching for document changes", "dir", w.dir, "debounce", w.debounce)

	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			// New directories need to be watched too.
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.addRecursive(fsw, event.Name)
				}
			}
			w.logger.Debug("document change detected", "path", event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerCh = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case <-timerCh:
			timer = nil
			timerCh = nil
			// Transient failures (embedding API hiccups) are retried with
			// backoff before giving up until the next change event.
			err := errors.Retry(ctx, errors.RetryConfig{
				MaxRetries:   2,
				InitialDelay: 5 * time.Second,
				MaxDelay:     30 * time.Second,
				Multiplier:   2.0,
			}, func() error {
				_, err := w.pipeline.IngestDirectory(ctx, w.dir)
				return err
			})
			if err != nil {
				w.logger.Error("watch-triggered ingest failed",
					"code", errors.GetCode(err), "error", err)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("filesystem watcher error", "error", err)
		}
	}
}

// relevant filters events down to supported document files and
// directory creations.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) &&
		!event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		return false
	}
	base := filepath.Base(event.Name)
	if len(base) > 0 && base[0] == '.' {
		return false
	}
	if source.Supported(event.Name) {
		return true
	}
	// Directory events do not carry an extension.
	info, err := os.Stat(event.Name)
	return err == nil && info.IsDir()
}

func (w *Watcher) addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && d.Name()[0] == '.' {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			return errors.New(errors.ErrCodeInternal, "failed to watch "+path, err)
		}
		return nil
	})
}

// Package watch turns raw file-system notifications into filtered change
// events for the live-reload pipeline: directory noise, irrelevant
// paths, echoes of our own writes and rapid-fire bursts are all dropped
// before anything reaches the subscribers.
package watch

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

	"github.com/elena-cabrera/markdown-os/internal/storage"
)

// Event is one external change that survived the filter pipeline.
type Event struct {
	Path string // resolved absolute path
	At   time.Time
}

// DefaultDebounce and DefaultSuppression are the filter windows used when
// the configuration leaves them unset.
const (
	DefaultDebounce    = 200 * time.Millisecond
	DefaultSuppression = 500 * time.Millisecond
)

// Config selects the watch target and the filter windows. Exactly one of
// TargetFile and Root must be set: TargetFile watches a single document
// through its parent directory, Root watches a workspace recursively.
type Config struct {
	TargetFile  string
	Root        string
	Extensions  []string      // folder-mode relevance filter, defaults to storage.DefaultExtensions
	Debounce    time.Duration // minimum interval between emitted events
	Suppression time.Duration // echo window after an internal write
}

// Run watches the configured target and delivers filtered events on the
// events channel until ctx is cancelled. Sends never block; if the
// channel is full the event is dropped and logged.
//
// New directories created at runtime are added to the watch list in
// folder mode. Rename events carry only the old path, whose resolution
// fails once the file is gone; the new path shows up as a Create.
func Run(ctx context.Context, cfg Config, marker *Marker, logger *slog.Logger, events chan<- Event) error {
	fileMode := cfg.TargetFile != ""
	if fileMode == (cfg.Root != "") {
		return errors.New("watch: exactly one of TargetFile and Root must be set")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Suppression <= 0 {
		cfg.Suppression = DefaultSuppression
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: create watcher: %w", err)
	}
	defer w.Close()

	var target, root string
	exts := make(map[string]struct{})
	if fileMode {
		target = cfg.TargetFile
		if resolved, rErr := filepath.EvalSymlinks(cfg.TargetFile); rErr == nil {
			target = resolved
		}
		if err := w.Add(filepath.Dir(target)); err != nil {
			return fmt.Errorf("watch: watch %s: %w", filepath.Dir(target), err)
		}
		logger.Info("watcher: started", slog.String("file", target))
	} else {
		root = cfg.Root
		if resolved, rErr := filepath.EvalSymlinks(cfg.Root); rErr == nil {
			root = resolved
		}
		if err := addDirsRecursive(w, root); err != nil {
			return fmt.Errorf("watch: watch %s: %w", root, err)
		}
		configured := cfg.Extensions
		if len(configured) == 0 {
			configured = storage.DefaultExtensions
		}
		for _, e := range configured {
			exts[strings.ToLower(e)] = struct{}{}
		}
		logger.Info("watcher: started", slog.String("root", root))
	}

	var lastEmit time.Time

	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher: stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			// Deletes never notify; Chmod churn is noise.
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}

			// Directory events are not content changes, but a new
			// directory extends the watch set in folder mode.
			if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
				if !fileMode && ev.Op&fsnotify.Create != 0 {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
					}
				}
				continue
			}

			// Resolution failure discards the event. This is how stale
			// rename-source paths die.
			resolved, rErr := filepath.EvalSymlinks(ev.Name)
			if rErr != nil {
				continue
			}

			if fileMode {
				if resolved != target {
					continue
				}
			} else {
				if !strings.HasPrefix(resolved, root+string(os.PathSeparator)) {
					continue
				}
				if _, ok := exts[strings.ToLower(filepath.Ext(resolved))]; !ok {
					continue
				}
			}

			if marker.Within(cfg.Suppression) {
				logger.Debug("watcher: suppressed own write", slog.String("path", resolved))
				continue
			}

			now := time.Now()
			if !lastEmit.IsZero() && now.Sub(lastEmit) < cfg.Debounce {
				continue
			}
			lastEmit = now

			select {
			case events <- Event{Path: resolved, At: now}:
				logger.Debug("watcher: change", slog.String("path", resolved))
			default:
				logger.Warn("watcher: event channel full, dropping", slog.String("path", resolved))
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}

package lucid

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/jward/lucid/internal/report"
	"github.com/jward/lucid/internal/source"
	"github.com/jward/lucid/internal/store"
)

// WatchOptions tunes Engine.Watch.
type WatchOptions struct {
	// Debounce is how long the tree must be quiet before a rebuild.
	Debounce time.Duration
	// MinInterval is the least time between two rebuilds.
	MinInterval time.Duration
}

func (o WatchOptions) withDefaults() WatchOptions {
	if o.Debounce <= 0 {
		o.Debounce = 300 * time.Millisecond
	}
	if o.MinInterval <= 0 {
		o.MinInterval = time.Second
	}
	return o
}

// Watch runs the pipeline on p once, then again whenever a Noir source under
// the root changes, handing every outcome to fn. Bursts of changes are
// debounced and rebuilds are rate limited. A rebuild is skipped when the
// sources hash the same as the last run. Watch returns when ctx is done.
func (e *Engine) Watch(ctx context.Context, p Project, opts WatchOptions, fn func(*Result, error)) error {
	opts = opts.withDefaults()
	root, err := filepath.Abs(p.Root)
	if err != nil {
		return fmt.Errorf("watch: resolve root: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer fsw.Close()
	if err := watchRecursive(fsw, root); err != nil {
		return fmt.Errorf("watch %s: %w", root, err)
	}

	limiter := rate.NewLimiter(rate.Every(opts.MinInterval), 1)
	lastHash := ""
	rebuild := func(reason string) error {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		hash, err := sourcesHash(root)
		if err == nil && hash == lastHash {
			e.reportWatch(ctx, slog.LevelDebug, "sources unchanged", reason)
			return nil
		}
		lastHash = hash
		e.reportWatch(ctx, slog.LevelInfo, "rebuilding", reason)
		res, runErr := e.Run(ctx, p)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fn(res, runErr)
		return nil
	}

	if err := rebuild("initial"); err != nil {
		return watchDone(ctx, err)
	}

	var timer *time.Timer
	var timerC <-chan time.Time
	changed := ""
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if !skipDir(filepath.Base(event.Name)) {
						if err := watchRecursive(fsw, event.Name); err != nil {
							e.reportWatch(ctx, slog.LevelWarn, "failed to watch new directory", event.Name)
						}
					}
					continue
				}
			}
			if !source.IsSourceFile(event.Name) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			changed = event.Name
			if timer == nil {
				timer = time.NewTimer(opts.Debounce)
			} else {
				timer.Reset(opts.Debounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			if err := rebuild(changed); err != nil {
				return watchDone(ctx, err)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			e.reportWatch(ctx, slog.LevelError, "watcher error", err.Error())
		}
	}
}

func (e *Engine) reportWatch(ctx context.Context, level slog.Level, msg, detail string) {
	e.reporter.Report(ctx, report.Event{
		Kind:    report.KindWatch,
		Level:   level,
		Message: msg,
		Attrs:   []slog.Attr{slog.String("detail", detail)},
	})
}

// watchDone turns cancellation into a clean stop.
func watchDone(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "target" || name == "node_modules"
}

func watchRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}

// sourcesHash digests every Noir source under root.
func sourcesHash(root string) (string, error) {
	hashes := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !source.IsSourceFile(path) {
			return nil
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		hashes[path] = store.ContentHash(src)
		return nil
	})
	if err != nil {
		return "", err
	}
	return store.TreeHash(hashes), nil
}

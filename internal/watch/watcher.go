// Package watch reports changes to a single file.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce collapses the burst of events an editor save produces.
const DefaultDebounce = 200 * time.Millisecond

// Change is one debounced modification of the watched file.
type Change struct {
	Path string
	// Removed is set when the file no longer exists after the burst.
	Removed bool
	At      time.Time
}

// Option configures Watch.
type Option func(*options)

type options struct {
	debounce time.Duration
	logger   *zap.Logger
}

// WithDebounce sets the quiet period before a change is reported.
func WithDebounce(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Watch reports changes to path until ctx is done, then closes the
// channel. The parent directory is watched so that editors which replace
// the file by rename are still seen.
func Watch(ctx context.Context, path string, opts ...Option) (<-chan Change, error) {
	o := options{debounce: DefaultDebounce, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}

	out := make(chan Change)
	go run(ctx, w, abs, o, out)
	return out, nil
}

func run(ctx context.Context, w *fsnotify.Watcher, path string, o options, out chan<- Change) {
	logger := o.logger.Named("watch")
	defer close(out)
	defer w.Close()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	pending := false
	removed := false
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			switch {
			case ev.Op.Has(fsnotify.Create), ev.Op.Has(fsnotify.Write):
				removed = false
			case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
				removed = true
			default:
				continue
			}
			logger.Debug("file event", zap.String("path", ev.Name), zap.String("op", ev.Op.String()))
			pending = true
			timer.Reset(o.debounce)

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logger.Warn("watch error", zap.Error(err))

		case <-timer.C:
			if !pending {
				continue
			}
			pending = false
			select {
			case out <- Change{Path: path, Removed: removed, At: time.Now()}:
			case <-ctx.Done():
				return
			}
		}
	}
}

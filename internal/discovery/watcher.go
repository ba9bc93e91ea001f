package discovery

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"shelver/internal/logging"
)

// pendingFile is a path waiting out its quiet window.
type pendingFile struct {
	timer   *time.Timer
	size    int64
	modTime time.Time
}

// Watcher emits files under the roots once they stop changing.
type Watcher struct {
	watcher   *fsnotify.Watcher
	validator *Validator
	quiet     time.Duration
	recursive bool
	emit      func(ctx context.Context, path string, info fs.FileInfo)
	logger    *slog.Logger

	mu      sync.Mutex
	pending map[string]*pendingFile
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher registers the roots with fsnotify. emit is called from timer
// goroutines and may block.
func NewWatcher(roots []string, recursive bool, quiet time.Duration, validator *Validator, emit func(ctx context.Context, path string, info fs.FileInfo), logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		watcher:   fsw,
		validator: validator,
		quiet:     quiet,
		recursive: recursive,
		emit:      emit,
		logger:    logger,
		pending:   make(map[string]*pendingFile),
	}
	for _, root := range roots {
		if err := w.addDir(root); err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

// addDir watches dir and, when recursive, every non-excluded directory below
// it.
func (w *Watcher) addDir(dir string) error {
	if !w.recursive {
		return w.watcher.Add(dir)
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.validator != nil && w.validator.SkipDir(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Debug("watch add failed", logging.String("dir", path), logging.Error(err))
		}
		return nil
	})
}

// Start begins processing events until ctx ends or Close is called.
func (w *Watcher) Start(ctx context.Context) {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Go(w.run)
}

// Close stops the watcher and cancels pending quiet-window timers.
func (w *Watcher) Close() error {
	w.mu.Lock()
	w.closed = true
	for path, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
	}
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

// Pending returns the number of paths waiting out their quiet window.
func (w *Watcher) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.WarnWithContext(w.logger, "filesystem watch error", "watch_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "missed events are recovered by the next reconcile scan"),
			)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.forget(event.Name)
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	info, err := os.Stat(event.Name)
	if err != nil {
		w.forget(event.Name)
		return
	}
	if info.IsDir() {
		if event.Has(fsnotify.Create) && w.recursive && (w.validator == nil || !w.validator.SkipDir(event.Name)) {
			w.adoptDir(event.Name)
		}
		return
	}
	w.schedule(event.Name, info)
}

// adoptDir watches a directory created at runtime and schedules the files
// already inside it, which produce no events of their own.
func (w *Watcher) adoptDir(dir string) {
	if err := w.addDir(dir); err != nil {
		w.logger.Debug("watch new directory failed", logging.String("dir", dir), logging.Error(err))
		return
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && w.validator != nil && w.validator.SkipDir(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if info, err := d.Info(); err == nil {
			w.schedule(path, info)
		}
		return nil
	})
}

// schedule (re)starts the quiet window for path.
func (w *Watcher) schedule(path string, info fs.FileInfo) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if p, ok := w.pending[path]; ok {
		p.timer.Stop()
	}
	p := &pendingFile{size: info.Size(), modTime: info.ModTime()}
	p.timer = time.AfterFunc(w.quiet, func() { w.settle(path, p) })
	w.pending[path] = p
}

// settle emits path when it has not changed since it was scheduled and
// otherwise waits another quiet window.
func (w *Watcher) settle(path string, p *pendingFile) {
	info, err := os.Stat(path)
	w.mu.Lock()
	if w.closed || w.pending[path] != p {
		w.mu.Unlock()
		return
	}
	if err != nil {
		delete(w.pending, path)
		w.mu.Unlock()
		if !errors.Is(err, fs.ErrNotExist) {
			w.logger.Debug("stat after quiet window failed", logging.String("path", path), logging.Error(err))
		}
		return
	}
	if info.Size() != p.size || !info.ModTime().Equal(p.modTime) {
		p.size = info.Size()
		p.modTime = info.ModTime()
		p.timer = time.AfterFunc(w.quiet, func() { w.settle(path, p) })
		w.mu.Unlock()
		return
	}
	delete(w.pending, path)
	w.mu.Unlock()

	w.emit(w.ctx, path, info)
}

func (w *Watcher) forget(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if p, ok := w.pending[path]; ok {
		p.timer.Stop()
		delete(w.pending, path)
	}
}

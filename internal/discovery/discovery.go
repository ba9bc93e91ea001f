package discovery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"shelver/internal/config"
	"shelver/internal/coordinator"
	"shelver/internal/logging"
	"shelver/internal/queue"
	"shelver/internal/services"
	"shelver/internal/stage"
)

const recentCapacity = 4096

// Submitter accepts discovered paths.
type Submitter interface {
	SubmitPath(ctx context.Context, path string, priority coordinator.Priority) error
	TrySubmitPath(path string, priority coordinator.Priority) bool
}

// ActiveLookup finds the non-terminal item recorded for a source path.
type ActiveLookup interface {
	ActiveByPath(ctx context.Context, path string) (*queue.Item, error)
}

type observation struct {
	size    int64
	modTime time.Time
}

// Service runs the watcher and the reconcile scanner.
type Service struct {
	cfg       config.Watch
	validator *Validator
	lookup    ActiveLookup
	submit    Submitter
	logger    *slog.Logger
	recent    *lru.Cache[string, observation]
	scanner   *Scanner
	interval  time.Duration
	quiet     time.Duration

	mu      sync.Mutex
	watcher *Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds a discovery service for the configured roots.
func New(cfg *config.Config, lookup ActiveLookup, submit Submitter, logger *slog.Logger) (*Service, error) {
	validator, err := NewValidator(cfg.Watch)
	if err != nil {
		return nil, err
	}
	recent, err := lru.New[string, observation](recentCapacity)
	if err != nil {
		return nil, err
	}
	s := &Service{
		cfg:       cfg.Watch,
		validator: validator,
		lookup:    lookup,
		submit:    submit,
		logger:    logging.NewComponentLogger(logger, "discovery"),
		recent:    recent,
		interval:  cfg.ReconcileInterval(),
		quiet:     cfg.QuietWindow(),
	}
	s.scanner = &Scanner{
		roots:     cfg.Watch.Roots,
		recursive: cfg.Watch.Recursive,
		interval:  s.interval,
		validator: validator,
		offer:     s.offerScanned,
		logger:    s.logger,
	}
	return s, nil
}

// Start registers the watches and launches the watcher and scanner.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("discovery already running")
	}
	watcher, err := NewWatcher(s.cfg.Roots, s.cfg.Recursive, s.quiet, s.validator, func(ctx context.Context, path string, info fs.FileInfo) {
		s.offer(ctx, path, info, true)
	}, s.logger)
	if err != nil {
		return fmt.Errorf("watch roots: %w", err)
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.watcher = watcher
	s.cancel = cancel
	watcher.Start(runCtx)
	s.wg.Go(func() { s.scanner.Run(runCtx) })

	s.logger.Info(
		"discovery started",
		logging.Any("roots", s.cfg.Roots),
		logging.Bool("recursive", s.cfg.Recursive),
		logging.Duration("quiet_window", s.quiet),
		logging.Duration("reconcile_interval", s.interval),
	)
	return nil
}

// Stop closes the watcher and waits for the scanner.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel, watcher := s.cancel, s.watcher
	s.cancel, s.watcher = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if err := watcher.Close(); err != nil {
		s.logger.Debug("closing watcher", logging.Error(err))
	}
	s.wg.Wait()
	s.logger.Info("discovery stopped")
}

// Reconcile runs a single scan pass.
func (s *Service) Reconcile(ctx context.Context) ScanResult {
	return s.scanner.pass(ctx)
}

// Settle records the registration outcome of a submitted path. A failed
// path is forgotten so the next scan offers it again, except after a
// permission failure: that path stays remembered until its size or mtime
// changes.
func (s *Service) Settle(path string, err error) {
	if err != nil && !errors.Is(err, services.ErrPermission) {
		s.recent.Remove(path)
	}
}

// offerScanned holds a scanned file to the quiet window. A file modified
// within the window is handed to the running watcher, or left for the next
// pass when no watcher runs.
func (s *Service) offerScanned(ctx context.Context, path string, info fs.FileInfo) offerResult {
	if time.Since(info.ModTime()) >= s.quiet {
		return s.offer(ctx, path, info, false)
	}
	if rejection := s.validator.Check(path, info); rejection != nil {
		return offerSkipped
	}
	s.mu.Lock()
	watcher := s.watcher
	s.mu.Unlock()
	if watcher != nil {
		watcher.schedule(path, info)
	}
	s.logger.Debug("file still settling", logging.String("path", path), logging.Bool("handed_to_watcher", watcher != nil))
	return offerDeferred
}

// offer validates and submits one file. blocking selects SubmitPath over
// TrySubmitPath.
func (s *Service) offer(ctx context.Context, path string, info fs.FileInfo, blocking bool) offerResult {
	if rejection := s.validator.Check(path, info); rejection != nil {
		s.logger.Debug("file rejected", logging.String("path", path), logging.String("reason", rejection.Reason))
		return offerSkipped
	}
	obs := observation{size: info.Size(), modTime: info.ModTime()}
	if prev, ok := s.recent.Get(path); ok && prev.size == obs.size && prev.modTime.Equal(obs.modTime) {
		return offerSkipped
	}
	item, err := s.lookup.ActiveByPath(ctx, path)
	if err != nil {
		if ctx.Err() == nil {
			logging.WarnWithContext(s.logger, "active item lookup failed", "discovery_lookup_failed",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldImpact, "file is offered again by the next reconcile scan"),
			)
		}
		return offerSkipped
	}
	if item != nil {
		return offerSkipped
	}

	// Recorded before submitting so a fast Settle finds the entry.
	s.recent.Add(path, obs)
	if blocking {
		if err := s.submit.SubmitPath(ctx, path, coordinator.PriorityNormal); err != nil {
			s.recent.Remove(path)
			if !errors.Is(err, coordinator.ErrClosed) && ctx.Err() == nil {
				s.logger.Debug("submit failed", logging.String("path", path), logging.Error(err))
			}
			return offerSkipped
		}
	} else if !s.submit.TrySubmitPath(path, coordinator.PriorityNormal) {
		s.recent.Remove(path)
		return offerFull
	}
	s.logger.Debug("file offered", logging.String("path", path), logging.Int64("size_bytes", obs.size))
	return offerQueued
}

// HealthCheck reports whether every watch root is reachable.
func (s *Service) HealthCheck(_ context.Context) stage.Health {
	const name = "discovery"
	for _, root := range s.cfg.Roots {
		info, err := os.Stat(root)
		if err != nil {
			return stage.Unhealthy(name, fmt.Sprintf("watch root unavailable: %v", err))
		}
		if !info.IsDir() {
			return stage.Unhealthy(name, fmt.Sprintf("watch root %s is not a directory", root))
		}
	}
	return stage.Healthy(name)
}

package discovery

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"shelver/internal/logging"
)

// offerResult is the outcome of offering one file.
type offerResult int

const (
	offerSkipped offerResult = iota
	offerQueued
	offerFull
	offerDeferred
)

var errQueueFull = errors.New("registration queue full")

// ScanResult summarizes one reconcile pass.
type ScanResult struct {
	Seen     int
	Queued   int
	Deferred int
	Stopped  bool
}

// Scanner walks the roots looking for files the watcher missed.
type Scanner struct {
	roots     []string
	recursive bool
	interval  time.Duration
	validator *Validator
	offer     func(ctx context.Context, path string, info fs.FileInfo) offerResult
	logger    *slog.Logger
}

// Run performs a pass immediately and then one per interval until ctx ends.
func (s *Scanner) Run(ctx context.Context) {
	s.pass(ctx)
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pass(ctx)
		}
	}
}

func (s *Scanner) pass(ctx context.Context) ScanResult {
	start := time.Now()
	var result ScanResult
	for _, root := range s.roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == root {
					return err
				}
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if d.IsDir() {
				if path == root {
					return nil
				}
				if !s.recursive || s.validator.SkipDir(path) {
					return filepath.SkipDir
				}
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			result.Seen++
			switch s.offer(ctx, path, info) {
			case offerQueued:
				result.Queued++
			case offerDeferred:
				result.Deferred++
			case offerFull:
				return errQueueFull
			}
			return nil
		})
		if errors.Is(err, errQueueFull) {
			result.Stopped = true
			break
		}
		if err != nil && ctx.Err() == nil {
			logging.WarnWithContext(s.logger, "reconcile walk failed", "reconcile_walk_failed",
				logging.String("root", root),
				logging.Error(err),
				logging.String(logging.FieldImpact, "files under this root are only found by the watcher"),
				logging.String(logging.FieldErrorHint, "check that the watch root exists and is readable"),
			)
		}
	}
	s.logger.Debug(
		"reconcile pass finished",
		logging.Int("seen", result.Seen),
		logging.Int("queued", result.Queued),
		logging.Int("deferred", result.Deferred),
		logging.Bool("stopped_on_full_queue", result.Stopped),
		logging.Duration("elapsed", time.Since(start)),
	)
	return result
}

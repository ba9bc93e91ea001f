package workflow

import (
	"context"
	"errors"
	"time"

	"shelver/internal/coordinator"
	"shelver/internal/logging"
	"shelver/internal/queue"
	"shelver/internal/services"
)

// Start restores spilled paths, re-arms in-flight items and launches the
// coordinator, the organize pool and the dispatcher.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if m.store == nil || m.classifier == nil || m.mover == nil {
		m.mu.Unlock()
		return errors.New("workflow dependencies not configured")
	}
	m.mu.Unlock()

	m.runPreflightChecks(ctx)

	pending, err := m.store.TakePendingPaths(ctx)
	if err != nil {
		return err
	}
	if reset, err := m.store.ResetInFlight(ctx); err != nil {
		return err
	} else if reset > 0 {
		m.logger.Info("re-armed in-flight items", logging.Int64("count", reset))
	}
	if err := m.coord.Start(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	runCtx, cancel := context.WithCancel(ctx)
	organizeCtx, organizeCancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel
	m.organizeCancel = organizeCancel
	m.running = true
	m.mu.Unlock()

	for i := range max(m.cfg.Queue.OrganizeWorkers, 1) {
		m.organizeWG.Go(func() { m.organizeWorker(organizeCtx, i) })
	}
	m.wg.Go(func() { m.runDispatcher(runCtx, pending) })

	m.logger.Info(
		"workflow started",
		logging.Int("restored_paths", len(pending)),
		logging.Int("organize_workers", max(m.cfg.Queue.OrganizeWorkers, 1)),
		logging.Duration("poll_interval", m.pollInterval),
	)
	return nil
}

// Stop shuts down gracefully: the dispatcher stops polling, queued paths are
// spilled to the store and in-flight work gets the configured grace period.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	organizeCancel := m.organizeCancel
	m.running = false
	m.cancel = nil
	m.organizeCancel = nil
	m.mu.Unlock()

	deadline := time.Now().Add(m.grace)
	cancel()
	m.wg.Wait()

	m.organize.Close()
	m.coord.Shutdown(m.grace)

	done := make(chan struct{})
	go func() {
		m.organizeWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Until(deadline)):
		logging.WarnWithContext(m.logger, "organize grace elapsed; cancelling moves", "organize_shutdown_timeout",
			logging.String(logging.FieldImpact, "interrupted moves are rolled back or forward at next start"),
		)
		organizeCancel()
		<-done
	}
	organizeCancel()
	for _, fp := range m.organize.Drain() {
		m.locks.Release(fp)
	}
	m.logger.Info("workflow stopped")
}

// spill persists registration leftovers. Classification leftovers are
// already processing in the store and are re-armed at the next start.
func (m *Manager) spill(ctx context.Context, leftovers coordinator.Leftovers) {
	if len(leftovers.Paths) == 0 {
		return
	}
	if err := m.store.SavePendingPaths(ctx, leftovers.Paths); err != nil {
		logging.WarnWithContext(m.logger, "failed to persist pending paths", "spill_failed",
			logging.Int("paths", len(leftovers.Paths)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "paths are rediscovered by the startup reconcile scan"),
		)
	}
}

func (m *Manager) runDispatcher(ctx context.Context, pending []string) {
	logger := m.logger.With(logging.String("component", "workflow-dispatcher"))
	for _, path := range pending {
		if err := m.coord.SubmitPath(ctx, path, coordinator.PriorityNormal); err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, coordinator.ErrClosed) {
				logger.Warn("failed to restore pending path", logging.String("path", path), logging.Error(err))
			}
			// Unsubmitted paths go back to the store.
			m.spill(context.WithoutCancel(ctx), pendingFrom(pending, path))
			return
		}
	}

	for {
		if err := m.dispatch(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			m.handleDispatchError(ctx, err)
			continue
		}
		m.waitForItemOrShutdown(ctx)
		if ctx.Err() != nil {
			return
		}
	}
}

func pendingFrom(paths []string, from string) coordinator.Leftovers {
	for i, path := range paths {
		if path == from {
			return coordinator.Leftovers{Paths: paths[i:]}
		}
	}
	return coordinator.Leftovers{}
}

// dispatch performs one poll of the store.
func (m *Manager) dispatch(ctx context.Context) error {
	now := time.Now()

	due, err := m.store.DueForRetry(ctx, now)
	if err != nil {
		return err
	}
	for _, item := range due {
		if m.locks.IsClaimed(item.Fingerprint) {
			continue
		}
		if err := m.resume(ctx, item); err != nil {
			if errors.Is(err, queue.ErrInvalidTransition) {
				continue
			}
			return err
		}
	}

	reset, err := m.store.QueryByStatus(ctx, queue.StatusNew)
	if err != nil {
		return err
	}
	for _, item := range reset {
		if err := m.startProcessing(ctx, item.Fingerprint, coordinator.PriorityHigh); err != nil {
			return err
		}
	}

	stalled, err := m.store.DueProcessing(ctx, now)
	if err != nil {
		return err
	}
	for _, item := range stalled {
		if _, err := m.coord.SubmitFingerprint(ctx, item.Fingerprint, coordinator.PriorityNormal); err != nil {
			return err
		}
	}

	classified, err := m.store.QueryByStatus(ctx, queue.StatusClassified)
	if err != nil {
		return err
	}
	for _, item := range classified {
		// An auto decision interrupted before it was marked ready.
		if item.Decision == queue.DecisionAuto && !m.locks.IsClaimed(item.Fingerprint) {
			if err := m.markReady(ctx, item.Fingerprint); err != nil && !errors.Is(err, queue.ErrInvalidTransition) {
				return err
			}
		}
	}

	ready, err := m.store.QueryByStatus(ctx, queue.StatusReadyToMove)
	if err != nil {
		return err
	}
	for _, item := range ready {
		if !m.locks.TryClaim(item.Fingerprint) {
			continue
		}
		if err := m.organize.Push(ctx, item.Fingerprint, coordinator.PriorityNormal); err != nil {
			m.locks.Release(item.Fingerprint)
			return err
		}
	}
	return nil
}

// resume moves a due error or retry item back to processing and submits it.
func (m *Manager) resume(ctx context.Context, item *queue.Item) error {
	unlock, err := m.locks.Lock(ctx, item.Fingerprint)
	if err != nil {
		return err
	}
	status := item.Status
	if status == queue.StatusError {
		if _, err := m.store.Transition(ctx, item.Fingerprint, queue.StatusError, queue.StatusRetry, nil); err != nil {
			unlock()
			return err
		}
		status = queue.StatusRetry
	}
	updated, err := m.store.Transition(ctx, item.Fingerprint, status, queue.StatusProcessing, func(it *queue.Item) {
		it.ClearError()
	})
	unlock()
	if err != nil {
		return err
	}
	m.itemLogger(ctx, updated, "dispatch").Info(
		"retrying item",
		logging.Int("retry_count", updated.RetryCount),
		logging.String("previous_error", string(item.ErrorKind)),
	)
	_, err = m.coord.SubmitFingerprint(ctx, updated.Fingerprint, coordinator.PriorityNormal)
	return err
}

// startProcessing moves a new item to processing and forwards it to
// classification.
func (m *Manager) startProcessing(ctx context.Context, fp string, priority coordinator.Priority) error {
	unlock, err := m.locks.Lock(ctx, fp)
	if err != nil {
		return err
	}
	_, err = m.store.Transition(ctx, fp, queue.StatusNew, queue.StatusProcessing, func(it *queue.Item) {
		it.ClearError()
	})
	unlock()
	if err != nil {
		if errors.Is(err, queue.ErrInvalidTransition) {
			return nil
		}
		return err
	}
	_, err = m.coord.SubmitFingerprint(ctx, fp, priority)
	return err
}

func (m *Manager) organizeWorker(ctx context.Context, id int) {
	for {
		fp, err := m.organize.Pop(ctx)
		if err != nil {
			return
		}
		m.organizeOne(ctx, id, fp)
		m.locks.Release(fp)
	}
}

func (m *Manager) organizeOne(ctx context.Context, id int, fp string) {
	unlock, err := m.locks.Lock(ctx, fp)
	if err != nil {
		return
	}
	defer unlock()
	ctx = services.WithFingerprint(ctx, fp)
	item, err := m.mover.Organize(ctx, fp)
	if item != nil {
		m.setLastItem(item)
	}
	if err == nil {
		return
	}
	if errors.Is(err, queue.ErrInvalidTransition) || errors.Is(err, queue.ErrNotFound) {
		m.logger.Debug("organize skipped", logging.Int("worker", id), logging.String("fingerprint", fp), logging.Error(err))
		return
	}
	m.setLastError(err)
}

func (m *Manager) handleDispatchError(ctx context.Context, err error) {
	m.setLastError(err)
	logging.ErrorWithContext(m.logger, "dispatch poll failed", "dispatch_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check queue database access"),
	)
	m.waitForItemOrShutdown(ctx)
}

func (m *Manager) waitForItemOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(m.pollInterval):
	}
}

package workflow

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"shelver/internal/classification"
	"shelver/internal/coordinator"
	"shelver/internal/fingerprint"
	"shelver/internal/logging"
	"shelver/internal/notifications"
	"shelver/internal/queue"
	"shelver/internal/services"
	"shelver/internal/textutil"
)

const (
	stageRegistration   = "registration"
	stageClassification = "classification"
)

// register fingerprints a discovered path, records it and returns the
// fingerprint to classify. Content that is already tracked past processing
// is reconciled silently.
func (m *Manager) register(ctx context.Context, task coordinator.Task) (fp string, err error) {
	path := task.Path
	defer func() {
		if m.onRegistered != nil {
			m.onRegistered(path, err)
		}
	}()
	ctx = services.WithRequestID(services.WithStage(ctx, stageRegistration), uuid.NewString())

	digest, err := fingerprint.File(ctx, path)
	if err != nil {
		return "", err
	}
	ctx = services.WithFingerprint(ctx, digest.Hex)

	unlock, err := m.locks.Lock(ctx, digest.Hex)
	if err != nil {
		return "", err
	}
	defer unlock()

	name := filepath.Base(path)
	markers := textutil.ParseMarkers(name)
	item, created, err := m.store.Register(ctx, queue.Candidate{
		Fingerprint: digest.Hex,
		SourcePath:  path,
		DisplayName: name,
		SizeBytes:   digest.Size,
		Season:      markers.Season,
		Episode:     markers.Episode,
		Year:        markers.Year,
	})
	if err != nil {
		return "", err
	}
	logger := m.itemLogger(ctx, item, stageRegistration)

	switch item.Status {
	case queue.StatusNew:
		updated, err := m.store.Transition(ctx, item.Fingerprint, queue.StatusNew, queue.StatusProcessing, nil)
		if err != nil {
			if errors.Is(err, queue.ErrInvalidTransition) {
				return item.Fingerprint, nil
			}
			return "", err
		}
		m.setLastItem(updated)
		logger.Info(
			"file registered",
			logging.String("source", path),
			logging.Int64("size_bytes", digest.Size),
			logging.Bool("created", created),
		)
		m.publishDiscovered(ctx, updated)
		return updated.Fingerprint, nil
	case queue.StatusProcessing:
		return item.Fingerprint, nil
	default:
		logger.Info(
			"content already tracked",
			logging.String("source", path),
			logging.String("tracked_source", item.SourcePath),
			logging.String("status", string(item.Status)),
		)
		return "", nil
	}
}

// classify runs one batch through the decision engine. Locks are held only
// around store updates, never across the classifier call.
func (m *Manager) classify(ctx context.Context, batch []coordinator.Task) {
	ctx = services.WithRequestID(services.WithStage(ctx, stageClassification), uuid.NewString())

	reqs := make([]classification.Request, 0, len(batch))
	for _, task := range batch {
		item, ok := m.prepareClassification(ctx, task.Fingerprint)
		if !ok {
			continue
		}
		reqs = append(reqs, classification.Request{Fingerprint: item.Fingerprint, DisplayName: item.DisplayName})
	}
	if len(reqs) == 0 {
		return
	}

	start := time.Now()
	outcomes := m.classifier.Run(ctx, reqs)
	m.logger.Debug(
		"classification batch finished",
		logging.Int("batch_size", len(reqs)),
		logging.Duration("elapsed", time.Since(start)),
	)
	for _, outcome := range outcomes {
		m.applyOutcome(ctx, outcome)
	}
}

// prepareClassification verifies an item still needs classifying. Items
// confirmed earlier, retrying after a failed move, skip the classifier.
func (m *Manager) prepareClassification(ctx context.Context, fp string) (*queue.Item, bool) {
	unlock, err := m.locks.Lock(ctx, fp)
	if err != nil {
		return nil, false
	}
	defer unlock()

	item, err := m.store.GetByFingerprint(ctx, fp)
	if err != nil {
		m.setLastError(err)
		m.logger.Warn("failed to load item for classification", logging.String("fingerprint", fp), logging.Error(err))
		return nil, false
	}
	if item == nil || item.Status != queue.StatusProcessing {
		return nil, false
	}
	if item.NextAttemptAt != nil && item.NextAttemptAt.After(time.Now()) {
		return nil, false
	}
	if item.Confirmed && item.Category != "" {
		m.shortCircuit(ctx, item)
		return nil, false
	}
	return item, true
}

func (m *Manager) shortCircuit(ctx context.Context, item *queue.Item) {
	now := time.Now().UTC()
	updated, err := m.store.Transition(ctx, item.Fingerprint, queue.StatusProcessing, queue.StatusClassified, func(it *queue.Item) {
		it.ClassifiedAt = &now
		it.ClearError()
	})
	if err == nil {
		updated, err = m.store.Transition(ctx, item.Fingerprint, queue.StatusClassified, queue.StatusReadyToMove, nil)
	}
	if err != nil {
		m.setLastError(err)
		m.itemLogger(ctx, item, stageClassification).Warn("failed to requeue confirmed item", logging.Error(err))
		return
	}
	m.setLastItem(updated)
	attrs := logging.DecisionAttrs("classification", "ready_to_move", "category already confirmed")
	attrs = append(attrs, logging.String("category", updated.Category))
	m.itemLogger(ctx, updated, stageClassification).Info("classification skipped", logging.Args(attrs...)...)
}

func (m *Manager) applyOutcome(ctx context.Context, outcome classification.Outcome) {
	fp := outcome.Request.Fingerprint
	itemCtx := services.WithFingerprint(ctx, fp)
	if outcome.Err != nil && ctx.Err() != nil {
		// Shutting down; the item stays processing and is re-armed on start.
		return
	}

	persistCtx := context.WithoutCancel(itemCtx)
	unlock, err := m.locks.Lock(persistCtx, fp)
	if err != nil {
		return
	}
	defer unlock()

	item, err := m.store.GetByFingerprint(persistCtx, fp)
	if err != nil || item == nil {
		if err != nil {
			m.setLastError(err)
		}
		return
	}
	logger := m.itemLogger(itemCtx, item, stageClassification)
	if item.Status != queue.StatusProcessing {
		logger.Debug("item changed during classification", logging.String("status", string(item.Status)))
		return
	}

	if outcome.Err != nil {
		if services.KindOf(outcome.Err) == services.KindClassifierUnavailable {
			m.postpone(persistCtx, logger, item, outcome.Err)
			return
		}
		m.handleFailure(itemCtx, logger, item, queue.StatusProcessing, outcome.Err)
		return
	}

	result := outcome.Result
	now := time.Now().UTC()
	updated, err := m.store.Transition(persistCtx, fp, queue.StatusProcessing, queue.StatusClassified, func(it *queue.Item) {
		it.Category = result.Category
		it.Confidence = result.Confidence
		it.Alternatives = result.Alternatives
		it.Decision = outcome.Decision
		it.ClassifiedAt = &now
		it.ClearError()
	})
	if err != nil {
		m.setLastError(err)
		logger.Warn("failed to persist classification", logging.Error(err))
		return
	}

	attrs := logging.DecisionAttrs("classification", string(outcome.Decision), decisionReason(outcome.Decision))
	attrs = append(attrs,
		logging.String("category", result.Category),
		logging.Float64("confidence", result.Confidence),
		logging.Int("alternatives", len(result.Alternatives)),
	)
	logger.Info("item classified", logging.Args(attrs...)...)
	m.publish(itemCtx, notifications.EventClassified, updated)

	if outcome.Decision != queue.DecisionAuto {
		m.publish(itemCtx, notifications.EventReadyForConfirmation, updated)
		m.setLastItem(updated)
		return
	}
	if err := m.markReady(persistCtx, fp); err != nil {
		m.setLastError(err)
		logger.Warn("failed to mark item ready", logging.Error(err))
	}
}

// markReady advances an automatically decided item to ready_to_move.
func (m *Manager) markReady(ctx context.Context, fp string) error {
	updated, err := m.store.Transition(ctx, fp, queue.StatusClassified, queue.StatusReadyToMove, func(it *queue.Item) {
		it.Confirmed = true
	})
	if err != nil {
		return err
	}
	m.setLastItem(updated)
	return nil
}

// postpone keeps the item processing until the classifier is expected back.
func (m *Manager) postpone(ctx context.Context, logger *slog.Logger, item *queue.Item, cause error) {
	until := time.Now().Add(m.unavailableDelay)
	if _, err := m.store.Postpone(ctx, item.Fingerprint, queue.StatusProcessing, until, services.KindClassifierUnavailable, cause.Error()); err != nil {
		m.setLastError(err)
		logger.Warn("failed to postpone classification", logging.Error(err))
		return
	}
	logging.WarnWithContext(logger, "classifier unavailable; classification postponed", "classifier_unavailable",
		logging.Error(cause),
		logging.String("next_attempt_at", until.UTC().Format(time.RFC3339)),
		logging.String(logging.FieldImpact, "item waits without consuming a retry"),
		logging.String(logging.FieldErrorHint, "check classifier.provider connectivity"),
	)
}

func decisionReason(decision queue.Decision) string {
	switch decision {
	case queue.DecisionAuto:
		return "confidence at or above auto threshold"
	case queue.DecisionSuggest:
		return "confidence between suggest and auto thresholds"
	default:
		return "confidence below suggest threshold"
	}
}

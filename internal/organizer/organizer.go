package organizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"shelver/internal/categories"
	"shelver/internal/config"
	"shelver/internal/fileutil"
	"shelver/internal/logging"
	"shelver/internal/notifications"
	"shelver/internal/queue"
	"shelver/internal/services"
	"shelver/internal/stage"
	"shelver/internal/txlog"
)

const stageName = "organizing"

// Organizer moves ready items into the library under journal protection.
type Organizer struct {
	cfg       *config.Config
	store     *queue.Store
	journal   *txlog.Journal
	registry  *categories.Registry
	publisher notifications.Publisher
	logger    *slog.Logger
	layout    Layout
	policy    queue.RetryPolicy

	// rename performs the first, possibly cross-device, rename attempt.
	rename func(src, dst string, replace bool) error
}

// New constructs an organizer.
func New(cfg *config.Config, store *queue.Store, journal *txlog.Journal, registry *categories.Registry, publisher notifications.Publisher, logger *slog.Logger) *Organizer {
	if publisher == nil {
		publisher = notifications.NopPublisher{}
	}
	return &Organizer{
		cfg:       cfg,
		store:     store,
		journal:   journal,
		registry:  registry,
		publisher: publisher,
		logger:    logging.NewComponentLogger(logger, "organizer"),
		layout:    LayoutFromConfig(cfg),
		policy:    queue.RetryPolicyFromConfig(cfg),
		rename:    fileutil.Rename,
	}
}

// moveResult describes a completed move.
type moveResult struct {
	target    string
	category  string
	duplicate bool
}

// Organize moves a ready_to_move item into the library. The returned item
// reflects the persisted outcome: moved on success, error on failure. A
// failure after the source was removed that cannot be completed inline leaves
// the item moving for Recover.
func (o *Organizer) Organize(ctx context.Context, fingerprint string) (*queue.Item, error) {
	item, err := o.store.Transition(ctx, fingerprint, queue.StatusReadyToMove, queue.StatusMoving, func(it *queue.Item) {
		it.ClearError()
	})
	if err != nil {
		return nil, err
	}

	ctx = services.WithStage(services.WithFingerprint(ctx, fingerprint), stageName)
	logger := logging.WithContext(ctx, o.logger)
	logger.Info(
		"starting organization",
		logging.String("source", item.SourcePath),
		logging.String("category", item.Category),
	)

	moveCtx, cancel := context.WithTimeout(ctx, o.cfg.MoveTimeout())
	defer cancel()

	tx := &txState{}
	result, err := o.move(moveCtx, item, tx)
	if err != nil {
		return o.fail(ctx, logger, item, tx, err)
	}
	return o.finish(ctx, logger, item, result)
}

func (o *Organizer) finish(ctx context.Context, logger *slog.Logger, item *queue.Item, result moveResult) (*queue.Item, error) {
	updated, err := o.markMoved(context.WithoutCancel(ctx), item.Fingerprint, result.target, result.category)
	if err != nil {
		return nil, err
	}
	reason := "moved into library"
	if result.duplicate {
		reason = "identical file already at target"
	}
	attrs := []logging.Attr{
		logging.String("target", result.target),
		logging.String("category", result.category),
	}
	attrs = append(attrs, logging.DecisionAttrs("organize", "moved", reason)...)
	logger.Info("organization completed", logging.Args(attrs...)...)
	o.publisher.Publish(ctx, notifications.EventMoved, notifications.Payload{
		"fingerprint": updated.Fingerprint,
		"name":        updated.DisplayName,
		"category":    result.category,
		"target":      result.target,
		"duplicate":   result.duplicate,
	})
	return updated, nil
}

func (o *Organizer) markMoved(ctx context.Context, fingerprint, target, category string) (*queue.Item, error) {
	now := time.Now().UTC()
	return o.store.Transition(ctx, fingerprint, queue.StatusMoving, queue.StatusMoved, func(it *queue.Item) {
		it.TargetPath = target
		if category != "" {
			it.Category = category
		}
		it.MovedAt = &now
		it.ClearError()
	})
}

// fail settles a failed move. When the source is already gone the move is
// completed instead; otherwise the temp file is removed, the transaction is
// aborted and the item moves to error.
func (o *Organizer) fail(ctx context.Context, logger *slog.Logger, item *queue.Item, tx *txState, cause error) (*queue.Item, error) {
	persistCtx := context.WithoutCancel(ctx)

	if tx.id != "" {
		sourceExists, _ := fileutil.Exists(item.SourcePath)
		targetExists, _ := fileutil.Exists(tx.target)
		if !sourceExists && (tx.phase.AtLeast(txlog.PhaseVerified) || targetExists) {
			entry, err := o.journal.Latest(persistCtx, tx.id)
			if err == nil {
				err = o.rollForward(persistCtx, entry)
			}
			if err == nil {
				logging.WarnWithContext(logger, "move completed after late failure", "organize_rolled_forward",
					logging.Error(cause),
					logging.String(logging.FieldImpact, "item moved despite an error in the final step"),
				)
				return o.finish(ctx, logger, item, moveResult{target: entry.ToPath, category: tx.category})
			}
			logging.ErrorWithContext(logger, "move left in doubt", "organize_in_doubt",
				logging.Error(cause),
				logging.String("roll_forward_error", err.Error()),
				logging.String(logging.FieldErrorHint, "restart the daemon to run move recovery"),
			)
			return nil, cause
		}
		o.rollBack(persistCtx, logger, tx.id, tx.temp)
	}

	kind := services.KindOf(cause)
	updated, err := o.store.Fail(persistCtx, item.Fingerprint, queue.StatusMoving, kind, cause.Error(), o.policy)
	if err != nil {
		logging.ErrorWithContext(logger, "failed to persist organization failure", "organize_persist_failed",
			logging.Error(err),
			logging.String("cause", cause.Error()),
		)
		return nil, cause
	}
	logging.ErrorWithContext(logger, "organization failed", "organize_failed",
		logging.Error(cause),
		logging.String("error_kind", string(kind)),
		logging.Int("retry_count", updated.RetryCount),
		logging.Bool("will_retry", updated.NextAttemptAt != nil),
		logging.String(logging.FieldErrorHint, organizeHint(kind)),
	)
	o.publisher.Publish(ctx, notifications.EventFailed, notifications.Payload{
		"fingerprint": updated.Fingerprint,
		"name":        updated.DisplayName,
		"kind":        string(kind),
		"error":       cause.Error(),
	})
	return updated, cause
}

// rollBack removes the temp file, if any, and appends aborted.
func (o *Organizer) rollBack(ctx context.Context, logger *slog.Logger, txID, temp string) {
	if temp != "" {
		if err := os.Remove(temp); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.WarnWithContext(logger, "failed to remove partial copy", "organize_cleanup_failed",
				logging.String("temp", temp),
				logging.Error(err),
				logging.String(logging.FieldImpact, "a hidden .part file remains in the library"),
			)
		}
	}
	if err := o.journal.Append(ctx, txID, txlog.PhaseAborted); err != nil {
		logging.WarnWithContext(logger, "failed to journal abort", "journal_append_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "recovery will roll this move back again at startup"),
		)
	}
}

func organizeHint(kind services.ErrorKind) string {
	switch kind {
	case services.KindMoveConflict:
		return "remove the existing target or change organizer.conflict_policy, then run shelver queue retry"
	case services.KindPermission:
		return "check write permissions on paths.library_dir and the source directory"
	case services.KindCorruption:
		return "the source changed while it was copied; leave it to settle and retry"
	case services.KindValidation:
		return "confirm a different category or adjust organizer.path_template"
	default:
		return "retries are scheduled automatically"
	}
}

// HealthCheck verifies the library directory exists and is writable.
func (o *Organizer) HealthCheck(_ context.Context) stage.Health {
	const name = "organizer"
	if o.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	dir := strings.TrimSpace(o.cfg.Paths.LibraryDir)
	if dir == "" {
		return stage.Unhealthy(name, "library directory not configured")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return stage.Unhealthy(name, fmt.Sprintf("library directory unavailable: %v", err))
	}
	if !info.IsDir() {
		return stage.Unhealthy(name, "library path is not a directory")
	}
	probe, err := os.CreateTemp(dir, ".shelver-health-*")
	if err != nil {
		return stage.Unhealthy(name, fmt.Sprintf("library directory not writable: %v", err))
	}
	_ = probe.Close()
	_ = os.Remove(filepath.Clean(probe.Name()))
	return stage.Healthy(name)
}

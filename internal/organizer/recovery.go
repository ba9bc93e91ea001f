package organizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"shelver/internal/config"
	"shelver/internal/fileutil"
	"shelver/internal/fingerprint"
	"shelver/internal/logging"
	"shelver/internal/notifications"
	"shelver/internal/queue"
	"shelver/internal/services"
	"shelver/internal/txlog"
)

// RecoveryReport summarizes a recovery pass.
type RecoveryReport struct {
	RolledForward int
	RolledBack    int
	Orphaned      int
}

var (
	errNothingToCommit = errors.New("neither temp copy nor target present")
	errTargetOccupied  = errors.New("target holds a different file")
)

// Recover settles every move the journal left open, then settles items still
// marked moving without an open transaction: moved when their last
// transaction committed, error otherwise. It runs before workers start, so no
// move is in flight.
func (o *Organizer) Recover(ctx context.Context) (RecoveryReport, error) {
	var report RecoveryReport
	pending, err := o.journal.Pending(ctx)
	if err != nil {
		return report, err
	}

	seen := make(map[string]struct{}, len(pending))
	for _, entry := range pending {
		seen[entry.Fingerprint] = struct{}{}
		forward, err := o.recoverEntry(ctx, entry)
		if err != nil {
			return report, err
		}
		if forward {
			report.RolledForward++
		} else {
			report.RolledBack++
		}
	}

	moving, err := o.store.QueryByStatus(ctx, queue.StatusMoving)
	if err != nil {
		return report, err
	}
	for _, item := range moving {
		if _, ok := seen[item.Fingerprint]; ok {
			continue
		}
		if committed, ok := o.lastCommitted(ctx, item.Fingerprint); ok {
			if _, err := o.markMoved(ctx, item.Fingerprint, committed.ToPath, o.registry.Resolve(item.Category)); err != nil {
				return report, err
			}
			report.RolledForward++
			continue
		}
		if _, err := o.store.Fail(ctx, item.Fingerprint, queue.StatusMoving, services.KindIOTransient,
			"move interrupted before it was journaled", o.policy); err != nil {
			return report, err
		}
		report.Orphaned++
	}

	if report != (RecoveryReport{}) {
		o.logger.Info(
			"move recovery completed",
			logging.Int("rolled_forward", report.RolledForward),
			logging.Int("rolled_back", report.RolledBack),
			logging.Int("orphaned", report.Orphaned),
		)
	}
	return report, nil
}

// recoverEntry settles one open transaction and reports whether it rolled
// forward.
func (o *Organizer) recoverEntry(ctx context.Context, entry txlog.Entry) (bool, error) {
	ctx = services.WithStage(services.WithFingerprint(ctx, entry.Fingerprint), "recovery")
	logger := logging.WithContext(ctx, o.logger).With(
		logging.String("tx_id", entry.TxID),
		logging.String("phase", string(entry.Phase)),
	)

	sourceExists, err := fileutil.Exists(entry.FromPath)
	if err != nil {
		return false, fmt.Errorf("recover %s: %w", entry.TxID, err)
	}

	if entry.Phase.AtLeast(txlog.PhaseVerified) || !sourceExists {
		err := o.rollForward(ctx, entry)
		if err == nil {
			o.settleMoved(ctx, logger, entry)
			logger.Info("rolled move forward", logging.String("target", entry.ToPath))
			return true, nil
		}
		if errors.Is(err, errTargetOccupied) {
			return false, o.abortOccupied(ctx, logger, entry, sourceExists)
		}
		if !sourceExists {
			// Nothing left to roll back to.
			logging.ErrorWithContext(logger, "move cannot be recovered", "recovery_failed",
				logging.Error(err),
				logging.String("source", entry.FromPath),
				logging.String("target", entry.ToPath),
				logging.String(logging.FieldErrorHint, "inspect shelver queue history for this fingerprint"),
			)
			if appendErr := o.journal.Append(ctx, entry.TxID, txlog.PhaseAborted); appendErr != nil {
				return false, appendErr
			}
			o.settleFailed(ctx, logger, entry.Fingerprint, services.KindCorruption, fmt.Sprintf("move recovery failed: %v", err))
			return false, nil
		}
		logging.WarnWithContext(logger, "roll forward failed; rolling back", "recovery_roll_forward_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "source is intact and the move will be retried"),
		)
	}

	o.rollBack(ctx, logger, entry.TxID, entry.TempPath)
	o.settleFailed(ctx, logger, entry.Fingerprint, services.KindIOTransient, "move interrupted; rolled back")
	logger.Info("rolled move back", logging.String("source", entry.FromPath))
	return false, nil
}

// abortOccupied settles a transaction whose target is held by a different
// file. The existing file is never touched. A source that is already gone is
// restored from the verified temp copy first; if that fails the transaction
// stays open so the temp copy survives the stale temp sweep.
func (o *Organizer) abortOccupied(ctx context.Context, logger *slog.Logger, entry txlog.Entry, sourceExists bool) error {
	detail := fmt.Sprintf("Target %s is occupied by a different file", entry.ToPath)
	if !sourceExists {
		if err := restoreSource(ctx, entry); err != nil {
			logging.ErrorWithContext(logger, "move target occupied and source not restored", "recovery_failed",
				logging.Error(err),
				logging.String("temp", entry.TempPath),
				logging.String("target", entry.ToPath),
				logging.String(logging.FieldErrorHint, "copy the temp file back to the source path, then run shelver queue retry"),
			)
			o.settleFailed(ctx, logger, entry.Fingerprint, services.KindMoveConflict, detail+"; verified copy kept at "+entry.TempPath)
			return nil
		}
	}
	logging.WarnWithContext(logger, "move target occupied; rolled back", "recovery_conflict",
		logging.String("source", entry.FromPath),
		logging.String("target", entry.ToPath),
		logging.String(logging.FieldImpact, "the existing file is kept and the item needs an operator decision"),
		logging.String(logging.FieldErrorHint, organizeHint(services.KindMoveConflict)),
	)
	o.rollBack(ctx, logger, entry.TxID, entry.TempPath)
	o.settleFailed(ctx, logger, entry.Fingerprint, services.KindMoveConflict, detail)
	return nil
}

// restoreSource copies the verified temp file back to the source path.
func restoreSource(ctx context.Context, entry txlog.Entry) error {
	if entry.TempPath == "" {
		return errors.New("no temp copy to restore from")
	}
	if err := os.MkdirAll(filepath.Dir(entry.FromPath), 0o755); err != nil {
		return err
	}
	restored, err := fileutil.CopyHashed(ctx, entry.TempPath, entry.FromPath)
	if err != nil {
		return err
	}
	if restored.Hex != entry.Fingerprint {
		_ = os.Remove(entry.FromPath)
		return fmt.Errorf("temp copy %s does not match fingerprint", entry.TempPath)
	}
	return fileutil.SyncDir(filepath.Dir(entry.FromPath))
}

// rollForward completes a transaction: a verified temp file is renamed
// into place without replacing a different file, the source is removed once
// the target holds its content, and the journal is advanced through
// committed. An occupied target yields errTargetOccupied with the source
// left alone.
func (o *Organizer) rollForward(ctx context.Context, entry txlog.Entry) error {
	tempExists := false
	if entry.TempPath != "" {
		exists, err := fileutil.Exists(entry.TempPath)
		if err != nil {
			return err
		}
		tempExists = exists
	}

	switch {
	case tempExists:
		if !entry.Phase.AtLeast(txlog.PhaseVerified) {
			return errors.New("temp copy was never verified")
		}
		if err := o.placeTemp(ctx, entry); err != nil {
			return err
		}
		if err := removeIfPresent(entry.FromPath); err != nil {
			return err
		}
		if !entry.Phase.AtLeast(txlog.PhaseSourceRemoved) {
			if err := o.journal.Append(ctx, entry.TxID, txlog.PhaseSourceRemoved); err != nil {
				return err
			}
		}
	default:
		// The final rename already happened; make sure it holds this content.
		if err := matchesTarget(ctx, entry); err != nil {
			return err
		}
		if err := removeIfPresent(entry.FromPath); err != nil {
			return err
		}
	}
	return o.journal.Append(ctx, entry.TxID, txlog.PhaseCommitted)
}

func (o *Organizer) settleMoved(ctx context.Context, logger *slog.Logger, entry txlog.Entry) {
	item, err := o.store.GetByFingerprint(ctx, entry.Fingerprint)
	if err != nil || item == nil || item.Status != queue.StatusMoving {
		return
	}
	category := o.registry.Resolve(item.Category)
	if _, err := o.markMoved(ctx, entry.Fingerprint, entry.ToPath, category); err != nil {
		logging.WarnWithContext(logger, "failed to mark recovered item moved", "recovery_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "item stays moving until the next recovery pass"),
		)
		return
	}
	o.publisher.Publish(ctx, notifications.EventMoved, notifications.Payload{
		"fingerprint": item.Fingerprint,
		"name":        item.DisplayName,
		"category":    category,
		"target":      entry.ToPath,
	})
}

func (o *Organizer) settleFailed(ctx context.Context, logger *slog.Logger, fp string, kind services.ErrorKind, detail string) {
	item, err := o.store.GetByFingerprint(ctx, fp)
	if err != nil || item == nil || item.Status != queue.StatusMoving {
		return
	}
	if _, err := o.store.Fail(ctx, fp, queue.StatusMoving, kind, detail, o.policy); err != nil {
		logging.WarnWithContext(logger, "failed to mark recovered item failed", "recovery_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "item stays moving until the next recovery pass"),
		)
	}
}

// lastCommitted returns the newest transaction of fp when it committed and
// its target is still present.
func (o *Organizer) lastCommitted(ctx context.Context, fp string) (txlog.Entry, bool) {
	history, err := o.journal.History(ctx, fp)
	if err != nil || len(history) == 0 {
		return txlog.Entry{}, false
	}
	last := history[len(history)-1]
	if last.Phase != txlog.PhaseCommitted {
		return txlog.Entry{}, false
	}
	if exists, _ := fileutil.Exists(last.ToPath); !exists {
		return txlog.Entry{}, false
	}
	return last, true
}

// placeTemp renames the verified temp file onto the target. A target that
// already holds the same content is kept and the temp file dropped.
func (o *Organizer) placeTemp(ctx context.Context, entry txlog.Entry) error {
	replace := o.cfg.Organizer.ConflictPolicy == config.ConflictOverwrite
	err := fileutil.Rename(entry.TempPath, entry.ToPath, replace)
	if errors.Is(err, os.ErrExist) {
		if err := matchesTarget(ctx, entry); err != nil {
			return err
		}
		return removeIfPresent(entry.TempPath)
	}
	if err != nil {
		return err
	}
	return fileutil.SyncDir(filepath.Dir(entry.ToPath))
}

// matchesTarget checks that the target holds the transaction's content.
func matchesTarget(ctx context.Context, entry txlog.Entry) error {
	digest, err := fingerprint.File(ctx, entry.ToPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return errNothingToCommit
		}
		return err
	}
	if digest.Hex != entry.Fingerprint {
		return fmt.Errorf("%w: %s", errTargetOccupied, entry.ToPath)
	}
	return nil
}

func removeIfPresent(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

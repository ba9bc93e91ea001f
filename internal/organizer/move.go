package organizer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"shelver/internal/config"
	"shelver/internal/fileutil"
	"shelver/internal/fingerprint"
	"shelver/internal/queue"
	"shelver/internal/services"
	"shelver/internal/staging"
	"shelver/internal/txlog"
)

const (
	maxRenameAttempts = 10000
	bytesPerMB        = 1 << 20
)

// txState tracks the journaled progress of the move in flight.
type txState struct {
	id       string
	temp     string
	target   string
	category string
	phase    txlog.Phase
}

func (o *Organizer) advance(ctx context.Context, tx *txState, phase txlog.Phase) error {
	if err := o.journal.Append(ctx, tx.id, phase); err != nil {
		return services.Wrap(services.ErrIOTransient, stageName, "journal "+string(phase), "Failed to record move progress", err)
	}
	tx.phase = phase
	return nil
}

// begin allocates the transaction and journals its begun row. withTemp
// reserves a temp path beside the target for a cross-volume copy.
func (o *Organizer) begin(ctx context.Context, item *queue.Item, tx *txState, target string, withTemp bool) error {
	id := txlog.NewTxID()
	temp := ""
	if withTemp {
		temp = staging.TempPath(target, id)
	}
	if err := o.journal.Begin(ctx, id, item.Fingerprint, item.SourcePath, target, temp); err != nil {
		return services.Wrap(services.ErrIOTransient, stageName, "journal begun", "Failed to record move start", err)
	}
	tx.id = id
	tx.target = target
	tx.temp = temp
	tx.phase = txlog.PhaseBegun
	return nil
}

func (o *Organizer) move(ctx context.Context, item *queue.Item, tx *txState) (moveResult, error) {
	category, err := o.registry.Register(item.Category)
	if err != nil {
		return moveResult{}, services.Wrap(services.ErrValidation, stageName, "normalize category", "Category is empty after normalization; confirm a different category", err)
	}
	tx.category = category.Name

	target, err := o.layout.Target(item, category.Name)
	if err != nil {
		return moveResult{}, err
	}

	source := item.SourcePath
	if _, err := os.Stat(source); err != nil {
		return moveResult{}, services.ClassifyIO(stageName, "stat source", err)
	}

	target, duplicate, err := o.resolveConflict(ctx, item, target)
	if err != nil {
		return moveResult{}, err
	}
	result := moveResult{target: target, category: category.Name}
	if duplicate {
		if err := o.begin(ctx, item, tx, target, false); err != nil {
			return moveResult{}, err
		}
		if err := os.Remove(source); err != nil && !errors.Is(err, os.ErrNotExist) {
			return moveResult{}, services.ClassifyIO(stageName, "remove duplicate source", err)
		}
		if err := o.advance(ctx, tx, txlog.PhaseCommitted); err != nil {
			return moveResult{}, err
		}
		result.duplicate = true
		return result, nil
	}

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return moveResult{}, services.ClassifyIO(stageName, "create target directory", err)
	}
	if err := o.begin(ctx, item, tx, target, true); err != nil {
		return moveResult{}, err
	}

	replace := o.cfg.Organizer.ConflictPolicy == config.ConflictOverwrite
	err = o.rename(source, target, replace)
	switch {
	case err == nil:
		if err := fileutil.SyncDir(dir); err != nil {
			return moveResult{}, services.ClassifyIO(stageName, "sync target directory", err)
		}
	case errors.Is(err, unix.EXDEV):
		if err := o.copyAcross(ctx, item, tx, replace); err != nil {
			return moveResult{}, err
		}
	case errors.Is(err, os.ErrExist):
		return moveResult{}, services.Wrap(services.ErrMoveConflict, stageName, "rename", fmt.Sprintf("Target %s appeared during the move", target), err)
	default:
		return moveResult{}, services.ClassifyIO(stageName, "rename", err)
	}

	if err := o.advance(ctx, tx, txlog.PhaseCommitted); err != nil {
		return moveResult{}, err
	}
	return result, nil
}

// copyAcross moves the source to another volume through a verified temp copy.
func (o *Organizer) copyAcross(ctx context.Context, item *queue.Item, tx *txState, replace bool) error {
	if err := o.ensureSpace(filepath.Dir(tx.target), item.SizeBytes); err != nil {
		return err
	}

	copied, err := fileutil.CopyHashed(ctx, item.SourcePath, tx.temp)
	if err != nil {
		return services.ClassifyIO(stageName, "copy to library volume", err)
	}
	if copied.Hex != item.Fingerprint {
		return services.Wrap(services.ErrCorruption, stageName, "copy to library volume", "Source content changed since it was fingerprinted", nil)
	}
	if err := o.advance(ctx, tx, txlog.PhaseCopied); err != nil {
		return err
	}

	verified, err := fingerprint.File(ctx, tx.temp)
	if err != nil {
		return err
	}
	if verified.Hex != item.Fingerprint || verified.Size != item.SizeBytes {
		return services.Wrap(services.ErrCorruption, stageName, "verify copy",
			fmt.Sprintf("Copied file does not match source (size %d, want %d)", verified.Size, item.SizeBytes), nil)
	}
	if err := o.advance(ctx, tx, txlog.PhaseVerified); err != nil {
		return err
	}

	// The temp copy takes the target before the source goes, so an occupied
	// target leaves the source untouched.
	if err := fileutil.Rename(tx.temp, tx.target, replace); err != nil {
		if errors.Is(err, os.ErrExist) {
			return services.Wrap(services.ErrMoveConflict, stageName, "rename temp into place", fmt.Sprintf("Target %s appeared during the copy", tx.target), err)
		}
		return services.ClassifyIO(stageName, "rename temp into place", err)
	}
	if err := fileutil.SyncDir(filepath.Dir(tx.target)); err != nil {
		return services.ClassifyIO(stageName, "sync target directory", err)
	}

	if err := os.Remove(item.SourcePath); err != nil {
		return services.ClassifyIO(stageName, "remove source", err)
	}
	return o.advance(ctx, tx, txlog.PhaseSourceRemoved)
}

func (o *Organizer) ensureSpace(dir string, size int64) error {
	free, err := fileutil.FreeSpace(dir)
	if err != nil {
		return services.ClassifyIO(stageName, "check free space", err)
	}
	need := uint64(max(size, 0)) + uint64(max(o.cfg.Organizer.MinFreeSpaceMB, 0))*bytesPerMB
	if free < need {
		return services.Wrap(services.ErrIOTransient, stageName, "check free space",
			fmt.Sprintf("Library volume has %d MiB free, need %d MiB", free/bytesPerMB, need/bytesPerMB), nil)
	}
	return nil
}

// resolveConflict applies the conflict policy to an occupied target. The
// boolean result reports that an identical file already sits at the returned
// path.
func (o *Organizer) resolveConflict(ctx context.Context, item *queue.Item, target string) (string, bool, error) {
	exists, err := fileutil.Exists(target)
	if err != nil {
		return "", false, services.ClassifyIO(stageName, "check target", err)
	}
	if !exists {
		return target, false, nil
	}
	same, err := sameContent(ctx, target, item)
	if err != nil {
		return "", false, err
	}
	if same {
		return target, true, nil
	}

	switch o.cfg.Organizer.ConflictPolicy {
	case config.ConflictOverwrite:
		return target, false, nil
	case config.ConflictRename:
		return nextAvailablePath(ctx, target, item)
	default:
		return "", false, services.Wrap(services.ErrMoveConflict, stageName, "resolve conflict",
			fmt.Sprintf("Target %s already exists and conflict_policy is skip", target), nil)
	}
}

// nextAvailablePath returns name-N.ext for the first free N, or an earlier
// candidate that already holds identical content.
func nextAvailablePath(ctx context.Context, target string, item *queue.Item) (string, bool, error) {
	dir := filepath.Dir(target)
	ext := filepath.Ext(target)
	stem := filepath.Base(target[:len(target)-len(ext)])
	for attempt := 1; attempt <= maxRenameAttempts; attempt++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s-%d%s", stem, attempt, ext))
		exists, err := fileutil.Exists(candidate)
		if err != nil {
			return "", false, services.ClassifyIO(stageName, "allocate target name", err)
		}
		if !exists {
			return candidate, false, nil
		}
		same, err := sameContent(ctx, candidate, item)
		if err != nil {
			return "", false, err
		}
		if same {
			return candidate, true, nil
		}
	}
	return "", false, services.Wrap(services.ErrMoveConflict, stageName, "allocate target name",
		fmt.Sprintf("Exhausted rename slots for %s", target), nil)
}

func sameContent(ctx context.Context, path string, item *queue.Item) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, services.ClassifyIO(stageName, "stat target", err)
	}
	if !info.Mode().IsRegular() || info.Size() != item.SizeBytes {
		return false, nil
	}
	digest, err := fingerprint.File(ctx, path)
	if err != nil {
		return false, err
	}
	return digest.Hex == item.Fingerprint, nil
}

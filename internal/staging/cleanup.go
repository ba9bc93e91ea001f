package staging

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"shelver/internal/logging"
)

const (
	tempMarker = ".shelver-"
	tempSuffix = ".part"
)

// TempPath returns the hidden temp path used while copying to target under
// transaction txID.
func TempPath(target, txID string) string {
	return filepath.Join(filepath.Dir(target), fmt.Sprintf(".%s%s%s%s", filepath.Base(target), tempMarker, txID, tempSuffix))
}

// IsTempFile reports whether name follows the TempPath naming.
func IsTempFile(name string) bool {
	return strings.HasPrefix(name, ".") &&
		strings.HasSuffix(name, tempSuffix) &&
		strings.Contains(name, tempMarker)
}

// CleanStaleResult contains the outcome of a temp file sweep.
type CleanStaleResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStale removes temp files under libraryDir older than maxAge. Paths
// in keep belong to moves still in flight and are never removed.
func CleanStale(ctx context.Context, libraryDir string, maxAge time.Duration, keep map[string]struct{}, logger *slog.Logger) CleanStaleResult {
	result := CleanStaleResult{}
	if logger == nil {
		logger = logging.NewNop()
	}

	temps, err := ListTemps(libraryDir)
	if err != nil {
		result.Errors = append(result.Errors, CleanupError{Path: libraryDir, Error: err})
		return result
	}

	cutoff := time.Now().Add(-maxAge)
	for _, temp := range temps {
		if ctx.Err() != nil {
			break
		}
		if _, inFlight := keep[temp.Path]; inFlight || !temp.ModTime.Before(cutoff) {
			continue
		}
		if err := os.Remove(temp.Path); err != nil && !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: temp.Path, Error: err})
			logging.WarnWithContext(logger, "failed to remove stale temp file", "temp_cleanup_failed",
				logging.String("path", temp.Path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check library_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, temp.Path)
		logger.Info("removed stale temp file",
			logging.String("path", temp.Path),
			logging.Duration("age", time.Since(temp.ModTime)),
			logging.Int64("size_bytes", temp.Size),
			logging.String(logging.FieldEventType, "temp_cleanup"),
		)
	}
	return result
}

// TempInfo contains metadata about a temp file.
type TempInfo struct {
	Path    string
	ModTime time.Time
	Size    int64
}

// ListTemps returns every temp file under libraryDir. A missing directory
// yields none.
func ListTemps(libraryDir string) ([]TempInfo, error) {
	libraryDir = strings.TrimSpace(libraryDir)
	if libraryDir == "" {
		return nil, nil
	}

	var temps []TempInfo
	err := filepath.WalkDir(libraryDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == libraryDir {
				return fs.SkipAll
			}
			// Unreadable subtrees are skipped; the sweep is best effort.
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !IsTempFile(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		temps = append(temps, TempInfo{Path: path, ModTime: info.ModTime(), Size: info.Size()})
		return nil
	})
	return temps, err
}

package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"golang.org/x/sys/unix"
)

var (
	ErrIOTransient           = errors.New("transient i/o failure")
	ErrPermission            = errors.New("permission denied")
	ErrDuplicate             = errors.New("duplicate content")
	ErrClassifierUnavailable = errors.New("classifier unavailable")
	ErrMoveConflict          = errors.New("move conflict")
	ErrCorruption            = errors.New("content corruption")
	ErrValidation            = errors.New("validation error")
	ErrConfiguration         = errors.New("configuration error")
)

// ErrorKind is the persisted failure category of a tracked item.
type ErrorKind string

const (
	KindIOTransient           ErrorKind = "io_transient"
	KindPermission            ErrorKind = "permission"
	KindDuplicate             ErrorKind = "duplicate"
	KindClassifierUnavailable ErrorKind = "classifier_unavailable"
	KindMoveConflict          ErrorKind = "move_conflict"
	KindCorruption            ErrorKind = "corruption"
	KindValidation            ErrorKind = "validation"
	KindConfiguration         ErrorKind = "configuration"
)

var kindMarkers = []struct {
	marker error
	kind   ErrorKind
}{
	{ErrPermission, KindPermission},
	{ErrCorruption, KindCorruption},
	{ErrMoveConflict, KindMoveConflict},
	{ErrClassifierUnavailable, KindClassifierUnavailable},
	{ErrDuplicate, KindDuplicate},
	{ErrValidation, KindValidation},
	{ErrConfiguration, KindConfiguration},
	{ErrIOTransient, KindIOTransient},
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later kind classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrIOTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// KindOf maps an error onto its ErrorKind. Unmarked errors are treated as
// transient so they get the bounded retry treatment rather than being dropped.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, km := range kindMarkers {
		if errors.Is(err, km.marker) {
			return km.kind
		}
	}
	return KindIOTransient
}

// Retryable reports whether failures of the given kind are re-attempted automatically.
func Retryable(kind ErrorKind) bool {
	switch kind {
	case KindIOTransient, KindClassifierUnavailable:
		return true
	default:
		return false
	}
}

// ParseErrorKind converts a persisted string back into an ErrorKind.
func ParseErrorKind(value string) (ErrorKind, bool) {
	kind := ErrorKind(strings.ToLower(strings.TrimSpace(value)))
	for _, km := range kindMarkers {
		if km.kind == kind {
			return kind, true
		}
	}
	return "", false
}

// ClassifyIO wraps a filesystem error with the permission or transient marker.
// Errors that already carry a marker are wrapped with their existing marker.
func ClassifyIO(stage, operation string, err error) error {
	if err == nil {
		return nil
	}
	for _, km := range kindMarkers {
		if errors.Is(err, km.marker) {
			return err
		}
	}
	if isPermissionError(err) {
		return Wrap(ErrPermission, stage, operation, "", err)
	}
	return Wrap(ErrIOTransient, stage, operation, "", err)
}

func isPermissionError(err error) bool {
	if errors.Is(err, fs.ErrPermission) {
		return true
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		switch errno {
		case unix.EACCES, unix.EPERM, unix.EROFS:
			return true
		}
	}
	return false
}

// IsContextError reports whether err stems from context cancellation or deadline.
func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

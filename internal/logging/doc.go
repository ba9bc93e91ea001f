// Package logging assembles structured slog loggers and formatting helpers used
// across shelver components.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so stage code can automatically
// tag log lines with fingerprints, stages, lanes, and correlation IDs. The
// package also provides a no-op logger for tests and wiring code that cannot
// fail.
//
// WARN lines are expected to carry event_type, error_hint, and impact; use
// WarnWithContext so the fields are always present.
package logging

// Package services defines shared utilities consumed by the pipeline stage
// handlers and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp fingerprints, stage names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper. Every failure that
//     reaches a tracked item is tagged with one marker so the workflow can
//     derive an ErrorKind and decide between retry and terminal error.
//   - ClassifyIO, which maps raw filesystem failures onto the permission and
//     transient-I/O markers.
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services

// Package queue persists tracked items in SQLite and exposes helpers for
// driving their lifecycle.
//
// A tracked item exists once per unique content fingerprint. The Store
// manages database connections, schema initialization, stats queries,
// pending-path spill and restore, and compare-and-set status transitions
// checked against the lifecycle table in models.go. Items that reach a
// terminal status (moved, ignored) are retained for audit and are never
// deleted.
//
// Schema changes bump the version in schema.go; users clear the database to
// adopt the new schema.
//
// Treat this package as the single source of truth for lifecycle semantics;
// when you add new statuses or columns, update schema.sql and bump
// schemaVersion.
package queue

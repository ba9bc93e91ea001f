// Package txlog records move transactions in an append-only SQLite journal.
//
// Every organize operation writes a begun row before touching the
// filesystem and one row per completed phase afterwards. Rows are never
// updated or deleted: the last successful phase of an interrupted move
// stays visible for crash recovery and forensics, and a rolled-back move
// gains a terminal aborted row after it.
package txlog

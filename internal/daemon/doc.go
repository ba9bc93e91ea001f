// Package daemon coordinates the long-running shelver process.
//
// It wires configuration, the queue store, the move journal, the category
// registry, the classifier, the organizer, the workflow manager and the
// discovery service into a single lifecycle, with flock-based locking to
// prevent multiple instances. Startup runs move recovery before any worker
// starts; shutdown stops intake first and closes storage last.
//
// Keep orchestration logic here: individual pipeline steps live in their
// respective packages while the daemon focuses on startup, shutdown, and
// status reporting.
package daemon

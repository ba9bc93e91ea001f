// Package workflow drives tracked items through their lifecycle.
//
// The Manager owns the work coordinator and supplies its registration and
// classification handlers, runs a dispatcher that polls the store for work
// that is due (retries, resets, stalled classifications, ready moves) and
// feeds a bounded organize pool. Every status change goes through the store
// as a compare-and-set under the per-fingerprint lock, and failures are
// routed through a single retry policy.
//
// Confirm is the operator entry point for items that need a human decision.
package workflow

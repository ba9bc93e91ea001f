// Command shelver runs the file organizing daemon and offers operator
// commands for the tracked-item queue.
//
// Queue commands work directly against the SQLite state databases and are
// safe to run while the daemon is active: every status change is a
// compare-and-set against the stored status.
package main

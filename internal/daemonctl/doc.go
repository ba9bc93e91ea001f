// Package daemonctl starts and stops a background shelver daemon from the
// CLI. The daemon's flock is the source of truth for whether it runs; the
// pid file only says which process to signal.
package daemonctl

// Package notifications fans workflow events out to subscribers.
//
// Components publish through the Publisher interface, which never blocks the
// caller. The Bus buffers events and hands them to every subscriber from a
// single dispatcher goroutine; a full buffer drops the event instead of
// stalling a worker. Subscribers include the ntfy push client, configured by
// topic in config.toml with per-event toggles, and a structured log writer.
//
// Extend this package if you need alternative transports; workflow code only
// depends on Publisher.
package notifications

// Package discovery finds candidate files under the watch roots and offers
// them to the registration queue.
//
// Two sources feed the same offer path. The Watcher reacts to fsnotify
// events and emits a file once it has been quiet for the configured window.
// The Scanner walks every root at startup and on a reconcile interval to
// catch anything the watcher missed; it never blocks on a full queue and
// simply ends the pass early. Offers are validated, skipped when the path
// already has an active item, and de-duplicated through a small LRU of recent
// (size, mtime) observations.
package discovery

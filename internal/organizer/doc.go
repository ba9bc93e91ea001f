// Package organizer moves confirmed items into the library.
//
// Target paths come from the configured templates, with the category
// normalized through the shared registry and every segment sanitized. Moves
// are same-volume renames when possible. Across volumes the file is copied to
// a hidden temp file next to the target, re-hashed, and only then is the
// source removed and the temp renamed into place. Every step is recorded in
// the txlog journal so Recover can roll an interrupted move forward or back
// at startup, leaving each item either intact at its source or present at its
// target.
package organizer

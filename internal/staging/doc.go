// Package staging names and sweeps the hidden temp files the organizer
// writes beside a target during a cross-volume move.
//
// A temp file is only ever created after its move is journaled, so recovery
// normally removes it. CleanStale catches the rest: temp files left behind
// when the journal itself was lost or reset.
package staging

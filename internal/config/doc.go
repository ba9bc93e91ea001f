// Package config loads, normalizes, and validates shelver configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// SHELVER_LLM_API_KEY. The Config type centralizes every knob the daemon and
// CLI need: watch roots, queue sizing, classifier thresholds, organizer
// templates, and retry limits.
//
// A Config is built once by Load and then only read. Components receive the
// same pointer and must not mutate it; there is no runtime reload path.
//
// The organizer conflict policy has no default. Load rejects a configuration
// that does not choose one of skip, rename, or overwrite explicitly.
package config

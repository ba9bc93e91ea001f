// Package preflight provides readiness checks for the filesystem paths and
// external services shelver depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll at startup and logs every failed check as a
//     warning; a failed check does not stop startup.
//   - The CLI "shelver status" command prints the same results.
//
// The LLM check only runs when classifier.provider is "llm".
package preflight

// Package logs tails the daemon log file for the CLI.
//
// Tail reads the last N lines with bounded memory, resumes from a byte
// offset, and in follow mode polls until new lines arrive or the wait
// elapses. An optional Match filter narrows output to lines mentioning a
// fingerprint prefix or reaching a minimum level.
package logs

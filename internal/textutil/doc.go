// Package textutil provides text processing utilities for file names: token
// similarity, structural marker extraction, and sanitization.
//
// The primary use cases are:
//   - Term vectors and cosine similarity for ranking category names against a
//     file's display name
//   - Extracting season/episode (S01E02, 1x02) and year markers from names
//   - Sanitizing filenames and path segments for safe filesystem use
//
// Tokenization lowercases text, splits on non-alphanumeric characters, and
// drops single-character tokens.
package textutil

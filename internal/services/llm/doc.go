// Package llm provides an OpenRouter-compatible chat client used by the
// classification engine when `classifier.provider = "llm"`.
//
// The client sends system and user prompts requesting JSON output and returns
// the raw payload; DecodeJSON tolerates code fences and surrounding prose.
//
// # Retry Behaviour
//
// Requests are retried on HTTP 408/429/5xx, empty responses, and transport
// errors with exponential backoff (base 1s, max 10s, 3 attempts by default).
// Retry-After headers are honoured. Context cancellation aborts retries
// immediately. IsTemporary lets callers map exhausted retries onto the
// classifier-unavailable condition.
package llm

// Package coordinator runs the two bounded work stages of the pipeline:
// registration of discovered paths and batched classification of
// registered fingerprints.
//
// Each stage has a Queue with a high and a normal priority lane. Blocking
// pushes give backpressure from a saturated stage to its producers. A
// KeyedLock serializes store mutations per fingerprint and its claim set keeps
// a fingerprint in at most one queue at a time.
package coordinator

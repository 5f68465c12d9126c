// Package cache implements the two-tier score cache.
//
// Memory is the process-lifetime tier: an unbounded map that is never
// evicted. Persisted mirrors one JSON record of a key-value store holding
// ItemKey -> {score, ts}; it is loaded at most once (concurrent callers share
// the single in-flight load), and every write re-applies the retention policy
// (drop entries older than TTL, keep the MaxEntries most recent) before the
// whole record is rewritten.
//
// Tiered combines the two with get-or-compute semantics: memory, then a fresh
// persisted entry (promoted into memory), then the caller's compute function,
// whose result is written to both tiers. Concurrent misses for one key share
// a single computation.
package cache

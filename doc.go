// Package koseki implements the entity/component storage and query core of a
// data-oriented Entity-Component-System runtime.
//
// Features:
// - Compressed 32-bit entity identifiers with generation recycling and a
//   delayed-recycle queue that prevents same-frame ID reuse.
// - A dual-track identifier scheme: compact local IDs for hot-path
//   simulation, 64-bit global IDs for cross-boundary references.
// - A component-type registry with bitset mask algebra and a declarative
//   Matcher predicate (all/one/exclude).
// - Pluggable component indexes (hash-based and bitmap-based) with an
//   auto-switching manager driven by observed query latency and memory.
// - Archetype grouping with a TTL-bounded query cache.
// - Batched, time-sliced dirty tracking with priority-ordered listeners.
// - An EntityManager facade with name/tag secondary indexes and a fluent
//   query builder.
//
// The core is single-writer and synchronous: no public method suspends, and
// nothing here is safe for concurrent mutation from multiple goroutines. The
// only frame-spreading behavior is cooperative time-slicing in the dirty
// tracker and the entity pool's recycle queue.
package koseki

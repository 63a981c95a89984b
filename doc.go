// Package sop defines the core interfaces, types, and helpers shared across the store
// implementation: transactions, store metadata, the Handle/registry abstraction, UUIDs,
// L2 cache & distributed locking, and common error codes. Concrete pieces live in
// subpackages: btree (the node/item model), cache (L1 MRU + L2 distributed cache
// backends), cel (predicate evaluation for backfill filtering), and fs/erasure
// (Reed-Solomon encoding for resilient backfill archives).
package sop

// Timeout model
//
// SOP operations (notably transaction commits) are bounded by two timers:
//  1. The caller-provided context deadline/cancellation which propagates across subsystems.
//  2. An operation-specific maximum duration (e.g., transaction maxTime) used as an internal safety
//     limit.
//
// The effective commit duration is the earlier of the context deadline and the transaction's maxTime.
// Commit takes no locks; an L2Cache lock's TTL is the duration its caller passes to Lock.
//
// ErrTimeout can report such a timeout while wrapping the underlying context error, which preserves
// errors.Is(err, context.DeadlineExceeded); no code in this module returns it.

// Package store provides a SQLite-backed audit log of filtered batches.
//
// Each batch run through the filter is recorded once:
//   - batches: one row per batch (node, primary pipeline, logical sequence,
//     event and drop counts, ok or failed with the error text)
//   - outcomes: one row per event of a successful batch, in batch order,
//     with the outcome (transformed or dropped), a content-addressed event
//     id and the canonical JSON of the emitted record
//
// Ordering uses the seq column (a per-node logical clock), never wall time,
// so two runs over the same input produce identical logs.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Event and batch ids are SHA-256 over RFC 8785 canonical JSON with domain
// separation (value.Hash).
package store

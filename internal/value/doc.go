// Package value provides the canonical value domain shared by events and
// ingest documents.
//
// Every value reachable from an event's fields or metadata, and from a
// document's source or ingest metadata, is one of the sealed Value kinds:
// Null, Bool, Int, Float, String, Bytes, Timestamp, List or Object.
//
// This package imports nothing internal. Conversion from arbitrary Go values
// goes through Convert, which is the only place that knows how foreign kinds
// map onto the domain; the mapping table lives next to it in convert.go.
//
// Key constraints:
//   - Int is always int64; unsigned values above MaxInt64 become Float
//   - Timestamp is always normalised to UTC
//   - Object iteration order is unspecified; use SortedKeys for determinism
package value

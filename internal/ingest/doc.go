// Package ingest is a small transformation engine modelled on ingest-node
// pipelines.
//
// A pipeline is compiled once from a wire document of the form
//
//	{"description": "...", "processors": [{"<type>": {<params>}}, ...], "on_failure": [...]}
//
// using a set of processor factories, and then executed against Documents.
// Execute returns the (possibly replaced) document, or a nil document when a
// processor asked for the document to be dropped.
//
// Every processor accepts the common parameters tag, description,
// ignore_failure and on_failure. A failing processor with on_failure
// handlers runs them with the failure recorded under
// _ingest.on_failure_message, _ingest.on_failure_processor_type and
// _ingest.on_failure_processor_tag, then execution continues with the next
// processor. A pipeline-level on_failure list replaces the rest of the
// pipeline instead.
//
// Watchdog interruptions and context cancellation are never handled by
// on_failure or ignore_failure.
package ingest

// Package harness runs filter scenarios as executable contract tests.
//
// A scenario carries its pipeline definitions inline, a sequence of input
// batches, per-batch expectations and assertions over the whole run. Each
// scenario runs against a freshly built registry and filter, and every batch
// is recorded in an isolated in-memory audit store.
//
// # Scenario Format
//
//	name: routing
//	description: "main hands every event to sub"
//	primary: main
//	definitions:
//	  main:
//	    processors:
//	      - pipeline: { name: sub }
//	  sub:
//	    processors:
//	      - set: { field: routed, value: true }
//	batches:
//	  - events:
//	      - { "@timestamp": "2024-06-01T12:00:00Z", message: hi }
//	    expect:
//	      outcomes: [transformed]
//	assertions:
//	  - type: field_equals
//	    batch: 0
//	    index: 0
//	    field: routed
//	    value: true
//
// definitions_file may replace definitions; it is resolved relative to the
// scenario file.
//
// # Assertion Types
//
//   - outcome_count: number of events with the given outcome across all batches
//   - matched_count: number of match notifications across all batches
//   - field_equals: a field of one emitted event equals a value
//   - field_absent: a field of one emitted event is not set
//   - cycle: the registry reported a cycle with the given path
//
// # Deterministic Testing
//
// Events should carry an explicit "@timestamp" so traces are reproducible.
// The audit store uses a fixed node name and a logical batch sequence, so
// golden traces are identical across runs.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/routing.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(ctx, scenario)
package harness

package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/ingestfilter/internal/codec"
	"github.com/roach88/ingestfilter/internal/definition"
	"github.com/roach88/ingestfilter/internal/event"
	"github.com/roach88/ingestfilter/internal/filter"
	"github.com/roach88/ingestfilter/internal/ingest"
	"github.com/roach88/ingestfilter/internal/registry"
	"github.com/roach88/ingestfilter/internal/store"
	"github.com/roach88/ingestfilter/internal/value"
)

// NodeName is the fixed node name scenarios are recorded under.
const NodeName = "harness"

// Harness is the scenario execution engine.
type Harness struct {
	store  *store.Store
	reg    *registry.Registry
	filter *filter.Filter
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh registry and in-memory database.
//
// Execution flow:
// 1. Load and build the pipeline definitions
// 2. Filter every batch, recording it in the store
// 3. Check per-batch expectations
// 4. Evaluate assertions
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	defs, err := loadDefinitions(ctx, scenario)
	if err != nil {
		return nil, fmt.Errorf("failed to load definitions: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	// Suppress logs in tests
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	opts := []registry.Option{registry.WithLogger(logger)}
	if scenario.Primary != "" {
		opts = append(opts, registry.WithPrimary(scenario.Primary))
	}
	if scenario.MaxDepth > 0 {
		opts = append(opts, registry.WithMaxDepth(scenario.MaxDepth))
	}
	reg, err := registry.Build(ctx, defs, ingest.Builtins(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build registry: %w", err)
	}

	h := &Harness{
		store:  st,
		reg:    reg,
		filter: filter.New(reg, filter.WithID(NodeName), filter.WithLogger(logger)),
		logger: logger,
	}

	result := NewResult()
	for _, c := range reg.Cycles() {
		result.Cycles = append(result.Cycles, c.Path)
	}

	for i, step := range scenario.Batches {
		if err := h.executeBatch(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("batch %d: %w", i, err)
		}
	}

	for _, msg := range EvaluateAssertions(ctx, result, scenario.Assertions, st) {
		result.AddError(msg)
	}
	return result, nil
}

func loadDefinitions(ctx context.Context, s *Scenario) ([]definition.Definition, error) {
	if s.DefinitionsFile != "" {
		return definition.FileSource{Path: s.DefinitionsFile}.Load(ctx)
	}
	data, err := yaml.Marshal(&s.Definitions)
	if err != nil {
		return nil, err
	}
	return definition.Parse(data)
}

// executeBatch filters one batch, records it and checks its expectations.
// A batch error is part of the result, not a harness failure.
func (h *Harness) executeBatch(ctx context.Context, i int, step BatchStep, result *Result) error {
	events := make([]*event.Event, len(step.Events))
	for j, raw := range step.Events {
		e, err := decodeEvent(raw)
		if err != nil {
			return fmt.Errorf("event %d: %w", j, err)
		}
		events[j] = e
	}

	matched := 0
	out, filterErr := h.filter.Filter(ctx, events, filter.MatchListenerFunc(func(*event.Event) {
		matched++
	}))

	b, outcomes, err := h.store.RecordBatch(ctx, NodeName, h.reg.PrimaryName(), events, out, filterErr)
	if err != nil {
		return err
	}
	h.logger.Info("batch filtered",
		"batch", i,
		"batch_id", b.ID,
		"events", b.Events,
		"dropped", b.Dropped,
		"status", b.Status,
	)

	trace := BatchTrace{Seq: b.Seq, BatchID: b.ID, Matched: matched, Error: b.Error, Outcomes: []TraceOutcome{}}
	for j, o := range outcomes {
		rec, err := codec.Record(out[j])
		if err != nil {
			return fmt.Errorf("event %d: %w", j, err)
		}
		trace.Outcomes = append(trace.Outcomes, TraceOutcome{
			Index:   o.Index,
			Outcome: string(o.Outcome),
			Event:   rec,
		})
	}

	checkExpect(i, step.Expect, trace, result)
	result.Batches = append(result.Batches, trace)
	return nil
}

func decodeEvent(raw map[string]any) (*event.Event, error) {
	v, err := value.Convert(raw)
	if err != nil {
		return nil, err
	}
	rec, ok := v.(value.Object)
	if !ok {
		return nil, fmt.Errorf("expected object, got %s", v.Kind())
	}
	return codec.FromRecord(rec)
}

// checkExpect compares a batch trace with its expectation.
func checkExpect(i int, expect *BatchExpect, trace BatchTrace, result *Result) {
	if expect == nil || expect.Error == "" {
		if trace.Error != "" {
			result.AddError(fmt.Sprintf("batch %d: unexpected error: %s", i, trace.Error))
			return
		}
	}
	if expect == nil {
		return
	}

	if expect.Error != "" {
		switch {
		case trace.Error == "":
			result.AddError(fmt.Sprintf("batch %d: expected error containing %q, got none", i, expect.Error))
		case !strings.Contains(trace.Error, expect.Error):
			result.AddError(fmt.Sprintf("batch %d: expected error containing %q, got %q", i, expect.Error, trace.Error))
		}
		return
	}

	for j, want := range expect.Outcomes {
		if got := trace.Outcomes[j].Outcome; got != want {
			result.AddError(fmt.Sprintf("batch %d: event %d: expected %s, got %s", i, j, want, got))
		}
	}
}

package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/ingestfilter/internal/store"
	"github.com/roach88/ingestfilter/internal/value"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(ctx context.Context, result *Result, assertions []Assertion, st *store.Store) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluateAssertion(ctx, result, a, st); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func evaluateAssertion(ctx context.Context, result *Result, a Assertion, st *store.Store) error {
	switch a.Type {
	case AssertOutcomeCount:
		return assertOutcomeCount(ctx, st, a)
	case AssertMatchedCount:
		if got := result.Matched(); got != a.Count {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%d match notifications", a.Count),
				Actual:   fmt.Sprintf("%d match notifications", got),
			}
		}
		return nil
	case AssertFieldEquals:
		return assertFieldEquals(result, a)
	case AssertFieldAbsent:
		return assertFieldAbsent(result, a)
	case AssertCycle:
		return assertCycle(result, a)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

// assertOutcomeCount counts outcomes from the audit store rather than the
// in-memory trace, so the recorded log is checked too.
func assertOutcomeCount(ctx context.Context, st *store.Store, a Assertion) error {
	batches, err := st.ListBatches(ctx, NodeName)
	if err != nil {
		return err
	}
	count := 0
	for _, b := range batches {
		_, outcomes, err := st.ReadBatch(ctx, b.ID)
		if err != nil {
			return err
		}
		for _, o := range outcomes {
			if string(o.Outcome) == a.Outcome {
				count++
			}
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d %s events", a.Count, a.Outcome),
			Actual:   fmt.Sprintf("%d %s events", count, a.Outcome),
		}
	}
	return nil
}

func emittedEvent(result *Result, a Assertion) (value.Object, error) {
	if a.Batch >= len(result.Batches) {
		return nil, &AssertionError{Type: a.Type, Expected: fmt.Sprintf("batch %d", a.Batch), Actual: "batch not run"}
	}
	outcomes := result.Batches[a.Batch].Outcomes
	if a.Index < 0 || a.Index >= len(outcomes) {
		return nil, &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("event %d in batch %d", a.Index, a.Batch),
			Actual:   fmt.Sprintf("batch has %d events", len(outcomes)),
		}
	}
	return outcomes[a.Index].Event, nil
}

func assertFieldEquals(result *Result, a Assertion) error {
	rec, err := emittedEvent(result, a)
	if err != nil {
		return err
	}
	want, err := value.Convert(a.Value)
	if err != nil {
		return fmt.Errorf("expected value: %w", err)
	}
	got, ok := rec[a.Field]
	if !ok {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s = %s", a.Field, formatValue(want)),
			Actual:   "field not set",
		}
	}
	if !value.Equal(want, got) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s = %s", a.Field, formatValue(want)),
			Actual:   fmt.Sprintf("%s = %s", a.Field, formatValue(got)),
		}
	}
	return nil
}

func assertFieldAbsent(result *Result, a Assertion) error {
	rec, err := emittedEvent(result, a)
	if err != nil {
		return err
	}
	if got, ok := rec[a.Field]; ok {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s not set", a.Field),
			Actual:   fmt.Sprintf("%s = %s", a.Field, formatValue(got)),
		}
	}
	return nil
}

func assertCycle(result *Result, a Assertion) error {
	for _, c := range result.Cycles {
		if slices.Equal(c, a.Path) {
			return nil
		}
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("cycle %s", strings.Join(a.Path, " -> ")),
		Actual:   fmt.Sprintf("cycles %v", result.Cycles),
	}
}

func formatValue(v value.Value) string {
	data, err := value.MarshalJSON(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

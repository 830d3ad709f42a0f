package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ingestfilter/internal/store"
	"github.com/roach88/ingestfilter/internal/value"
)

func traceResult() *Result {
	r := NewResult()
	r.Batches = []BatchTrace{{
		Seq:     1,
		Matched: 1,
		Outcomes: []TraceOutcome{
			{Index: 0, Outcome: "transformed", Event: value.Object{"level": value.String("info"), "n": value.Int(3)}},
			{Index: 1, Outcome: "dropped", Event: value.Object{}},
		},
	}}
	r.Cycles = [][]string{{"a", "b", "a"}}
	return r
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestEvaluateAssertions(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		want      string
	}{
		{"matched ok", Assertion{Type: AssertMatchedCount, Count: 1}, ""},
		{"matched wrong", Assertion{Type: AssertMatchedCount, Count: 3}, "3 match notifications"},
		{"field equals", Assertion{Type: AssertFieldEquals, Field: "n", Value: 3}, ""},
		{"field equals wrong value", Assertion{Type: AssertFieldEquals, Field: "level", Value: "warn"}, `level = "info"`},
		{"field equals missing", Assertion{Type: AssertFieldEquals, Field: "nope", Value: 1}, "field not set"},
		{"field equals bad index", Assertion{Type: AssertFieldEquals, Index: 5, Field: "n", Value: 1}, "batch has 2 events"},
		{"field absent", Assertion{Type: AssertFieldAbsent, Field: "nope"}, ""},
		{"field absent but set", Assertion{Type: AssertFieldAbsent, Field: "n"}, "n = 3"},
		{"cycle", Assertion{Type: AssertCycle, Path: []string{"a", "b", "a"}}, ""},
		{"cycle missing", Assertion{Type: AssertCycle, Path: []string{"b", "a", "b"}}, "cycle b -> a -> b"},
		{"outcome count on empty store", Assertion{Type: AssertOutcomeCount, Outcome: "dropped", Count: 0}, ""},
		{"unknown", Assertion{Type: "bogus"}, "unknown assertion type"},
	}

	st := openStore(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failures := EvaluateAssertions(context.Background(), traceResult(), []Assertion{tt.assertion}, st)
			if tt.want == "" {
				assert.Empty(t, failures)
				return
			}
			require.Len(t, failures, 1)
			assert.Contains(t, failures[0], tt.want)
			assert.Contains(t, failures[0], "assertions[0]")
		})
	}
}

func TestAssertionError(t *testing.T) {
	err := &AssertionError{Type: AssertMatchedCount, Expected: "2", Actual: "1"}
	assert.Equal(t, "Assertion failed: matched_count\n  Expected: 2\n  Actual: 1", err.Error())
}

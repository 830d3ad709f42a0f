package harness

import (
	"github.com/roach88/ingestfilter/internal/value"
)

// TraceOutcome is the fate of one event in a batch.
type TraceOutcome struct {
	Index   int          `json:"index"`
	Outcome string       `json:"outcome"`
	Event   value.Object `json:"event"`
}

// BatchTrace records one filtered batch.
type BatchTrace struct {
	Seq      int64          `json:"seq"`
	BatchID  string         `json:"batch_id"`
	Matched  int            `json:"matched"`
	Error    string         `json:"error,omitempty"`
	Outcomes []TraceOutcome `json:"outcomes"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every expectation and assertion held.
	Pass bool `json:"pass"`

	// Batches traces every batch in order.
	Batches []BatchTrace `json:"batches"`

	// Cycles lists the pipeline cycles the registry warned about.
	Cycles [][]string `json:"cycles,omitempty"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Batches: []BatchTrace{},
		Errors:  []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Matched returns the match notifications across all batches.
func (r *Result) Matched() int {
	n := 0
	for _, b := range r.Batches {
		n += b.Matched
	}
	return n
}

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/ingestfilter/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	NodeName string
	BatchID  string // optional - show one batch with its outcomes
	EventID  string // optional - find every outcome with this event id
}

// TraceBatch is one recorded batch.
type TraceBatch struct {
	ID       string         `json:"id"`
	NodeName string         `json:"node_name"`
	Pipeline string         `json:"pipeline"`
	Seq      int64          `json:"seq"`
	Events   int            `json:"events"`
	Dropped  int            `json:"dropped"`
	Status   string         `json:"status"`
	Error    string         `json:"error,omitempty"`
	Outcomes []TraceOutcome `json:"outcomes,omitempty"`
}

// TraceOutcome is the fate of one event.
type TraceOutcome struct {
	BatchID string          `json:"batch_id"`
	Index   int             `json:"index"`
	Outcome string          `json:"outcome"`
	EventID string          `json:"event_id"`
	Event   json.RawMessage `json:"event,omitempty"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Batches  []TraceBatch   `json:"batches"`
	Outcomes []TraceOutcome `json:"outcomes,omitempty"`
	Stats    TraceStats     `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Batches int `json:"batches"`
	Failed  int `json:"failed"`
	Events  int `json:"events"`
	Dropped int `json:"dropped"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Query the batch audit log",
		Long: `Query the audit log written by "run --db".

Shows what the filter did: every batch of a node with its status, a single
batch with the outcome of each event, or every batch an event went through.

Events are identified by the SHA-256 of their canonical JSON record, so the
same event id across batches means the same content.

Examples:
  ingestfilter trace --db ./audit.db --node node-a
  ingestfilter trace --db ./audit.db --batch 3f5c...
  ingestfilter trace --db ./audit.db --event 9a1e... --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.NodeName, "node", "", "list the batches of this node")
	cmd.Flags().StringVar(&opts.BatchID, "batch", "", "show one batch with its outcomes")
	cmd.Flags().StringVar(&opts.EventID, "event", "", "find outcomes for an event id")
	cmd.MarkFlagsOneRequired("node", "batch", "event")
	cmd.MarkFlagsMutuallyExclusive("node", "batch", "event")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("database not found: %s", opts.Database), err)
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	var result TraceResult
	switch {
	case opts.BatchID != "":
		b, outcomes, err := st.ReadBatch(ctx, opts.BatchID)
		if errors.Is(err, store.ErrBatchNotFound) {
			return NewExitError(ExitCommandError, fmt.Sprintf("batch not found: %s", opts.BatchID))
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read batch", err)
		}
		tb := toTraceBatch(b)
		tb.Outcomes = toTraceOutcomes(outcomes)
		result.Batches = []TraceBatch{tb}

	case opts.EventID != "":
		outcomes, err := st.FindEvent(ctx, opts.EventID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to find event", err)
		}
		result.Batches = []TraceBatch{}
		result.Outcomes = toTraceOutcomes(outcomes)

	default:
		batches, err := st.ListBatches(ctx, opts.NodeName)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list batches", err)
		}
		result.Batches = make([]TraceBatch, len(batches))
		for i, b := range batches {
			result.Batches[i] = toTraceBatch(b)
		}
	}
	result.Stats = computeStats(result.Batches)

	// Output results
	if opts.Format == "json" {
		return outputTraceJSON(cmd, result)
	}
	return outputTraceText(cmd, result, opts.Verbose)
}

func toTraceBatch(b store.Batch) TraceBatch {
	return TraceBatch{
		ID:       b.ID,
		NodeName: b.NodeName,
		Pipeline: b.Pipeline,
		Seq:      b.Seq,
		Events:   b.Events,
		Dropped:  b.Dropped,
		Status:   b.Status,
		Error:    b.Error,
	}
}

func toTraceOutcomes(outcomes []store.OutcomeRecord) []TraceOutcome {
	out := make([]TraceOutcome, len(outcomes))
	for i, o := range outcomes {
		out[i] = TraceOutcome{
			BatchID: o.BatchID,
			Index:   o.Index,
			Outcome: string(o.Outcome),
			EventID: o.EventID,
			Event:   json.RawMessage(o.Event),
		}
	}
	return out
}

func computeStats(batches []TraceBatch) TraceStats {
	stats := TraceStats{Batches: len(batches)}
	for _, b := range batches {
		if b.Status == store.StatusFailed {
			stats.Failed++
		}
		stats.Events += b.Events
		stats.Dropped += b.Dropped
	}
	return stats
}

// outputTraceJSON outputs the trace result as JSON.
func outputTraceJSON(cmd *cobra.Command, result TraceResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// outputTraceText outputs the trace result as text.
func outputTraceText(cmd *cobra.Command, result TraceResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w, "=== Batches ===")
	if len(result.Batches) == 0 {
		fmt.Fprintln(w, "  (no batches)")
	}
	for _, b := range result.Batches {
		fmt.Fprintf(w, "  [%d] %s %s pipeline=%s events=%d dropped=%d\n",
			b.Seq, truncateID(b.ID), b.Status, b.Pipeline, b.Events, b.Dropped)
		if b.Error != "" {
			fmt.Fprintf(w, "       Error: %s\n", b.Error)
		}
		for _, o := range b.Outcomes {
			formatOutcome(w, o, verbose)
		}
	}
	fmt.Fprintln(w)

	if result.Outcomes != nil {
		fmt.Fprintln(w, "=== Outcomes ===")
		if len(result.Outcomes) == 0 {
			fmt.Fprintln(w, "  (event not found)")
		}
		for _, o := range result.Outcomes {
			fmt.Fprintf(w, "  batch %s\n", truncateID(o.BatchID))
			formatOutcome(w, o, verbose)
		}
		fmt.Fprintln(w)
	}

	// Stats section
	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Batches: %d (%d failed)\n", result.Stats.Batches, result.Stats.Failed)
	fmt.Fprintf(w, "  Events:  %d\n", result.Stats.Events)
	fmt.Fprintf(w, "  Dropped: %d\n", result.Stats.Dropped)

	return nil
}

// formatOutcome formats a single outcome for text output.
func formatOutcome(w interface{ Write([]byte) (int, error) }, o TraceOutcome, verbose bool) {
	fmt.Fprintf(w, "    #%d %-11s %s\n", o.Index, o.Outcome, truncateID(o.EventID))
	if verbose && len(o.Event) > 0 {
		fmt.Fprintf(w, "       Event: %s\n", o.Event)
	}
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}

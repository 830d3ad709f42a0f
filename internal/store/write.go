package store

import (
	"context"
	"fmt"

	"github.com/roach88/ingestfilter/internal/event"
)

// Batch statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Outcome is what the filter did with one event.
type Outcome string

const (
	OutcomeTransformed Outcome = "transformed"
	OutcomeDropped     Outcome = "dropped"
)

// Batch is one recorded filter run.
type Batch struct {
	ID       string
	NodeName string
	Pipeline string
	Seq      int64
	Events   int
	Dropped  int
	Status   string
	Error    string
}

// OutcomeRecord is the fate of one event in a batch.
type OutcomeRecord struct {
	BatchID string
	Index   int
	Outcome Outcome
	EventID string

	// Event is the canonical JSON of the emitted record. A dropped event is
	// stored as it was received.
	Event string
}

// NewOutcomes builds outcome records for a filtered batch. A cancelled event
// is recorded as dropped.
func NewOutcomes(batchID string, events []*event.Event) ([]OutcomeRecord, error) {
	out := make([]OutcomeRecord, len(events))
	for i, e := range events {
		id, data, err := marshalEvent(e)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		outcome := OutcomeTransformed
		if e.IsCancelled() {
			outcome = OutcomeDropped
		}
		out[i] = OutcomeRecord{BatchID: batchID, Index: i, Outcome: outcome, EventID: id, Event: data}
	}
	return out, nil
}

// NextSeq returns the next sequence number for node.
func (s *Store) NextSeq(ctx context.Context, node string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM batches WHERE node_name = ?`, node,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next seq: %w", err)
	}
	return seq, nil
}

// WriteBatch records b and its outcomes in one transaction.
// Uses ON CONFLICT(id) DO NOTHING for idempotency: rewriting a batch with a
// known id leaves the stored rows untouched.
func (s *Store) WriteBatch(ctx context.Context, b Batch, outcomes []OutcomeRecord) error {
	if b.Status == "" {
		b.Status = StatusOK
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write batch: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `
		INSERT INTO batches
		(id, node_name, pipeline, seq, event_count, dropped_count, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		b.ID,
		b.NodeName,
		b.Pipeline,
		b.Seq,
		b.Events,
		b.Dropped,
		b.Status,
		b.Error,
	)
	if err != nil {
		return fmt.Errorf("write batch: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return tx.Commit()
	}

	for _, o := range outcomes {
		if o.BatchID != b.ID {
			return fmt.Errorf("write batch: outcome %d belongs to batch %s", o.Index, o.BatchID)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO outcomes (batch_id, idx, outcome, event_id, event)
			VALUES (?, ?, ?, ?, ?)
		`, o.BatchID, o.Index, string(o.Outcome), o.EventID, o.Event)
		if err != nil {
			return fmt.Errorf("write outcome %d: %w", o.Index, err)
		}
	}
	return tx.Commit()
}

// RecordBatch writes one filter run for node: it assigns the next sequence
// number, derives the batch id from the input events and stores the outputs
// as outcomes. A non-nil filterErr records a failed batch without outcomes.
func (s *Store) RecordBatch(ctx context.Context, node, pipeline string, in, out []*event.Event, filterErr error) (Batch, []OutcomeRecord, error) {
	inputIDs := make([]string, len(in))
	for i, e := range in {
		id, err := EventID(e)
		if err != nil {
			return Batch{}, nil, fmt.Errorf("event %d: %w", i, err)
		}
		inputIDs[i] = id
	}

	seq, err := s.NextSeq(ctx, node)
	if err != nil {
		return Batch{}, nil, err
	}
	id, err := BatchID(node, seq, inputIDs)
	if err != nil {
		return Batch{}, nil, err
	}

	b := Batch{
		ID:       id,
		NodeName: node,
		Pipeline: pipeline,
		Seq:      seq,
		Events:   len(in),
		Status:   StatusOK,
	}
	var outcomes []OutcomeRecord
	if filterErr != nil {
		b.Status = StatusFailed
		b.Error = filterErr.Error()
	} else {
		outcomes, err = NewOutcomes(id, out)
		if err != nil {
			return Batch{}, nil, err
		}
		for _, o := range outcomes {
			if o.Outcome == OutcomeDropped {
				b.Dropped++
			}
		}
	}

	if err := s.WriteBatch(ctx, b, outcomes); err != nil {
		return Batch{}, nil, err
	}
	return b, outcomes, nil
}

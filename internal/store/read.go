package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/ingestfilter/internal/event"
)

// ErrBatchNotFound is returned by ReadBatch for an unknown id.
var ErrBatchNotFound = errors.New("batch not found")

// ReadBatch returns a batch and its outcomes in batch order.
func (s *Store) ReadBatch(ctx context.Context, id string) (Batch, []OutcomeRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, node_name, pipeline, seq, event_count, dropped_count, status, error
		FROM batches
		WHERE id = ?
	`, id)
	b, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Batch{}, nil, fmt.Errorf("%w: %s", ErrBatchNotFound, id)
	}
	if err != nil {
		return Batch{}, nil, err
	}

	outcomes, err := s.queryOutcomes(ctx, `
		SELECT batch_id, idx, outcome, event_id, event
		FROM outcomes
		WHERE batch_id = ?
		ORDER BY idx ASC
	`, id)
	if err != nil {
		return Batch{}, nil, err
	}
	return b, outcomes, nil
}

// ListBatches returns every batch of node ordered by sequence number.
// Returns an empty slice (not nil) if nothing was recorded.
func (s *Store) ListBatches(ctx context.Context, node string) ([]Batch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, node_name, pipeline, seq, event_count, dropped_count, status, error
		FROM batches
		WHERE node_name = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, node)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	batches := []Batch{}
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batches: %w", err)
	}
	return batches, nil
}

// FindEvent returns every outcome that emitted the event with id, ordered by
// batch sequence then index.
func (s *Store) FindEvent(ctx context.Context, id string) ([]OutcomeRecord, error) {
	return s.queryOutcomes(ctx, `
		SELECT o.batch_id, o.idx, o.outcome, o.event_id, o.event
		FROM outcomes o
		JOIN batches b ON b.id = o.batch_id
		WHERE o.event_id = ?
		ORDER BY b.seq ASC, o.batch_id COLLATE BINARY ASC, o.idx ASC
	`, id)
}

// LoadEvent decodes the stored record of an outcome.
func (o OutcomeRecord) LoadEvent() (*event.Event, error) {
	e, err := unmarshalEvent(o.Event)
	if err != nil {
		return nil, err
	}
	if o.Outcome == OutcomeDropped {
		e.Cancel()
	}
	return e, nil
}

func (s *Store) queryOutcomes(ctx context.Context, query string, args ...any) ([]OutcomeRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	outcomes := []OutcomeRecord{}
	for rows.Next() {
		var o OutcomeRecord
		var outcome string
		if err := rows.Scan(&o.BatchID, &o.Index, &outcome, &o.EventID, &o.Event); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Outcome = Outcome(outcome)
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return outcomes, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanBatch(row scanner) (Batch, error) {
	var b Batch
	err := row.Scan(&b.ID, &b.NodeName, &b.Pipeline, &b.Seq, &b.Events, &b.Dropped, &b.Status, &b.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return Batch{}, err
	}
	if err != nil {
		return Batch{}, fmt.Errorf("scan batch: %w", err)
	}
	return b, nil
}

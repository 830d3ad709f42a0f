package store

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/roach88/ingestfilter/internal/event"
	"github.com/roach88/ingestfilter/internal/value"
)

func TestWriteBatch_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	kept := createTestEvent(t, map[string]any{"message": "hi", "n": 1})
	dropped := createTestEvent(t, map[string]any{"message": "bye"})
	dropped.Cancel()

	b, outcomes := createTestBatch(t, "node-a", 1, []*event.Event{kept, dropped})
	if err := s.WriteBatch(ctx, b, outcomes); err != nil {
		t.Fatalf("WriteBatch() failed: %v", err)
	}

	got, gotOutcomes, err := s.ReadBatch(ctx, b.ID)
	if err != nil {
		t.Fatalf("ReadBatch() failed: %v", err)
	}
	if got.Status != StatusOK {
		t.Errorf("Status = %q, want %q", got.Status, StatusOK)
	}
	if got.Events != 2 || got.Dropped != 1 {
		t.Errorf("counts = %d/%d, want 2/1", got.Events, got.Dropped)
	}
	if len(gotOutcomes) != 2 {
		t.Fatalf("len(outcomes) = %d, want 2", len(gotOutcomes))
	}
	if gotOutcomes[0].Outcome != OutcomeTransformed {
		t.Errorf("outcome[0] = %q, want transformed", gotOutcomes[0].Outcome)
	}
	if gotOutcomes[1].Outcome != OutcomeDropped {
		t.Errorf("outcome[1] = %q, want dropped", gotOutcomes[1].Outcome)
	}

	want := `{"@timestamp":"2024-06-01T12:00:00Z","message":"hi","n":1}`
	if gotOutcomes[0].Event != want {
		t.Errorf("event = %s, want %s", gotOutcomes[0].Event, want)
	}

	loaded, err := gotOutcomes[1].LoadEvent()
	if err != nil {
		t.Fatalf("LoadEvent() failed: %v", err)
	}
	if !loaded.IsCancelled() {
		t.Error("dropped outcome should load as a cancelled event")
	}
	msg, _ := loaded.Field("message")
	if !value.Equal(msg, value.String("bye")) {
		t.Errorf("message = %v, want bye", msg)
	}
}

func TestWriteBatch_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	b, outcomes := createTestBatch(t, "node-a", 1, []*event.Event{createTestEvent(t, map[string]any{"a": 1})})
	for i := 0; i < 2; i++ {
		if err := s.WriteBatch(ctx, b, outcomes); err != nil {
			t.Fatalf("WriteBatch() #%d failed: %v", i, err)
		}
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM outcomes").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("outcome rows = %d, want 1", count)
	}
}

func TestWriteBatch_Failed(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	b, _ := createTestBatch(t, "node-a", 1, []*event.Event{createTestEvent(t, nil)})
	b.Status = StatusFailed
	b.Error = "pipeline [main] failed on event 0: boom"
	if err := s.WriteBatch(ctx, b, nil); err != nil {
		t.Fatalf("WriteBatch() failed: %v", err)
	}

	got, outcomes, err := s.ReadBatch(ctx, b.ID)
	if err != nil {
		t.Fatalf("ReadBatch() failed: %v", err)
	}
	if got.Status != StatusFailed || got.Error != b.Error {
		t.Errorf("got %+v", got)
	}
	if len(outcomes) != 0 {
		t.Errorf("len(outcomes) = %d, want 0", len(outcomes))
	}
}

func TestWriteBatch_RejectsForeignOutcome(t *testing.T) {
	s := createTestStore(t)

	b, outcomes := createTestBatch(t, "node-a", 1, []*event.Event{createTestEvent(t, nil)})
	outcomes[0].BatchID = "other"
	err := s.WriteBatch(context.Background(), b, outcomes)
	if err == nil || !strings.Contains(err.Error(), "belongs to batch other") {
		t.Fatalf("WriteBatch() error = %v", err)
	}

	// The batch row is rolled back with the outcomes.
	if _, _, err := s.ReadBatch(context.Background(), b.ID); !errors.Is(err, ErrBatchNotFound) {
		t.Errorf("ReadBatch() error = %v, want ErrBatchNotFound", err)
	}
}

func TestNextSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		seq, err := s.NextSeq(ctx, "node-a")
		if err != nil {
			t.Fatalf("NextSeq() failed: %v", err)
		}
		if seq != want {
			t.Fatalf("NextSeq() = %d, want %d", seq, want)
		}
		b, outcomes := createTestBatch(t, "node-a", seq, nil)
		if err := s.WriteBatch(ctx, b, outcomes); err != nil {
			t.Fatalf("WriteBatch() failed: %v", err)
		}
	}

	seq, err := s.NextSeq(ctx, "node-b")
	if err != nil {
		t.Fatalf("NextSeq() failed: %v", err)
	}
	if seq != 1 {
		t.Errorf("NextSeq(node-b) = %d, want 1", seq)
	}
}

func TestRecordBatch(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	in := []*event.Event{
		createTestEvent(t, map[string]any{"n": 1}),
		createTestEvent(t, map[string]any{"n": 2}),
	}
	kept := createTestEvent(t, map[string]any{"n": 1, "tagged": true})
	in[1].Cancel()

	b, outcomes, err := s.RecordBatch(ctx, "node-a", "main", in, []*event.Event{kept, in[1]}, nil)
	if err != nil {
		t.Fatalf("RecordBatch() failed: %v", err)
	}
	if b.Seq != 1 || b.Events != 2 || b.Dropped != 1 || b.Status != StatusOK {
		t.Errorf("batch = %+v", b)
	}
	if len(outcomes) != 2 || outcomes[1].Outcome != OutcomeDropped {
		t.Errorf("outcomes = %+v", outcomes)
	}

	failed, outcomes, err := s.RecordBatch(ctx, "node-a", "main", in, nil, errors.New("pipeline [main] failed on event 0: boom"))
	if err != nil {
		t.Fatalf("RecordBatch() failed: %v", err)
	}
	if failed.Seq != 2 || failed.Status != StatusFailed || len(outcomes) != 0 {
		t.Errorf("failed batch = %+v, outcomes = %d", failed, len(outcomes))
	}
	if failed.ID == b.ID {
		t.Error("batches with different sequence numbers share an id")
	}

	got, stored, err := s.ReadBatch(ctx, failed.ID)
	if err != nil {
		t.Fatalf("ReadBatch() failed: %v", err)
	}
	if got.Error != "pipeline [main] failed on event 0: boom" || len(stored) != 0 {
		t.Errorf("stored failed batch = %+v, outcomes = %d", got, len(stored))
	}
}

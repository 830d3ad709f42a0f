// Package filter drives batches of events through the primary pipeline.
//
// Each event is converted to a document, executed, and either replaced by a
// freshly built output event or, when the pipeline drops it, returned as the
// original event with its cancellation flag set. Output order and length
// always match the input. Any engine error aborts the whole batch.
package filter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/roach88/ingestfilter/internal/event"
	"github.com/roach88/ingestfilter/internal/marshal"
	"github.com/roach88/ingestfilter/internal/registry"
)

// MatchListener is notified for every event the pipeline transformed.
// Dropped events are not reported.
type MatchListener interface {
	FilterMatched(e *event.Event)
}

// MatchListenerFunc adapts a function to MatchListener.
type MatchListenerFunc func(e *event.Event)

// FilterMatched calls f.
func (f MatchListenerFunc) FilterMatched(e *event.Event) {
	f(e)
}

// EngineExecutionError wraps a failure raised while processing one event of
// a batch. The batch is abandoned.
type EngineExecutionError struct {
	// Index is the position of the failing event in the batch.
	Index    int
	Pipeline string
	Err      error
}

func (e *EngineExecutionError) Error() string {
	return fmt.Sprintf("pipeline [%s] failed on event %d: %v", e.Pipeline, e.Index, e.Err)
}

func (e *EngineExecutionError) Unwrap() error {
	return e.Err
}

// IsEngineExecutionError reports whether err is an EngineExecutionError.
func IsEngineExecutionError(err error) bool {
	var ee *EngineExecutionError
	return errors.As(err, &ee)
}

// Filter runs batches against a registry's primary pipeline. A Filter holds
// no per-batch state and can be shared by goroutines that each run their
// own batches.
type Filter struct {
	id       string
	reg      *registry.Registry
	newEvent func() *event.Event
	logger   *slog.Logger
}

// Option configures a Filter.
type Option func(*Filter)

// WithID sets the filter identifier used in logs.
func WithID(id string) Option {
	return func(f *Filter) {
		f.id = id
	}
}

// WithEventFactory replaces the constructor for output events.
func WithEventFactory(fn func() *event.Event) Option {
	return func(f *Filter) {
		f.newEvent = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Filter) {
		f.logger = l
	}
}

// New returns a filter over reg. The identifier defaults to a UUIDv7.
func New(reg *registry.Registry, opts ...Option) *Filter {
	f := &Filter{
		reg:      reg,
		newEvent: event.New,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.id == "" {
		f.id = uuid.Must(uuid.NewV7()).String()
	}
	return f
}

// ID returns the filter identifier.
func (f *Filter) ID() string {
	return f.id
}

// Filter processes events in order. sink may be nil.
func (f *Filter) Filter(ctx context.Context, events []*event.Event, sink MatchListener) ([]*event.Event, error) {
	primary := f.reg.Primary()
	name := f.reg.PrimaryName()

	out := make([]*event.Event, 0, len(events))
	dropped := 0
	for i, e := range events {
		doc, err := marshal.ToDocument(e)
		if err != nil {
			return nil, &EngineExecutionError{Index: i, Pipeline: name, Err: err}
		}

		result, err := primary.Execute(ctx, doc)
		if err != nil {
			return nil, &EngineExecutionError{Index: i, Pipeline: name, Err: err}
		}

		if result == nil {
			e.Cancel()
			out = append(out, e)
			dropped++
			continue
		}

		transformed := f.newEvent()
		if err := marshal.ToEvent(result, transformed); err != nil {
			return nil, &EngineExecutionError{Index: i, Pipeline: name, Err: err}
		}
		out = append(out, transformed)
		if sink != nil {
			sink.FilterMatched(transformed)
		}
	}

	f.logger.Debug("filtered batch",
		"filter", f.id,
		"pipeline", name,
		"events", len(events),
		"dropped", dropped,
	)
	return out, nil
}

// Flush has nothing buffered to emit.
func (f *Filter) Flush(context.Context) []*event.Event {
	return nil
}

// RequiresFlush reports whether Flush must be called at shutdown.
func (f *Filter) RequiresFlush() bool {
	return false
}

// RequiresPeriodicFlush reports whether Flush must be called on a timer.
func (f *Filter) RequiresPeriodicFlush() bool {
	return false
}

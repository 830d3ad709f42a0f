package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/ingestfilter/internal/value"
)

// Metadata keys set while on_failure handlers run.
const (
	OnFailureMessage       = "on_failure_message"
	OnFailureProcessorType = "on_failure_processor_type"
	OnFailureProcessorTag  = "on_failure_processor_tag"
)

// Pipeline is a compiled processor chain. It is immutable and safe for
// concurrent use as long as its processors are.
type Pipeline struct {
	id          string
	description string
	steps       []step
	onFailure   []step

	maxExecution time.Duration
	now          func() time.Time
}

type step struct {
	typ           string
	tag           string
	proc          Processor
	ignoreFailure bool
	onFailure     []step
}

// Option configures compilation.
type Option func(*Pipeline)

// WithMaxExecutionTime interrupts an execution that is still running after
// d. Zero disables the watchdog.
func WithMaxExecutionTime(d time.Duration) Option {
	return func(p *Pipeline) {
		p.maxExecution = d
	}
}

// WithClock replaces the watchdog's time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// Compile builds a pipeline from its wire document.
func Compile(id string, config value.Object, factories Factories, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{id: id, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}

	cfg := config.Clone()
	r := NewConfigReader("", "", cfg)
	p.description = r.OptionalString("description", "")
	r.Discard("version")
	procs := r.Value("processors")
	onFailure, hasOnFailure := r.OptionalValue("on_failure")
	if err := r.Err(); err != nil {
		return nil, p.configError(err)
	}
	if len(cfg) > 0 {
		return nil, &ConfigurationError{
			Pipeline: id,
			Message:  fmt.Sprintf("pipeline doesn't support one or more provided configuration parameters %v", cfg.SortedKeys()),
		}
	}

	var err error
	if p.steps, err = compileSteps(factories, procs, "processors"); err != nil {
		return nil, p.configError(err)
	}
	if hasOnFailure {
		if p.onFailure, err = compileSteps(factories, onFailure, "on_failure"); err != nil {
			return nil, p.configError(err)
		}
	}
	return p, nil
}

func (p *Pipeline) configError(err error) error {
	var ce *ConfigurationError
	if errors.As(err, &ce) && ce.Pipeline == "" {
		ce.Pipeline = p.id
	}
	return err
}

func compileSteps(factories Factories, list value.Value, property string) ([]step, error) {
	entries, ok := list.(value.List)
	if !ok {
		return nil, &ConfigurationError{Property: property, Message: fmt.Sprintf("expected a list, got [%s]", kindName(list))}
	}

	steps := make([]step, 0, len(entries))
	for i, entry := range entries {
		obj, ok := entry.(value.Object)
		if !ok || len(obj) != 1 {
			return nil, &ConfigurationError{
				Property: fmt.Sprintf("%s.%d", property, i),
				Message:  "expected an object with exactly one processor type",
			}
		}
		for typ, params := range obj {
			s, err := compileStep(factories, typ, params)
			if err != nil {
				return nil, err
			}
			steps = append(steps, s)
		}
	}
	return steps, nil
}

func compileStep(factories Factories, typ string, params value.Value) (step, error) {
	var cfg value.Object
	switch p := params.(type) {
	case value.Object:
		cfg = p.Clone()
	case value.Null, nil:
		cfg = value.Object{}
	default:
		return step{}, &ConfigurationError{ProcessorType: typ, Message: fmt.Sprintf("expected parameters object, got [%s]", kindName(params))}
	}

	r := NewConfigReader(typ, "", cfg)
	s := step{typ: typ}
	s.tag = r.OptionalString("tag", "")
	r.Tag = s.tag
	s.ignoreFailure = r.Bool("ignore_failure", false)
	r.Discard("description")
	onFailure, hasOnFailure := r.OptionalValue("on_failure")
	if err := r.Err(); err != nil {
		return step{}, err
	}

	factory, ok := factories[typ]
	if !ok {
		return step{}, &ConfigurationError{ProcessorType: typ, Tag: s.tag, Message: fmt.Sprintf("no processor type exists with name [%s]", typ)}
	}
	proc, err := factory(factories, s.tag, cfg)
	if err != nil {
		return step{}, err
	}
	if len(cfg) > 0 {
		return step{}, &ConfigurationError{
			ProcessorType: typ,
			Tag:           s.tag,
			Message:       fmt.Sprintf("processor doesn't support one or more provided configuration parameters %v", cfg.SortedKeys()),
		}
	}
	s.proc = proc

	if hasOnFailure {
		if s.onFailure, err = compileSteps(factories, onFailure, "on_failure"); err != nil {
			return step{}, err
		}
	}
	return s, nil
}

// ID returns the pipeline identifier given to Compile.
func (p *Pipeline) ID() string {
	return p.id
}

// Description returns the optional pipeline description.
func (p *Pipeline) Description() string {
	return p.description
}

// ProcessorTypes returns the top-level processor types in execution order.
func (p *Pipeline) ProcessorTypes() []string {
	types := make([]string, len(p.steps))
	for i, s := range p.steps {
		types[i] = s.typ
	}
	return types
}

// Execute runs the pipeline against doc, which may be modified in place.
// A nil document with a nil error means the document was dropped.
func (p *Pipeline) Execute(ctx context.Context, doc *Document) (*Document, error) {
	if doc == nil {
		return nil, fmt.Errorf("pipeline [%s]: nil document", p.id)
	}
	w := watchdog{pipeline: p.id, now: p.now}
	if p.maxExecution > 0 {
		w.deadline = p.now().Add(p.maxExecution)
	}

	out, err := p.run(ctx, w, p.steps, doc)
	if err == nil || len(p.onFailure) == 0 || fatal(err) {
		return out, err
	}
	return p.handleFailure(ctx, w, p.onFailure, doc, err)
}

func (p *Pipeline) run(ctx context.Context, w watchdog, steps []step, doc *Document) (*Document, error) {
	for _, s := range steps {
		if err := w.check(ctx); err != nil {
			return nil, err
		}

		out, err := s.proc.Execute(ctx, doc)
		if err == nil {
			if out == nil {
				return nil, nil
			}
			doc = out
			continue
		}
		if fatal(err) {
			return nil, err
		}
		if s.ignoreFailure {
			continue
		}

		perr := stepError(p.id, s, err)
		if len(s.onFailure) == 0 {
			return nil, perr
		}
		out, err = p.handleFailure(ctx, w, s.onFailure, doc, perr)
		if err != nil || out == nil {
			return nil, err
		}
		doc = out
	}
	return doc, nil
}

// stepError attributes err to step s. A failure coming out of a nested
// pipeline already names the processor that raised it and is passed up
// unchanged, so each failure is wrapped once however deep it happened.
func stepError(pipeline string, s step, err error) error {
	var pe *ProcessorError
	if errors.As(err, &pe) {
		return err
	}
	return &ProcessorError{Pipeline: pipeline, Type: s.typ, Tag: s.tag, Err: err}
}

// handleFailure runs handlers with the failure recorded in ingest metadata.
// The failure keys are removed once the handlers complete.
func (p *Pipeline) handleFailure(ctx context.Context, w watchdog, handlers []step, doc *Document, cause error) (*Document, error) {
	msg, typ, tag := describeFailure(cause)
	doc.Metadata[OnFailureMessage] = value.String(msg)
	doc.Metadata[OnFailureProcessorType] = value.String(typ)
	doc.Metadata[OnFailureProcessorTag] = value.String(tag)

	out, err := p.run(ctx, w, handlers, doc)
	if err != nil || out == nil {
		return nil, err
	}
	delete(out.Metadata, OnFailureMessage)
	delete(out.Metadata, OnFailureProcessorType)
	delete(out.Metadata, OnFailureProcessorTag)
	return out, nil
}

func describeFailure(err error) (msg, typ, tag string) {
	var pe *ProcessorError
	if errors.As(err, &pe) {
		return pe.Err.Error(), pe.Type, pe.Tag
	}
	return err.Error(), "", ""
}

type watchdog struct {
	pipeline string
	deadline time.Time
	now      func() time.Time
}

func (w watchdog) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !w.deadline.IsZero() && w.now().After(w.deadline) {
		return fmt.Errorf("pipeline [%s]: %w", w.pipeline, ErrInterrupted)
	}
	return nil
}

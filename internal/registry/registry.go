// Package registry compiles pipeline definitions into named, executable
// pipelines and wires cross-pipeline invocation.
//
// A Registry is built once by Build and is read-only afterwards. Build must
// return before any pipeline executes; no lock guards the name table.
package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/ingestfilter/internal/definition"
	"github.com/roach88/ingestfilter/internal/ingest"
	"github.com/roach88/ingestfilter/internal/value"
)

// DefaultMaxDepth bounds nested pipeline invocations.
const DefaultMaxDepth = 128

// Registry maps pipeline names to compiled pipelines.
type Registry struct {
	pipelines map[string]*ingest.Pipeline
	failures  map[string]error
	order     []string
	primary   string
	cycles    []CycleWarning

	maxDepth   int
	engineOpts []ingest.Option
	logger     *slog.Logger
}

// Option configures Build.
type Option func(*Registry)

// WithPrimary names the pipeline the filter runs. It must compile.
func WithPrimary(name string) Option {
	return func(r *Registry) {
		r.primary = name
	}
}

// WithMaxDepth sets the nested invocation limit.
func WithMaxDepth(n int) Option {
	return func(r *Registry) {
		r.maxDepth = n
	}
}

// WithEngineOptions passes options to every pipeline compilation.
func WithEngineOptions(opts ...ingest.Option) Option {
	return func(r *Registry) {
		r.engineOpts = append(r.engineOpts, opts...)
	}
}

// WithLogger sets the logger for compile failures and cycle warnings.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// Build compiles defs with base plus the "pipeline" and "set_security_user"
// processors. A definition that fails to compile is logged and left out; the
// primary pipeline must still resolve.
func Build(ctx context.Context, defs []definition.Definition, base ingest.Factories, opts ...Option) (*Registry, error) {
	if len(defs) == 0 {
		return nil, &definition.ConfigError{Message: definition.ErrNoDefinitions}
	}

	r := &Registry{
		pipelines: make(map[string]*ingest.Pipeline, len(defs)),
		failures:  make(map[string]error),
		maxDepth:  DefaultMaxDepth,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	factories := base.
		With(PipelineProcessor, r.pipelineFactory).
		With(SecurityUserProcessor, securityUserFactory)

	seen := make(map[string]bool, len(defs))
	for _, d := range defs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if seen[d.Name] {
			return nil, &definition.ConfigError{Pipeline: d.Name, Message: "duplicate pipeline name"}
		}
		seen[d.Name] = true

		p, err := compile(d, factories, r.engineOpts)
		if err != nil {
			r.logger.Error("failed to compile pipeline", "pipeline", d.Name, "error", err)
			r.failures[d.Name] = err
			continue
		}
		r.pipelines[d.Name] = p
		r.order = append(r.order, d.Name)
		r.logger.Debug("compiled pipeline", "pipeline", d.Name, "processors", len(d.Processors))
	}

	if r.primary == "" {
		r.primary = defs[0].Name
	}
	if _, ok := r.pipelines[r.primary]; !ok {
		return nil, &definition.ConfigError{
			Pipeline: r.primary,
			Message:  fmt.Sprintf("could not find primary pipeline [%s]", r.primary),
			Err:      r.failures[r.primary],
		}
	}

	r.cycles = AnalyzeCycles(defs)
	for _, c := range r.cycles {
		r.logger.Warn("pipeline cycle detected", "path", c.Path, "max_depth", r.maxDepth)
	}
	return r, nil
}

func compile(d definition.Definition, factories ingest.Factories, opts []ingest.Option) (*ingest.Pipeline, error) {
	wire, err := definition.Reformat(d)
	if err != nil {
		return nil, err
	}
	cfg, err := value.ParseJSONObject(wire)
	if err != nil {
		return nil, fmt.Errorf("decode wire document: %w", err)
	}
	return ingest.Compile(d.Name, cfg, factories, opts...)
}

// Lookup returns the compiled pipeline registered under name.
func (r *Registry) Lookup(name string) (*ingest.Pipeline, bool) {
	p, ok := r.pipelines[name]
	return p, ok
}

// Primary returns the primary pipeline.
func (r *Registry) Primary() *ingest.Pipeline {
	return r.pipelines[r.primary]
}

// PrimaryName returns the primary pipeline's name.
func (r *Registry) PrimaryName() string {
	return r.primary
}

// Names returns the compiled pipeline names in definition order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Failures returns the compile error of every definition left out.
func (r *Registry) Failures() map[string]error {
	out := make(map[string]error, len(r.failures))
	for k, v := range r.failures {
		out[k] = v
	}
	return out
}

// Cycles returns the static cycle warnings found at build time.
func (r *Registry) Cycles() []CycleWarning {
	return r.cycles
}

// MaxDepth returns the nested invocation limit.
func (r *Registry) MaxDepth() int {
	return r.maxDepth
}

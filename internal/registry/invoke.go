package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/ingestfilter/internal/ingest"
	"github.com/roach88/ingestfilter/internal/value"
)

// Processor types installed by Build.
const (
	PipelineProcessor     = "pipeline"
	SecurityUserProcessor = "set_security_user"
)

// Invocation failure reasons.
const (
	ReasonNotFound       = "not found"
	ReasonRecursionLimit = "recursion limit"
)

// InvocationError is raised by the pipeline processor when its target
// cannot be run.
type InvocationError struct {
	Pipeline string
	Reason   string

	// Chain lists the pipelines invoked so far, outermost first.
	Chain []string

	// Limit is the depth limit that was exceeded.
	Limit int
}

func (e *InvocationError) Error() string {
	if e.Reason == ReasonRecursionLimit {
		return fmt.Sprintf("pipeline [%s]: recursion limit of %d nested invocations exceeded", e.Pipeline, e.Limit)
	}
	return fmt.Sprintf("could not find pipeline [%s]", e.Pipeline)
}

// IsInvocationError reports whether err is an InvocationError.
func IsInvocationError(err error) bool {
	var ie *InvocationError
	return errors.As(err, &ie)
}

type chainKey struct{}

// invocationChain returns the pipelines entered through the pipeline
// processor on this execution path.
func invocationChain(ctx context.Context) []string {
	chain, _ := ctx.Value(chainKey{}).([]string)
	return chain
}

type invoker struct {
	reg           *Registry
	name          string
	ignoreMissing bool
}

func (r *Registry) pipelineFactory(_ ingest.Factories, tag string, cfg value.Object) (ingest.Processor, error) {
	rd := ingest.NewConfigReader(PipelineProcessor, tag, cfg)
	name := rd.String("name")
	ignoreMissing := rd.Bool("ignore_missing_pipeline", false)
	if err := rd.Err(); err != nil {
		return nil, err
	}
	return &invoker{reg: r, name: name, ignoreMissing: ignoreMissing}, nil
}

// Execute runs the target pipeline against the current document and returns
// its result, including a drop.
func (p *invoker) Execute(ctx context.Context, doc *ingest.Document) (*ingest.Document, error) {
	target, ok := p.reg.Lookup(p.name)
	if !ok {
		if p.ignoreMissing {
			return doc, nil
		}
		return nil, &InvocationError{Pipeline: p.name, Reason: ReasonNotFound, Chain: invocationChain(ctx)}
	}

	prev := invocationChain(ctx)
	chain := make([]string, len(prev), len(prev)+1)
	copy(chain, prev)
	chain = append(chain, p.name)
	if len(chain) > p.reg.maxDepth {
		return nil, &InvocationError{Pipeline: p.name, Reason: ReasonRecursionLimit, Chain: chain, Limit: p.reg.maxDepth}
	}
	return target.Execute(context.WithValue(ctx, chainKey{}, chain), doc)
}

// securityUserFactory accepts any parameters and does nothing, so that
// definitions written for security-enabled clusters still load.
func securityUserFactory(_ ingest.Factories, tag string, cfg value.Object) (ingest.Processor, error) {
	ingest.NewConfigReader(SecurityUserProcessor, tag, cfg).Discard(cfg.SortedKeys()...)
	return ingest.ProcessorFunc(func(_ context.Context, doc *ingest.Document) (*ingest.Document, error) {
		return doc, nil
	}), nil
}

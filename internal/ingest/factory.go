package ingest

import (
	"context"
	"fmt"
	"maps"

	"github.com/roach88/ingestfilter/internal/value"
)

// Processor transforms one document. Returning a nil document drops it.
type Processor interface {
	Execute(ctx context.Context, doc *Document) (*Document, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, doc *Document) (*Document, error)

// Execute calls f.
func (f ProcessorFunc) Execute(ctx context.Context, doc *Document) (*Document, error) {
	return f(ctx, doc)
}

// Factory builds a processor from its parameters. It must remove every key
// it consumes from cfg; keys left behind fail compilation. The full factory
// set is passed so that processors with nested chains can compile them.
type Factory func(f Factories, tag string, cfg value.Object) (Processor, error)

// Factories maps processor type names to factories.
type Factories map[string]Factory

// With returns a copy of f with name bound to factory.
func (f Factories) With(name string, factory Factory) Factories {
	out := maps.Clone(f)
	if out == nil {
		out = Factories{}
	}
	out[name] = factory
	return out
}

// ConfigReader consumes processor parameters. The first problem encountered
// is kept and reported by Err; later reads return zero values.
type ConfigReader struct {
	Type string
	Tag  string
	cfg  value.Object
	err  error
}

// NewConfigReader returns a reader over cfg for a processor of type typ.
func NewConfigReader(typ, tag string, cfg value.Object) *ConfigReader {
	return &ConfigReader{Type: typ, Tag: tag, cfg: cfg}
}

// Err returns the first configuration problem.
func (r *ConfigReader) Err() error {
	return r.err
}

// Fail records a configuration problem for key.
func (r *ConfigReader) Fail(key, format string, args ...any) {
	if r.err != nil {
		return
	}
	r.err = &ConfigurationError{
		ProcessorType: r.Type,
		Tag:           r.Tag,
		Property:      key,
		Message:       fmt.Sprintf(format, args...),
	}
}

func (r *ConfigReader) take(key string) (value.Value, bool) {
	v, ok := r.cfg[key]
	if ok {
		delete(r.cfg, key)
	}
	return v, ok
}

// String reads a required string.
func (r *ConfigReader) String(key string) string {
	v, ok := r.take(key)
	if !ok {
		r.Fail(key, "required property is missing")
		return ""
	}
	s, ok := v.(value.String)
	if !ok {
		r.Fail(key, "property isn't a string, but of type [%s]", kindName(v))
		return ""
	}
	return string(s)
}

// OptionalString reads a string, returning def when absent.
func (r *ConfigReader) OptionalString(key, def string) string {
	if _, ok := r.cfg[key]; !ok {
		return def
	}
	return r.String(key)
}

// Bool reads a boolean, returning def when absent. The strings "true" and
// "false" are accepted.
func (r *ConfigReader) Bool(key string, def bool) bool {
	v, ok := r.take(key)
	if !ok {
		return def
	}
	switch b := v.(type) {
	case value.Bool:
		return bool(b)
	case value.String:
		switch b {
		case "true":
			return true
		case "false":
			return false
		}
	}
	r.Fail(key, "property isn't a boolean, but of type [%s]", kindName(v))
	return def
}

// Value reads a required value of any kind.
func (r *ConfigReader) Value(key string) value.Value {
	v, ok := r.take(key)
	if !ok {
		r.Fail(key, "required property is missing")
		return nil
	}
	return v
}

// OptionalValue reads a value of any kind.
func (r *ConfigReader) OptionalValue(key string) (value.Value, bool) {
	return r.take(key)
}

// Strings reads a required string or list of strings.
func (r *ConfigReader) Strings(key string) []string {
	v, ok := r.take(key)
	if !ok {
		r.Fail(key, "required property is missing")
		return nil
	}
	switch s := v.(type) {
	case value.String:
		return []string{string(s)}
	case value.List:
		out := make([]string, 0, len(s))
		for _, elem := range s {
			str, ok := elem.(value.String)
			if !ok {
				r.Fail(key, "list element isn't a string, but of type [%s]", kindName(elem))
				return nil
			}
			out = append(out, string(str))
		}
		return out
	}
	r.Fail(key, "property isn't a string or list, but of type [%s]", kindName(v))
	return nil
}

// Discard drops keys without reading them.
func (r *ConfigReader) Discard(keys ...string) {
	for _, k := range keys {
		delete(r.cfg, k)
	}
}

// Package definition loads multi-pipeline definition documents.
//
// A document maps pipeline names to bodies with an ordered "processors"
// list of single-key objects:
//
//	{
//	  "main": {"processors": [{"set": {"field": "x", "value": 1}}, {"pipeline": {"name": "sub"}}]},
//	  "sub":  {"processors": [{"set": {"field": "y", "value": 2}}]}
//	}
//
// Pipeline order and processor order follow the source text. Documents
// can be written as JSON, YAML or CUE and fetched from files or Redis.
package definition

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/ingestfilter/internal/value"
)

// ProcessorSpec is one processor type with its opaque parameters.
type ProcessorSpec struct {
	Type   string
	Params value.Value
}

// Definition is a named, ordered processor chain.
type Definition struct {
	Name       string
	Processors []ProcessorSpec
}

// ProcessorTypes returns the processor types in order.
func (d Definition) ProcessorTypes() []string {
	types := make([]string, len(d.Processors))
	for i, p := range d.Processors {
		types[i] = p.Type
	}
	return types
}

// Names returns the definition names in order.
func Names(defs []Definition) []string {
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return names
}

// Reformat renders d in the engine wire shape
// {"processors": [{<type>: <params>}, ...]} as indented JSON.
func Reformat(d Definition) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"processors":[`)
	for i, p := range d.Processors {
		if i > 0 {
			buf.WriteByte(',')
		}
		typ, err := json.Marshal(p.Type)
		if err != nil {
			return nil, err
		}
		params := p.Params
		if params == nil {
			params = value.Object{}
		}
		body, err := value.MarshalJSON(params)
		if err != nil {
			return nil, fmt.Errorf("pipeline [%s] processor [%s]: %w", d.Name, p.Type, err)
		}
		buf.WriteByte('{')
		buf.Write(typ)
		buf.WriteByte(':')
		buf.Write(body)
		buf.WriteByte('}')
	}
	buf.WriteString(`]}`)

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "  "); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

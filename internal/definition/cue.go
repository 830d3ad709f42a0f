package definition

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/roach88/ingestfilter/internal/value"
)

// ParseCUE reads a definitions document written in CUE. The document has the
// same shape as the JSON form; fields are taken in declaration order and must
// be concrete.
func ParseCUE(data []byte) ([]Definition, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data)
	if err := v.Err(); err != nil {
		return nil, cueConfigError("", err)
	}

	iter, err := v.Fields()
	if err != nil {
		return nil, cueConfigError("", err)
	}

	var defs []Definition
	seen := make(map[string]bool)
	for iter.Next() {
		name := iter.Label()
		if seen[name] {
			return nil, &ConfigError{Pipeline: name, Message: "duplicate pipeline name"}
		}
		seen[name] = true

		procs, err := parseCUEBody(name, iter.Value())
		if err != nil {
			return nil, err
		}
		defs = append(defs, Definition{Name: name, Processors: procs})
	}
	if len(defs) == 0 {
		return nil, &ConfigError{Message: ErrNoDefinitions}
	}
	return defs, nil
}

func parseCUEBody(name string, body cue.Value) ([]ProcessorSpec, error) {
	list := body.LookupPath(cue.ParsePath("processors"))
	if !list.Exists() {
		return nil, &ConfigError{Pipeline: name, Line: body.Pos().Line(), Message: "missing required key [processors]"}
	}
	if list.Kind() != cue.ListKind {
		return nil, &ConfigError{Pipeline: name, Line: list.Pos().Line(), Message: "[processors] must be an array"}
	}

	items, err := list.List()
	if err != nil {
		return nil, cueConfigError(name, err)
	}

	var procs []ProcessorSpec
	for idx := 0; items.Next(); idx++ {
		entry := items.Value()
		fields, err := entry.Fields()
		if err != nil || entry.Kind() != cue.StructKind {
			return nil, &ConfigError{Pipeline: name, Line: entry.Pos().Line(), Message: fmt.Sprintf("processor %d must be an object with a processor type key", idx)}
		}
		start := len(procs)
		for fields.Next() {
			params, err := cueValue(fields.Value())
			if err != nil {
				return nil, cueConfigError(name, err)
			}
			procs = append(procs, ProcessorSpec{Type: fields.Label(), Params: params})
		}
		if len(procs) == start {
			return nil, &ConfigError{Pipeline: name, Line: entry.Pos().Line(), Message: fmt.Sprintf("processor %d must be an object with a processor type key", idx)}
		}
	}
	return procs, nil
}

// cueValue exports a concrete CUE value through its JSON encoding.
func cueValue(v cue.Value) (value.Value, error) {
	data, err := v.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return value.ParseJSON(data)
}

func cueConfigError(pipeline string, err error) error {
	ce := &ConfigError{Pipeline: pipeline, Message: "cue", Err: err}
	if errs := cueerrors.Errors(err); len(errs) > 0 {
		ce.Err = errs[0]
		if pos := cueerrors.Positions(errs[0]); len(pos) > 0 {
			ce.Line = pos[0].Line()
		}
	}
	return ce
}

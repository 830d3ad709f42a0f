package definition

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/roach88/ingestfilter/internal/value"
)

// ParseJSON reads a JSON definitions document. Pipelines and processors keep
// their source order and string escapes follow JSON, not YAML.
func ParseJSON(data []byte) ([]Definition, error) {
	src := string(data)
	if !gjson.Valid(src) {
		return nil, &ConfigError{Message: "parse definitions", Err: fmt.Errorf("invalid JSON")}
	}
	// gjson offsets are relative to the first non-space byte.
	lead := len(src) - len(strings.TrimLeft(src, " \t\r\n"))
	p := jsonParser{data: data, lead: lead}

	root := gjson.Parse(src)
	if !root.IsObject() {
		return nil, &ConfigError{Line: p.line(root), Message: "top level must be an object of pipeline names"}
	}

	var defs []Definition
	seen := make(map[string]int)
	var err error
	root.ForEach(func(key, body gjson.Result) bool {
		name := key.Str
		if prev, dup := seen[name]; dup {
			err = &ConfigError{
				Line:     p.line(key),
				Pipeline: name,
				Message:  fmt.Sprintf("duplicate pipeline name, first defined on line %d", prev),
			}
			return false
		}
		seen[name] = p.line(key)

		var procs []ProcessorSpec
		procs, err = p.body(name, body)
		if err != nil {
			return false
		}
		defs = append(defs, Definition{Name: name, Processors: procs})
		return true
	})
	if err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		return nil, &ConfigError{Line: p.line(root), Message: ErrNoDefinitions}
	}
	return defs, nil
}

type jsonParser struct {
	data []byte
	lead int
}

func (p jsonParser) line(r gjson.Result) int {
	off := p.lead + r.Index
	if off > len(p.data) {
		off = len(p.data)
	}
	return bytes.Count(p.data[:off], []byte{'\n'}) + 1
}

func (p jsonParser) body(name string, body gjson.Result) ([]ProcessorSpec, error) {
	if !body.IsObject() {
		return nil, &ConfigError{Line: p.line(body), Pipeline: name, Message: "pipeline body must be an object"}
	}

	var list gjson.Result
	found := false
	body.ForEach(func(key, v gjson.Result) bool {
		if key.Str == "processors" {
			list, found = v, true
		}
		return true
	})
	if !found {
		return nil, &ConfigError{Line: p.line(body), Pipeline: name, Message: "missing required key [processors]"}
	}
	if !list.IsArray() {
		return nil, &ConfigError{Line: p.line(list), Pipeline: name, Message: "[processors] must be an array"}
	}

	var procs []ProcessorSpec
	idx := 0
	var err error
	list.ForEach(func(_, entry gjson.Result) bool {
		if !entry.IsObject() || len(entry.Map()) == 0 {
			err = &ConfigError{Line: p.line(entry), Pipeline: name, Message: fmt.Sprintf("processor %d must be an object with a processor type key", idx)}
			return false
		}
		// An entry with several keys contributes one processor per key.
		entry.ForEach(func(typ, params gjson.Result) bool {
			procs = append(procs, ProcessorSpec{Type: typ.Str, Params: jsonValue(params)})
			return true
		})
		idx++
		return true
	})
	if err != nil {
		return nil, err
	}
	return procs, nil
}

// jsonValue converts a gjson result into the value domain. Numbers written
// without a fraction or exponent stay integers when they fit.
func jsonValue(r gjson.Result) value.Value {
	switch r.Type {
	case gjson.Null:
		return value.Null{}
	case gjson.False:
		return value.Bool(false)
	case gjson.True:
		return value.Bool(true)
	case gjson.String:
		return value.String(r.Str)
	case gjson.Number:
		if !strings.ContainsAny(r.Raw, ".eE") {
			if n, err := strconv.ParseInt(r.Raw, 10, 64); err == nil {
				return value.Int(n)
			}
		}
		return value.Float(r.Num)
	}

	if r.IsArray() {
		list := value.List{}
		r.ForEach(func(_, elem gjson.Result) bool {
			list = append(list, jsonValue(elem))
			return true
		})
		return list
	}
	obj := value.Object{}
	r.ForEach(func(key, elem gjson.Result) bool {
		obj[key.Str] = jsonValue(elem)
		return true
	})
	return obj
}

package registry

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/ingestfilter/internal/definition"
	"github.com/roach88/ingestfilter/internal/value"
)

// CycleWarning describes pipelines that can invoke each other in a loop.
//
// Cycles are warnings, not errors: a loop guarded by on_failure or
// ignore_missing_pipeline may terminate. Unbounded loops are stopped at run
// time by the invocation depth limit.
type CycleWarning struct {
	Path    []string `json:"path"`
	Message string   `json:"message"`
}

// callGraph maps a pipeline name to the pipelines it invokes, in processor
// order.
type callGraph map[string][]string

// AnalyzeCycles finds strongly connected components of the pipeline call
// graph. Results follow definition order, so output is deterministic.
func AnalyzeCycles(defs []definition.Definition) []CycleWarning {
	graph := make(callGraph, len(defs))
	order := make([]string, 0, len(defs))
	for _, d := range defs {
		order = append(order, d.Name)
		graph[d.Name] = invokedPipelines(d.Processors, nil)
	}

	var warnings []CycleWarning
	for _, scc := range tarjanSCC(order, graph) {
		if len(scc) == 1 && !slices.Contains(graph[scc[0]], scc[0]) {
			continue
		}
		path := cyclePath(scc, order, graph)
		warnings = append(warnings, CycleWarning{
			Path:    path,
			Message: fmt.Sprintf("pipelines can invoke each other recursively: %s", strings.Join(path, " -> ")),
		})
	}
	return warnings
}

// invokedPipelines collects "pipeline" processor targets, including those
// inside on_failure chains.
func invokedPipelines(procs []definition.ProcessorSpec, into []string) []string {
	for _, p := range procs {
		params, _ := p.Params.(value.Object)
		if p.Type == PipelineProcessor {
			if name, ok := params["name"].(value.String); ok {
				into = append(into, string(name))
			}
		}
		into = invokedPipelines(handlerSpecs(params["on_failure"]), into)
	}
	return into
}

func handlerSpecs(v value.Value) []definition.ProcessorSpec {
	list, _ := v.(value.List)
	var specs []definition.ProcessorSpec
	for _, entry := range list {
		obj, _ := entry.(value.Object)
		for _, typ := range obj.SortedKeys() {
			specs = append(specs, definition.ProcessorSpec{Type: typ, Params: obj[typ]})
		}
	}
	return specs
}

// tarjanSCC returns the strongly connected components of graph, visiting
// roots in order.
func tarjanSCC(order []string, graph callGraph) [][]string {
	var (
		index   int
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var connect func(string)
	connect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, seen := indices[w]; !seen {
				connect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, node := range order {
		if _, seen := indices[node]; !seen {
			connect(node)
		}
	}

	// Report components in the order their first member was defined.
	pos := make(map[string]int, len(order))
	for i, name := range order {
		pos[name] = i
	}
	first := func(scc []string) int {
		best := len(order)
		for _, n := range scc {
			if p, ok := pos[n]; ok && p < best {
				best = p
			}
		}
		return best
	}
	slices.SortStableFunc(sccs, func(a, b []string) int { return first(a) - first(b) })
	return sccs
}

// cyclePath walks the component from its earliest-defined member back to
// itself.
func cyclePath(scc, order []string, graph callGraph) []string {
	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}
	start := scc[0]
	for _, n := range order {
		if members[n] {
			start = n
			break
		}
	}

	path := []string{start}
	visited := map[string]bool{start: true}
	current := start
	for {
		next := ""
		for _, w := range graph[current] {
			if w == start {
				next = w
				break
			}
			if members[w] && !visited[w] && next == "" {
				next = w
			}
		}
		if next == "" {
			return path
		}
		path = append(path, next)
		if next == start {
			return path
		}
		visited[next] = true
		current = next
	}
}

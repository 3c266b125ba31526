// Package plan implements the Dependency Planner (spec.md §4.6, component
// C6): it builds a directed graph of sibling steps from their input
// templates, topologically sorts it, and detects cycles. The graph shape is
// grounded on the teacher's index.DependencyGraph (adjacency maps keyed by
// node id, held behind a mutex), simplified here to the single case the
// planner needs: one vertex per step id, no edge metadata beyond presence.
package plan

import (
	"github.com/starthub-run/runtime/pkg/action"
	"github.com/starthub-run/runtime/pkg/template"
)

// Graph is a directed graph over a composite action's step ids.
type Graph struct {
	order    []string            // insertion order of vertices, for deterministic tie-breaking
	outEdges map[string][]string // step -> steps it depends on
}

// NewGraph builds the dependency graph for a composition manifest's steps:
// an edge A -> B exists when any string in B's input templates matches
// `{{steps.A....}}` for a known sibling A. References to unknown step
// names are ignored (spec.md §4.6).
func NewGraph(stepOrder []string, steps map[string]action.StepDecl) *Graph {
	g := &Graph{
		order:    append([]string(nil), stepOrder...),
		outEdges: make(map[string][]string, len(stepOrder)),
	}
	known := make(map[string]bool, len(stepOrder))
	for _, id := range stepOrder {
		known[id] = true
	}

	for _, id := range stepOrder {
		decl := steps[id]
		var deps []string
		seen := make(map[string]bool)
		for _, tmpl := range decl.Inputs {
			for _, ref := range template.FindStepNames(tmpl) {
				if ref == id || !known[ref] || seen[ref] {
					continue
				}
				seen[ref] = true
				deps = append(deps, ref)
			}
		}
		g.outEdges[id] = deps
	}
	return g
}

// TopoSort returns an execution order such that for every dependency edge
// A -> B (B depends on A) discovered by NewGraph, index(A) < index(B). Ties
// are broken by insertion order so results are stable across calls on the
// same manifest. Returns action.CycleDetected listing the offending steps
// if the graph is cyclic.
func (g *Graph) TopoSort() ([]string, error) {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(g.order))
	var result []string
	var stack []string

	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case black:
			return nil
		case gray:
			// Found a cycle; report the portion of the stack that forms it.
			cycleStart := 0
			for i, s := range stack {
				if s == id {
					cycleStart = i
					break
				}
			}
			cycle := append([]string(nil), stack[cycleStart:]...)
			cycle = append(cycle, id)
			return action.CycleDetected(cycle)
		}
		color[id] = gray
		stack = append(stack, id)

		for _, dep := range g.outEdges[id] {
			if err := visit(dep); err != nil {
				return err
			}
		}

		stack = stack[:len(stack)-1]
		color[id] = black
		result = append(result, id)
		return nil
	}

	for _, id := range g.order {
		if color[id] == white {
			if err := visit(id); err != nil {
				return nil, err
			}
		}
	}
	return result, nil
}

// SortSteps is a convenience wrapper combining NewGraph and TopoSort.
func SortSteps(stepOrder []string, steps map[string]action.StepDecl) ([]string, error) {
	return NewGraph(stepOrder, steps).TopoSort()
}

// Package tree implements the Tree Builder (spec.md §4.5, component C5): it
// recursively resolves an action reference and its composition's steps into
// an in-memory *action.Node tree, ready for the Tree Executor (pkg/exec) to
// instantiate and run. Grounded on the teacher's recursive project-tree
// walk in pkg/project (directory discovery feeding a tree of nodes), here
// generalized from filesystem recursion to registry-manifest recursion.
package tree

import (
	"context"

	"github.com/starthub-run/runtime/pkg/action"
	"github.com/starthub-run/runtime/pkg/plan"
	"github.com/starthub-run/runtime/pkg/value"
)

// ManifestLoader is the subset of *manifest.Loader the builder depends on,
// named here so tests can substitute a fake without importing net/http.
type ManifestLoader interface {
	Load(ctx context.Context, ref action.Reference) (*action.Manifest, error)
}

// Builder constructs action trees via a ManifestLoader.
type Builder struct {
	Loader ManifestLoader
}

// NewBuilder creates a Builder backed by loader.
func NewBuilder(loader ManifestLoader) *Builder {
	return &Builder{Loader: loader}
}

// Build resolves ref into a fully-formed *action.Node: its manifest is
// loaded, its IO slots are allocated from the manifest's declarations, and,
// if it is a composition, every step is recursively built, its input
// templates overlaid with the call site's authored expressions, and the
// node's execution order computed via the Dependency Planner (spec.md
// §4.5 steps 1-6).
func (b *Builder) Build(ctx context.Context, rawRef string) (*action.Node, error) {
	ref, err := action.ParseReference(rawRef)
	if err != nil {
		return nil, action.ReferenceError(rawRef)
	}

	m, err := b.Loader.Load(ctx, ref)
	if err != nil {
		return nil, err
	}

	node := action.NewNodeFromManifest(ref, m)

	if m.Kind != action.KindComposition {
		return node, nil
	}

	for _, stepID := range m.StepOrder {
		decl := m.Steps[stepID]
		child, err := b.Build(ctx, decl.Uses)
		if err != nil {
			return nil, err
		}
		overlayStepInputs(child, decl.Inputs)
		node.Steps[stepID] = child
	}

	order, err := plan.SortSteps(m.StepOrder, m.Steps)
	if err != nil {
		return nil, err
	}
	node.ExecutionOrder = order

	return node, nil
}

// overlayStepInputs binds the call site: each positional entry in a step
// declaration's authored inputs overwrites the corresponding child input
// slot's template, without altering the child's own declared type or name
// (spec.md §4.5 step 4).
func overlayStepInputs(child *action.Node, templates []value.Value) {
	for i, tmpl := range templates {
		if i >= len(child.Inputs) {
			break
		}
		child.Inputs[i].Template = tmpl
	}
}

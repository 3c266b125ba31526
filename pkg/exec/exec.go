// Package exec implements the Tree Executor (spec.md §4.8, component C8):
// depth-first instantiation and execution of an action tree built by
// pkg/tree. It is the component that actually threads template
// interpolation, type validation, and leaf invocation together per node.
// Grounded on the teacher's pkg/orchestra step-execution loop (Worker.Execute
// driving one step to completion, returning a result the caller folds into
// the next step's context) generalized from a flat step list to a recursive
// tree with a sibling-output environment at each composite node.
package exec

import (
	"context"

	"github.com/starthub-run/runtime/pkg/action"
	"github.com/starthub-run/runtime/pkg/logstream"
	"github.com/starthub-run/runtime/pkg/schema"
	"github.com/starthub-run/runtime/pkg/template"
	"github.com/starthub-run/runtime/pkg/value"
)

// LeafRunner drives a single leaf node to completion, returning its raw
// (pre-normalization, pre-output-template) result sequence.
type LeafRunner interface {
	RunLeaf(ctx context.Context, node *action.Node) ([]value.Value, error)
}

// Executor runs action trees. Log is optional; if nil, execution proceeds
// without emitting Log Channel records.
type Executor struct {
	Leaves LeafRunner
	Log    *logstream.Channel
}

// NewExecutor creates an Executor. log may be nil.
func NewExecutor(leaves LeafRunner, log *logstream.Channel) *Executor {
	return &Executor{Leaves: leaves, Log: log}
}

// Run instantiates node's inputs from parentValues, executes it (leaf
// invocation or step-by-step composite descent), resolves its outputs, and
// returns the same node mutated in place (spec.md §4.8). executedSiblings
// is the sibling-output environment visible to node itself via
// `{{steps...}}` references in its own input templates; it is distinct
// from the sibling environment node's own children will see, which this
// function builds fresh as it executes node.steps in order.
func (e *Executor) Run(ctx context.Context, node *action.Node, parentValues []value.Value, executedSiblings map[string]template.Sibling) (*action.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, action.Cancelled(node.Uses)
	}

	if err := e.instantiateInputs(node, parentValues, executedSiblings); err != nil {
		return nil, err
	}

	if node.IsLeaf() {
		if err := e.runLeaf(ctx, node); err != nil {
			return nil, err
		}
		return node, nil
	}

	siblings := make(map[string]template.Sibling, len(node.ExecutionOrder))
	inputsEnv := node.InputValues()

	for _, stepID := range node.ExecutionOrder {
		child := node.Steps[stepID]

		resolvedInputs := make([]value.Value, len(child.Inputs))
		for i, slot := range child.Inputs {
			v, err := template.Interpolate(slot.Template, template.Env{Inputs: inputsEnv, Steps: siblings})
			if err != nil {
				return nil, err
			}
			resolvedInputs[i] = v
		}

		e.logInfo(node.ID, "executing step", map[string]any{"step": stepID, "uses": child.Uses})

		if _, err := e.Run(ctx, child, resolvedInputs, siblings); err != nil {
			e.logError(node.ID, "step failed", err)
			return nil, err
		}
		siblings[stepID] = child
	}

	if err := e.resolveOutputs(node, inputsEnv, siblings); err != nil {
		return nil, err
	}
	return node, nil
}

// instantiateInputs assigns parentValues into node's input slots,
// validating each against its declared type whenever one is declared
// (spec.md §4.8 step 1). Named types and primitive types alike are resolved
// via schema.CompileNamed, which handles primitives directly.
func (e *Executor) instantiateInputs(node *action.Node, parentValues []value.Value, executedSiblings map[string]template.Sibling) error {
	for i := range node.Inputs {
		var v value.Value
		if i < len(parentValues) {
			v = parentValues[i]
		} else {
			resolved, err := template.Interpolate(node.Inputs[i].Template, template.Env{Steps: executedSiblings})
			if err != nil {
				return err
			}
			v = resolved
		}

		if node.Inputs[i].Type != "" {
			s, err := schema.CompileNamed(node.Inputs[i].Type, node.Types)
			if err != nil {
				return action.InternalError("compiling type %q for input %q: %v", node.Inputs[i].Type, node.Inputs[i].Name, err)
			}
			if err := schema.Validate(v, s, node.Inputs[i].Name); err != nil {
				return err
			}
		}
		node.Inputs[i].SetValue(v)
	}
	return nil
}

// runLeaf invokes the Leaf Executor, applies JSON-in-string normalization
// to its raw results, then resolves and validates each output slot in the
// environment `(inputs=results, steps=∅)` (spec.md §4.8 step 2).
func (e *Executor) runLeaf(ctx context.Context, node *action.Node) error {
	e.logInfo(node.ID, "invoking leaf", map[string]any{"uses": node.Uses})

	results, err := e.Leaves.RunLeaf(ctx, node)
	if err != nil {
		e.logError(node.ID, "leaf failed", err)
		return err
	}

	normalized := make([]value.Value, len(results))
	for i, r := range results {
		normalized[i] = template.NormalizeJSONInString(r)
	}

	env := template.Env{Inputs: normalized}
	for i := range node.Outputs {
		resolved, err := template.Interpolate(node.Outputs[i].Template, env)
		if err != nil {
			return err
		}
		if node.Outputs[i].Type != "" {
			s, err := schema.CompileNamed(node.Outputs[i].Type, node.Types)
			if err != nil {
				return action.InternalError("compiling type %q for output %q: %v", node.Outputs[i].Type, node.Outputs[i].Name, err)
			}
			if err := schema.Validate(resolved, s, node.Outputs[i].Name); err != nil {
				return err
			}
		}
		node.Outputs[i].SetValue(resolved)
	}

	e.logSuccess(node.ID, "leaf completed", map[string]any{"uses": node.Uses})
	return nil
}

// resolveOutputs evaluates a composite node's own output templates in the
// environment `(inputs=node.inputs, steps=node.steps)` once every step has
// executed (spec.md §4.8 step 4).
func (e *Executor) resolveOutputs(node *action.Node, inputsEnv []value.Value, siblings map[string]template.Sibling) error {
	env := template.Env{Inputs: inputsEnv, Steps: siblings}
	for i := range node.Outputs {
		resolved, err := template.Interpolate(node.Outputs[i].Template, env)
		if err != nil {
			return err
		}
		if node.Outputs[i].Type != "" {
			s, err := schema.CompileNamed(node.Outputs[i].Type, node.Types)
			if err != nil {
				return action.InternalError("compiling type %q for output %q: %v", node.Outputs[i].Type, node.Outputs[i].Name, err)
			}
			if err := schema.Validate(resolved, s, node.Outputs[i].Name); err != nil {
				return err
			}
		}
		node.Outputs[i].SetValue(resolved)
	}
	return nil
}

func (e *Executor) logInfo(actionID int64, msg string, fields map[string]any) {
	if e.Log != nil {
		e.Log.Info(actionID, msg, fields)
	}
}

func (e *Executor) logSuccess(actionID int64, msg string, fields map[string]any) {
	if e.Log != nil {
		e.Log.Success(actionID, msg, fields)
	}
}

func (e *Executor) logError(actionID int64, msg string, err error) {
	if e.Log != nil {
		e.Log.Error(actionID, msg, err)
	}
}

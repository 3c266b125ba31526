package exec

import (
	"context"
	"testing"

	"github.com/starthub-run/runtime/pkg/action"
	"github.com/starthub-run/runtime/pkg/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLeaves returns a fixed result sequence for every leaf invocation,
// recording which nodes it was asked to run.
type fakeLeaves struct {
	result []value.Value
	err    error
	calls  []string
}

func (f *fakeLeaves) RunLeaf(_ context.Context, node *action.Node) ([]value.Value, error) {
	f.calls = append(f.calls, node.Uses)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func manifestLeaf(uses string, outputTemplate value.Value) *action.Node {
	n := action.NewNodeFromManifest(action.Reference{}, &action.Manifest{
		Kind: action.KindWasm,
		Inputs: []action.IODecl{
			{Name: "x", Type: "string"},
		},
		Outputs: []action.IODecl{
			{Name: "result", Type: "string", Template: outputTemplate},
		},
	})
	n.Uses = uses
	return n
}

func TestRun_LeafInstantiatesValidatesAndResolvesOutputs(t *testing.T) {
	leaves := &fakeLeaves{result: []value.Value{value.NewString("computed")}}
	node := manifestLeaf("acme/echo:1.0.0", value.NewString("{{inputs[0]}}"))

	e := NewExecutor(leaves, nil)
	result, err := e.Run(context.Background(), node, []value.Value{value.NewString("hi")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "computed", result.Outputs[0].Value.Str)
	assert.Equal(t, []string{"acme/echo:1.0.0"}, leaves.calls)
}

func TestRun_LeafFailurePropagates(t *testing.T) {
	leaves := &fakeLeaves{err: action.LeafFailed("acme/echo:1.0.0", 1, "boom")}
	node := manifestLeaf("acme/echo:1.0.0", value.NewString("{{inputs[0]}}"))

	e := NewExecutor(leaves, nil)
	_, err := e.Run(context.Background(), node, []value.Value{value.NewString("hi")}, nil)
	require.Error(t, err)
	actionErr, ok := err.(*action.Error)
	require.True(t, ok)
	assert.Equal(t, action.CodeLeafFailed, actionErr.Code)
}

func TestRun_TypeMismatchOnInput(t *testing.T) {
	leaves := &fakeLeaves{result: []value.Value{value.NewString("computed")}}
	node := manifestLeaf("acme/echo:1.0.0", value.NewString("{{inputs[0]}}"))

	e := NewExecutor(leaves, nil)
	_, err := e.Run(context.Background(), node, []value.Value{value.NewNumber(42)}, nil)
	require.Error(t, err)
	actionErr, ok := err.(*action.Error)
	require.True(t, ok)
	assert.Equal(t, action.CodeTypeMismatch, actionErr.Code)
}

func TestRun_CompositeSequencesStepsAndSeesSiblingOutputs(t *testing.T) {
	leaves := &fakeLeaves{result: []value.Value{value.NewString("step-output")}}

	leafA := manifestLeaf("acme/a:1.0.0", value.NewString("{{inputs[0]}}"))
	leafA.Inputs[0].Template = value.NewString("seed")
	leafB := manifestLeaf("acme/b:1.0.0", value.NewString("{{inputs[0]}}"))
	leafB.Inputs[0].Template = value.NewString("{{steps.a.outputs[0]}}")

	composite := action.NewNodeFromManifest(action.Reference{}, &action.Manifest{
		Kind:    action.KindComposition,
		Outputs: []action.IODecl{{Name: "final", Type: "string", Template: value.NewString("{{steps.b.outputs[0]}}")}},
	})
	composite.Steps = map[string]*action.Node{"a": leafA, "b": leafB}
	composite.ExecutionOrder = []string{"a", "b"}

	e := NewExecutor(leaves, nil)
	result, err := e.Run(context.Background(), composite, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "step-output", result.Outputs[0].Value.Str)
	assert.Equal(t, []string{"acme/a:1.0.0", "acme/b:1.0.0"}, leaves.calls)
}

func TestRun_CancelledContextShortCircuits(t *testing.T) {
	leaves := &fakeLeaves{result: []value.Value{value.NewString("x")}}
	node := manifestLeaf("acme/echo:1.0.0", value.NewString("{{inputs[0]}}"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := NewExecutor(leaves, nil)
	_, err := e.Run(ctx, node, []value.Value{value.NewString("hi")}, nil)
	require.Error(t, err)
	actionErr, ok := err.(*action.Error)
	require.True(t, ok)
	assert.Equal(t, action.CodeCancelled, actionErr.Code)
}

package plan

import (
	"testing"

	"github.com/starthub-run/runtime/pkg/action"
	"github.com/starthub-run/runtime/pkg/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func step(uses string, templates ...string) action.StepDecl {
	decl := action.StepDecl{Uses: uses}
	for _, t := range templates {
		decl.Inputs = append(decl.Inputs, value.NewString(t))
	}
	return decl
}

// Scenario B (spec.md §8): two steps a, b; b depends on a's first output.
func TestSortSteps_SimpleComposition(t *testing.T) {
	steps := map[string]action.StepDecl{
		"a": step("ns/a:1.0.0"),
		"b": step("ns/b:1.0.0", "{{steps.a.outputs[0].result}}"),
	}
	order, err := SortSteps([]string{"a", "b"}, steps)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestSortSteps_OrderIndependentOfDeclarationOrder(t *testing.T) {
	steps := map[string]action.StepDecl{
		"a": step("ns/a:1.0.0"),
		"b": step("ns/b:1.0.0", "{{steps.a.outputs[0].result}}"),
	}
	order, err := SortSteps([]string{"b", "a"}, steps)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, order)
}

// Scenario C (spec.md §8): two steps referencing each other -> CycleDetected.
func TestSortSteps_CycleOfTwo(t *testing.T) {
	steps := map[string]action.StepDecl{
		"a": step("ns/a:1.0.0", "{{steps.b.outputs[0].x}}"),
		"b": step("ns/b:1.0.0", "{{steps.a.outputs[0].x}}"),
	}
	_, err := SortSteps([]string{"a", "b"}, steps)
	require.Error(t, err)

	actionErr, ok := err.(*action.Error)
	require.True(t, ok)
	assert.Equal(t, action.CodeCycleDetected, actionErr.Code)
	steps_, _ := actionErr.Fields["steps"].([]string)
	assert.Contains(t, steps_, "a")
	assert.Contains(t, steps_, "b")
}

func TestSortSteps_UnknownStepReferenceIgnored(t *testing.T) {
	steps := map[string]action.StepDecl{
		"a": step("ns/a:1.0.0", "{{steps.typo.outputs[0].x}}"),
	}
	order, err := SortSteps([]string{"a"}, steps)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, order)
}

func TestSortSteps_NoDependencies(t *testing.T) {
	steps := map[string]action.StepDecl{
		"a": step("ns/a:1.0.0"),
		"b": step("ns/b:1.0.0"),
		"c": step("ns/c:1.0.0"),
	}
	order, err := SortSteps([]string{"a", "b", "c"}, steps)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

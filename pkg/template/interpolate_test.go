package template

import (
	"testing"

	"github.com/starthub-run/runtime/pkg/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSibling struct {
	outputs []value.Value
}

func (f fakeSibling) OutputValue(i int) (value.Value, bool) {
	if i < 0 || i >= len(f.outputs) {
		return value.Value{}, false
	}
	return f.outputs[i], true
}

func TestInterpolate_IdentityWithoutReferences(t *testing.T) {
	tmpl, err := value.ParseJSON([]byte(`{"a":1,"b":["x","y"],"c":"plain text"}`))
	require.NoError(t, err)

	out, err := Interpolate(tmpl, Env{})
	require.NoError(t, err)
	assert.Equal(t, tmpl.Keys, out.Keys)
	b, err := out.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1,"b":["x","y"],"c":"plain text"}`, string(b))
}

func TestInterpolate_InputsReferenceRawString(t *testing.T) {
	env := Env{Inputs: []value.Value{value.FromJSON(map[string]any{"x": "hello"})}}
	tmpl := value.NewString("prefix-{{inputs[0].x}}-suffix")

	out, err := Interpolate(tmpl, env)
	require.NoError(t, err)
	assert.Equal(t, "prefix-hello-suffix", out.Str)
}

func TestInterpolate_NonStringResolvesToCanonicalJSON(t *testing.T) {
	env := Env{Inputs: []value.Value{value.FromJSON(map[string]any{"x": map[string]any{"v": float64(1)}})}}
	tmpl := value.NewString("{{inputs[0].x}}")

	out, err := Interpolate(tmpl, env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, out.Str)
}

func TestInterpolate_StepsReference(t *testing.T) {
	env := Env{
		Steps: map[string]Sibling{
			"a": fakeSibling{outputs: []value.Value{value.FromJSON(map[string]any{"result": "done"})}},
		},
	}
	tmpl := value.NewString("{{steps.a.outputs[0].result}}")

	out, err := Interpolate(tmpl, env)
	require.NoError(t, err)
	assert.Equal(t, "done", out.Str)
}

func TestInterpolate_MissingReferenceErrors(t *testing.T) {
	env := Env{Inputs: []value.Value{value.NewString("x")}}
	tmpl := value.NewString("{{inputs[5].x}}")

	_, err := Interpolate(tmpl, env)
	require.Error(t, err)
}

func TestInterpolate_UnmatchedBracesLeftLiteral(t *testing.T) {
	tmpl := value.NewString("just some {{ not a reference }} text")
	out, err := Interpolate(tmpl, Env{})
	require.NoError(t, err)
	assert.Equal(t, "just some {{ not a reference }} text", out.Str)
}

func TestNormalizeJSONInString_FixedPoint(t *testing.T) {
	v := value.NewString(`{"a":1}`)
	once := NormalizeJSONInString(v)
	twice := NormalizeJSONInString(once)
	assert.Equal(t, once, twice)
	assert.Equal(t, value.KindObject, once.Kind)
}

func TestNormalizeJSONInString_PlainTextUnchanged(t *testing.T) {
	v := value.NewString("hello world")
	out := NormalizeJSONInString(v)
	assert.Equal(t, "hello world", out.Str)
}

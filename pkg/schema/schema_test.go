package schema

import (
	"testing"

	"github.com/starthub-run/runtime/pkg/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, src string) value.Value {
	t.Helper()
	v, err := value.ParseJSON([]byte(src))
	require.NoError(t, err)
	return v
}

func TestCompileNamed_Primitive(t *testing.T) {
	s, err := CompileNamed("string", nil)
	require.NoError(t, err)
	assert.Equal(t, KindPrimitive, s.Kind)
	assert.Equal(t, PrimitiveString, s.Primitive)
}

// Scenario D (spec.md §8): Cfg = {k: {type:"string", required:true}};
// {"k":"v","extra":1} must fail with TypeMismatch due to the unknown key.
func TestStrictMode_RejectsUnknownProperty(t *testing.T) {
	types := map[string]value.Value{
		"Cfg": mustParse(t, `{"k":{"type":"string","required":true}}`),
	}
	s, err := CompileNamed("Cfg", types)
	require.NoError(t, err)

	v := mustParse(t, `{"k":"v","extra":1}`)
	err = Validate(v, s, "")
	require.Error(t, err)
}

func TestStrictMode_RequiredFieldMissing(t *testing.T) {
	types := map[string]value.Value{
		"Cfg": mustParse(t, `{"k":{"type":"string","required":true}}`),
	}
	s, err := CompileNamed("Cfg", types)
	require.NoError(t, err)

	v := mustParse(t, `{}`)
	err = Validate(v, s, "")
	require.Error(t, err)
}

func TestStrictMode_ExactRequiredSetAccepted(t *testing.T) {
	types := map[string]value.Value{
		"Cfg": mustParse(t, `{"k":{"type":"string","required":true},"opt":{"type":"number"}}`),
	}
	s, err := CompileNamed("Cfg", types)
	require.NoError(t, err)

	v := mustParse(t, `{"k":"v"}`)
	assert.NoError(t, Validate(v, s, ""))

	v2 := mustParse(t, `{"k":"v","opt":1}`)
	assert.NoError(t, Validate(v2, s, ""))
}

func TestObjectPrimitive_AcceptsAnyShape(t *testing.T) {
	s, err := CompileNamed("object", nil)
	require.NoError(t, err)
	assert.NoError(t, Validate(mustParse(t, `{"anything":[1,2,3]}`), s, ""))
	assert.NoError(t, Validate(mustParse(t, `42`), s, ""))
}

func TestArrayItems(t *testing.T) {
	types := map[string]value.Value{
		"List": mustParse(t, `{"type":"object","items":"string"}`),
	}
	s, err := CompileNamed("List", types)
	require.NoError(t, err)
	assert.Equal(t, KindArray, s.Kind)

	assert.NoError(t, Validate(mustParse(t, `["a","b"]`), s, ""))
	assert.Error(t, Validate(mustParse(t, `["a",1]`), s, ""))
}

func TestNestedProperties(t *testing.T) {
	types := map[string]value.Value{
		"Wrapper": mustParse(t, `{"box":{"type":"object","properties":{"inner":{"type":"string","required":true}}}}`),
	}
	s, err := CompileNamed("Wrapper", types)
	require.NoError(t, err)

	assert.NoError(t, Validate(mustParse(t, `{"box":{"inner":"x"}}`), s, ""))
	assert.Error(t, Validate(mustParse(t, `{"box":{"inner":"x","extra":1}}`), s, ""))
	assert.Error(t, Validate(mustParse(t, `{"box":{}}`), s, ""))
}

package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON_PreservesObjectKeyOrder(t *testing.T) {
	v, err := ParseJSON([]byte(`{"z":1,"a":2,"m":3}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "a", "m"}, v.Keys)
}

func TestParseJSON_RoundTrip(t *testing.T) {
	src := `{"name":"widget","count":3,"tags":["a","b"],"nested":{"ok":true,"ratio":1.5}}`
	v, err := ParseJSON([]byte(src))
	require.NoError(t, err)

	out, err := v.MarshalJSON()
	require.NoError(t, err)

	v2, err := ParseJSON(out)
	require.NoError(t, err)
	assert.Equal(t, v.Keys, v2.Keys)

	name, ok := v.Get("name")
	require.True(t, ok)
	assert.Equal(t, "widget", name.Str)
}

func TestResolvePath_PlainAndIndexed(t *testing.T) {
	v, err := ParseJSON([]byte(`{"inputs":[{"x":{"v":1}},{"x":{"v":2}}]}`))
	require.NoError(t, err)

	got, ok, err := ResolvePath(v, "inputs[0].x.v")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, float64(1), got.Num)

	_, ok, err = ResolvePath(v, "inputs[5].x.v")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolvePath_BareNumericSegment(t *testing.T) {
	v, err := ParseJSON([]byte(`["first","second"]`))
	require.NoError(t, err)

	got, ok, err := ResolvePath(v, "1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", got.Str)
}

func TestToInterface_NullAndScalars(t *testing.T) {
	assert.Nil(t, Null().ToInterface())
	assert.Equal(t, true, NewBool(true).ToInterface())
	assert.Equal(t, float64(42), NewNumber(42).ToInterface())
	assert.Equal(t, "hi", NewString("hi").ToInterface())
}

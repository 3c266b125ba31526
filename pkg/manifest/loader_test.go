package manifest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/starthub-run/runtime/pkg/action"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `{
  "kind": "wasm",
  "name": "build",
  "version": "1.0.0",
  "manifest_version": 1,
  "inputs": [{"name": "src", "type": "string", "required": true}],
  "outputs": [{"name": "result", "type": "string"}],
  "mirrors": ["https://mirror.example/a.zip"]
}`

func TestLoad_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/artifacts/acme/build/1.0.0/starthub-lock.json", r.URL.Path)
		w.Write([]byte(sampleManifest))
	}))
	defer srv.Close()

	loader := NewLoader(srv.URL, nil)
	ref, err := action.ParseReference("acme/build:1.0.0")
	require.NoError(t, err)

	m, err := loader.Load(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, action.KindWasm, m.Kind)
	assert.Equal(t, "build", m.Name)
	assert.Len(t, m.Inputs, 1)
	assert.Equal(t, []string{"https://mirror.example/a.zip"}, m.Mirrors)
}

func TestLoad_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	loader := NewLoader(srv.URL, nil)
	ref, _ := action.ParseReference("acme/build:1.0.0")
	_, err := loader.Load(context.Background(), ref)
	require.Error(t, err)
	actionErr, ok := err.(*action.Error)
	require.True(t, ok)
	assert.Equal(t, action.CodeManifestNotFound, actionErr.Code)
}

func TestLoad_MalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	loader := NewLoader(srv.URL, nil)
	ref, _ := action.ParseReference("acme/build:1.0.0")
	_, err := loader.Load(context.Background(), ref)
	require.Error(t, err)
	actionErr, ok := err.(*action.Error)
	require.True(t, ok)
	assert.Equal(t, action.CodeManifestMalformed, actionErr.Code)
}

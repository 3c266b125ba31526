package runtime

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/starthub-run/runtime/pkg/action"
	"github.com/starthub-run/runtime/pkg/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const leafManifestJSON = `{
  "kind": "wasm",
  "name": "uppercase",
  "version": "1.0.0",
  "manifest_version": 1,
  "inputs": [{"name": "text", "type": "string", "required": true}],
  "outputs": [{"name": "result", "type": "string", "template": "{{inputs[0]}}"}]
}`

func buildArtifactZip(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("artifact.wasm")
	require.NoError(t, err)
	_, err = w.Write([]byte("not-real-wasm-bytes"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func writeStubWasmtime(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-wasmtime")
	script := "#!/bin/sh\necho '[\"HELLO\"]'\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestRuntime_Execute_EndToEndLeaf(t *testing.T) {
	artifact := buildArtifactZip(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/artifacts/acme/uppercase/1.0.0/starthub-lock.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(leafManifestJSON))
	})
	mux.HandleFunc("/artifacts/acme/uppercase/1.0.0/artifact.zip", func(w http.ResponseWriter, r *http.Request) {
		w.Write(artifact)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	rt, err := New(Config{
		RegistryURL: srv.URL,
		CacheDir:    t.TempDir(),
		WasmRuntime: writeStubWasmtime(t),
	})
	require.NoError(t, err)

	outputs, err := rt.Execute(context.Background(), "acme/uppercase:1.0.0", []value.Value{value.NewString("hello")})
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, "HELLO", outputs[0].Str)
}

func TestRuntime_Execute_ManifestNotFoundPropagates(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	rt, err := New(Config{
		RegistryURL: srv.URL,
		CacheDir:    t.TempDir(),
		WasmRuntime: writeStubWasmtime(t),
	})
	require.NoError(t, err)

	_, err = rt.Execute(context.Background(), "acme/missing:1.0.0", nil)
	require.Error(t, err)
	actionErr, ok := err.(*action.Error)
	require.True(t, ok)
	assert.Equal(t, action.CodeManifestNotFound, actionErr.Code)
}

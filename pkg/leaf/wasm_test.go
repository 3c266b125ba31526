package leaf

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/starthub-run/runtime/pkg/action"
	"github.com/starthub-run/runtime/pkg/cache"
	"github.com/starthub-run/runtime/pkg/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeStubRuntime writes an executable shell script standing in for
// wasmtime: it ignores its arguments and echoes a single JSON array to
// stdout, mimicking a wasm leaf's NDJSON output contract.
func writeStubRuntime(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-wasmtime")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755))
	return path
}

func leafNode(uses string) *action.Node {
	n := action.NewNodeFromManifest(action.Reference{}, &action.Manifest{
		Kind:    action.KindWasm,
		Inputs:  []action.IODecl{{Name: "x", Type: "string"}},
		Outputs: []action.IODecl{{Name: "result", Type: "string"}},
	})
	n.Uses = uses
	n.Inputs[0].SetValue(value.NewString("hello"))
	return n
}

func TestWasmDriver_Run_Success(t *testing.T) {
	runtimePath := writeStubRuntime(t, `echo '["ok"]'`)
	store := cache.NewStore(t.TempDir(), nil)

	node := leafNode("acme/echo:1.0.0")
	d := NewWasmDriver(runtimePath, store, func(action.Reference) string { return "http://unused.invalid" })

	// Bypass the artifact fetch by pre-seeding the cache file at the
	// location Fetch would otherwise populate, since this stub runtime
	// never actually reads the module argument.
	ref, err := action.ParseReference("acme/echo:1.0.0")
	require.NoError(t, err)
	cachedDir := filepath.Join(store.Dir, ref.CacheKey())
	require.NoError(t, os.MkdirAll(cachedDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cachedDir, "artifact.wasm"), []byte("stub"), 0o644))

	outputs, err := d.Run(context.Background(), node)
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, "ok", outputs[0].Str)
}

func TestWasmDriver_Run_NonZeroExitReturnsLeafFailed(t *testing.T) {
	runtimePath := writeStubRuntime(t, `echo "boom" 1>&2; exit 3`)
	store := cache.NewStore(t.TempDir(), nil)
	node := leafNode("acme/fail:1.0.0")
	d := NewWasmDriver(runtimePath, store, func(action.Reference) string { return "http://unused.invalid" })

	ref, _ := action.ParseReference("acme/fail:1.0.0")
	cachedDir := filepath.Join(store.Dir, ref.CacheKey())
	require.NoError(t, os.MkdirAll(cachedDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cachedDir, "artifact.wasm"), []byte("stub"), 0o644))

	_, err := d.Run(context.Background(), node)
	require.Error(t, err)
	actionErr, ok := err.(*action.Error)
	require.True(t, ok)
	assert.Equal(t, action.CodeLeafFailed, actionErr.Code)
	assert.Contains(t, actionErr.Fields["stderr_tail"], "boom")
}

func TestWasmDriver_Run_MissingRuntimeReturnsLeafUnavailable(t *testing.T) {
	store := cache.NewStore(t.TempDir(), nil)
	node := leafNode("acme/echo:1.0.0")
	d := NewWasmDriver("definitely-not-a-real-binary-xyz", store, func(action.Reference) string { return "" })

	_, err := d.Run(context.Background(), node)
	require.Error(t, err)
	actionErr, ok := err.(*action.Error)
	require.True(t, ok)
	assert.Equal(t, action.CodeLeafUnavailable, actionErr.Code)
}

func TestBuildWasmArgs_CapabilityFlags(t *testing.T) {
	node := leafNode("acme/echo:1.0.0")
	node.Permissions.FS = []string{"read", "unknown"}
	node.Permissions.Net = []string{"https"}
	args, workdir := buildWasmArgs(node)
	assert.Equal(t, []string{"-S", "cli", "-S", "http"}, args)
	assert.Empty(t, workdir)
}

func TestBuildWasmArgs_SpecialFileBindingMountsParentDir(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "input.txt")
	require.NoError(t, os.WriteFile(filePath, []byte("x"), 0o644))

	node := leafNode("std/read-file:1.0.0")
	node.Inputs[0].SetValue(value.NewString(filePath))
	args, workdir := buildWasmArgs(node)
	assert.Equal(t, []string{"--dir", dir}, args)
	assert.Equal(t, dir, workdir)
}

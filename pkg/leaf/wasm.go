package leaf

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/starthub-run/runtime/pkg/action"
	"github.com/starthub-run/runtime/pkg/cache"
	"github.com/starthub-run/runtime/pkg/value"
)

// WasmDriver runs a wasm leaf via an external wasmtime-shaped runtime
// binary found on PATH (spec.md §4.7 WASM path).
type WasmDriver struct {
	// RuntimeName is the executable looked up on PATH, e.g. "wasmtime".
	RuntimeName string
	Cache       *cache.Store
	RegistryURL func(ref action.Reference) string
}

// NewWasmDriver creates a WasmDriver. If runtimeName is empty, "wasmtime"
// is used.
func NewWasmDriver(runtimeName string, store *cache.Store, registryURL func(action.Reference) string) *WasmDriver {
	if runtimeName == "" {
		runtimeName = "wasmtime"
	}
	return &WasmDriver{RuntimeName: runtimeName, Cache: store, RegistryURL: registryURL}
}

// Run executes node, whose Kind must be action.KindWasm and whose Inputs
// must already be instantiated by the Tree Executor.
func (d *WasmDriver) Run(ctx context.Context, node *action.Node) ([]value.Value, error) {
	runtimePath, err := exec.LookPath(d.RuntimeName)
	if err != nil {
		return nil, action.LeafUnavailable(node.Uses, d.RuntimeName+" not found on PATH")
	}

	ref, err := action.ParseReference(node.Uses)
	if err != nil {
		return nil, action.ReferenceError(node.Uses)
	}
	modulePath, err := d.Cache.Fetch(ctx, ref, cache.KindWasm, d.RegistryURL(ref), node.Mirrors)
	if err != nil {
		return nil, err
	}

	args, workdir := buildWasmArgs(node)
	args = append(args, modulePath)

	cmd := exec.CommandContext(ctx, runtimePath, args...)
	if workdir != "" {
		cmd.Dir = workdir
	}

	stdin, err := inputJSON(node.InputValues())
	if err != nil {
		return nil, action.InternalError("serializing inputs for %s: %v", node.Uses, err)
	}
	cmd.Stdin = bytes.NewReader(stdin)

	var stdout bytes.Buffer
	stderr := newTailBuffer(stderrTailLimit)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	runErr := cmd.Run()
	if runErr != nil {
		status := -1
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			status = exitErr.ExitCode()
		}
		return nil, action.LeafFailed(node.Uses, status, stderr.String())
	}

	lines := splitNDJSON(stdout.Bytes())
	return decodeOutputSequence(lines)
}

// buildWasmArgs maps a node's declared permissions to wasmtime capability
// flags and applies the std/read-file: / std/write-file: special-casing,
// following original_source/server/src/wasm.rs exactly (SPEC_FULL.md §12).
func buildWasmArgs(node *action.Node) ([]string, string) {
	var args []string
	for _, perm := range node.Permissions.FS {
		switch perm {
		case "read", "write":
			args = append(args, "-S", "cli")
		}
	}
	for _, perm := range node.Permissions.Net {
		switch perm {
		case "http", "https":
			args = append(args, "-S", "http")
		}
	}

	var workdir string
	if strings.HasPrefix(node.Uses, "std/read-file:") || strings.HasPrefix(node.Uses, "std/write-file:") {
		if len(node.Inputs) > 0 && node.Inputs[0].Value.Kind == value.KindString {
			filePath := node.Inputs[0].Value.Str
			if strings.HasPrefix(filePath, "/") {
				dir := filepath.Dir(filePath)
				args = append(args, "--dir", dir)
				workdir = dir
			}
		}
	}
	return args, workdir
}

// splitNDJSON splits raw stdout into newline-delimited candidate records,
// discarding blank lines; each surviving line is handed to decodeOutputSequence
// as a JSON-parse candidate (spec.md §4.7: "each line that parses as JSON
// is collected in order" — only the first is ultimately used per the
// output format contract).
func splitNDJSON(out []byte) [][]byte {
	var lines [][]byte
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		lines = append(lines, append([]byte(nil), line...))
	}
	return lines
}

// Package runtime wires the Manifest Loader, Tree Builder, Leaf Executor,
// Tree Executor, and Log Channel into the single entry point spec.md §6
// names: `execute(action_ref, inputs) -> value`. Grounded on the teacher's
// top-level service wiring (internal/service.Daemon composes config,
// logger, and the HTTP router into one running process); here the same
// "one constructor, one Execute method" shape composes the action-runtime
// components instead.
package runtime

import (
	"context"
	"fmt"
	"net/http"
	"time"

	dockerclient "github.com/docker/docker/client"
	"github.com/starthub-run/runtime/pkg/action"
	"github.com/starthub-run/runtime/pkg/cache"
	"github.com/starthub-run/runtime/pkg/exec"
	"github.com/starthub-run/runtime/pkg/leaf"
	"github.com/starthub-run/runtime/pkg/logstream"
	"github.com/starthub-run/runtime/pkg/manifest"
	"github.com/starthub-run/runtime/pkg/template"
	"github.com/starthub-run/runtime/pkg/tree"
	"github.com/starthub-run/runtime/pkg/value"
)

// Config configures a Runtime. RegistryURL and CacheDir are required;
// WasmRuntime defaults to "wasmtime" and DockerClient is built from the
// ambient environment when nil.
type Config struct {
	RegistryURL  string
	CacheDir     string
	WasmRuntime  string
	DockerClient *dockerclient.Client
	HTTPClient   *http.Client
	LogDepth     int
}

// Runtime is the fully-wired action runtime: everything needed to resolve
// an action reference, build its tree, execute it, and stream log records.
type Runtime struct {
	builder  *tree.Builder
	executor *exec.Executor
	Log      *logstream.Channel
}

// New wires a Runtime from cfg.
func New(cfg Config) (*Runtime, error) {
	if cfg.RegistryURL == "" {
		return nil, fmt.Errorf("runtime: RegistryURL is required")
	}
	if cfg.CacheDir == "" {
		return nil, fmt.Errorf("runtime: CacheDir is required")
	}

	loader := manifest.NewLoader(cfg.RegistryURL, cfg.HTTPClient)
	store := cache.NewStore(cfg.CacheDir, cfg.HTTPClient)

	registryURLFor := func(ref action.Reference) string {
		return fmt.Sprintf("%s/artifacts/%s/artifact.zip", cfg.RegistryURL, ref.CacheKey())
	}

	wasmDriver := leaf.NewWasmDriver(cfg.WasmRuntime, store, registryURLFor)
	dockerDriver, err := leaf.NewDockerDriver(cfg.DockerClient, store, registryURLFor)
	if err != nil {
		return nil, err
	}

	log := logstream.NewChannel(cfg.LogDepth)

	runner := &leafDispatch{wasm: wasmDriver, docker: dockerDriver}
	executor := exec.NewExecutor(runner, log)
	builder := tree.NewBuilder(loader)

	return &Runtime{builder: builder, executor: executor, Log: log}, nil
}

// leafDispatch implements exec.LeafRunner by routing to the driver
// matching a node's declared kind (spec.md §4.7: WASM vs. container path).
type leafDispatch struct {
	wasm   *leaf.WasmDriver
	docker *leaf.DockerDriver
}

func (d *leafDispatch) RunLeaf(ctx context.Context, node *action.Node) ([]value.Value, error) {
	switch node.Kind {
	case action.KindWasm:
		return d.wasm.Run(ctx, node)
	case action.KindDocker:
		return d.docker.Run(ctx, node)
	default:
		return nil, action.InternalError("leaf node %s has non-leaf kind %q", node.Uses, node.Kind)
	}
}

// Execute resolves actionRef's tree and runs it to completion with inputs
// as the root's instantiated inputs, returning the fully-resolved root
// node's output values as the positional result sequence (spec.md §6).
func (r *Runtime) Execute(ctx context.Context, actionRef string, inputs []value.Value) ([]value.Value, error) {
	started := time.Now()
	r.Log.Info(0, "resolving action tree", map[string]any{"ref": actionRef})

	node, err := r.builder.Build(ctx, actionRef)
	if err != nil {
		r.Log.Error(0, "execution_error", err)
		return nil, err
	}

	result, err := r.executor.Run(ctx, node, inputs, map[string]template.Sibling{})
	if err != nil {
		r.Log.Error(node.ID, "execution_error", err)
		return nil, err
	}

	outputs := make([]value.Value, len(result.Outputs))
	for i, slot := range result.Outputs {
		outputs[i] = slot.Value
	}

	r.Log.Success(node.ID, "execution_complete", map[string]any{
		"ref":          actionRef,
		"duration_ms":  time.Since(started).Milliseconds(),
		"output_count": len(outputs),
	})
	return outputs, nil
}

package leaf

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	containertypes "github.com/docker/docker/api/types/container"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/starthub-run/runtime/pkg/action"
	"github.com/starthub-run/runtime/pkg/cache"
	"github.com/starthub-run/runtime/pkg/value"
)

// DockerDriver runs a docker leaf by talking to the Docker Engine API
// directly (spec.md §4.7 Container path), rather than shelling out to the
// `docker` CLI the original does — the engine's image-load response is the
// same "Loaded image: <name>" stream message the CLI prints, so the
// driver parses it from the structured JSON progress stream instead of
// scraping process stdout text.
type DockerDriver struct {
	Client      *dockerclient.Client
	Cache       *cache.Store
	RegistryURL func(ref action.Reference) string
}

// NewDockerDriver creates a DockerDriver. If cli is nil, a client is built
// from the ambient environment (DOCKER_HOST, etc.) with API version
// negotiation, matching how the Docker CLI itself connects.
func NewDockerDriver(cli *dockerclient.Client, store *cache.Store, registryURL func(action.Reference) string) (*DockerDriver, error) {
	if cli == nil {
		var err error
		cli, err = dockerclient.NewClientWithOpts(dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation())
		if err != nil {
			return nil, action.InternalError("creating docker client: %v", err)
		}
	}
	return &DockerDriver{Client: cli, Cache: store, RegistryURL: registryURL}, nil
}

// Run executes node, whose Kind must be action.KindDocker.
func (d *DockerDriver) Run(ctx context.Context, node *action.Node) ([]value.Value, error) {
	if _, err := d.Client.Ping(ctx); err != nil {
		return nil, action.LeafUnavailable(node.Uses, "docker engine not reachable: "+err.Error())
	}

	ref, err := action.ParseReference(node.Uses)
	if err != nil {
		return nil, action.ReferenceError(node.Uses)
	}
	tarPath, err := d.Cache.Fetch(ctx, ref, cache.KindDocker, d.RegistryURL(ref), node.Mirrors)
	if err != nil {
		return nil, err
	}

	imageName, err := d.loadImage(ctx, tarPath, node.Uses)
	if err != nil {
		return nil, err
	}

	return d.runContainer(ctx, node, imageName)
}

// loadImage loads tarPath into the engine and returns the run-time image
// name, falling back to node's own uses reference if the load response
// never mentions one (spec.md §4.7).
func (d *DockerDriver) loadImage(ctx context.Context, tarPath, uses string) (string, error) {
	f, err := os.Open(tarPath)
	if err != nil {
		return "", action.ArtifactMalformed(uses, "docker", "opening image tarball: "+err.Error())
	}
	defer f.Close()

	resp, err := d.Client.ImageLoad(ctx, f)
	if err != nil {
		return "", action.LeafFailed(uses, -1, "loading image: "+err.Error())
	}
	defer resp.Body.Close()

	name := parseLoadedImageName(resp.Body)
	if name == "" {
		name = uses
	}
	return name, nil
}

// parseLoadedImageName scans a docker image-load JSON progress stream for
// the "Loaded image: <name>" message the engine emits, matching the exact
// text the `docker load` CLI prints from the same stream.
func parseLoadedImageName(body io.Reader) string {
	dec := json.NewDecoder(body)
	for {
		var msg struct {
			Stream string `json:"stream"`
		}
		if err := dec.Decode(&msg); err != nil {
			return ""
		}
		line := strings.TrimSpace(msg.Stream)
		if strings.HasPrefix(line, "Loaded image:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "Loaded image:"))
		}
	}
}

func (d *DockerDriver) runContainer(ctx context.Context, node *action.Node, imageName string) ([]value.Value, error) {
	stdinPayload, err := inputJSON(node.InputValues())
	if err != nil {
		return nil, action.InternalError("serializing inputs for %s: %v", node.Uses, err)
	}

	resp, err := d.Client.ContainerCreate(ctx,
		&containertypes.Config{
			Image:        imageName,
			OpenStdin:    true,
			StdinOnce:    true,
			AttachStdin:  true,
			AttachStdout: true,
			AttachStderr: true,
			Tty:          false,
		},
		&containertypes.HostConfig{AutoRemove: true},
		nil, nil, "",
	)
	if err != nil {
		return nil, action.LeafFailed(node.Uses, -1, "creating container: "+err.Error())
	}
	containerID := resp.ID

	attach, err := d.Client.ContainerAttach(ctx, containerID, containertypes.AttachOptions{
		Stream: true, Stdin: true, Stdout: true, Stderr: true,
	})
	if err != nil {
		return nil, action.LeafFailed(node.Uses, -1, "attaching to container: "+err.Error())
	}
	defer attach.Close()

	if err := d.Client.ContainerStart(ctx, containerID, containertypes.StartOptions{}); err != nil {
		return nil, action.LeafFailed(node.Uses, -1, "starting container: "+err.Error())
	}

	if _, err := attach.Conn.Write(stdinPayload); err != nil {
		return nil, action.LeafFailed(node.Uses, -1, "writing container stdin: "+err.Error())
	}
	attach.CloseWrite()

	var stdout bytes.Buffer
	stderr := newTailBuffer(stderrTailLimit)
	if _, err := stdcopy.StdCopy(&stdout, stderr, attach.Reader); err != nil && err != io.EOF {
		return nil, action.LeafFailed(node.Uses, -1, "reading container output: "+err.Error())
	}

	waitCh, errCh := d.Client.ContainerWait(ctx, containerID, containertypes.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return nil, action.LeafFailed(node.Uses, -1, "waiting for container: "+err.Error())
		}
	case result := <-waitCh:
		if result.StatusCode != 0 {
			return nil, action.LeafFailed(node.Uses, int(result.StatusCode), stderr.String())
		}
	case <-ctx.Done():
		return nil, action.Cancelled(node.Uses)
	}

	return singleDocumentSequence(bytes.TrimSpace(stdout.Bytes()))
}

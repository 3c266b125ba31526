package leaf

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/docker/docker/client"
	"github.com/starthub-run/runtime/pkg/action"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestParseLoadedImageName(t *testing.T) {
	stream := `{"stream":"Loading layer...\n"}
{"stream":"Loaded image: acme/echo:1.0.0\n"}
`
	name := parseLoadedImageName(strings.NewReader(stream))
	assert.Equal(t, "acme/echo:1.0.0", name)
}

func TestParseLoadedImageName_NoMatchReturnsEmpty(t *testing.T) {
	stream := `{"stream":"Loading layer...\n"}`
	name := parseLoadedImageName(strings.NewReader(stream))
	assert.Equal(t, "", name)
}

func TestNewDockerDriver_UnreachableEngineSurfacesLeafUnavailable(t *testing.T) {
	cli, err := client.NewClientWithOpts(client.WithHost("tcp://127.0.0.1:1"), client.WithAPIVersionNegotiation())
	require.NoError(t, err)

	d, err := NewDockerDriver(cli, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, pingErr := d.Client.Ping(ctx)
	assert.Error(t, pingErr)

	_, runErr := d.Run(ctx, &action.Node{Uses: "acme/echo:1.0.0", Kind: action.KindDocker})
	require.Error(t, runErr)
	actionErr, ok := runErr.(*action.Error)
	require.True(t, ok)
	assert.Equal(t, action.CodeLeafUnavailable, actionErr.Code)
}

// TestDockerEngine_RunsRealContainer starts a disposable alpine container
// through testcontainers-go against a locally reachable Docker engine,
// matching the teacher's testcontainers-go integration style
// (tests/docker/docker_test.go). It checks that the engine can run a
// container; it does not call DockerDriver.Run. Skipped when no engine is
// reachable, since this repo's unit tests must not require a running daemon.
func TestDockerEngine_RunsRealContainer(t *testing.T) {
	ctx := context.Background()
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		t.Skip("docker engine not configured:", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := cli.Ping(pingCtx); err != nil {
		t.Skip("docker engine not reachable:", err)
	}

	req := testcontainers.ContainerRequest{
		Image:      "alpine:3.20",
		Cmd:        []string{"sh", "-c", "cat && echo done"},
		WaitingFor: wait.ForLog("done").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	defer container.Terminate(ctx)
}

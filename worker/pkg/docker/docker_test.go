package docker

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/docker/docker/api/types"
	dcontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/errdefs"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/corral-dev/corral/pkg/model"
)

type fakeAPI struct {
	images     map[string]bool
	pullStream string
	pulled     []string

	created    map[string]*dcontainer.Config
	hosts      map[string]*dcontainer.HostConfig
	startErr   error
	removed    []string
	states     map[string]*types.ContainerState
	containers []types.Container
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		images:  map[string]bool{},
		created: map[string]*dcontainer.Config{},
		hosts:   map[string]*dcontainer.HostConfig{},
		states:  map[string]*types.ContainerState{},
	}
}

func (f *fakeAPI) Ping(context.Context) (types.Ping, error) {
	return types.Ping{APIVersion: "1.44"}, nil
}

func (f *fakeAPI) ImageInspectWithRaw(
	_ context.Context, image string,
) (types.ImageInspect, []byte, error) {
	if !f.images[image] {
		return types.ImageInspect{}, nil, errdefs.NotFound(errors.Errorf("no such image: %s", image))
	}
	return types.ImageInspect{ID: image}, nil, nil
}

func (f *fakeAPI) ImagePull(
	_ context.Context, ref string, _ types.ImagePullOptions,
) (io.ReadCloser, error) {
	f.pulled = append(f.pulled, ref)
	f.images[ref] = true
	return io.NopCloser(strings.NewReader(f.pullStream)), nil
}

func (f *fakeAPI) ContainerCreate(
	_ context.Context,
	config *dcontainer.Config,
	hostConfig *dcontainer.HostConfig,
	name string,
) (dcontainer.CreateResponse, error) {
	id := "c-" + name
	f.created[name] = config
	f.hosts[name] = hostConfig
	return dcontainer.CreateResponse{ID: id}, nil
}

func (f *fakeAPI) ContainerStart(_ context.Context, id string, _ dcontainer.StartOptions) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.states[id] = &types.ContainerState{Running: true, Status: "running"}
	return nil
}

func (f *fakeAPI) ContainerInspect(_ context.Context, id string) (types.ContainerJSON, error) {
	state, ok := f.states[id]
	if !ok {
		return types.ContainerJSON{}, errdefs.NotFound(errors.Errorf("no such container: %s", id))
	}
	return types.ContainerJSON{
		ContainerJSONBase: &types.ContainerJSONBase{ID: id, State: state},
	}, nil
}

func (f *fakeAPI) ContainerList(
	context.Context, dcontainer.ListOptions,
) ([]types.Container, error) {
	return f.containers, nil
}

func (f *fakeAPI) ContainerStop(_ context.Context, id string, _ dcontainer.StopOptions) error {
	state, ok := f.states[id]
	if !ok {
		return errdefs.NotFound(errors.Errorf("no such container: %s", id))
	}
	state.Running, state.Status = false, "exited"
	return nil
}

func (f *fakeAPI) ContainerRemove(_ context.Context, id string, _ dcontainer.RemoveOptions) error {
	if _, ok := f.states[id]; !ok && f.startErr == nil {
		return errdefs.NotFound(errors.Errorf("no such container: %s", id))
	}
	delete(f.states, id)
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeAPI) Close() error {
	return nil
}

func testTask() model.Task {
	t := model.NewTask("web", "nginx", time.Now())
	t.Memory = 512
	t.CPU = 1.5
	t.Env = model.EnvVars{"PORT": "80", "MODE": "prod"}
	return *t
}

func TestStartPullsMissingImage(t *testing.T) {
	api := newFakeAPI()
	api.pullStream = `{"status":"Pulling from library/nginx","id":"latest"}
{"status":"Downloading","id":"a1","progressDetail":{"current":1,"total":2}}
{"status":"Status: Downloaded newer image for nginx:latest"}
`
	r := NewRuntime(api, "worker-1")
	task := testTask()

	cid, err := r.Start(context.Background(), task)
	require.NoError(t, err)
	require.Equal(t, "c-"+ContainerName(task.ID), cid)
	require.Equal(t, []string{"docker.io/library/nginx:latest"}, api.pulled)

	config := api.created[ContainerName(task.ID)]
	require.NotNil(t, config)
	require.Equal(t, "docker.io/library/nginx:latest", config.Image)
	require.Equal(t, []string{"MODE=prod", "PORT=80"}, config.Env)
	require.Equal(t, task.ID.String(), config.Labels[TaskIDLabel])
	require.Equal(t, "worker-1", config.Labels[NodeIDLabel])

	host := api.hosts[ContainerName(task.ID)]
	require.Equal(t, int64(512*1024*1024), host.Memory)
	require.Equal(t, int64(1_500_000_000), host.NanoCPUs)
}

func TestStartSkipsPresentImage(t *testing.T) {
	api := newFakeAPI()
	api.images["docker.io/library/nginx:latest"] = true
	r := NewRuntime(api, "worker-1")

	_, err := r.Start(context.Background(), testTask())
	require.NoError(t, err)
	require.Empty(t, api.pulled)
}

func TestStartPullErrorInStream(t *testing.T) {
	api := newFakeAPI()
	api.pullStream = `{"errorDetail":{"message":"manifest unknown"},"error":"manifest unknown"}` + "\n"
	r := NewRuntime(api, "worker-1")

	_, err := r.Start(context.Background(), testTask())
	var rErr *RuntimeError
	require.ErrorAs(t, err, &rErr)
	require.Equal(t, "pull", rErr.Op)
	require.ErrorContains(t, err, "manifest unknown")
	require.Empty(t, api.created)
}

func TestStartInvalidImage(t *testing.T) {
	r := NewRuntime(newFakeAPI(), "worker-1")
	task := testTask()
	task.Image = "Not A Valid Image"

	_, err := r.Start(context.Background(), task)
	require.Error(t, err)
}

func TestStartFailureRemovesContainer(t *testing.T) {
	api := newFakeAPI()
	api.images["docker.io/library/nginx:latest"] = true
	api.startErr = errors.New("port is already allocated")
	r := NewRuntime(api, "worker-1")
	task := testTask()

	_, err := r.Start(context.Background(), task)
	var rErr *RuntimeError
	require.ErrorAs(t, err, &rErr)
	require.Equal(t, "start", rErr.Op)
	require.Equal(t, []string{"c-" + ContainerName(task.ID)}, api.removed)
}

func TestInspect(t *testing.T) {
	api := newFakeAPI()
	api.states["done"] = &types.ContainerState{Status: "exited", ExitCode: 3}
	api.states["up"] = &types.ContainerState{Status: "running", Running: true}
	r := NewRuntime(api, "worker-1")
	ctx := context.Background()

	state, err := r.Inspect(ctx, "done")
	require.NoError(t, err)
	require.True(t, state.Exited())
	require.Equal(t, 3, state.ExitCode)

	state, err = r.Inspect(ctx, "up")
	require.NoError(t, err)
	require.False(t, state.Exited())

	_, err = r.Inspect(ctx, "gone")
	require.ErrorIs(t, err, ErrContainerNotFound)
}

func TestStopAndRemove(t *testing.T) {
	api := newFakeAPI()
	api.states["up"] = &types.ContainerState{Status: "running", Running: true}
	r := NewRuntime(api, "worker-1")
	ctx := context.Background()

	require.NoError(t, r.Stop(ctx, "up", time.Second))
	require.Equal(t, []string{"up"}, api.removed)
	require.NoError(t, r.Stop(ctx, "up", time.Second))
	require.NoError(t, r.Remove(ctx, "never-existed"))
}

func TestListManaged(t *testing.T) {
	api := newFakeAPI()
	api.containers = []types.Container{
		{ID: "c1", Labels: map[string]string{TaskIDLabel: "t1", NodeIDLabel: "worker-1"}},
		{ID: "c2", Labels: map[string]string{NodeIDLabel: "worker-1"}},
	}
	r := NewRuntime(api, "worker-1")

	got, err := r.ListManaged(context.Background())
	require.NoError(t, err)
	require.Equal(t, map[model.TaskID]string{"t1": "c1"}, got)
}

func TestNormalizeImage(t *testing.T) {
	cases := map[string]string{
		"nginx":                  "docker.io/library/nginx:latest",
		"nginx:1.25":             "docker.io/library/nginx:1.25",
		"ghcr.io/corral/web:2.0": "ghcr.io/corral/web:2.0",
	}
	for in, want := range cases {
		got, err := NormalizeImage(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got)
	}
}

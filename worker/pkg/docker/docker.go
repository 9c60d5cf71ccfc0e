package docker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/docker/distribution/reference"
	"github.com/docker/docker/api/types"
	dcontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	units "github.com/docker/go-units"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"

	"github.com/corral-dev/corral/pkg/model"
)

const (
	// TaskIDLabel gives the Corral task a container runs.
	TaskIDLabel = "dev.corral.task.id"
	// NodeIDLabel gives the node that started the container.
	NodeIDLabel = "dev.corral.node.id"

	containerNamePrefix = "corral-"
)

// ErrContainerNotFound is returned when the runtime has no container with the requested ID.
var ErrContainerNotFound = errors.New("container not found")

// ForceRemoveOpts removes a container whatever state it is in.
var ForceRemoveOpts = dcontainer.RemoveOptions{Force: true}

// RuntimeError is a failure of the container runtime while acting on a task or container.
type RuntimeError struct {
	Op  string
	ID  string
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("docker %s %s: %v", e.Op, e.ID, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// API is the part of the Docker Engine API the runtime depends on.
type API interface {
	Ping(ctx context.Context) (types.Ping, error)
	ImageInspectWithRaw(ctx context.Context, image string) (types.ImageInspect, []byte, error)
	ImagePull(ctx context.Context, ref string, options types.ImagePullOptions) (io.ReadCloser, error)
	ContainerCreate(
		ctx context.Context,
		config *dcontainer.Config,
		hostConfig *dcontainer.HostConfig,
		name string,
	) (dcontainer.CreateResponse, error)
	ContainerStart(ctx context.Context, id string, options dcontainer.StartOptions) error
	ContainerInspect(ctx context.Context, id string) (types.ContainerJSON, error)
	ContainerList(ctx context.Context, options dcontainer.ListOptions) ([]types.Container, error)
	ContainerStop(ctx context.Context, id string, options dcontainer.StopOptions) error
	ContainerRemove(ctx context.Context, id string, options dcontainer.RemoveOptions) error
	Close() error
}

// engineAPI narrows *client.Client to API; containers are always created without networking or
// platform overrides.
type engineAPI struct {
	*client.Client
}

func (e engineAPI) ContainerCreate(
	ctx context.Context,
	config *dcontainer.Config,
	hostConfig *dcontainer.HostConfig,
	name string,
) (dcontainer.CreateResponse, error) {
	return e.Client.ContainerCreate(ctx, config, hostConfig, nil, nil, name)
}

// State is the part of a container's state the worker acts on.
type State struct {
	Running   bool
	ExitCode  int
	Status    string
	OOMKilled bool
	Error     string
}

// Exited returns true when the container has stopped for good.
func (s State) Exited() bool {
	return !s.Running && (s.Status == "exited" || s.Status == "dead")
}

// Runtime starts and observes task containers through the Docker daemon.
type Runtime struct {
	// Set during initialization, never modified afterwards.
	api    API
	nodeID string
	log    *logrus.Entry
}

// New connects to the Docker daemon at host, or the one described by the DOCKER_* environment
// variables when host is empty.
func New(host, nodeID string) (*Runtime, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cl, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "error creating docker client")
	}
	return NewRuntime(engineAPI{Client: cl}, nodeID), nil
}

// NewRuntime returns a Runtime over the given API.
func NewRuntime(api API, nodeID string) *Runtime {
	return &Runtime{
		api:    api,
		nodeID: nodeID,
		log:    logrus.WithFields(logrus.Fields{"component": "docker", "node-id": nodeID}),
	}
}

// Ping checks that the daemon is reachable.
func (r *Runtime) Ping(ctx context.Context) error {
	if _, err := r.api.Ping(ctx); err != nil {
		return &RuntimeError{Op: "ping", Err: err}
	}
	return nil
}

// Close releases the underlying client.
func (r *Runtime) Close() error {
	return r.api.Close()
}

// ContainerName is the name the container running a task is created under.
func ContainerName(id model.TaskID) string {
	return containerNamePrefix + id.String()
}

// Start pulls the task's image if it is not present, then creates and starts its container,
// returning the container ID. A container that was created but failed to start is removed.
func (r *Runtime) Start(ctx context.Context, t model.Task) (string, error) {
	ref, err := r.pullImage(ctx, t.Image)
	if err != nil {
		return "", &RuntimeError{Op: "pull", ID: t.Image, Err: err}
	}

	resp, err := r.api.ContainerCreate(ctx, containerConfig(t, ref, r.nodeID), hostConfig(t),
		ContainerName(t.ID))
	if err != nil {
		return "", &RuntimeError{Op: "create", ID: t.ID.String(), Err: err}
	}
	for _, w := range resp.Warnings {
		r.log.WithField("task-id", t.ID).Warnf("warning when creating container: %s", w)
	}

	if err := r.api.ContainerStart(ctx, resp.ID, dcontainer.StartOptions{}); err != nil {
		if rErr := r.api.ContainerRemove(ctx, resp.ID, ForceRemoveOpts); rErr != nil {
			r.log.
				WithError(rErr).
				WithField("container-id", resp.ID).
				Errorf("removing container %s after start failure", resp.ID)
		}
		return "", &RuntimeError{Op: "start", ID: t.ID.String(), Err: err}
	}
	return resp.ID, nil
}

// Inspect returns the state of a container, or ErrContainerNotFound if it no longer exists.
func (r *Runtime) Inspect(ctx context.Context, containerID string) (State, error) {
	info, err := r.api.ContainerInspect(ctx, containerID)
	switch {
	case client.IsErrNotFound(err):
		return State{}, ErrContainerNotFound
	case err != nil:
		return State{}, &RuntimeError{Op: "inspect", ID: containerID, Err: err}
	case info.ContainerJSONBase == nil || info.State == nil:
		return State{}, &RuntimeError{
			Op: "inspect", ID: containerID, Err: errors.New("daemon returned no container state"),
		}
	}
	return State{
		Running:   info.State.Running,
		ExitCode:  info.State.ExitCode,
		Status:    info.State.Status,
		OOMKilled: info.State.OOMKilled,
		Error:     info.State.Error,
	}, nil
}

// Stop stops a container, giving it timeout to exit, then force removes it.
func (r *Runtime) Stop(ctx context.Context, containerID string, timeout time.Duration) error {
	seconds := int(timeout.Seconds())
	err := r.api.ContainerStop(ctx, containerID, dcontainer.StopOptions{Timeout: &seconds})
	switch {
	case client.IsErrNotFound(err):
		return nil
	case err != nil:
		return &RuntimeError{Op: "stop", ID: containerID, Err: err}
	}
	return r.Remove(ctx, containerID)
}

// Remove force removes a container. Removing a container that does not exist is not an error.
func (r *Runtime) Remove(ctx context.Context, containerID string) error {
	err := r.api.ContainerRemove(ctx, containerID, ForceRemoveOpts)
	if err != nil && !client.IsErrNotFound(err) {
		return &RuntimeError{Op: "remove", ID: containerID, Err: err}
	}
	return nil
}

// ListManaged returns the containers this node started, running or not, by task ID.
func (r *Runtime) ListManaged(ctx context.Context) (map[model.TaskID]string, error) {
	containers, err := r.api.ContainerList(ctx, dcontainer.ListOptions{
		All:     true,
		Filters: LabelFilter(NodeIDLabel, r.nodeID),
	})
	if err != nil {
		return nil, &RuntimeError{Op: "list", ID: r.nodeID, Err: err}
	}

	result := make(map[model.TaskID]string, len(containers))
	for _, cont := range containers {
		taskID, ok := cont.Labels[TaskIDLabel]
		if !ok {
			r.log.Warnf("container %v has node label but no task ID", cont.ID)
			continue
		}
		result[model.TaskID(taskID)] = cont.ID
	}
	return result, nil
}

// LabelFilter is a convenience that takes a key and value and returns a docker label filter.
func LabelFilter(key, val string) filters.Args {
	return filters.NewArgs(filters.Arg("label", key+"="+val))
}

// NormalizeImage returns the fully qualified reference Docker resolves image to, defaulting the
// tag to latest.
func NormalizeImage(image string) (string, error) {
	ref, err := reference.ParseNormalizedNamed(image)
	if err != nil {
		return "", errors.Wrapf(err, "error parsing image name %s", image)
	}
	return reference.TagNameOnly(ref).String(), nil
}

func (r *Runtime) pullImage(ctx context.Context, image string) (string, error) {
	ref, err := NormalizeImage(image)
	if err != nil {
		return "", err
	}

	switch _, _, err = r.api.ImageInspectWithRaw(ctx, ref); {
	case err == nil:
		r.log.Debugf("image already found, skipping pull phase: %s", ref)
		return ref, nil
	case client.IsErrNotFound(err):
		r.log.Infof("image not found, pulling image: %s", ref)
	default:
		return "", errors.Wrapf(err, "error checking if image exists %s", ref)
	}

	logs, err := r.api.ImagePull(ctx, ref, types.ImagePullOptions{})
	if err != nil {
		return "", errors.Wrapf(err, "error pulling image: %s", ref)
	}
	defer func() {
		if err := logs.Close(); err != nil {
			r.log.WithError(err).Error("error closing log stream")
		}
	}()

	if err := r.readPullLogs(logs); err != nil {
		return "", errors.Wrap(err, "error processing pull log stream")
	}
	return ref, nil
}

// readPullLogs consumes the pull progress stream; the daemon reports a failed pull as an error
// message inside the stream rather than as a failed request.
func (r *Runtime) readPullLogs(rd io.Reader) error {
	scanner := bufio.NewScanner(rd)
	for scanner.Scan() {
		msg := jsonmessage.JSONMessage{}
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			return errors.Wrapf(err, "error parsing log message: %s", scanner.Text())
		}
		if msg.Error != nil {
			return msg.Error
		}
		if msg.Status != "" && msg.Progress == nil {
			r.log.Tracef("pull: %s %s", msg.ID, msg.Status)
		}
	}
	return scanner.Err()
}

func containerConfig(t model.Task, image, nodeID string) *dcontainer.Config {
	keys := maps.Keys(t.Env)
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+t.Env[k])
	}

	return &dcontainer.Config{
		Image: image,
		Env:   env,
		Labels: map[string]string{
			TaskIDLabel: t.ID.String(),
			NodeIDLabel: nodeID,
		},
	}
}

func hostConfig(t model.Task) *dcontainer.HostConfig {
	hc := &dcontainer.HostConfig{}
	if t.Memory > 0 {
		hc.Memory = int64(t.Memory) * units.MiB
	}
	if t.CPU > 0 {
		hc.NanoCPUs = int64(t.CPU * 1e9)
	}
	return hc
}

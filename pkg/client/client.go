// Package client talks to the manager's HTTP API. It is used by workers and the CLI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/pkg/errors"

	"github.com/corral-dev/corral/pkg/apiv1"
	"github.com/corral-dev/corral/pkg/model"
)

// StatusError is returned when the manager answers with a non-2xx status.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("manager returned %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("manager returned %d: %s", e.Code, e.Message)
}

// IsNotFound returns true if err is a 404 from the manager.
func IsNotFound(err error) bool {
	var serr *StatusError
	return errors.As(err, &serr) && serr.Code == http.StatusNotFound
}

// IsConflict returns true if err is a 409 from the manager.
func IsConflict(err error) bool {
	var serr *StatusError
	return errors.As(err, &serr) && serr.Code == http.StatusConflict
}

// Client is a manager API client. It is safe for concurrent use.
type Client struct {
	base *url.URL
	http *http.Client
}

// New returns a client for the manager at address, which is either host:port or a full URL.
// A zero timeout means requests are bounded only by their context.
func New(address string, timeout time.Duration) (*Client, error) {
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}
	base, err := url.Parse(address)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid manager address %q", address)
	}
	cl := cleanhttp.DefaultPooledClient()
	cl.Timeout = timeout
	return &Client{base: base, http: cl}, nil
}

// SubmitTask creates a new Pending task.
func (c *Client) SubmitTask(ctx context.Context, req apiv1.SubmitTaskRequest) (*model.Task, error) {
	var task model.Task
	if err := c.do(ctx, http.MethodPost, apiv1.TasksPath, nil, req, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// ScheduledTasks returns the tasks assigned to a node but not yet started. An empty nodeID
// returns the feed for every node.
func (c *Client) ScheduledTasks(ctx context.Context, nodeID string) ([]model.Task, error) {
	q := url.Values{}
	if nodeID != "" {
		q.Set("node_id", nodeID)
	}
	var tasks []model.Task
	if err := c.do(ctx, http.MethodGet, apiv1.TasksPath, q, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// UpdateStatus reports a task's new status and, optionally, its container.
func (c *Client) UpdateStatus(
	ctx context.Context, id model.TaskID, status model.TaskStatus, containerID *string,
) error {
	body := apiv1.UpdateStatusRequest{Status: status, ContainerID: containerID}
	return c.do(ctx, http.MethodPut, "/tasks/"+url.PathEscape(id.String())+"/status", nil, body, nil)
}

// GetTask returns one task by ID.
func (c *Client) GetTask(ctx context.Context, id string) (*model.Task, error) {
	var task model.Task
	if err := c.do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(id), nil, nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// ListTasks returns every task, optionally only those with the given status.
func (c *Client) ListTasks(ctx context.Context, status *model.TaskStatus) ([]model.Task, error) {
	q := url.Values{}
	if status != nil {
		q.Set("status", string(*status))
	}
	var tasks []model.Task
	if err := c.do(ctx, http.MethodGet, apiv1.ClusterTasksPath, q, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// RegisterNode announces a node and its capacity to the manager.
func (c *Client) RegisterNode(
	ctx context.Context, req apiv1.RegisterNodeRequest,
) (*model.Node, error) {
	var node model.Node
	if err := c.do(ctx, http.MethodPost, apiv1.NodesPath, nil, req, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// ListNodes returns every known node.
func (c *Client) ListNodes(ctx context.Context) ([]model.Node, error) {
	var nodes []model.Node
	if err := c.do(ctx, http.MethodGet, apiv1.NodesPath, nil, nil, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

func (c *Client) do(
	ctx context.Context, method, path string, query url.Values, in, out interface{},
) error {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = query.Encode()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "failed to encode request")
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e apiv1.ErrorResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		if jerr := json.Unmarshal(raw, &e); jerr != nil {
			e.Message = strings.TrimSpace(string(raw))
		}
		return &StatusError{Code: resp.StatusCode, Message: e.Message}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "failed to decode response to %s %s", method, path)
	}
	return nil
}

// Package apiv1 holds the request and response bodies of the manager's HTTP API.
package apiv1

import (
	"github.com/corral-dev/corral/pkg/model"
)

// Route paths shared by the server and the client.
const (
	TasksPath        = "/tasks"
	TaskPath         = "/tasks/:id"
	TaskStatusPath   = "/tasks/:id/status"
	ClusterTasksPath = "/cluster/tasks"
	NodesPath        = "/nodes"
	MetricsPath      = "/metrics"
)

// SubmitTaskRequest is the body of POST /tasks. Omitted resources take the model defaults and an
// omitted name is generated.
type SubmitTaskRequest struct {
	Name   string            `json:"name"`
	Image  string            `json:"image"`
	Memory *int              `json:"memory,omitempty"`
	CPU    *float64          `json:"cpu,omitempty"`
	Env    map[string]string `json:"env,omitempty"`
}

// UpdateStatusRequest is the body of PUT /tasks/:id/status.
type UpdateStatusRequest struct {
	Status      model.TaskStatus `json:"status"`
	ContainerID *string          `json:"container_id"`
}

// RegisterNodeRequest is the body of POST /nodes.
type RegisterNodeRequest struct {
	Name        string  `json:"name"`
	Address     string  `json:"address"`
	TotalMemory int     `json:"total_memory"`
	TotalCPU    float64 `json:"total_cpu"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Message string `json:"message"`
}

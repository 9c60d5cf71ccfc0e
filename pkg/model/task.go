package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/corral-dev/corral/pkg/check"
)

const (
	// DefaultTaskMemory is the memory, in MB, given to a task that does not ask for any.
	DefaultTaskMemory = 256
	// DefaultTaskCPU is the number of cores given to a task that does not ask for any.
	DefaultTaskCPU = 0.5
)

// ErrIllegalTransition is returned when a status change is not allowed by TaskTransitions.
var ErrIllegalTransition = errors.New("illegal transition")

// TaskID is the unique ID of a task among all tasks.
type TaskID string

// NewTaskID returns a random, globally unique task ID.
func NewTaskID() TaskID {
	return TaskID(uuid.New().String())
}

// ParseTaskID checks that s is a well-formed task ID.
func ParseTaskID(s string) (TaskID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", errors.Wrapf(err, "invalid task id %q", s)
	}
	return TaskID(id.String()), nil
}

func (id TaskID) String() string {
	return string(id)
}

// TaskStatus is the lifecycle status of a task.
type TaskStatus string

const (
	// PendingStatus means the task has been submitted but not placed on a node.
	PendingStatus TaskStatus = "Pending"
	// ScheduledStatus means the task has been assigned to a node that has not started it yet.
	ScheduledStatus TaskStatus = "Scheduled"
	// RunningStatus means the node reported a started container.
	RunningStatus TaskStatus = "Running"
	// CompleteStatus means the container exited successfully.
	CompleteStatus TaskStatus = "Complete"
	// FailedStatus means the container could not be started or exited with an error.
	FailedStatus TaskStatus = "Failed"
)

// TaskStatuses lists every status in lifecycle order.
var TaskStatuses = []TaskStatus{
	PendingStatus, ScheduledStatus, RunningStatus, CompleteStatus, FailedStatus,
}

// TaskTransitions maps task statuses to their possible transitions.
var TaskTransitions = map[TaskStatus]map[TaskStatus]bool{
	PendingStatus: {
		ScheduledStatus: true,
	},
	ScheduledStatus: {
		RunningStatus: true,
		FailedStatus:  true,
	},
	RunningStatus: {
		CompleteStatus: true,
		FailedStatus:   true,
	},
	CompleteStatus: {},
	FailedStatus:   {},
}

// TerminalStatuses are the statuses a task never leaves.
var TerminalStatuses = map[TaskStatus]bool{
	CompleteStatus: true,
	FailedStatus:   true,
}

// ParseTaskStatus converts s into a known TaskStatus.
func ParseTaskStatus(s string) (TaskStatus, error) {
	for _, status := range TaskStatuses {
		if string(status) == s {
			return status, nil
		}
	}
	return "", errors.Errorf("unknown task status %q", s)
}

// UnmarshalJSON rejects statuses outside of the lifecycle.
func (s *TaskStatus) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return errors.Wrap(err, "task status must be a string")
	}
	status, err := ParseTaskStatus(raw)
	if err != nil {
		return err
	}
	*s = status
	return nil
}

// EnvVars are the environment variables passed to a task's container. It is always encoded as a
// JSON object, never null.
type EnvVars map[string]string

// MarshalJSON implements json.Marshaler.
func (e EnvVars) MarshalJSON() ([]byte, error) {
	if e == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]string(e))
}

// Value implements driver.Valuer.
func (e EnvVars) Value() (driver.Value, error) {
	b, err := e.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (e *EnvVars) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*e = EnvVars{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.Errorf("unable to scan %T into env vars", src)
	}
	out := EnvVars{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return errors.Wrap(err, "unable to unmarshal env vars")
	}
	*e = out
	return nil
}

// Task is a unit of work: one container image run once on one node.
type Task struct {
	ID          TaskID     `json:"id" db:"id"`
	Name        string     `json:"name" db:"name"`
	Image       string     `json:"image" db:"image"`
	Memory      int        `json:"memory" db:"memory"`
	CPU         float64    `json:"cpu" db:"cpu"`
	Env         EnvVars    `json:"env" db:"env"`
	Status      TaskStatus `json:"status" db:"status"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	StartedAt   *time.Time `json:"started_at" db:"started_at"`
	NodeID      *string    `json:"node_id" db:"node_id"`
	ContainerID *string    `json:"container_id" db:"container_id"`
}

// NewTask returns a Pending task with a fresh ID and the default resource requests.
func NewTask(name, image string, now time.Time) *Task {
	return &Task{
		ID:        NewTaskID(),
		Name:      name,
		Image:     image,
		Memory:    DefaultTaskMemory,
		CPU:       DefaultTaskCPU,
		Env:       EnvVars{},
		Status:    PendingStatus,
		CreatedAt: now.UTC(),
	}
}

// Validate implements check.Validatable.
func (t Task) Validate() []error {
	return []error{
		check.NotEmpty(t.Name, "task name must not be empty"),
		check.NotEmpty(t.Image, "task image must not be empty"),
		check.GreaterThan(t.Memory, 0, "task memory must be positive"),
		check.GreaterThan(t.CPU, 0, "task cpu must be positive"),
	}
}

// Transition changes the status of the task as reported by its node. If the status was not
// modified the first return value is false. If the transition is illegal, ErrIllegalTransition is
// returned and the task is left untouched. Tasks only become Scheduled through Assign, and a task
// only becomes Running with a non-empty container ID. A non-empty container ID is recorded
// alongside the new status.
func (t *Task) Transition(status TaskStatus, containerID *string, now time.Time) (bool, error) {
	if t.Status == status {
		t.setContainerID(containerID)
		return false, nil
	}
	switch {
	case status == ScheduledStatus:
		return false, errors.Wrapf(ErrIllegalTransition,
			"%v -> %v for task %v without a node", t.Status, status, t.ID)
	case status == RunningStatus && (containerID == nil || *containerID == ""):
		return false, errors.Wrapf(ErrIllegalTransition,
			"%v -> %v for task %v without a container", t.Status, status, t.ID)
	}
	return t.transition(status, containerID, now)
}

func (t *Task) transition(status TaskStatus, containerID *string, now time.Time) (bool, error) {
	if !TaskTransitions[t.Status][status] {
		return false, errors.Wrapf(ErrIllegalTransition, "%v -> %v for task %v",
			t.Status, status, t.ID)
	}
	t.Status = status
	t.setContainerID(containerID)
	if status == RunningStatus {
		started := now.UTC()
		t.StartedAt = &started
	}
	return true, nil
}

// Assign moves a Pending task to Scheduled on the given node.
func (t *Task) Assign(nodeID string, now time.Time) error {
	if t.Status != PendingStatus {
		return errors.Wrapf(ErrIllegalTransition, "cannot assign task %v in status %v",
			t.ID, t.Status)
	}
	if _, err := t.transition(ScheduledStatus, nil, now); err != nil {
		return err
	}
	t.NodeID = &nodeID
	return nil
}

func (t *Task) setContainerID(containerID *string) {
	if containerID == nil || *containerID == "" {
		return
	}
	id := *containerID
	t.ContainerID = &id
}

// Clone returns a deep copy of the task.
func (t Task) Clone() Task {
	out := t
	out.Env = make(EnvVars, len(t.Env))
	for k, v := range t.Env {
		out.Env[k] = v
	}
	if t.StartedAt != nil {
		started := *t.StartedAt
		out.StartedAt = &started
	}
	if t.NodeID != nil {
		node := *t.NodeID
		out.NodeID = &node
	}
	if t.ContainerID != nil {
		cid := *t.ContainerID
		out.ContainerID = &cid
	}
	return out
}

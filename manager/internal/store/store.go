// Package store holds the authoritative record of every task.
package store

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/corral-dev/corral/pkg/model"
)

var (
	// ErrDuplicateTask is returned when adding a task whose ID is already stored.
	ErrDuplicateTask = errors.New("task already exists")
	// ErrIllegalTransition is returned when a status change breaks the task lifecycle.
	ErrIllegalTransition = model.ErrIllegalTransition
)

// StoreError wraps an infrastructure failure in the backing store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying failure.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsStoreError returns true if err is an infrastructure failure rather than a domain error.
func IsStoreError(err error) bool {
	var serr *StoreError
	return errors.As(err, &serr)
}

// TaskStore is a concurrency-safe collection of tasks keyed by ID. Every read returns copies;
// callers mutate tasks only through the write operations.
type TaskStore interface {
	// AddTask inserts a new task.
	AddTask(ctx context.Context, task model.Task) error
	// ListTasks returns a snapshot of every task in no particular order.
	ListTasks(ctx context.Context) ([]model.Task, error)
	// ListTasksByStatus returns a snapshot of the tasks in the given status.
	ListTasksByStatus(ctx context.Context, status model.TaskStatus) ([]model.Task, error)
	// GetTask returns the task or nil if it does not exist.
	GetTask(ctx context.Context, id model.TaskID) (*model.Task, error)
	// UpdateStatus moves a task to a new status, recording a non-empty container ID. It returns
	// the task as it was just before the update, read under the same lock, or nil if the task
	// does not exist.
	UpdateStatus(
		ctx context.Context, id model.TaskID, status model.TaskStatus, containerID *string,
	) (*model.Task, error)
	// AssignNode schedules a task onto a node only if it is still Pending. It returns false if the
	// task does not exist.
	AssignNode(ctx context.Context, id model.TaskID, nodeID string) (bool, error)
}

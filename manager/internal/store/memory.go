package store

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"
	"golang.org/x/exp/maps"

	"github.com/corral-dev/corral/pkg/model"
)

// Memory is a TaskStore kept in process memory. Readers share the lock and writers hold it
// exclusively for the duration of one call.
type Memory struct {
	clock clockwork.Clock

	mu    sync.RWMutex
	tasks map[model.TaskID]*model.Task
}

// NewMemory returns an empty in-memory store.
func NewMemory(clock clockwork.Clock) *Memory {
	return &Memory{clock: clock, tasks: make(map[model.TaskID]*model.Task)}
}

// AddTask implements TaskStore.
func (m *Memory) AddTask(_ context.Context, task model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tasks[task.ID]; ok {
		return ErrDuplicateTask
	}
	stored := task.Clone()
	m.tasks[task.ID] = &stored
	return nil
}

// ListTasks implements TaskStore.
func (m *Memory) ListTasks(_ context.Context) ([]model.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Task, 0, len(m.tasks))
	for _, t := range maps.Values(m.tasks) {
		out = append(out, t.Clone())
	}
	return out, nil
}

// ListTasksByStatus implements TaskStore.
func (m *Memory) ListTasksByStatus(
	_ context.Context, status model.TaskStatus,
) ([]model.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Task
	for _, t := range m.tasks {
		if t.Status == status {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

// GetTask implements TaskStore.
func (m *Memory) GetTask(_ context.Context, id model.TaskID) (*model.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tasks[id]
	if !ok {
		return nil, nil
	}
	out := t.Clone()
	return &out, nil
}

// UpdateStatus implements TaskStore. An illegal transition leaves the task untouched.
func (m *Memory) UpdateStatus(
	_ context.Context, id model.TaskID, status model.TaskStatus, containerID *string,
) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return nil, nil
	}
	prev := t.Clone()
	next := t.Clone()
	if _, err := next.Transition(status, containerID, m.clock.Now()); err != nil {
		return &prev, err
	}
	*t = next
	return &prev, nil
}

// AssignNode implements TaskStore.
func (m *Memory) AssignNode(_ context.Context, id model.TaskID, nodeID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return false, nil
	}
	return true, t.Assign(nodeID, m.clock.Now())
}

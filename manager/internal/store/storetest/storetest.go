// Package storetest checks the behavior every store.TaskStore implementation must share.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/corral-dev/corral/manager/internal/store"
	"github.com/corral-dev/corral/pkg/model"
	"github.com/corral-dev/corral/pkg/ptrs"
)

// Run exercises a TaskStore. newStore must return an empty store on every call.
func Run(t *testing.T, newStore func(t *testing.T) store.TaskStore) {
	cases := []struct {
		name string
		run  func(*testing.T, store.TaskStore)
	}{
		{"AddAndGet", testAddAndGet},
		{"DuplicateID", testDuplicateID},
		{"DuplicateNames", testDuplicateNames},
		{"GetMissing", testGetMissing},
		{"ListIsIdempotent", testListIsIdempotent},
		{"ListByStatus", testListByStatus},
		{"UpdateMissingIsNoop", testUpdateMissingIsNoop},
		{"RunningRoundTrip", testRunningRoundTrip},
		{"IllegalTransitionLeavesTask", testIllegalTransitionLeavesTask},
		{"ScheduledOnlyByAssign", testScheduledOnlyByAssign},
		{"RunningNeedsContainer", testRunningNeedsContainer},
		{"AssignOnlyPending", testAssignOnlyPending},
		{"ReadsAreCopies", testReadsAreCopies},
		{"ConcurrentAdds", testConcurrentAdds},
		{"ConcurrentAssignOneWinner", testConcurrentAssignOneWinner},
		{"ConcurrentTerminalOneWinner", testConcurrentTerminalOneWinner},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			tc.run(t, newStore(t))
		})
	}
}

func newTask(name string) model.Task {
	task := model.NewTask(name, "nginx", time.Now())
	return *task
}

func testAddAndGet(t *testing.T, s store.TaskStore) {
	ctx := context.Background()
	task := newTask("web")
	task.Env = model.EnvVars{"PORT": "80"}
	require.NoError(t, s.AddTask(ctx, task))

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, task.ID, got.ID)
	require.Equal(t, "web", got.Name)
	require.Equal(t, "nginx", got.Image)
	require.Equal(t, model.PendingStatus, got.Status)
	require.Equal(t, 256, got.Memory)
	require.Equal(t, 0.5, got.CPU)
	require.Equal(t, model.EnvVars{"PORT": "80"}, got.Env)
	require.Nil(t, got.NodeID)
	require.Nil(t, got.ContainerID)
	require.Nil(t, got.StartedAt)
}

func testDuplicateID(t *testing.T, s store.TaskStore) {
	ctx := context.Background()
	task := newTask("web")
	require.NoError(t, s.AddTask(ctx, task))
	require.True(t, errors.Is(s.AddTask(ctx, task), store.ErrDuplicateTask))
}

func testDuplicateNames(t *testing.T, s store.TaskStore) {
	ctx := context.Background()
	require.NoError(t, s.AddTask(ctx, newTask("web")))
	require.NoError(t, s.AddTask(ctx, newTask("web")))

	tasks, err := s.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	require.NotEqual(t, tasks[0].ID, tasks[1].ID)
}

func testGetMissing(t *testing.T, s store.TaskStore) {
	got, err := s.GetTask(context.Background(), model.NewTaskID())
	require.NoError(t, err)
	require.Nil(t, got)
}

func testListIsIdempotent(t *testing.T, s store.TaskStore) {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.AddTask(ctx, newTask(fmt.Sprintf("task-%d", i))))
	}
	first, err := s.ListTasks(ctx)
	require.NoError(t, err)
	second, err := s.ListTasks(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, ids(first), ids(second))
	require.Len(t, first, 3)
}

func testListByStatus(t *testing.T, s store.TaskStore) {
	ctx := context.Background()
	pending, scheduled := newTask("a"), newTask("b")
	require.NoError(t, s.AddTask(ctx, pending))
	require.NoError(t, s.AddTask(ctx, scheduled))
	found, err := s.AssignNode(ctx, scheduled.ID, "worker-1")
	require.NoError(t, err)
	require.True(t, found)

	tasks, err := s.ListTasksByStatus(ctx, model.ScheduledStatus)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, scheduled.ID, tasks[0].ID)
	require.Equal(t, "worker-1", *tasks[0].NodeID)

	tasks, err = s.ListTasksByStatus(ctx, model.RunningStatus)
	require.NoError(t, err)
	require.Empty(t, tasks)
}

func testUpdateMissingIsNoop(t *testing.T, s store.TaskStore) {
	ctx := context.Background()
	require.NoError(t, s.AddTask(ctx, newTask("web")))
	before, err := s.ListTasks(ctx)
	require.NoError(t, err)

	prev, err := s.UpdateStatus(ctx, model.NewTaskID(), model.RunningStatus, ptrs.Ptr("c1"))
	require.NoError(t, err)
	require.Nil(t, prev)

	after, err := s.ListTasks(ctx)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func testRunningRoundTrip(t *testing.T, s store.TaskStore) {
	ctx := context.Background()
	task := newTask("web")
	require.NoError(t, s.AddTask(ctx, task))
	_, err := s.AssignNode(ctx, task.ID, "worker-1")
	require.NoError(t, err)

	prev, err := s.UpdateStatus(ctx, task.ID, model.RunningStatus, ptrs.Ptr("abc123"))
	require.NoError(t, err)
	require.Equal(t, model.ScheduledStatus, prev.Status)
	require.Nil(t, prev.ContainerID)

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, model.RunningStatus, got.Status)
	require.Equal(t, "abc123", *got.ContainerID)
	require.NotNil(t, got.StartedAt)

	prev, err = s.UpdateStatus(ctx, task.ID, model.CompleteStatus, nil)
	require.NoError(t, err)
	require.Equal(t, model.RunningStatus, prev.Status)
	got, err = s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, model.CompleteStatus, got.Status)
	require.Equal(t, "abc123", *got.ContainerID)
}

func testIllegalTransitionLeavesTask(t *testing.T, s store.TaskStore) {
	ctx := context.Background()
	task := newTask("web")
	require.NoError(t, s.AddTask(ctx, task))

	prev, err := s.UpdateStatus(ctx, task.ID, model.RunningStatus, ptrs.Ptr("c1"))
	require.NotNil(t, prev)
	require.True(t, errors.Is(err, store.ErrIllegalTransition))

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, model.PendingStatus, got.Status)
	require.Nil(t, got.ContainerID)
}

func testScheduledOnlyByAssign(t *testing.T, s store.TaskStore) {
	ctx := context.Background()
	task := newTask("web")
	require.NoError(t, s.AddTask(ctx, task))

	_, err := s.UpdateStatus(ctx, task.ID, model.ScheduledStatus, nil)
	require.True(t, errors.Is(err, store.ErrIllegalTransition))

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, model.PendingStatus, got.Status)
	require.Nil(t, got.NodeID)

	pending, err := s.ListTasksByStatus(ctx, model.PendingStatus)
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func testRunningNeedsContainer(t *testing.T, s store.TaskStore) {
	ctx := context.Background()
	task := newTask("web")
	require.NoError(t, s.AddTask(ctx, task))
	_, err := s.AssignNode(ctx, task.ID, "worker-1")
	require.NoError(t, err)

	_, err = s.UpdateStatus(ctx, task.ID, model.RunningStatus, nil)
	require.True(t, errors.Is(err, store.ErrIllegalTransition))

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, model.ScheduledStatus, got.Status)
	require.Nil(t, got.ContainerID)
}

// Concurrent terminal reports for one task see the task leave Running exactly once.
func testConcurrentTerminalOneWinner(t *testing.T, s store.TaskStore) {
	ctx := context.Background()
	task := newTask("web")
	require.NoError(t, s.AddTask(ctx, task))
	_, err := s.AssignNode(ctx, task.ID, "worker-1")
	require.NoError(t, err)
	_, err = s.UpdateStatus(ctx, task.ID, model.RunningStatus, ptrs.Ptr("c1"))
	require.NoError(t, err)

	const n = 10
	var wg sync.WaitGroup
	prevs := make(chan model.TaskStatus, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			prev, err := s.UpdateStatus(ctx, task.ID, model.CompleteStatus, nil)
			if err == nil && prev != nil {
				prevs <- prev.Status
			}
		}()
	}
	wg.Wait()
	close(prevs)

	fromRunning := 0
	total := 0
	for status := range prevs {
		total++
		if status == model.RunningStatus {
			fromRunning++
		}
	}
	require.Equal(t, n, total)
	require.Equal(t, 1, fromRunning)
}

func testAssignOnlyPending(t *testing.T, s store.TaskStore) {
	ctx := context.Background()
	task := newTask("web")
	require.NoError(t, s.AddTask(ctx, task))

	found, err := s.AssignNode(ctx, task.ID, "worker-1")
	require.NoError(t, err)
	require.True(t, found)

	found, err = s.AssignNode(ctx, task.ID, "worker-2")
	require.True(t, found)
	require.True(t, errors.Is(err, store.ErrIllegalTransition))

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, "worker-1", *got.NodeID)

	found, err = s.AssignNode(ctx, model.NewTaskID(), "worker-1")
	require.NoError(t, err)
	require.False(t, found)
}

func testReadsAreCopies(t *testing.T, s store.TaskStore) {
	ctx := context.Background()
	task := newTask("web")
	require.NoError(t, s.AddTask(ctx, task))

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	got.Status = model.FailedStatus
	got.Env["LEAK"] = "1"

	again, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, model.PendingStatus, again.Status)
	require.Empty(t, again.Env)
}

func testConcurrentAdds(t *testing.T, s store.TaskStore) {
	ctx := context.Background()
	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.AddTask(ctx, newTask(fmt.Sprintf("task-%d", i)))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	tasks, err := s.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, n)
	seen := map[model.TaskID]bool{}
	for _, task := range tasks {
		require.False(t, seen[task.ID])
		seen[task.ID] = true
	}
}

func testConcurrentAssignOneWinner(t *testing.T, s store.TaskStore) {
	ctx := context.Background()
	task := newTask("web")
	require.NoError(t, s.AddTask(ctx, task))

	const n = 10
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.AssignNode(ctx, task.ID, fmt.Sprintf("worker-%d", i))
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	winners := 0
	for err := range results {
		if err == nil {
			winners++
			continue
		}
		require.True(t, errors.Is(err, store.ErrIllegalTransition), err)
	}
	require.Equal(t, 1, winners)
}

func ids(tasks []model.Task) []model.TaskID {
	out := make([]model.TaskID, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}

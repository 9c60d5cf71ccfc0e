package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-test/deep"
	"github.com/stretchr/testify/require"
	"gotest.tools/assert"

	"github.com/corral-dev/corral/pkg/check"
	"github.com/corral-dev/corral/pkg/ptrs"
)

var epoch = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func TestNewTaskDefaults(t *testing.T) {
	task := NewTask("web", "nginx", epoch)
	assert.Equal(t, task.Status, PendingStatus)
	assert.Equal(t, task.Memory, 256)
	assert.Equal(t, task.CPU, 0.5)
	assert.Equal(t, len(task.Env), 0)
	assert.Assert(t, task.NodeID == nil)
	assert.Assert(t, task.ContainerID == nil)
	assert.Assert(t, task.StartedAt == nil)
	assert.Equal(t, task.CreatedAt, epoch)

	_, err := ParseTaskID(task.ID.String())
	require.NoError(t, err)
	require.NotEqual(t, task.ID, NewTask("web", "nginx", epoch).ID)
}

func TestTaskTransitions(t *testing.T) {
	for from, targets := range TaskTransitions {
		for _, to := range TaskStatuses {
			task := Task{ID: NewTaskID(), Status: from}
			changed, err := task.Transition(to, ptrs.Ptr("c1"), epoch)
			switch {
			case from == to:
				require.NoError(t, err)
				require.False(t, changed)
			case targets[to] && to != ScheduledStatus:
				require.NoError(t, err, "%s -> %s", from, to)
				require.True(t, changed)
				require.Equal(t, to, task.Status)
			default:
				require.True(t, errors.Is(err, ErrIllegalTransition), "%s -> %s", from, to)
				require.Equal(t, from, task.Status)
			}
		}
	}
	for status := range TerminalStatuses {
		require.Empty(t, TaskTransitions[status])
	}
}

func TestTransitionCannotSchedule(t *testing.T) {
	task := NewTask("web", "nginx", epoch)
	changed, err := task.Transition(ScheduledStatus, nil, epoch)
	require.True(t, errors.Is(err, ErrIllegalTransition))
	require.False(t, changed)
	require.Equal(t, PendingStatus, task.Status)
	require.Nil(t, task.NodeID)
}

func TestTransitionToRunningNeedsContainer(t *testing.T) {
	for name, cid := range map[string]*string{"nil": nil, "empty": ptrs.Ptr("")} {
		t.Run(name, func(t *testing.T) {
			task := NewTask("web", "nginx", epoch)
			require.NoError(t, task.Assign("worker-1", epoch))
			_, err := task.Transition(RunningStatus, cid, epoch)
			require.True(t, errors.Is(err, ErrIllegalTransition))
			require.Equal(t, ScheduledStatus, task.Status)
			require.Nil(t, task.ContainerID)
			require.Nil(t, task.StartedAt)
		})
	}
}

func TestTransitionToRunningRecordsContainer(t *testing.T) {
	task := NewTask("web", "nginx", epoch)
	require.NoError(t, task.Assign("worker-1", epoch))
	require.Equal(t, "worker-1", *task.NodeID)

	later := epoch.Add(time.Minute)
	changed, err := task.Transition(RunningStatus, ptrs.Ptr("abc123"), later)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, "abc123", *task.ContainerID)
	require.Equal(t, later, *task.StartedAt)

	// An empty container id never clears the recorded one.
	_, err = task.Transition(CompleteStatus, ptrs.Ptr(""), later)
	require.NoError(t, err)
	require.Equal(t, "abc123", *task.ContainerID)
	require.Equal(t, "worker-1", *task.NodeID)
}

func TestAssignOnlyFromPending(t *testing.T) {
	task := NewTask("web", "nginx", epoch)
	require.NoError(t, task.Assign("worker-1", epoch))
	err := task.Assign("worker-2", epoch)
	require.True(t, errors.Is(err, ErrIllegalTransition))
	require.Equal(t, "worker-1", *task.NodeID)
}

func TestTaskJSON(t *testing.T) {
	task := NewTask("web", "nginx", epoch)
	task.Env = nil
	b, err := json.Marshal(task)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &raw))
	require.Equal(t, map[string]interface{}{}, raw["env"])
	require.Equal(t, "Pending", raw["status"])
	for _, key := range []string{"started_at", "node_id", "container_id"} {
		v, ok := raw[key]
		require.True(t, ok, key)
		require.Nil(t, v, key)
	}

	var status TaskStatus
	require.Error(t, json.Unmarshal([]byte(`"Exploded"`), &status))
	require.NoError(t, json.Unmarshal([]byte(`"Running"`), &status))
	require.Equal(t, RunningStatus, status)
}

func TestTaskValidate(t *testing.T) {
	task := NewTask("web", "nginx", epoch)
	require.NoError(t, check.Validate(task))

	task.Image = ""
	task.CPU = 0
	err := check.Validate(task)
	require.Error(t, err)
	require.Contains(t, err.Error(), "task image must not be empty")
	require.Contains(t, err.Error(), "task cpu must be positive")
}

func TestCloneIsDeep(t *testing.T) {
	task := NewTask("web", "nginx", epoch)
	task.Env["A"] = "1"
	require.NoError(t, task.Assign("worker-1", epoch))

	clone := task.Clone()
	require.Empty(t, deep.Equal(*task, clone))
	clone.Env["A"] = "2"
	*clone.NodeID = "worker-2"
	require.Equal(t, "1", task.Env["A"])
	require.Equal(t, "worker-1", *task.NodeID)
}

func TestEnvVarsScan(t *testing.T) {
	var env EnvVars
	require.NoError(t, env.Scan([]byte(`{"A":"1"}`)))
	require.Equal(t, EnvVars{"A": "1"}, env)
	require.NoError(t, env.Scan(nil))
	require.NotNil(t, env)
	require.Error(t, env.Scan(42))
}

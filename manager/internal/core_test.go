package internal

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/corral-dev/corral/manager/internal/config"
	"github.com/corral-dev/corral/pkg/apiv1"
	"github.com/corral-dev/corral/pkg/client"
	"github.com/corral-dev/corral/pkg/model"
	"github.com/corral-dev/corral/pkg/ptrs"
)

func startManager(t *testing.T, cfg *config.Config, clock clockwork.Clock) *client.Client {
	m := New("test", cfg, clock)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	select {
	case <-m.Ready():
	case err := <-done:
		t.Fatalf("manager exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("manager never became ready")
	}
	cl, err := client.New(m.Addr().String(), 5*time.Second)
	require.NoError(t, err)
	return cl
}

func TestWebNginxScenario(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Port = 0
	cfg.Scheduler.FittingPolicy = config.StaticFittingPolicy
	cfg.Scheduler.DefaultNode = "worker-1"
	clock := clockwork.NewFakeClock()
	cl := startManager(t, cfg, clock)
	ctx := context.Background()

	task, err := cl.SubmitTask(ctx, apiv1.SubmitTaskRequest{Name: "web", Image: "nginx"})
	require.NoError(t, err)
	require.Equal(t, model.PendingStatus, task.Status)
	require.Equal(t, 256, task.Memory)
	require.Equal(t, 0.5, task.CPU)

	clock.BlockUntil(1)
	require.Eventually(t, func() bool {
		clock.Advance(cfg.Scheduler.Interval.Duration())
		feed, err := cl.ScheduledTasks(ctx, "worker-1")
		return err == nil && len(feed) == 1 && feed[0].ID == task.ID
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, cl.UpdateStatus(ctx, task.ID, model.RunningStatus, ptrs.Ptr("abc123")))

	tasks, err := cl.ListTasks(ctx, nil)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, model.RunningStatus, tasks[0].Status)
	require.Equal(t, "abc123", *tasks[0].ContainerID)
	require.Equal(t, "worker-1", *tasks[0].NodeID)

	feed, err := cl.ScheduledTasks(ctx, "worker-1")
	require.NoError(t, err)
	require.Empty(t, feed)

	err = cl.UpdateStatus(ctx, model.TaskID("not-a-uuid"), model.RunningStatus, nil)
	require.True(t, client.IsNotFound(err), err)
}

func TestStaticNodesFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Port = 0
	cfg.Nodes = []config.NodeConfig{{Name: "worker-1", Memory: 1024, CPU: 2}}
	cl := startManager(t, cfg, clockwork.NewFakeClock())

	nodes, err := cl.ListNodes(context.Background())
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	require.Equal(t, model.NodeReady, nodes[0].Status)
	require.Equal(t, 1024, nodes[0].TotalMemory)
}

package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/corral-dev/corral/pkg/apiv1"
	"github.com/corral-dev/corral/pkg/model"
	"github.com/corral-dev/corral/pkg/ptrs"
)

func TestClientRequests(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Method+" "+r.URL.RequestURI())
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/tasks":
			var req apiv1.SubmitTaskRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			task := model.NewTask(req.Name, req.Image, time.Now())
			w.WriteHeader(http.StatusCreated)
			require.NoError(t, json.NewEncoder(w).Encode(task))
		case r.Method == http.MethodGet && r.URL.Path == "/tasks":
			_, _ = w.Write([]byte(`[]`))
		case r.Method == http.MethodPut:
			var req apiv1.UpdateStatusRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Equal(t, model.RunningStatus, req.Status)
			require.Equal(t, "c1", *req.ContainerID)
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"Not Found"}`))
		}
	}))
	defer srv.Close()

	cl, err := New(srv.URL, time.Second)
	require.NoError(t, err)
	ctx := context.Background()

	task, err := cl.SubmitTask(ctx, apiv1.SubmitTaskRequest{Name: "web", Image: "nginx"})
	require.NoError(t, err)
	require.Equal(t, "web", task.Name)
	require.Equal(t, model.PendingStatus, task.Status)

	tasks, err := cl.ScheduledTasks(ctx, "worker-1")
	require.NoError(t, err)
	require.Empty(t, tasks)

	require.NoError(t, cl.UpdateStatus(ctx, task.ID, model.RunningStatus, ptrs.Ptr("c1")))

	_, err = cl.GetTask(ctx, "missing")
	require.True(t, IsNotFound(err))
	require.EqualError(t, err, "manager returned 404: Not Found")

	require.Equal(t, []string{
		"POST /tasks",
		"GET /tasks?node_id=worker-1",
		"PUT /tasks/" + task.ID.String() + "/status",
		"GET /tasks/missing",
	}, seen)
}

func TestNewAcceptsHostPort(t *testing.T) {
	cl, err := New("localhost:3000", 0)
	require.NoError(t, err)
	require.Equal(t, "http://localhost:3000", cl.base.String())
}

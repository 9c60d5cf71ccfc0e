package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/ghodss/yaml"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/corral-dev/corral/pkg/apiv1"
	"github.com/corral-dev/corral/pkg/model"
	"github.com/corral-dev/corral/pkg/ptrs"
)

// fakeManager serves just enough of the manager API for the CLI.
type fakeManager struct {
	mu        sync.Mutex
	tasks     []model.Task
	submitted []apiv1.SubmitTaskRequest
	queries   []string
}

func (f *fakeManager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, r.Method+" "+r.URL.RequestURI())

	writeJSON := func(code int, v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(v)
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == apiv1.TasksPath:
		var req apiv1.SubmitTaskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Image == "bad image" {
			writeJSON(http.StatusBadRequest, apiv1.ErrorResponse{Message: "invalid image"})
			return
		}
		f.submitted = append(f.submitted, req)
		task := model.NewTask(req.Name, req.Image, time.Now())
		f.tasks = append(f.tasks, *task)
		writeJSON(http.StatusCreated, task)
	case r.Method == http.MethodGet && r.URL.Path == apiv1.ClusterTasksPath:
		out := []model.Task{}
		for _, t := range f.tasks {
			if s := r.URL.Query().Get("status"); s == "" || string(t.Status) == s {
				out = append(out, t)
			}
		}
		writeJSON(http.StatusOK, out)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/tasks/"):
		for _, t := range f.tasks {
			if "/tasks/"+t.ID.String() == r.URL.Path {
				writeJSON(http.StatusOK, t)
				return
			}
		}
		writeJSON(http.StatusNotFound, apiv1.ErrorResponse{Message: "Not Found"})
	case r.Method == http.MethodGet && r.URL.Path == apiv1.NodesPath:
		n := model.NewNode("worker-1", 4096, 4)
		n.Status = model.NodeReady
		writeJSON(http.StatusOK, []model.Node{*n})
	default:
		writeJSON(http.StatusNotFound, apiv1.ErrorResponse{Message: "Not Found"})
	}
}

func runCLI(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	color.NoColor = true
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(append([]string{"--manager", srv.URL}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestRunSubmitsTask(t *testing.T) {
	f := &fakeManager{}
	srv := httptest.NewServer(f)
	defer srv.Close()

	out, err := runCLI(t, srv, "run", "web", "nginx", "--memory", "512", "-e", "PORT=80")
	require.NoError(t, err)
	require.Contains(t, out, "Submitting task 'web' with image 'nginx'...")
	require.Contains(t, out, "Task 'web' successfully submitted with ID "+f.tasks[0].ID.String())

	want := apiv1.SubmitTaskRequest{
		Name:   "web",
		Image:  "nginx",
		Memory: ptrs.Ptr(512),
		Env:    map[string]string{"PORT": "80"},
	}
	if diff := cmp.Diff(want, f.submitted[0]); diff != "" {
		t.Errorf("unexpected request (-want +got):\n%s", diff)
	}
}

func TestRunGeneratesName(t *testing.T) {
	f := &fakeManager{}
	srv := httptest.NewServer(f)
	defer srv.Close()

	_, err := runCLI(t, srv, "run", "redis")
	require.NoError(t, err)
	require.NotEmpty(t, f.submitted[0].Name)
	require.Nil(t, f.submitted[0].Memory)
	require.Nil(t, f.submitted[0].CPU)
}

func TestRunRejected(t *testing.T) {
	srv := httptest.NewServer(&fakeManager{})
	defer srv.Close()

	_, err := runCLI(t, srv, "run", "web", "bad image")
	require.EqualError(t, err, "error submitting task: manager returned 400: invalid image")

	_, err = runCLI(t, srv, "run", "web", "nginx", "-e", "NOEQUALS")
	require.ErrorContains(t, err, "expected KEY=VALUE")
}

func TestListTable(t *testing.T) {
	f := &fakeManager{}
	srv := httptest.NewServer(f)
	defer srv.Close()

	out, err := runCLI(t, srv, "list")
	require.NoError(t, err)
	require.Equal(t, "No tasks found in the cluster.\n", out)

	web := model.NewTask("web", "nginx", time.Now())
	web.Status = model.RunningStatus
	web.NodeID = ptrs.Ptr("worker-1")
	web.ContainerID = ptrs.Ptr("0123456789abcdef")
	f.tasks = append(f.tasks, *web, *model.NewTask("db", "postgres", time.Now()))

	out, err = runCLI(t, srv, "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, []string{"NAME", "ID", "IMAGE", "STATUS", "NODE", "CONTAINER"},
		strings.Fields(lines[0]))
	require.Equal(t, []string{
		"web", web.ID.String()[:8], "nginx", "Running", "worker-1", "01234567",
	}, strings.Fields(lines[1]))
	require.Equal(t, []string{"-", "-"}, strings.Fields(lines[2])[4:])
}

func TestListFilterAndFormats(t *testing.T) {
	f := &fakeManager{tasks: []model.Task{*model.NewTask("web", "nginx", time.Now())}}
	srv := httptest.NewServer(f)
	defer srv.Close()

	out, err := runCLI(t, srv, "list", "--status", "Pending", "-o", "json")
	require.NoError(t, err)
	var tasks []model.Task
	require.NoError(t, json.Unmarshal([]byte(out), &tasks))
	require.Len(t, tasks, 1)
	require.Contains(t, f.queries, "GET /cluster/tasks?status=Pending")

	out, err = runCLI(t, srv, "list", "-o", "yaml")
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal([]byte(out), &tasks))
	require.Equal(t, "web", tasks[0].Name)

	_, err = runCLI(t, srv, "list", "--status", "Sleeping")
	require.Error(t, err)
	_, err = runCLI(t, srv, "list", "-o", "xml")
	require.ErrorContains(t, err, `unknown output format "xml"`)
}

func TestGet(t *testing.T) {
	web := model.NewTask("web", "nginx", time.Now())
	srv := httptest.NewServer(&fakeManager{tasks: []model.Task{*web}})
	defer srv.Close()

	out, err := runCLI(t, srv, "get", web.ID.String())
	require.NoError(t, err)
	require.Contains(t, out, "name: web")
	require.Contains(t, out, "status: Pending")

	_, err = runCLI(t, srv, "get", "c0ffee00-0000-0000-0000-000000000000")
	require.ErrorContains(t, err, "manager returned 404")
}

func TestNodes(t *testing.T) {
	srv := httptest.NewServer(&fakeManager{})
	defer srv.Close()

	out, err := runCLI(t, srv, "nodes")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	require.Equal(t, []string{"worker-1", "-", "Ready", "4096/4096", "4/4"}, strings.Fields(lines[1]))
}

func TestManagerFromEnvironment(t *testing.T) {
	f := &fakeManager{}
	srv := httptest.NewServer(f)
	defer srv.Close()
	t.Setenv("CORRAL_MANAGER", srv.URL)

	color.NoColor = true
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"list"})
	require.NoError(t, cmd.Execute())
	require.Equal(t, "No tasks found in the cluster.\n", out.String())
}

package internal

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/docker/distribution/reference"
	petname "github.com/dustinkirkland/golang-petname"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/corral-dev/corral/manager/internal/store"
	"github.com/corral-dev/corral/pkg/apiv1"
	"github.com/corral-dev/corral/pkg/check"
	"github.com/corral-dev/corral/pkg/model"
)

// petnameWords is the number of words in a generated task name.
const petnameWords = 2

// getScheduledTasks is the feed workers poll: tasks assigned to a node but not yet started.
func (a *apiServer) getScheduledTasks(c echo.Context) error {
	tasks, err := a.store.ListTasksByStatus(c.Request().Context(), model.ScheduledStatus)
	if err != nil {
		return errors.Wrap(err, "listing scheduled tasks")
	}

	nodeID := c.QueryParam("node_id")
	feed := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.NodeID == nil || (nodeID != "" && *t.NodeID != nodeID) {
			continue
		}
		feed = append(feed, t)
	}
	sortByCreation(feed)
	return c.JSON(http.StatusOK, feed)
}

func (a *apiServer) postTask(c echo.Context) error {
	var req apiv1.SubmitTaskRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid task: "+err.Error())
	}

	if req.Name == "" {
		req.Name = petname.Generate(petnameWords, "-")
	}
	task := model.NewTask(req.Name, req.Image, a.clock.Now())
	if req.Memory != nil {
		task.Memory = *req.Memory
	}
	if req.CPU != nil {
		task.CPU = *req.CPU
	}
	for k, v := range req.Env {
		task.Env[k] = v
	}
	if err := check.Validate(task); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if _, err := reference.ParseNormalizedNamed(task.Image); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest,
			"invalid image reference "+task.Image+": "+err.Error())
	}

	if err := a.store.AddTask(c.Request().Context(), *task); err != nil {
		return errors.Wrap(err, "adding task")
	}
	a.metrics.TasksSubmitted.Inc()
	log.WithFields(log.Fields{
		"task-id": task.ID,
		"name":    task.Name,
		"image":   task.Image,
	}).Info("task submitted")
	return c.JSON(http.StatusCreated, task)
}

func (a *apiServer) getTask(c echo.Context) error {
	id, err := model.ParseTaskID(c.Param("id"))
	if err != nil {
		return echo.ErrNotFound
	}
	task, err := a.store.GetTask(c.Request().Context(), id)
	switch {
	case err != nil:
		return errors.Wrapf(err, "getting task %s", id)
	case task == nil:
		return echo.NewHTTPError(http.StatusNotFound, "task "+id.String()+" not found")
	}
	return c.JSON(http.StatusOK, task)
}

// putTaskStatus records a status reported by a worker. Malformed ids and bodies are answered
// like unknown tasks.
func (a *apiServer) putTaskStatus(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := model.ParseTaskID(c.Param("id"))
	if err != nil {
		return echo.ErrNotFound
	}
	var req apiv1.UpdateStatusRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil || req.Status == "" {
		a.metrics.StatusUpdates.WithLabelValues("", "malformed").Inc()
		return echo.ErrNotFound
	}

	prev, err := a.store.UpdateStatus(ctx, id, req.Status, req.ContainerID)
	switch {
	case errors.Is(err, store.ErrIllegalTransition):
		a.metrics.StatusUpdates.WithLabelValues(string(req.Status), "conflict").Inc()
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case err != nil:
		return errors.Wrapf(err, "updating task %s", id)
	case prev == nil:
		a.metrics.StatusUpdates.WithLabelValues(string(req.Status), "not_found").Inc()
		return echo.NewHTTPError(http.StatusNotFound, "task "+id.String()+" not found")
	}
	a.metrics.StatusUpdates.WithLabelValues(string(req.Status), "ok").Inc()

	// Only the report that moved the task into a terminal status gives its capacity back.
	if model.TerminalStatuses[req.Status] && !model.TerminalStatuses[prev.Status] &&
		prev.NodeID != nil {
		a.nodes.Release(*prev.NodeID, *prev)
	}
	if prev.Status != req.Status {
		log.WithFields(log.Fields{
			"task-id": id,
			"from":    prev.Status,
			"to":      req.Status,
		}).Info("task status changed")
	}
	return c.NoContent(http.StatusOK)
}

func (a *apiServer) getClusterTasks(c echo.Context) error {
	ctx := c.Request().Context()
	var (
		tasks []model.Task
		err   error
	)
	if raw := c.QueryParam("status"); raw != "" {
		status, perr := model.ParseTaskStatus(raw)
		if perr != nil {
			return echo.NewHTTPError(http.StatusBadRequest, perr.Error())
		}
		tasks, err = a.store.ListTasksByStatus(ctx, status)
	} else {
		tasks, err = a.store.ListTasks(ctx)
	}
	if err != nil {
		return errors.Wrap(err, "listing tasks")
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	sortByCreation(tasks)
	return c.JSON(http.StatusOK, tasks)
}

func sortByCreation(tasks []model.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
}

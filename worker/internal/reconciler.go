package internal

import (
	"context"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"

	"github.com/corral-dev/corral/pkg/client"
	"github.com/corral-dev/corral/pkg/model"
	"github.com/corral-dev/corral/worker/internal/options"
	"github.com/corral-dev/corral/worker/pkg/docker"
)

// ManagerClient is the part of the manager's API the reconciler uses.
type ManagerClient interface {
	ScheduledTasks(ctx context.Context, nodeID string) ([]model.Task, error)
	UpdateStatus(
		ctx context.Context, id model.TaskID, status model.TaskStatus, containerID *string,
	) error
}

// ContainerRuntime runs task containers on this node.
type ContainerRuntime interface {
	Start(ctx context.Context, t model.Task) (string, error)
	Inspect(ctx context.Context, containerID string) (docker.State, error)
	Stop(ctx context.Context, containerID string, timeout time.Duration) error
	Remove(ctx context.Context, containerID string) error
	ListManaged(ctx context.Context) (map[model.TaskID]string, error)
}

// localTask is a task this node has started, or tried to start, and not yet finished reporting.
type localTask struct {
	id          model.TaskID
	containerID string
	// unreported is a status the manager has not acknowledged yet.
	unreported model.TaskStatus
}

// Reconciler converges the containers on this node with the tasks the manager assigned to it.
// It is not safe for concurrent use; Run owns it once started.
type Reconciler struct {
	nodeID      string
	interval    time.Duration
	autoRemove  bool
	stopTimeout time.Duration

	manager ManagerClient
	runtime ContainerRuntime
	clock   clockwork.Clock
	log     *log.Entry

	started *lru.Cache[model.TaskID, struct{}]
	tracked map[model.TaskID]*localTask
}

// NewReconciler returns a reconciler for the node described by opts.
func NewReconciler(
	opts options.Options,
	manager ManagerClient,
	runtime ContainerRuntime,
	clock clockwork.Clock,
) (*Reconciler, error) {
	started, err := lru.New[model.TaskID, struct{}](opts.StartedCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "creating started task cache")
	}
	return &Reconciler{
		nodeID:      opts.NodeID,
		interval:    opts.PollInterval.Duration(),
		autoRemove:  !opts.ContainerAutoRemoveDisabled,
		stopTimeout: opts.ContainerStopTimeout.Duration(),
		manager:     manager,
		runtime:     runtime,
		clock:       clock,
		log:         log.WithFields(log.Fields{"component": "reconciler", "node-id": opts.NodeID}),
		started:     started,
		tracked:     map[model.TaskID]*localTask{},
	}, nil
}

// Adopt picks up containers this node started before a restart. Their Running status is
// reported again on the next cycle, which the manager accepts as a no-op when it already knows.
func (r *Reconciler) Adopt(ctx context.Context) error {
	managed, err := r.runtime.ListManaged(ctx)
	if err != nil {
		return errors.Wrap(err, "listing managed containers")
	}
	for id, cid := range managed {
		r.started.Add(id, struct{}{})
		r.tracked[id] = &localTask{id: id, containerID: cid, unreported: model.RunningStatus}
		r.log.WithFields(log.Fields{"task-id": id, "container-id": cid}).
			Info("adopted existing container")
	}
	return nil
}

// Run reconciles once per interval until ctx is canceled. A failed cycle is logged and the next
// one runs on schedule.
func (r *Reconciler) Run(ctx context.Context) error {
	r.log.Infof("reconciler started, polling every %s", r.interval)
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("reconciler stopped")
			return nil
		case <-ticker.Chan():
			if err := r.Reconcile(ctx); err != nil && ctx.Err() == nil {
				r.log.WithError(err).Error("reconcile failed")
			}
		}
	}
}

// Reconcile runs one cycle: start newly scheduled tasks, then observe the containers already
// started. Each pending status report is attempted at most once per cycle. A failed poll of the
// manager still lets the observation phase run, and its error is returned afterwards.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	attempted := map[model.TaskID]bool{}

	tasks, feedErr := r.manager.ScheduledTasks(ctx, r.nodeID)
	if feedErr != nil {
		feedErr = errors.Wrap(feedErr, "polling scheduled tasks")
	}
	for _, t := range tasks {
		if !r.assignedHere(t) || r.started.Contains(t.ID) || r.tracked[t.ID] != nil {
			continue
		}
		r.started.Add(t.ID, struct{}{})
		lt := r.start(ctx, t)
		r.tracked[t.ID] = lt
		r.report(ctx, lt)
		attempted[t.ID] = true
	}

	ids := maps.Keys(r.tracked)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		lt := r.tracked[id]
		if attempted[id] {
			continue
		}
		if lt.unreported == "" {
			r.observe(ctx, lt)
		}
		if lt.unreported != "" {
			r.report(ctx, lt)
		}
	}
	return feedErr
}

// Tracked returns the number of tasks the reconciler is still responsible for.
func (r *Reconciler) Tracked() int {
	return len(r.tracked)
}

func (r *Reconciler) assignedHere(t model.Task) bool {
	return t.Status == model.ScheduledStatus && t.NodeID != nil && *t.NodeID == r.nodeID
}

func (r *Reconciler) start(ctx context.Context, t model.Task) *localTask {
	logger := r.log.WithFields(log.Fields{"task-id": t.ID, "name": t.Name, "image": t.Image})
	cid, err := r.runtime.Start(ctx, t)
	if err != nil {
		logger.WithError(err).Error("failed to start container")
		return &localTask{id: t.ID, unreported: model.FailedStatus}
	}
	logger.WithField("container-id", cid).Info("started container")
	return &localTask{id: t.ID, containerID: cid, unreported: model.RunningStatus}
}

func (r *Reconciler) observe(ctx context.Context, lt *localTask) {
	logger := r.log.WithFields(log.Fields{"task-id": lt.id, "container-id": lt.containerID})
	state, err := r.runtime.Inspect(ctx, lt.containerID)
	switch {
	case errors.Is(err, docker.ErrContainerNotFound):
		logger.Warn("container vanished")
		lt.unreported = model.FailedStatus
	case err != nil:
		logger.WithError(err).Error("failed to inspect container")
	case !state.Exited():
	case state.ExitCode == 0:
		logger.Info("container exited successfully")
		lt.unreported = model.CompleteStatus
	default:
		logger.WithFields(log.Fields{
			"exit-code":  state.ExitCode,
			"oom-killed": state.OOMKilled,
		}).Warn("container exited with an error")
		lt.unreported = model.FailedStatus
	}
}

func (r *Reconciler) report(ctx context.Context, lt *localTask) {
	status := lt.unreported
	var cid *string
	if lt.containerID != "" {
		cid = &lt.containerID
	}
	logger := r.log.WithFields(log.Fields{"task-id": lt.id, "status": status})

	err := r.manager.UpdateStatus(ctx, lt.id, status, cid)
	switch {
	case client.IsConflict(err), client.IsNotFound(err):
		logger.WithError(err).Warn("manager rejected status, dropping task")
		r.drop(ctx, lt)
	case err != nil:
		logger.WithError(err).Error("failed to report status, retrying next cycle")
	default:
		logger.Info("reported task status")
		lt.unreported = ""
		if model.TerminalStatuses[status] {
			r.finish(ctx, lt)
		}
	}
}

// drop forgets a task the manager no longer wants on this node and stops its container.
func (r *Reconciler) drop(ctx context.Context, lt *localTask) {
	delete(r.tracked, lt.id)
	if lt.containerID == "" {
		return
	}
	if err := r.runtime.Stop(ctx, lt.containerID, r.stopTimeout); err != nil {
		r.log.WithError(err).WithField("container-id", lt.containerID).
			Error("failed to stop container")
	}
}

func (r *Reconciler) finish(ctx context.Context, lt *localTask) {
	delete(r.tracked, lt.id)
	if lt.containerID == "" || !r.autoRemove {
		return
	}
	if err := r.runtime.Remove(ctx, lt.containerID); err != nil {
		r.log.WithError(err).WithField("container-id", lt.containerID).
			Error("failed to remove container")
	}
}

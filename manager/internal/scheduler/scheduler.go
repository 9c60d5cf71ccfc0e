// Package scheduler assigns Pending tasks to nodes.
package scheduler

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/corral-dev/corral/manager/internal/prom"
	"github.com/corral-dev/corral/manager/internal/store"
	"github.com/corral-dev/corral/pkg/model"
)

// Scheduler periodically moves Pending tasks to Scheduled on a node chosen by its NodeSelector.
type Scheduler struct {
	store    store.TaskStore
	nodes    *Nodes
	selector NodeSelector
	interval time.Duration
	clock    clockwork.Clock
	metrics  *prom.Metrics
	log      *log.Entry
}

// New returns a scheduler. It does nothing until Run or Sweep is called.
func New(
	s store.TaskStore,
	nodes *Nodes,
	selector NodeSelector,
	interval time.Duration,
	clock clockwork.Clock,
	metrics *prom.Metrics,
) *Scheduler {
	return &Scheduler{
		store:    s,
		nodes:    nodes,
		selector: selector,
		interval: interval,
		clock:    clock,
		metrics:  metrics,
		log:      log.WithField("component", "scheduler"),
	}
}

// Run sweeps once per interval until ctx is canceled. Sweeps never overlap; a failed sweep is
// logged and the next one runs on schedule.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Infof("scheduler started, sweeping every %s", s.interval)
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return nil
		case <-ticker.Chan():
			if err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.log.WithError(err).Error("scheduler sweep failed")
			}
		}
	}
}

// Sweep tries to assign every Pending task once. Tasks no node can take stay Pending.
func (s *Scheduler) Sweep(ctx context.Context) (err error) {
	defer prom.Time(s.metrics.SweepDuration)()
	defer prom.ErrCount(s.metrics.SweepErrors, &err)

	pending, err := s.store.ListTasksByStatus(ctx, model.PendingStatus)
	if err != nil {
		return errors.Wrap(err, "listing pending tasks")
	}

	for _, task := range pending {
		if ctx.Err() != nil {
			return nil
		}
		if err := s.assign(ctx, task); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) assign(ctx context.Context, task model.Task) error {
	nodeID, ok := s.selector.SelectNode(task, s.nodes.List())
	if !ok {
		s.log.WithField("task-id", task.ID).Debug("no node can take task yet")
		return nil
	}

	s.nodes.Reserve(nodeID, task)
	found, err := s.store.AssignNode(ctx, task.ID, nodeID)
	switch {
	case errors.Is(err, store.ErrIllegalTransition):
		s.nodes.Release(nodeID, task)
		s.log.WithField("task-id", task.ID).Debug("task left Pending before it was assigned")
		return nil
	case err != nil:
		s.nodes.Release(nodeID, task)
		return errors.Wrapf(err, "assigning task %s to %s", task.ID, nodeID)
	case !found:
		s.nodes.Release(nodeID, task)
		return nil
	}

	s.metrics.Assignments.WithLabelValues(nodeID).Inc()
	s.log.WithFields(log.Fields{
		"task-id": task.ID,
		"name":    task.Name,
		"node-id": nodeID,
	}).Info("scheduled task")
	return nil
}

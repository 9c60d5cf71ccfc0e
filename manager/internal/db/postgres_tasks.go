package db

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/corral-dev/corral/manager/internal/store"
	"github.com/corral-dev/corral/pkg/model"
)

const taskColumns = `id, name, image, memory, cpu, env, status, created_at, started_at, node_id,
container_id`

var _ store.TaskStore = (*PgDB)(nil)

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &store.StoreError{Op: op, Err: err}
}

// AddTask implements store.TaskStore.
func (db *PgDB) AddTask(ctx context.Context, task model.Task) error {
	if task.Env == nil {
		task.Env = model.EnvVars{}
	}
	_, err := db.sql.NamedExecContext(ctx, `
INSERT INTO tasks (`+taskColumns+`)
VALUES (:id, :name, :image, :memory, :cpu, :env, :status, :created_at, :started_at, :node_id,
	:container_id)`, task)
	if pgErrCode(err) == codeUniqueViolation {
		return store.ErrDuplicateTask
	}
	return storeErr("add task", err)
}

// ListTasks implements store.TaskStore.
func (db *PgDB) ListTasks(ctx context.Context) ([]model.Task, error) {
	tasks := []model.Task{}
	err := db.sql.SelectContext(ctx, &tasks, `SELECT `+taskColumns+` FROM tasks`)
	if err != nil {
		return nil, storeErr("list tasks", err)
	}
	return tasks, nil
}

// ListTasksByStatus implements store.TaskStore.
func (db *PgDB) ListTasksByStatus(
	ctx context.Context, status model.TaskStatus,
) ([]model.Task, error) {
	var tasks []model.Task
	err := db.sql.SelectContext(ctx, &tasks,
		`SELECT `+taskColumns+` FROM tasks WHERE status = $1`, status)
	if err != nil {
		return nil, storeErr("list tasks by status", err)
	}
	return tasks, nil
}

// GetTask implements store.TaskStore.
func (db *PgDB) GetTask(ctx context.Context, id model.TaskID) (*model.Task, error) {
	var task model.Task
	err := db.sql.GetContext(ctx, &task, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, storeErr("get task", err)
	}
	return &task, nil
}

// UpdateStatus implements store.TaskStore. The row is locked while the transition is checked.
func (db *PgDB) UpdateStatus(
	ctx context.Context, id model.TaskID, status model.TaskStatus, containerID *string,
) (*model.Task, error) {
	return db.mutateTask(ctx, "update status", id, func(task *model.Task) error {
		_, err := task.Transition(status, containerID, db.clock.Now())
		return err
	})
}

// AssignNode implements store.TaskStore.
func (db *PgDB) AssignNode(ctx context.Context, id model.TaskID, nodeID string) (bool, error) {
	prev, err := db.mutateTask(ctx, "assign node", id, func(task *model.Task) error {
		return task.Assign(nodeID, db.clock.Now())
	})
	return prev != nil, err
}

// mutateTask locks the task row, applies f and writes the result back. It returns the row as read
// before f, or nil if there is none. Errors from f are returned unwrapped so callers can match
// domain errors.
func (db *PgDB) mutateTask(
	ctx context.Context, op string, id model.TaskID, f func(*model.Task) error,
) (*model.Task, error) {
	var prev *model.Task
	var domainErr error
	err := db.withTx(ctx, func(tx *sqlx.Tx) error {
		var task model.Task
		err := tx.GetContext(ctx, &task,
			`SELECT `+taskColumns+` FROM tasks WHERE id = $1 FOR UPDATE`, id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		} else if err != nil {
			return err
		}
		before := task.Clone()
		prev = &before

		if domainErr = f(&task); domainErr != nil {
			return nil
		}
		_, err = tx.NamedExecContext(ctx, `
UPDATE tasks SET status = :status, started_at = :started_at, node_id = :node_id,
	container_id = :container_id
WHERE id = :id`, task)
		return err
	})
	if err != nil {
		return nil, storeErr(op, err)
	}
	return prev, domainErr
}

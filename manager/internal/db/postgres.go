// Package db keeps tasks in Postgres.
package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgconn"
	_ "github.com/jackc/pgx/v4/stdlib" // Import Postgres driver.
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/corral-dev/corral/manager/internal/config"
)

const (
	maxOpenConns = 16
	// maxConnectTime bounds how long the manager waits for the database at startup.
	maxConnectTime = time.Minute
)

const (
	// codeUniqueViolation is the error code that Postgres uses to indicate that an attempted
	// insert/update violates a uniqueness constraint.
	codeUniqueViolation = "23505"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id uuid PRIMARY KEY,
	name text NOT NULL,
	image text NOT NULL,
	memory integer NOT NULL,
	cpu double precision NOT NULL,
	env jsonb NOT NULL DEFAULT '{}',
	status text NOT NULL,
	created_at timestamptz NOT NULL,
	started_at timestamptz,
	node_id text,
	container_id text
);
CREATE INDEX IF NOT EXISTS tasks_status_idx ON tasks (status);
`

// PgDB is a store.TaskStore backed by Postgres.
type PgDB struct {
	sql   *sqlx.DB
	clock clockwork.Clock
}

// ConnectPostgres connects to a Postgres database, retrying while it comes up.
func ConnectPostgres(ctx context.Context, url string, clock clockwork.Clock) (*PgDB, error) {
	var conn *sqlx.DB
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = maxConnectTime
	err := backoff.RetryNotify(func() error {
		var err error
		conn, err = sqlx.ConnectContext(ctx, "pgx", url)
		return err
	}, backoff.WithContext(policy, ctx), func(err error, wait time.Duration) {
		log.WithError(err).Warnf("failed to connect to postgres, trying again in %s", wait)
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not connect to database")
	}
	return &PgDB{sql: conn, clock: clock}, nil
}

// Setup connects to the database described by opts and creates the schema.
func Setup(ctx context.Context, opts config.DBConfig, clock clockwork.Clock) (*PgDB, error) {
	log.Infof("connecting to database %s:%s", opts.Host, opts.Port)
	db, err := ConnectPostgres(ctx, opts.URL(), clock)
	if err != nil {
		return nil, errors.Wrapf(err, "error connecting to database: %s:%s", opts.Host, opts.Port)
	}
	db.sql.SetMaxOpenConns(maxOpenConns)

	if _, err := db.sql.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "creating schema")
	}
	return db, nil
}

// Close closes the underlying connection pool.
func (db *PgDB) Close() error {
	return db.sql.Close()
}

func pgErrCode(err error) string {
	var e *pgconn.PgError
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// withTx runs f in a transaction, committing only if it returns nil.
func (db *PgDB) withTx(ctx context.Context, f func(tx *sqlx.Tx) error) error {
	tx, err := db.sql.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.WithError(rbErr).Error("error rolling back transaction")
		}
	}()
	if err := f(tx); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

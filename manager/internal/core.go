// Package internal is the manager: it owns the task store, serves the HTTP API and runs the
// scheduler.
package internal

import (
	"context"
	"io"
	"net"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"

	"github.com/corral-dev/corral/manager/internal/config"
	"github.com/corral-dev/corral/manager/internal/db"
	"github.com/corral-dev/corral/manager/internal/prom"
	"github.com/corral-dev/corral/manager/internal/scheduler"
	"github.com/corral-dev/corral/manager/internal/store"
	"github.com/corral-dev/corral/pkg/syncx/errgroupx"
)

// shutdownTimeout bounds how long in-flight requests may run once the manager is stopping.
const shutdownTimeout = 10 * time.Second

// Manager manages the Corral cluster state.
type Manager struct {
	Version string

	config *config.Config
	clock  clockwork.Clock

	mu    sync.Mutex
	addr  net.Addr
	ready chan struct{}
}

// New creates an instance of the manager.
func New(version string, cfg *config.Config, clock clockwork.Clock) *Manager {
	return &Manager{
		Version: version,
		config:  cfg,
		clock:   clock,
		ready:   make(chan struct{}),
	}
}

// Ready is closed once the HTTP server is accepting connections.
func (m *Manager) Ready() <-chan struct{} {
	return m.ready
}

// Addr returns the address the HTTP server listens on, or nil before Ready.
func (m *Manager) Addr() net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addr
}

// Run serves the API and runs the scheduler until ctx is canceled or either fails.
func (m *Manager) Run(ctx context.Context) (err error) {
	log.Infof("Corral manager %s (built with %s)", m.Version, runtime.Version())

	taskStore, closer, err := m.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closer != nil {
			if cErr := closer.Close(); cErr != nil {
				err = multierror.Append(err, errors.Wrap(cErr, "closing task store"))
			}
		}
	}()

	nodes := scheduler.NewNodes(m.clock)
	for _, n := range m.config.Nodes {
		nodes.Register(n.Name, n.Address, n.Memory, n.CPU)
		log.Infof("registered static node %s", n.Name)
	}

	registry := prometheus.NewRegistry()
	metrics := prom.NewMetrics(registry)
	var gatherer prometheus.Gatherer
	if m.config.MetricsEnabled {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		gatherer = registry
	}

	api := &apiServer{store: taskStore, nodes: nodes, clock: m.clock, metrics: metrics}
	e := newEcho(m.config, api, gatherer)

	sched := scheduler.New(
		taskStore, nodes,
		scheduler.MakeNodeSelector(m.config.Scheduler),
		m.config.Scheduler.Interval.Duration(),
		m.clock,
		metrics,
	)

	listener, err := net.Listen("tcp", m.config.Addr())
	if err != nil {
		return errors.Wrapf(err, "listening on %s", m.config.Addr())
	}
	e.Listener = listener
	m.mu.Lock()
	m.addr = listener.Addr()
	m.mu.Unlock()
	close(m.ready)
	log.Infof("accepting incoming connections on %s", listener.Addr())
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.WithError(err).Warn("failed to notify systemd")
	}

	g := errgroupx.WithContext(ctx)
	g.Go("scheduler", sched.Run)
	g.Go("HTTP server", func(ctx context.Context) error {
		if err := e.StartServer(e.Server); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go("shutdown", func(ctx context.Context) error {
		<-ctx.Done()
		log.Info("shutting down manager")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (m *Manager) openStore(ctx context.Context) (store.TaskStore, io.Closer, error) {
	if !m.config.DB.Enabled() {
		log.Info("keeping tasks in memory")
		return store.NewMemory(m.clock), nil, nil
	}
	pg, err := db.Setup(ctx, m.config.DB, m.clock)
	if err != nil {
		return nil, nil, err
	}
	return pg, pg, nil
}

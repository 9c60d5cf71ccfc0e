package internal

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coreos/go-systemd/daemon"
	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/corral-dev/corral/pkg/apiv1"
	"github.com/corral-dev/corral/pkg/client"
	"github.com/corral-dev/corral/pkg/syncx/errgroupx"
	"github.com/corral-dev/corral/worker/internal/options"
	"github.com/corral-dev/corral/worker/pkg/docker"
)

const startupRetryTime = 2 * time.Minute

// Run runs a worker with the provided options until the context is canceled or the process
// receives SIGINT or SIGTERM.
func Run(parent context.Context, version string, opts options.Options) (err error) {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printableConfig, err := opts.Printable()
	if err != nil {
		return err
	}
	log.Infof("corral worker %s, configuration: %s", version, printableConfig)

	log.Trace("connecting to docker")
	runtime, err := docker.New(opts.DockerHost, opts.NodeID)
	if err != nil {
		return err
	}
	defer func() {
		if cErr := runtime.Close(); cErr != nil {
			err = multierror.Append(err, errors.Wrap(cErr, "closing docker client"))
		}
	}()
	if err := retryStartup(ctx, "reach docker daemon", func() error {
		return runtime.Ping(ctx)
	}); err != nil {
		return err
	}

	cl, err := client.New(opts.ManagerAddress(), opts.RequestTimeout.Duration())
	if err != nil {
		return err
	}

	if !opts.RegistrationDisabled {
		if err := register(ctx, cl, opts); err != nil {
			return err
		}
	}

	r, err := NewReconciler(opts, cl, runtime, clockwork.NewRealClock())
	if err != nil {
		return err
	}
	if err := r.Adopt(ctx); err != nil {
		log.WithError(err).Warn("could not adopt existing containers")
	}

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.WithError(err).Warn("failed to notify systemd")
	}

	wg := errgroupx.WithContext(ctx)
	wg.Go("reconciler", r.Run)
	return wg.Wait()
}

func register(ctx context.Context, cl *client.Client, opts options.Options) error {
	capacity, err := detectCapacity(opts)
	if err != nil {
		return errors.Wrap(err, "failed to detect node capacity")
	}

	req := apiv1.RegisterNodeRequest{
		Name:        opts.NodeID,
		Address:     opts.Address,
		TotalMemory: capacity.Memory,
		TotalCPU:    capacity.CPU,
	}
	return retryStartup(ctx, "register with manager", func() error {
		node, err := cl.RegisterNode(ctx, req)
		var serr *client.StatusError
		switch {
		case errors.As(err, &serr) && serr.Code < http.StatusInternalServerError:
			return backoff.Permanent(err)
		case err != nil:
			return err
		}
		log.WithFields(log.Fields{
			"node-id": node.ID,
			"memory":  node.TotalMemory,
			"cpu":     node.TotalCPU,
		}).Info("registered node with manager")
		return nil
	})
}

func retryStartup(ctx context.Context, what string, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = startupRetryTime
	err := backoff.RetryNotify(op, backoff.WithContext(policy, ctx),
		func(err error, wait time.Duration) {
			log.WithError(err).Warnf("failed to %s, trying again in %s", what, wait)
		})
	return errors.Wrapf(err, "failed to %s", what)
}

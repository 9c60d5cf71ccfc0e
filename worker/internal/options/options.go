package options

import (
	"encoding/json"
	"fmt"
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/pkg/errors"

	"github.com/corral-dev/corral/pkg/check"
	"github.com/corral-dev/corral/pkg/logger"
	"github.com/corral-dev/corral/pkg/model"
)

// Options stores all the configurable options for the Corral worker.
type Options struct {
	ConfigFile string        `json:"config_file"`
	Log        logger.Config `json:"log"`

	NodeID      string `json:"node_id"`
	ManagerHost string `json:"manager_host"`
	ManagerPort int    `json:"manager_port"`
	// Address is advertised to the manager when the node registers.
	Address string `json:"address"`

	PollInterval   model.Duration `json:"poll_interval"`
	RequestTimeout model.Duration `json:"request_timeout"`

	DockerHost                  string `json:"docker_host"`
	ContainerAutoRemoveDisabled bool   `json:"container_auto_remove_disabled"`
	StartedCacheSize            int    `json:"started_cache_size"`
	// ContainerStopTimeout is how long a rejected task's container gets to exit before it is
	// killed.
	ContainerStopTimeout model.Duration `json:"container_stop_timeout"`

	// Capacity reported on registration. Zero means detect from the host.
	TotalMemory          int     `json:"total_memory"`
	TotalCPU             float64 `json:"total_cpu"`
	RegistrationDisabled bool    `json:"registration_disabled"`
}

// DefaultOptions returns the default configuration for the worker.
func DefaultOptions() *Options {
	return &Options{
		Log:              *logger.DefaultConfig(),
		NodeID:           "worker-1",
		ManagerHost:      "127.0.0.1",
		ManagerPort:      3000,
		PollInterval:     model.Duration(5 * time.Second),
		RequestTimeout:   model.Duration(10 * time.Second),
		StartedCacheSize: 1024,

		ContainerStopTimeout: model.Duration(10 * time.Second),
	}
}

// Validate validates the state of the Options struct.
func (o Options) Validate() []error {
	return []error{
		check.NotEmpty(o.ManagerHost, "manager host must be provided"),
		check.GreaterThan(o.ManagerPort, 0, "manager port must be positive"),
		check.GreaterThan(int64(o.PollInterval), 0, "poll interval must be positive"),
		check.GreaterThan(int64(o.RequestTimeout), 0, "request timeout must be positive"),
		check.GreaterThan(o.StartedCacheSize, 0, "started cache size must be positive"),
		check.GreaterThanOrEqualTo(int64(o.ContainerStopTimeout), 0,
			"container stop timeout must not be negative"),
		check.GreaterThanOrEqualTo(o.TotalMemory, 0, "total memory must not be negative"),
		check.GreaterThanOrEqualTo(o.TotalCPU, 0, "total cpu must not be negative"),
	}
}

// Printable returns a printable string.
func (o Options) Printable() ([]byte, error) {
	optJSON, err := json.Marshal(o)
	if err != nil {
		return nil, errors.Wrap(err, "unable to convert config to JSON")
	}
	return optJSON, nil
}

// Resolve fully resolves the worker configuration, handling dynamic defaults.
func (o *Options) Resolve() {
	if o.NodeID == "" {
		o.NodeID = petname.Generate(2, "-")
	}
	if o.Address == "" {
		o.Address = o.NodeID
	}
}

// ManagerAddress is the host:port of the manager's HTTP API.
func (o Options) ManagerAddress() string {
	return fmt.Sprintf("%s:%d", o.ManagerHost, o.ManagerPort)
}

// Package config holds the manager's configuration.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/docker/go-units"
	"github.com/pkg/errors"

	"github.com/corral-dev/corral/pkg/check"
	"github.com/corral-dev/corral/pkg/logger"
	"github.com/corral-dev/corral/pkg/model"
)

// Fitting policies understood by the scheduler.
const (
	StaticFittingPolicy     = "static"
	BestFittingPolicy       = "best"
	WorstFittingPolicy      = "worst"
	RoundRobinFittingPolicy = "round_robin"
)

// FittingPolicies lists every valid scheduler.fitting_policy.
var FittingPolicies = []string{
	StaticFittingPolicy, BestFittingPolicy, WorstFittingPolicy, RoundRobinFittingPolicy,
}

const sslModeDisable = "disable"

// Config is the configuration of the manager.
type Config struct {
	ConfigFile     string          `json:"config_file"`
	Log            logger.Config   `json:"log"`
	Host           string          `json:"host"`
	Port           int             `json:"port"`
	ReadTimeout    model.Duration  `json:"read_timeout"`
	WriteTimeout   model.Duration  `json:"write_timeout"`
	BodyLimit      string          `json:"body_limit"`
	Scheduler      SchedulerConfig `json:"scheduler"`
	Nodes          []NodeConfig    `json:"nodes"`
	DB             DBConfig        `json:"db"`
	MetricsEnabled bool            `json:"metrics_enabled"`
}

// SchedulerConfig configures the assignment loop.
type SchedulerConfig struct {
	Interval      model.Duration `json:"interval"`
	FittingPolicy string         `json:"fitting_policy"`
	DefaultNode   string         `json:"default_node"`
}

// NodeConfig declares a node the manager knows about before any worker registers.
type NodeConfig struct {
	Name    string  `json:"name"`
	Address string  `json:"address"`
	Memory  int     `json:"memory"`
	CPU     float64 `json:"cpu"`
}

// DBConfig hosts configuration fields of the database. The in-memory store is used when Host
// is empty.
type DBConfig struct {
	User     string `json:"user"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     string `json:"port"`
	Name     string `json:"name"`
	SSLMode  string `json:"ssl_mode"`
}

// DefaultConfig returns the default configuration of the manager.
func DefaultConfig() *Config {
	return &Config{
		Log:          *logger.DefaultConfig(),
		Host:         "127.0.0.1",
		Port:         3000,
		ReadTimeout:  model.Duration(30 * time.Second),
		WriteTimeout: model.Duration(30 * time.Second),
		BodyLimit:    "1M",
		Scheduler: SchedulerConfig{
			Interval:      model.Duration(5 * time.Second),
			FittingPolicy: BestFittingPolicy,
			DefaultNode:   "worker-1",
		},
		DB: DBConfig{
			Port:    "5432",
			SSLMode: sslModeDisable,
		},
		MetricsEnabled: true,
	}
}

// Validate implements the check.Validatable interface.
func (c Config) Validate() []error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, errors.Errorf("port %d is out of range", c.Port))
	}
	if _, err := units.RAMInBytes(c.BodyLimit); err != nil {
		errs = append(errs, errors.Wrapf(err, "invalid body_limit %q", c.BodyLimit))
	}
	seen := map[string]bool{}
	for _, n := range c.Nodes {
		if seen[n.Name] {
			errs = append(errs, errors.Errorf("node %q is declared more than once", n.Name))
		}
		seen[n.Name] = true
	}
	return append(errs,
		check.GreaterThan(int64(c.ReadTimeout), 0, "read_timeout must be positive"),
		check.GreaterThan(int64(c.WriteTimeout), 0, "write_timeout must be positive"),
	)
}

// Validate implements the check.Validatable interface.
func (s SchedulerConfig) Validate() []error {
	errs := []error{
		check.GreaterThan(int64(s.Interval), 0, "scheduler.interval must be positive"),
		check.In(s.FittingPolicy, FittingPolicies, "scheduler.fitting_policy must be one of %v",
			FittingPolicies),
	}
	if s.FittingPolicy == StaticFittingPolicy {
		errs = append(errs, check.NotEmpty(s.DefaultNode,
			"scheduler.default_node is required by the static fitting policy"))
	}
	return errs
}

// Validate implements the check.Validatable interface.
func (n NodeConfig) Validate() []error {
	return []error{
		check.NotEmpty(n.Name, "node name must not be empty"),
		check.GreaterThanOrEqualTo(n.Memory, 0, "node memory must not be negative"),
		check.GreaterThanOrEqualTo(n.CPU, 0, "node cpu must not be negative"),
	}
}

// Enabled returns true if the manager should keep tasks in Postgres.
func (d DBConfig) Enabled() bool {
	return d.Host != ""
}

// URL returns the connection string of the database.
func (d DBConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%s", d.Host, d.Port),
		Path:     d.Name,
		RawQuery: url.Values{"sslmode": {d.SSLMode}, "application_name": {"corral-manager"}}.Encode(),
	}
	return u.String()
}

// Validate implements the check.Validatable interface.
func (d DBConfig) Validate() []error {
	if !d.Enabled() {
		return nil
	}
	return []error{
		check.NotEmpty(d.User, "db.user is required when db.host is set"),
		check.NotEmpty(d.Name, "db.name is required when db.host is set"),
	}
}

// Addr is the address the HTTP server listens on.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Printable returns a JSON rendering of the configuration with secrets hidden.
func (c Config) Printable() ([]byte, error) {
	const hiddenValue = "********"
	if c.DB.Password != "" {
		c.DB.Password = hiddenValue
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "unable to convert config to JSON")
	}
	return b, nil
}

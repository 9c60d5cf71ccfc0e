package main

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/corral-dev/corral/worker/internal/options"
)

var v *viper.Viper

const viperKeyDelimiter = ".."

type configKey []string

func (c configKey) EnvName() string {
	return "CORRAL_" + strings.ReplaceAll(strings.ToUpper(c.FlagName()), "-", "_")
}

func (c configKey) AccessPath() string {
	return strings.ReplaceAll(strings.Join(c, viperKeyDelimiter), "-", "_")
}

func (c configKey) FlagName() string {
	return strings.Join(c, "-")
}

func bind(flags *pflag.FlagSet, name configKey, value interface{}) {
	_ = v.BindEnv(name.AccessPath(), name.EnvName())
	_ = v.BindPFlag(name.AccessPath(), flags.Lookup(name.FlagName()))
	v.SetDefault(name.AccessPath(), value)
}

func registerString(flags *pflag.FlagSet, name configKey, value string, usage string) {
	flags.String(name.FlagName(), value, usage)
	bind(flags, name, value)
}

func registerBool(flags *pflag.FlagSet, name configKey, value bool, usage string) {
	flags.Bool(name.FlagName(), value, usage)
	bind(flags, name, value)
}

func registerInt(flags *pflag.FlagSet, name configKey, value int, usage string) {
	flags.Int(name.FlagName(), value, usage)
	bind(flags, name, value)
}

func registerFloat64(flags *pflag.FlagSet, name configKey, value float64, usage string) {
	flags.Float64(name.FlagName(), value, usage)
	bind(flags, name, value)
}

// registerOptions binds every worker option to a flag and a CORRAL_ environment variable.
func registerOptions(flags *pflag.FlagSet) {
	v = viper.NewWithOptions(viper.KeyDelimiter(viperKeyDelimiter))
	v.SetTypeByDefaultValue(true)

	defaults := options.DefaultOptions()
	name := func(components ...string) configKey { return components }

	registerString(flags, name("config-file"),
		defaults.ConfigFile, "location of config file")

	registerString(flags, name("log", "level"),
		defaults.Log.Level, "choose logging level from [trace, debug, info, warn, error, fatal]")
	registerBool(flags, name("log", "color"),
		defaults.Log.Color, "output logs in color")
	registerString(flags, name("log", "format"),
		defaults.Log.Format, "log output format, text or json")

	registerString(flags, name("node-id"),
		defaults.NodeID, "ID of this node; a random name is used when empty")
	registerString(flags, name("manager-host"),
		defaults.ManagerHost, "hostname of the Corral manager")
	registerInt(flags, name("manager-port"),
		defaults.ManagerPort, "port of the Corral manager")
	registerString(flags, name("address"),
		defaults.Address, "address advertised to the manager; defaults to the node ID")

	registerString(flags, name("poll-interval"),
		defaults.PollInterval.Duration().String(), "time between reconcile passes")
	registerString(flags, name("request-timeout"),
		defaults.RequestTimeout.Duration().String(), "timeout of requests to the manager")

	registerString(flags, name("docker-host"),
		defaults.DockerHost, "Docker daemon socket; DOCKER_HOST is used when empty")
	registerBool(flags, name("container-auto-remove-disabled"),
		defaults.ContainerAutoRemoveDisabled, "keep task containers after they are reported")
	registerInt(flags, name("started-cache-size"),
		defaults.StartedCacheSize, "number of started task IDs remembered to avoid restarts")
	registerString(flags, name("container-stop-timeout"),
		defaults.ContainerStopTimeout.Duration().String(),
		"time a rejected task's container gets to exit before it is killed")

	registerInt(flags, name("total-memory"),
		defaults.TotalMemory, "memory in MB offered to the scheduler; detected when 0")
	registerFloat64(flags, name("total-cpu"),
		defaults.TotalCPU, "cores offered to the scheduler; detected when 0")
	registerBool(flags, name("registration-disabled"),
		defaults.RegistrationDisabled, "do not register this node with the manager")
}

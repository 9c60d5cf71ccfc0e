package main

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/corral-dev/corral/manager/internal/config"
	"github.com/corral-dev/corral/version"
)

var v *viper.Viper

// viperKeyDelimiter marks nested values in the configuration, so `scheduler..interval` is the
// `interval` key of the `scheduler` object. A single "." would forbid dots inside keys.
const viperKeyDelimiter = ".."

//nolint:gochecknoinits
func init() {
	// Link-time variable assignments are not applied when package-scoped variables are
	// initialized, so the version is set here.
	rootCmd.Version = version.Version
	registerConfig()
}

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

func registerString(flags *pflag.FlagSet, name configKey, value string, usage string) {
	flags.String(name.FlagName(), value, usage)
	_ = v.BindEnv(name.AccessPath(), name.EnvName())
	_ = v.BindPFlag(name.AccessPath(), flags.Lookup(name.FlagName()))
	v.SetDefault(name.AccessPath(), value)
}

func registerBool(flags *pflag.FlagSet, name configKey, value bool, usage string) {
	flags.Bool(name.FlagName(), value, usage)
	_ = v.BindEnv(name.AccessPath(), name.EnvName())
	_ = v.BindPFlag(name.AccessPath(), flags.Lookup(name.FlagName()))
	v.SetDefault(name.AccessPath(), value)
}

func registerInt(flags *pflag.FlagSet, name configKey, value int, usage string) {
	flags.Int(name.FlagName(), value, usage)
	_ = v.BindEnv(name.AccessPath(), name.EnvName())
	_ = v.BindPFlag(name.AccessPath(), flags.Lookup(name.FlagName()))
	v.SetDefault(name.AccessPath(), value)
}

func registerConfig() {
	v = viper.NewWithOptions(viper.KeyDelimiter(viperKeyDelimiter))
	v.SetTypeByDefaultValue(true)

	defaults := config.DefaultConfig()

	flags := rootCmd.Flags()
	name := func(components ...string) configKey { return components }

	registerString(flags, name("config-file"),
		defaults.ConfigFile, "location of config file")

	registerString(flags, name("log", "level"),
		defaults.Log.Level, "choose logging level from [trace, debug, info, warn, error, fatal]")
	registerBool(flags, name("log", "color"),
		defaults.Log.Color, "output logs in color")
	registerString(flags, name("log", "format"),
		defaults.Log.Format, "log output format, text or json")

	registerString(flags, name("host"),
		defaults.Host, "address the HTTP API binds to")
	registerInt(flags, name("port"),
		defaults.Port, "port the HTTP API listens on")
	registerString(flags, name("read-timeout"),
		defaults.ReadTimeout.Duration().String(), "maximum duration for reading a request")
	registerString(flags, name("write-timeout"),
		defaults.WriteTimeout.Duration().String(), "maximum duration for writing a response")
	registerString(flags, name("body-limit"),
		defaults.BodyLimit, "maximum request body size (e.g. 512K, 1M)")
	registerBool(flags, name("metrics-enabled"),
		defaults.MetricsEnabled, "export Prometheus metrics at /metrics")

	registerString(flags, name("scheduler", "interval"),
		defaults.Scheduler.Interval.Duration().String(), "time between scheduler passes")
	registerString(flags, name("scheduler", "fitting-policy"),
		defaults.Scheduler.FittingPolicy, "node selection policy: static, best, worst, round_robin")
	registerString(flags, name("scheduler", "default-node"),
		defaults.Scheduler.DefaultNode, "node used by the static fitting policy")

	registerString(flags, name("db", "user"),
		defaults.DB.User, "database username")
	registerString(flags, name("db", "password"),
		defaults.DB.Password, "database password")
	registerString(flags, name("db", "host"),
		defaults.DB.Host, "database host; tasks are kept in memory when empty")
	registerString(flags, name("db", "port"),
		defaults.DB.Port, "database port")
	registerString(flags, name("db", "name"),
		defaults.DB.Name, "database name")
	registerString(flags, name("db", "ssl-mode"),
		defaults.DB.SSLMode, "database ssl mode (disable, verify-ca, ...)")
}

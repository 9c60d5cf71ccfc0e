package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/corral-dev/corral/pkg/check"
	"github.com/corral-dev/corral/pkg/logger"
	"github.com/corral-dev/corral/version"
	"github.com/corral-dev/corral/worker/internal"
	"github.com/corral-dev/corral/worker/internal/options"
)

const defaultConfigPath = "/etc/corral/worker.yaml"

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "run the Corral worker",
		Args:  cobra.NoArgs,
	}
	registerOptions(cmd.Flags())

	cmd.RunE = func(*cobra.Command, []string) error {
		opts, err := initializeOptions()
		if err != nil {
			return err
		}
		if err := logger.Configure(opts.Log); err != nil {
			return err
		}
		return internal.Run(context.Background(), version.Version, *opts)
	}

	return cmd
}

// initializeOptions returns validated options from defaults, the config file, the environment
// and flags, in increasing order of precedence.
func initializeOptions() (*options.Options, error) {
	// Retrieve current Viper settings, which should presently be either default config values
	// or flags that overwrote them, to find the config file.
	opts, err := getOptions(v.AllSettings())
	if err != nil {
		return nil, err
	}

	bs, err := readConfigFile(opts.ConfigFile)
	if err != nil {
		return nil, err
	}
	if opts, err = mergeConfigIntoViper(bs); err != nil {
		return nil, err
	}

	opts.Resolve()
	if err = check.Validate(*opts); err != nil {
		return nil, errors.Wrap(err, "command-line arguments specify illegal configuration")
	}
	return opts, nil
}

func mergeConfigIntoViper(bs []byte) (*options.Options, error) {
	var configMap map[string]interface{}
	if err := yaml.Unmarshal(bs, &configMap); err != nil {
		return nil, errors.Wrap(err, "cannot unmarshal yaml configuration file")
	}

	if err := v.MergeConfigMap(configMap); err != nil {
		return nil, errors.Wrap(err, "can't merge configuration to viper")
	}

	// flag > env > config > default
	return getOptions(v.AllSettings())
}

func readConfigFile(configPath string) ([]byte, error) {
	isDefault := configPath == ""
	if isDefault {
		configPath = defaultConfigPath
	}

	var err error
	if _, err = os.Stat(configPath); err != nil {
		if isDefault && os.IsNotExist(err) {
			log.Warnf("no configuration file at %s, skipping", configPath)
			return nil, nil
		}
		return nil, errors.Wrap(err, "error finding configuration file")
	}
	bs, err := os.ReadFile(configPath) // #nosec G304
	if err != nil {
		return nil, errors.Wrap(err, "error reading configuration file")
	}
	return bs, nil
}

func getOptions(settings map[string]interface{}) (*options.Options, error) {
	bs, err := json.Marshal(settings)
	if err != nil {
		return nil, errors.Wrap(err, "cannot marshal configuration map into json bytes")
	}

	opts := options.DefaultOptions()
	if err = yaml.Unmarshal(bs, opts, yaml.DisallowUnknownFields); err != nil {
		return nil, errors.Wrap(err, "cannot unmarshal configuration")
	}
	return opts, nil
}

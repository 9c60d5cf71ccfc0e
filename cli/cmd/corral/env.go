package main

import (
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// bindEnv sets every flag not given on the command line from its prefixed environment variable,
// so --manager can come from CORRAL_MANAGER.
func bindEnv(prefix string, flags *pflag.FlagSet) error {
	var errMsgs []string
	flags.VisitAll(func(flag *pflag.Flag) {
		if flag.Changed {
			return
		}
		envName := prefix + strings.ReplaceAll(strings.ToUpper(flag.Name), "-", "_")
		if value, ok := syscall.Getenv(envName); ok {
			if err := flag.Value.Set(value); err != nil {
				err = errors.Wrapf(err, "failed to parse %s (%s)", envName, flag.Value.Type())
				errMsgs = append(errMsgs, err.Error())
			}
		}
	})
	if len(errMsgs) == 0 {
		return nil
	}
	msg := strings.Join(errMsgs, ";")
	return errors.New(msg)
}

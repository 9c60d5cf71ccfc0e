package main

import (
	log "github.com/sirupsen/logrus"

	"github.com/corral-dev/corral/pkg/logger"
)

func main() {
	_ = logger.Configure(*logger.DefaultConfig())

	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Fatal("fatal error running Corral manager")
	}
}

// Package app starts and stops a featherd node.
package app

import (
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/featherchain/featherd/infrastructure/config"
	"github.com/featherchain/featherd/infrastructure/logger"
	"github.com/featherchain/featherd/infrastructure/os/signal"
	"github.com/featherchain/featherd/util/panics"
	"github.com/featherchain/featherd/version"
)

// StartApp starts the featherd node and blocks until it shuts down.
func StartApp() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	defer logger.BackendLog.Close()

	err = initLogger(cfg)
	if err != nil {
		return err
	}
	defer panics.HandlePanic(log, "MAIN", nil)

	log.Infof("Version %s", version.Version())

	interrupt := signal.InterruptListener()

	node, err := newFeatherd(cfg)
	if err != nil {
		return errors.Wrap(err, "couldn't initialize the node")
	}
	err = node.start()
	if err != nil {
		node.stop()
		return errors.Wrap(err, "couldn't start the node")
	}

	<-interrupt
	node.stop()
	log.Infof("Shutdown complete")
	return nil
}

func initLogger(cfg *config.Config) error {
	level, ok := logger.LevelFromString(cfg.LogLevel)
	if !ok {
		return errors.Errorf("unknown log level %s", cfg.LogLevel)
	}

	if cfg.NoLogFiles {
		err := logger.InitLogStdout(level)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing logger: %+v\n", err)
			return err
		}
	} else {
		err := os.MkdirAll(cfg.LogDir(), 0700)
		if err != nil {
			return errors.Wrapf(err, "couldn't create log directory %s", cfg.LogDir())
		}
		err = logger.InitLog(cfg.LogFile(), cfg.ErrLogFile())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing logger: %+v\n", err)
			return err
		}
	}

	logger.SetLogLevels(level)
	return nil
}

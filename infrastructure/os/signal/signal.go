package signal

import (
	"os"
	"os/signal"
	"syscall"
)

// ShutdownRequestChannel is used to initiate shutdown from one of the
// subsystems using the same code paths as when an interrupt signal is
// received.
var ShutdownRequestChannel = make(chan struct{})

// interruptSignals defines the signals that are handled to do a clean
// shutdown.
var interruptSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

// InterruptListener returns a channel that is closed when an interrupt signal
// is received on interruptChannel, or a shutdown request is received on
// ShutdownRequestChannel.
func InterruptListener() <-chan struct{} {
	c := make(chan struct{})
	spawn("InterruptListener", func() {
		interruptChannel := make(chan os.Signal, 1)
		signal.Notify(interruptChannel, interruptSignals...)

		select {
		case sig := <-interruptChannel:
			log.Infof("Received signal (%s). Shutting down...", sig)
		case <-ShutdownRequestChannel:
			log.Infof("Shutdown requested. Shutting down...")
		}
		close(c)

		// Repeated signals while shutdown is in progress are only logged.
		for {
			select {
			case sig := <-interruptChannel:
				log.Infof("Received signal (%s). Already shutting down...", sig)
			case <-ShutdownRequestChannel:
				log.Infof("Shutdown requested. Already shutting down...")
			}
		}
	})
	return c
}

package logger

import (
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
)

// BackendLog is the logging backend used to create all subsystem loggers.
var BackendLog = NewBackend()

var (
	subsystemsLock sync.Mutex
	subsystems     = make(map[string]*Logger)
)

// RegisterSubSystem returns the logger for the given subsystem tag, creating
// it if it was not registered yet. Packages call this in their log.go.
func RegisterSubSystem(subsystem string) *Logger {
	subsystemsLock.Lock()
	defer subsystemsLock.Unlock()

	log, ok := subsystems[subsystem]
	if !ok {
		log = BackendLog.Logger(subsystem)
		subsystems[subsystem] = log
	}
	return log
}

// InitLogStdout attaches stdout to the logging backend at the given level and
// starts the backend. It is used by tests and by --nologfiles runs.
func InitLogStdout(logLevel Level) error {
	err := BackendLog.AddLogWriter(nopCloserWriter{stdout{}}, logLevel)
	if err != nil {
		return err
	}
	return BackendLog.Run()
}

// InitLog attaches log files to the logging backend and starts it.
// errLogFile receives only entries of warning severity and above.
func InitLog(logFile, errLogFile string) error {
	err := BackendLog.AddLogFile(logFile, LevelTrace)
	if err != nil {
		return errors.Wrapf(err, "error adding log file %s as log rotator for level %s",
			logFile, LevelTrace)
	}
	err = BackendLog.AddLogFile(errLogFile, LevelWarn)
	if err != nil {
		return errors.Wrapf(err, "error adding log file %s as log rotator for level %s",
			errLogFile, LevelWarn)
	}
	return BackendLog.Run()
}

type stdout struct{}

func (stdout) Write(p []byte) (int, error) {
	return os.Stdout.Write(p)
}

type nopCloserWriter struct {
	io.Writer
}

func (nopCloserWriter) Close() error {
	return nil
}

// SetLogLevels sets the logging level for all registered subsystems to the
// given level.
func SetLogLevels(logLevel Level) {
	subsystemsLock.Lock()
	defer subsystemsLock.Unlock()

	for _, log := range subsystems {
		log.SetLevel(logLevel)
	}
}

// SetLogLevel sets the logging level of a single registered subsystem.
func SetLogLevel(subsystem string, logLevel Level) error {
	subsystemsLock.Lock()
	defer subsystemsLock.Unlock()

	log, ok := subsystems[subsystem]
	if !ok {
		return errors.Errorf("subsystem %s is not registered", subsystem)
	}
	log.SetLevel(logLevel)
	return nil
}

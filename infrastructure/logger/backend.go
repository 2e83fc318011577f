package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/jrick/logrotate/rotator"
	"github.com/pkg/errors"
)

const (
	defaultThresholdKB = 100 * 1000 // 100 MB logs by default.
	defaultMaxRolls    = 8          // keep 8 last logs by default.
)

const logsBuffer = 0

type logEntry struct {
	log   []byte
	level Level
}

type logWriter interface {
	io.WriteCloser
	LogLevel() Level
}

type logWriterWrap struct {
	io.WriteCloser
	logLevel Level
}

func (lw logWriterWrap) LogLevel() Level {
	return lw.logLevel
}

// Backend is a logging backend. Subsystems created from the backend write to
// the backend's writers. Backend provides atomic writes from all subsystems.
type Backend struct {
	isRunning uint32
	writers   []logWriter
	writeChan chan logEntry
	syncClose sync.Mutex // used to sync that the logger finished writing everything
}

// NewBackend creates a new logger backend.
func NewBackend() *Backend {
	return &Backend{writeChan: make(chan logEntry, logsBuffer)}
}

// AddLogFile adds a file which the log will write into on a certain
// log level with the default log rotation settings. It'll create the file if
// it doesn't exist.
func (b *Backend) AddLogFile(logFile string, logLevel Level) error {
	if b.IsRunning() {
		return errors.New("the logger is already running")
	}
	logDir, _ := filepath.Split(logFile)
	// if the logDir is empty then `logFile` is in the cwd and there's no
	// need to create any directory.
	if logDir != "" {
		err := os.MkdirAll(logDir, 0700)
		if err != nil {
			return errors.Errorf("failed to create log directory: %+v", err)
		}
	}
	r, err := rotator.New(logFile, defaultThresholdKB, false, defaultMaxRolls)
	if err != nil {
		return errors.Errorf("failed to create file rotator: %s", err)
	}
	b.writers = append(b.writers, logWriterWrap{
		WriteCloser: r,
		logLevel:    logLevel,
	})
	return nil
}

// AddLogWriter adds a type implementing io.WriteCloser which the log will
// write into on a certain log level.
func (b *Backend) AddLogWriter(writer io.WriteCloser, logLevel Level) error {
	if b.IsRunning() {
		return errors.New("the logger is already running")
	}
	b.writers = append(b.writers, logWriterWrap{
		WriteCloser: writer,
		logLevel:    logLevel,
	})
	return nil
}

// Run launches the logger backend in a separate go-routine. Should only be
// called once.
func (b *Backend) Run() error {
	if !atomic.CompareAndSwapUint32(&b.isRunning, 0, 1) {
		return errors.New("the logger is already running")
	}
	go b.runBlocking()
	return nil
}

func (b *Backend) runBlocking() {
	defer atomic.StoreUint32(&b.isRunning, 0)
	b.syncClose.Lock()
	defer b.syncClose.Unlock()

	for entry := range b.writeChan {
		for _, writer := range b.writers {
			if entry.level >= writer.LogLevel() {
				_, _ = writer.Write(entry.log)
			}
		}
	}
}

// IsRunning returns true if backend.Run() has been called and false if it hasn't.
func (b *Backend) IsRunning() bool {
	return atomic.LoadUint32(&b.isRunning) != 0
}

// Close finalizes all log writers for this backend and waits until
// everything queued so far has been written.
func (b *Backend) Close() {
	close(b.writeChan)
	// Wait for the run goroutine to finish writing using the syncClose mutex.
	b.syncClose.Lock()
	defer b.syncClose.Unlock()
	for _, writer := range b.writers {
		_ = writer.Close()
	}
}

// Logger returns a new logger for a particular subsystem that writes to the
// Backend b. A tag describes the subsystem and is included in all log
// messages. The logger is off until a level is set explicitly.
func (b *Backend) Logger(subsystemTag string) *Logger {
	return &Logger{lvl: uint32(LevelOff), tag: subsystemTag, writeChan: b.writeChan}
}

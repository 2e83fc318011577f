package logger

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"
)

// Logger is a subsystem logger for a logging Backend.
type Logger struct {
	lvl       uint32 // atomic. Actually a Level.
	tag       string
	writeChan chan<- logEntry
}

// Trace formats a message using the default formats for its operands, prepends
// the prefix as necessary, and writes to log with LevelTrace.
func (l *Logger) Trace(args ...interface{}) {
	l.Write(LevelTrace, args...)
}

// Tracef formats a message according to a format specifier, prepends the
// prefix as necessary, and writes to log with LevelTrace.
func (l *Logger) Tracef(format string, args ...interface{}) {
	l.Writef(LevelTrace, format, args...)
}

// Debug formats a message using the default formats for its operands,
// prepends the prefix as necessary, and writes to log with LevelDebug.
func (l *Logger) Debug(args ...interface{}) {
	l.Write(LevelDebug, args...)
}

// Debugf formats a message according to a format specifier, prepends the
// prefix as necessary, and writes to log with LevelDebug.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.Writef(LevelDebug, format, args...)
}

// Info formats a message using the default formats for its operands, prepends
// the prefix as necessary, and writes to log with LevelInfo.
func (l *Logger) Info(args ...interface{}) {
	l.Write(LevelInfo, args...)
}

// Infof formats a message according to a format specifier, prepends the
// prefix as necessary, and writes to log with LevelInfo.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.Writef(LevelInfo, format, args...)
}

// Warn formats a message using the default formats for its operands, prepends
// the prefix as necessary, and writes to log with LevelWarn.
func (l *Logger) Warn(args ...interface{}) {
	l.Write(LevelWarn, args...)
}

// Warnf formats a message according to a format specifier, prepends the
// prefix as necessary, and writes to log with LevelWarn.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.Writef(LevelWarn, format, args...)
}

// Error formats a message using the default formats for its operands, prepends
// the prefix as necessary, and writes to log with LevelError.
func (l *Logger) Error(args ...interface{}) {
	l.Write(LevelError, args...)
}

// Errorf formats a message according to a format specifier, prepends the
// prefix as necessary, and writes to log with LevelError.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.Writef(LevelError, format, args...)
}

// Critical formats a message using the default formats for its operands,
// prepends the prefix as necessary, and writes to log with LevelCritical.
func (l *Logger) Critical(args ...interface{}) {
	l.Write(LevelCritical, args...)
}

// Criticalf formats a message according to a format specifier, prepends the
// prefix as necessary, and writes to log with LevelCritical.
func (l *Logger) Criticalf(format string, args ...interface{}) {
	l.Writef(LevelCritical, format, args...)
}

// Write formats a message using the default formats for its operands and
// writes it to log with the given logging level.
func (l *Logger) Write(logLevel Level, args ...interface{}) {
	if l.Level() <= logLevel {
		l.print(logLevel, fmt.Sprint(args...))
	}
}

// Writef formats a message according to a format specifier and writes it
// to log with the given logging level.
func (l *Logger) Writef(logLevel Level, format string, args ...interface{}) {
	if l.Level() <= logLevel {
		l.print(logLevel, fmt.Sprintf(format, args...))
	}
}

// Level returns the current logging level.
func (l *Logger) Level() Level {
	return Level(atomic.LoadUint32(&l.lvl))
}

// SetLevel changes the logging level to the passed level.
func (l *Logger) SetLevel(logLevel Level) {
	atomic.StoreUint32(&l.lvl, uint32(logLevel))
}

func (l *Logger) print(logLevel Level, message string) {
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	entry := fmt.Sprintf("%s [%s] %-4s: %s\n", timestamp, logLevel, l.tag, message)
	// The writeChan is never closed before process exit, and a send to it
	// that loses the race with shutdown is dropped deliberately.
	defer func() {
		if recover() != nil {
			fmt.Fprint(os.Stderr, entry)
		}
	}()
	l.writeChan <- logEntry{log: []byte(entry), level: logLevel}
}

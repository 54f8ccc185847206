// Package logging writes run-scoped debug logs for the pipeline engines.
// Every component in a process appends to the same <run-id>-selftree.log
// file under ~/.selftree/logs, so one exploration run reads as one file.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Logger writes level-tagged lines for one named component. All methods
// write unconditionally; there is no level filtering.
type Logger struct {
	component string
	file      *os.File
	out       *log.Logger
	path      string
	mu        sync.Mutex
	closeOnce sync.Once
}

var (
	runID     string
	runIDOnce sync.Once

	// logDir is resolved on first use; tests point it at a temp dir.
	logDir     string
	logDirOnce sync.Once
	logDirErr  error
)

func getRunID() string {
	runIDOnce.Do(func() {
		runID = uuid.New().String()
	})
	return runID
}

func resolveLogDir() error {
	logDirOnce.Do(func() {
		if logDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				logDirErr = fmt.Errorf("logging: resolve home directory: %w", err)
				return
			}
			logDir = filepath.Join(home, ".selftree", "logs")
		}
		if err := os.MkdirAll(logDir, 0750); err != nil {
			logDirErr = fmt.Errorf("logging: create log directory: %w", err)
		}
	})
	return logDirErr
}

// NewLogger creates a logger for one component, appending to the shared
// run log file.
//
// If the log directory or file cannot be opened it returns a stderr
// fallback logger along with the error, so callers that ignore the error
// still get working log methods.
func NewLogger(component string) (*Logger, error) {
	if err := resolveLogDir(); err != nil {
		return newFallbackLogger(component, err), err
	}

	path := filepath.Join(logDir, getRunID()+"-selftree.log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		err = fmt.Errorf("logging: open log file: %w", err)
		return newFallbackLogger(component, err), err
	}

	return &Logger{
		component: component,
		file:      file,
		out:       log.New(file, "", 0),
		path:      path,
	}, nil
}

func newFallbackLogger(component string, err error) *Logger {
	out := log.New(os.Stderr, fmt.Sprintf("[%s] ", component), log.LstdFlags)
	out.Printf("WARNING: file logging unavailable, using stderr: %v", err)
	return &Logger{component: component, out: out}
}

func (l *Logger) logf(level, format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	l.out.Printf("[%s] [%s] [%s] %s", timestamp, l.component, level, fmt.Sprintf(format, v...))
}

// Debugf logs a debug-level message.
func (l *Logger) Debugf(format string, v ...interface{}) { l.logf("DEBUG", format, v...) }

// Infof logs an info-level message.
func (l *Logger) Infof(format string, v ...interface{}) { l.logf("INFO", format, v...) }

// Warnf logs a warning-level message.
func (l *Logger) Warnf(format string, v ...interface{}) { l.logf("WARN", format, v...) }

// Errorf logs an error-level message.
func (l *Logger) Errorf(format string, v ...interface{}) { l.logf("ERROR", format, v...) }

// LogPath returns the log file path, or "" for a stderr fallback logger.
func (l *Logger) LogPath() string { return l.path }

// Close closes the log file. Safe to call multiple times.
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		if l.file != nil {
			err = l.file.Close()
		}
	})
	return err
}

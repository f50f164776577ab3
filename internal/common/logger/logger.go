package logger

import (
	"fmt"
	"log"
	"os"
)

// Logger is a named logger shared by all services.
type Logger struct {
	name string
	out  *log.Logger
}

// New creates a logger tagged with the service name.
func New(name string) *Logger {
	return &Logger{
		name: name,
		out:  log.New(os.Stdout, "", log.LstdFlags|log.Lmsgprefix),
	}
}

func (l *Logger) log(level, msg string) {
	l.out.Printf("[%s] %s: %s", level, l.name, msg)
}

// Info logs an informational message
func (l *Logger) Info(args ...interface{}) {
	l.log("INFO", fmt.Sprint(args...))
}

// Infof logs a formatted informational message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.log("INFO", fmt.Sprintf(format, args...))
}

// Warn logs a warning message
func (l *Logger) Warn(args ...interface{}) {
	l.log("WARN", fmt.Sprint(args...))
}

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.log("WARN", fmt.Sprintf(format, args...))
}

// Error logs an error message
func (l *Logger) Error(args ...interface{}) {
	l.log("ERROR", fmt.Sprint(args...))
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log("ERROR", fmt.Sprintf(format, args...))
}

// Fatal logs a message and exits
func (l *Logger) Fatal(args ...interface{}) {
	l.log("FATAL", fmt.Sprint(args...))
	os.Exit(1)
}

// Fatalf logs a formatted message and exits
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.log("FATAL", fmt.Sprintf(format, args...))
	os.Exit(1)
}

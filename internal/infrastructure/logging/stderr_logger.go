// Package logging provides the stderr-backed logging gateway. The proxy's
// stdout carries the client protocol, so every diagnostic line goes to
// stderr.
package logging

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"

	"toolgate.dev/cli/internal/core/ports"
)

var levelRank = map[ports.LogLevel]int{
	ports.LogLevelDebug: 0,
	ports.LogLevelInfo:  1,
	ports.LogLevelWarn:  2,
	ports.LogLevelError: 3,
}

// StderrLogger implements ports.LoggingGateway with a level threshold and
// key=value structured context.
type StderrLogger struct {
	mu       sync.Mutex
	logger   *log.Logger
	minLevel ports.LogLevel
}

// NewStderrLogger creates a logger with the given minimum level. An
// unknown level falls back to info.
func NewStderrLogger(minLevel ports.LogLevel) *StderrLogger {
	if _, ok := levelRank[minLevel]; !ok {
		minLevel = ports.LogLevelInfo
	}
	return &StderrLogger{
		logger:   log.New(os.Stderr, "[toolgate] ", log.LstdFlags),
		minLevel: minLevel,
	}
}

// Log writes a message at the given level with structured context.
func (l *StderrLogger) Log(level ports.LogLevel, message string, fields map[string]interface{}) {
	if levelRank[level] < levelRank[l.minLevel] {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Printf("%s %s%s", strings.ToUpper(string(level)), message, formatFields(fields))
}

// LogError writes an error with additional context.
func (l *StderrLogger) LogError(err error, message string, fields map[string]interface{}) {
	if fields == nil {
		fields = map[string]interface{}{}
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Log(ports.LogLevelError, message, fields)
}

// formatFields renders structured context as sorted key=value pairs so log
// lines stay stable across runs.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%v", key, fields[key])
	}
	return b.String()
}

package ports

import (
	"context"
	"time"
)

// LogLevel defines the logging level.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LoggingGateway defines the interface for logging operations. All output
// goes to stderr: stdout is the protocol channel and must stay clean.
type LoggingGateway interface {
	// Log writes a message at the given level with structured context
	Log(level LogLevel, message string, fields map[string]interface{})

	// LogError writes an error with additional context
	LogError(err error, message string, fields map[string]interface{})
}

// CallRecord captures the outcome of one tool call for analytics.
type CallRecord struct {
	Timestamp time.Time
	Tool      string
	Latency   time.Duration
	Success   bool
}

// SessionRecord summarizes one proxy session at shutdown.
type SessionRecord struct {
	Timestamp      time.Time
	Duration       time.Duration
	TotalCalls     int
	TokensEstimate int64
}

// AnalyticsRecorder is a fire-and-forget sink for call and session records.
// An unavailable recorder must never block or fail a tool call.
type AnalyticsRecorder interface {
	RecordCall(record CallRecord)
	RecordSession(record SessionRecord)
	Close() error
}

// SourceFetcher fetches a plugin source tree into a local directory.
type SourceFetcher interface {
	Fetch(ctx context.Context, owner, repo, dir string) error
}

// DependencyInstaller installs a fetched plugin's declared production
// dependencies before the plugin is considered installed.
type DependencyInstaller interface {
	Install(ctx context.Context, dir string) error
}

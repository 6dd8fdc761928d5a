package analytics

import (
	"time"

	"github.com/google/uuid"

	"toolgate.dev/cli/internal/core/ports"
)

// recordQueueSize bounds the recorder's buffered queue. When the queue is
// full new records are dropped, never blocking the caller.
const recordQueueSize = 256

// AsyncRecorder implements ports.AnalyticsRecorder over a Store with a
// single background worker. Every session gets a fresh identifier.
type AsyncRecorder struct {
	store     *Store
	logger    ports.LoggingGateway
	sessionID string
	queue     chan func()
	done      chan struct{}
}

// NewAsyncRecorder creates a recorder for one proxy session.
func NewAsyncRecorder(store *Store, logger ports.LoggingGateway) *AsyncRecorder {
	r := &AsyncRecorder{
		store:     store,
		logger:    logger,
		sessionID: uuid.NewString(),
		queue:     make(chan func(), recordQueueSize),
		done:      make(chan struct{}),
	}
	go r.worker()
	return r
}

// SessionID returns this recorder's session identifier.
func (r *AsyncRecorder) SessionID() string { return r.sessionID }

func (r *AsyncRecorder) worker() {
	defer close(r.done)
	for job := range r.queue {
		job()
	}
}

// enqueue submits a write, dropping it when the queue is full.
func (r *AsyncRecorder) enqueue(job func()) {
	select {
	case r.queue <- job:
	default:
		r.logger.Log(ports.LogLevelDebug, "Analytics queue full, dropping record", nil)
	}
}

// RecordCall appends one tool-call outcome.
func (r *AsyncRecorder) RecordCall(record ports.CallRecord) {
	r.enqueue(func() {
		err := r.store.InsertCall(CallRow{
			SessionID: r.sessionID,
			Timestamp: record.Timestamp,
			Tool:      record.Tool,
			LatencyMs: record.Latency.Milliseconds(),
			Success:   record.Success,
		})
		if err != nil {
			r.logger.LogError(err, "Failed to record tool call", nil)
		}
	})
}

// RecordSession appends the session summary.
func (r *AsyncRecorder) RecordSession(record ports.SessionRecord) {
	r.enqueue(func() {
		err := r.store.InsertSession(SessionRow{
			ID:             r.sessionID,
			Timestamp:      record.Timestamp,
			DurationMs:     record.Duration.Milliseconds(),
			TotalCalls:     record.TotalCalls,
			TokensEstimate: record.TokensEstimate,
		})
		if err != nil {
			r.logger.LogError(err, "Failed to record session summary", nil)
		}
	})
}

// Close drains pending records and closes the store.
func (r *AsyncRecorder) Close() error {
	close(r.queue)
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		r.logger.Log(ports.LogLevelWarn, "Timed out draining analytics queue", nil)
	}
	return r.store.Close()
}

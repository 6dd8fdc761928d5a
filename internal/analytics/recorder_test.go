package analytics

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolgate.dev/cli/internal/core/ports"
)

type nopLogger struct{}

func (nopLogger) Log(ports.LogLevel, string, map[string]interface{}) {}
func (nopLogger) LogError(error, string, map[string]interface{})    {}

func TestAsyncRecorder_RecordsAreDrainedOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analytics.db")
	store, err := Open(path)
	require.NoError(t, err)

	recorder := NewAsyncRecorder(store, nopLogger{})
	require.NotEmpty(t, recorder.SessionID())

	recorder.RecordCall(ports.CallRecord{Timestamp: time.Now(), Tool: "search", Latency: 42 * time.Millisecond, Success: true})
	recorder.RecordCall(ports.CallRecord{Timestamp: time.Now(), Tool: "fetch", Latency: 5 * time.Millisecond, Success: false})
	recorder.RecordSession(ports.SessionRecord{Timestamp: time.Now(), Duration: time.Minute, TotalCalls: 2})

	// Close waits for the queue to drain, then closes the store.
	require.NoError(t, recorder.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	summary, err := reopened.Summarize()
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.TotalCalls)
	assert.Equal(t, int64(1), summary.FailedCalls)
	assert.Equal(t, int64(1), summary.Sessions)

	calls, err := reopened.RecentCalls(10)
	require.NoError(t, err)
	require.Len(t, calls, 2)
	for _, call := range calls {
		assert.Equal(t, recorder.SessionID(), call.SessionID)
	}
}

func TestAsyncRecorder_SessionIDsAreUnique(t *testing.T) {
	storeA, err := Open(filepath.Join(t.TempDir(), "a.db"))
	require.NoError(t, err)
	storeB, err := Open(filepath.Join(t.TempDir(), "b.db"))
	require.NoError(t, err)

	recorderA := NewAsyncRecorder(storeA, nopLogger{})
	recorderB := NewAsyncRecorder(storeB, nopLogger{})
	defer recorderA.Close()
	defer recorderB.Close()

	assert.NotEqual(t, recorderA.SessionID(), recorderB.SessionID())
}

func TestAsyncRecorder_RecordNeverBlocksCaller(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "analytics.db"))
	require.NoError(t, err)

	recorder := NewAsyncRecorder(store, nopLogger{})
	defer recorder.Close()

	// Far more records than the queue holds; the overflow is dropped,
	// not blocked on.
	start := time.Now()
	for i := 0; i < recordQueueSize*4; i++ {
		recorder.RecordCall(ports.CallRecord{Timestamp: time.Now(), Tool: "burst", Latency: time.Millisecond, Success: true})
	}
	assert.Less(t, time.Since(start), 2*time.Second)
}

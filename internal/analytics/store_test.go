package analytics

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "analytics.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_Open_CreatesMissingDirectory(t *testing.T) {
	store := openTestStore(t)

	summary, err := store.Summarize()
	require.NoError(t, err)
	assert.Zero(t, summary.TotalCalls)
	assert.Zero(t, summary.Sessions)
}

func TestStore_Open_Reopen_IsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analytics.db")

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.InsertCall(CallRow{SessionID: "s1", Timestamp: time.Now(), Tool: "x", LatencyMs: 5, Success: true}))
	require.NoError(t, store.Close())

	// Migration re-runs without clobbering existing rows.
	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	summary, err := reopened.Summarize()
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.TotalCalls)
}

func TestStore_InsertAndRecentCalls_NewestFirst(t *testing.T) {
	store := openTestStore(t)
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	for i, tool := range []string{"first", "second", "third"} {
		require.NoError(t, store.InsertCall(CallRow{
			SessionID: "s1",
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Tool:      tool,
			LatencyMs: int64(10 * (i + 1)),
			Success:   i != 1,
		}))
	}

	calls, err := store.RecentCalls(2)
	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.Equal(t, "third", calls[0].Tool)
	assert.Equal(t, "second", calls[1].Tool)
	assert.False(t, calls[1].Success)
	assert.Equal(t, base.Add(2*time.Second), calls[0].Timestamp)
}

func TestStore_Summarize(t *testing.T) {
	store := openTestStore(t)
	now := time.Now()

	require.NoError(t, store.InsertCall(CallRow{SessionID: "s1", Timestamp: now, Tool: "a", LatencyMs: 10, Success: true}))
	require.NoError(t, store.InsertCall(CallRow{SessionID: "s1", Timestamp: now, Tool: "b", LatencyMs: 30, Success: false}))
	require.NoError(t, store.InsertSession(SessionRow{ID: "s1", Timestamp: now, DurationMs: 60000, TotalCalls: 2}))

	summary, err := store.Summarize()
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.TotalCalls)
	assert.Equal(t, int64(1), summary.FailedCalls)
	assert.InDelta(t, 20.0, summary.AvgLatencyMs, 0.001)
	assert.Equal(t, int64(1), summary.Sessions)
}

func TestStore_InsertSession_ReplaceOnSameID(t *testing.T) {
	store := openTestStore(t)
	now := time.Now()

	require.NoError(t, store.InsertSession(SessionRow{ID: "s1", Timestamp: now, TotalCalls: 1}))
	require.NoError(t, store.InsertSession(SessionRow{ID: "s1", Timestamp: now, TotalCalls: 5}))

	summary, err := store.Summarize()
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Sessions, "same session id must not produce two rows")
}

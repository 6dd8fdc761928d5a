package plugins

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolgate.dev/cli/internal/core/domain"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "registry", "plugins.json"))
}

func sampleRecord(name string) domain.PluginRecord {
	return domain.PluginRecord{
		Name:        name,
		Spec:        "example/" + name,
		Version:     "1.0.0",
		Enabled:     true,
		InstalledAt: time.Now().UTC().Truncate(time.Second),
		Manifest:    domain.Manifest{Name: name},
	}
}

func TestStore_AbsentFile_IsEmptyRegistry(t *testing.T) {
	store := testStore(t)

	records, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, records)

	exists, err := store.Exists("anything")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStore_PutGet_RoundTrips(t *testing.T) {
	store := testStore(t)
	record := sampleRecord("weather")

	require.NoError(t, store.Put(record))

	got, err := store.Get("weather")
	require.NoError(t, err)
	assert.Equal(t, record, got)
}

func TestStore_Get_Missing_ReturnsNotFound(t *testing.T) {
	store := testStore(t)

	_, err := store.Get("nope")
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
}

func TestStore_List_SortedByName(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.Put(sampleRecord("zeta")))
	require.NoError(t, store.Put(sampleRecord("alpha")))
	require.NoError(t, store.Put(sampleRecord("mid")))

	records, err := store.List()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "alpha", records[0].Name)
	assert.Equal(t, "mid", records[1].Name)
	assert.Equal(t, "zeta", records[2].Name)
}

func TestStore_Put_ReplacesExisting(t *testing.T) {
	store := testStore(t)
	record := sampleRecord("weather")
	require.NoError(t, store.Put(record))

	record.Enabled = false
	record.Version = "2.0.0"
	require.NoError(t, store.Put(record))

	got, err := store.Get("weather")
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	assert.Equal(t, "2.0.0", got.Version)

	records, err := store.List()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestStore_Delete(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.Put(sampleRecord("weather")))

	require.NoError(t, store.Delete("weather"))

	_, err := store.Get("weather")
	assert.True(t, domain.IsNotFound(err))

	err = store.Delete("weather")
	assert.True(t, domain.IsNotFound(err))
}

func TestStore_CorruptFile_SurfacesError(t *testing.T) {
	store := testStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0o755))
	require.NoError(t, os.WriteFile(store.Path(), []byte("{not json"), 0o644))

	_, err := store.List()
	assert.Error(t, err)
}

func TestStore_SurvivesReopen(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.Put(sampleRecord("weather")))

	reopened := NewStore(store.Path())
	got, err := reopened.Get("weather")
	require.NoError(t, err)
	assert.Equal(t, "weather", got.Name)
}

package plugins

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolgate.dev/cli/internal/core/domain"
	"toolgate.dev/cli/internal/core/ports"
)

type nopLogger struct{}

func (nopLogger) Log(ports.LogLevel, string, map[string]interface{}) {}
func (nopLogger) LogError(error, string, map[string]interface{})    {}

// fakeFetcher materializes a canned file tree instead of cloning.
type fakeFetcher struct {
	files map[string]string // relative path -> content
	err   error
}

func (f *fakeFetcher) Fetch(ctx context.Context, owner, repo, dir string) error {
	if f.err != nil {
		return f.err
	}
	for rel, content := range f.files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

type fakeDeps struct {
	err    error
	called []string
}

func (d *fakeDeps) Install(ctx context.Context, dir string) error {
	d.called = append(d.called, dir)
	return d.err
}

type installerFixture struct {
	installer  *Installer
	store      *Store
	fetcher    *fakeFetcher
	deps       *fakeDeps
	pluginsDir string
}

func newInstallerFixture(t *testing.T, files map[string]string) *installerFixture {
	t.Helper()
	root := t.TempDir()
	store := NewStore(filepath.Join(root, "plugins.json"))
	fetcher := &fakeFetcher{files: files}
	deps := &fakeDeps{}
	pluginsDir := filepath.Join(root, "plugins")

	return &installerFixture{
		installer:  NewInstaller(store, fetcher, deps, pluginsDir, nopLogger{}),
		store:      store,
		fetcher:    fetcher,
		deps:       deps,
		pluginsDir: pluginsDir,
	}
}

func validPluginFiles() map[string]string {
	return map[string]string{
		"plugin.json": `{"name": "weather-tools", "version": "1.2.0", "namespace": "weather"}`,
		"index.js":    `// entry point`,
	}
}

func TestInstaller_Install_Success(t *testing.T) {
	fx := newInstallerFixture(t, validPluginFiles())

	record, err := fx.installer.Install(context.Background(), "example/weather")
	require.NoError(t, err)

	assert.Equal(t, "example-weather", record.Name)
	assert.Equal(t, "example/weather", record.Spec)
	assert.Equal(t, "1.2.0", record.Version)
	assert.True(t, record.Enabled, "fresh installs start enabled")
	assert.Equal(t, "weather", record.Namespace())

	// Files landed in the permanent directory.
	assert.FileExists(t, filepath.Join(fx.pluginsDir, "example-weather", "plugin.json"))
	assert.FileExists(t, filepath.Join(fx.pluginsDir, "example-weather", "index.js"))

	// And the registry knows about it.
	stored, err := fx.store.Get("example-weather")
	require.NoError(t, err)
	assert.Equal(t, record.Name, stored.Name)
}

func TestInstaller_Install_WithSubpath(t *testing.T) {
	fx := newInstallerFixture(t, map[string]string{
		"plugins/search/plugin.json": `{"name": "search"}`,
		"plugins/search/index.js":    `// entry`,
		"README.md":                  `top-level noise`,
	})

	record, err := fx.installer.Install(context.Background(), "example/monorepo/plugins/search")
	require.NoError(t, err)
	assert.Equal(t, "example-monorepo-plugins-search", record.Name)

	dir := filepath.Join(fx.pluginsDir, record.Name)
	assert.FileExists(t, filepath.Join(dir, "plugin.json"))
	assert.NoFileExists(t, filepath.Join(dir, "README.md"), "only the subpath tree is installed")
}

func TestInstaller_Install_AtPrefixAccepted(t *testing.T) {
	fx := newInstallerFixture(t, validPluginFiles())

	record, err := fx.installer.Install(context.Background(), "@example/weather")
	require.NoError(t, err)
	assert.Equal(t, "example-weather", record.Name)
}

func TestInstaller_Install_InvalidSpecs(t *testing.T) {
	fx := newInstallerFixture(t, validPluginFiles())

	for _, spec := range []string{"", "justowner", "owner//repo", "owner/../repo", "@"} {
		t.Run(spec, func(t *testing.T) {
			_, err := fx.installer.Install(context.Background(), spec)
			require.Error(t, err)
			assert.True(t, domain.IsValidation(err), "spec %q: expected validation error, got %v", spec, err)
		})
	}
}

func TestInstaller_Install_MissingSubpath_IsValidationError(t *testing.T) {
	fx := newInstallerFixture(t, validPluginFiles())

	_, err := fx.installer.Install(context.Background(), "example/weather/no/such/dir")
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))

	// Nothing left behind.
	entries, _ := os.ReadDir(fx.pluginsDir)
	assert.Empty(t, entries)
}

func TestInstaller_Install_Duplicate_IsConflictAndPreservesOriginal(t *testing.T) {
	fx := newInstallerFixture(t, validPluginFiles())

	first, err := fx.installer.Install(context.Background(), "example/weather")
	require.NoError(t, err)

	_, err = fx.installer.Install(context.Background(), "example/weather")
	require.Error(t, err)
	assert.True(t, domain.IsConflict(err))

	// The original install is untouched.
	stored, err := fx.store.Get("example-weather")
	require.NoError(t, err)
	assert.Equal(t, first.InstalledAt, stored.InstalledAt)
	assert.FileExists(t, filepath.Join(fx.pluginsDir, "example-weather", "index.js"))
}

func TestInstaller_Install_BadManifest_RollsBack(t *testing.T) {
	fx := newInstallerFixture(t, map[string]string{
		"plugin.json": `{"version": "1.0.0"}`, // missing required name
		"index.js":    `// entry`,
	})

	_, err := fx.installer.Install(context.Background(), "example/broken")
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))

	assert.NoDirExists(t, filepath.Join(fx.pluginsDir, "example-broken"))
	exists, err := fx.store.Exists("example-broken")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestInstaller_Install_DependencyFailure_RollsBack(t *testing.T) {
	fx := newInstallerFixture(t, validPluginFiles())
	fx.deps.err = errors.New("npm install failed")

	_, err := fx.installer.Install(context.Background(), "example/weather")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "npm install failed")

	assert.NoDirExists(t, filepath.Join(fx.pluginsDir, "example-weather"))
	exists, err := fx.store.Exists("example-weather")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestInstaller_Install_FetchFailure_LeavesNoTrace(t *testing.T) {
	fx := newInstallerFixture(t, nil)
	fx.fetcher.err = errors.New("clone failed")

	_, err := fx.installer.Install(context.Background(), "example/weather")
	require.Error(t, err)

	assert.NoDirExists(t, filepath.Join(fx.pluginsDir, "example-weather"))
}

func TestInstaller_Uninstall_RemovesDirectoryAndRecord(t *testing.T) {
	fx := newInstallerFixture(t, validPluginFiles())
	record, err := fx.installer.Install(context.Background(), "example/weather")
	require.NoError(t, err)

	require.NoError(t, fx.installer.Uninstall(record.Name))

	assert.NoDirExists(t, filepath.Join(fx.pluginsDir, record.Name))
	_, err = fx.store.Get(record.Name)
	assert.True(t, domain.IsNotFound(err))
}

func TestInstaller_Uninstall_Missing_IsNotFound(t *testing.T) {
	fx := newInstallerFixture(t, nil)

	err := fx.installer.Uninstall("ghost")
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
}

func TestInstaller_EnableDisable_PersistOnly(t *testing.T) {
	fx := newInstallerFixture(t, validPluginFiles())
	record, err := fx.installer.Install(context.Background(), "example/weather")
	require.NoError(t, err)

	require.NoError(t, fx.installer.Disable(record.Name))
	stored, err := fx.store.Get(record.Name)
	require.NoError(t, err)
	assert.False(t, stored.Enabled)

	require.NoError(t, fx.installer.Enable(record.Name))
	stored, err = fx.store.Get(record.Name)
	require.NoError(t, err)
	assert.True(t, stored.Enabled)

	assert.True(t, domain.IsNotFound(fx.installer.Enable("ghost")))
}

func TestParseInstallSpec(t *testing.T) {
	tests := []struct {
		name     string
		spec     string
		expected domain.InstallSpec
		wantErr  bool
	}{
		{
			name:     "OwnerRepo",
			spec:     "example/weather",
			expected: domain.InstallSpec{Owner: "example", Repo: "weather"},
		},
		{
			name:     "WithSubpath",
			spec:     "example/mono/plugins/a",
			expected: domain.InstallSpec{Owner: "example", Repo: "mono", Subpath: "plugins/a"},
		},
		{
			name:     "AtPrefixStripped",
			spec:     "@example/weather",
			expected: domain.InstallSpec{Owner: "example", Repo: "weather"},
		},
		{name: "Empty", spec: "", wantErr: true},
		{name: "NoSlash", spec: "weather", wantErr: true},
		{name: "DotDotSegment", spec: "a/../b", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := domain.ParseInstallSpec(tt.spec)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, domain.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, parsed)
		})
	}
}

func TestInstallSpec_Derivations(t *testing.T) {
	spec := domain.InstallSpec{Owner: "example", Repo: "mono", Subpath: "plugins/a"}

	assert.Equal(t, "example-mono-plugins-a", spec.PluginName())
	assert.Equal(t, "https://github.com/example/mono.git", spec.CloneURL())
	assert.Equal(t, "example/mono/plugins/a", spec.String())
}

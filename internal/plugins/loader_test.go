package plugins

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolgate.dev/cli/internal/core/domain"
)

// fakeModule is an in-process Module with canned tools.
type fakeModule struct {
	tools    []domain.ToolDescriptor
	listErr  error
	closed   bool
	invoked  []string
	invokeFn func(tool string, args json.RawMessage) (*domain.ToolResult, error)
}

func (m *fakeModule) ListTools(ctx context.Context) ([]domain.ToolDescriptor, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.tools, nil
}

func (m *fakeModule) Invoke(ctx context.Context, tool string, args json.RawMessage) (*domain.ToolResult, error) {
	m.invoked = append(m.invoked, tool)
	if m.invokeFn != nil {
		return m.invokeFn(tool, args)
	}
	return domain.TextResult("invoked " + tool), nil
}

func (m *fakeModule) Close() error {
	m.closed = true
	return nil
}

type loaderFixture struct {
	loader     *Loader
	store      *Store
	pluginsDir string
	modules    map[string]*fakeModule // plugin name -> module handed out
	factoryErr map[string]error
}

func newLoaderFixture(t *testing.T) *loaderFixture {
	t.Helper()
	root := t.TempDir()
	fx := &loaderFixture{
		store:      NewStore(filepath.Join(root, "plugins.json")),
		pluginsDir: filepath.Join(root, "plugins"),
		modules:    make(map[string]*fakeModule),
		factoryErr: make(map[string]error),
	}

	factory := func(ctx context.Context, record domain.PluginRecord, dir string) (Module, error) {
		if err := fx.factoryErr[record.Name]; err != nil {
			return nil, err
		}
		module, ok := fx.modules[record.Name]
		if !ok {
			module = &fakeModule{}
			fx.modules[record.Name] = module
		}
		return module, nil
	}
	fx.loader = NewLoader(fx.store, fx.pluginsDir, factory, nopLogger{})
	return fx
}

// addPlugin registers a plugin record and creates its entry point on disk.
func (fx *loaderFixture) addPlugin(t *testing.T, name, namespace string, enabled bool, tools ...domain.ToolDescriptor) *fakeModule {
	t.Helper()

	dir := filepath.Join(fx.pluginsDir, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.js"), []byte("// entry"), 0o644))

	require.NoError(t, fx.store.Put(domain.PluginRecord{
		Name:     name,
		Spec:     "example/" + name,
		Version:  "1.0.0",
		Enabled:  enabled,
		Manifest: domain.Manifest{Name: name, Namespace: namespace},
	}))

	module := &fakeModule{tools: tools}
	fx.modules[name] = module
	return module
}

func TestLoader_LoadAll_LoadsEnabledPlugins(t *testing.T) {
	fx := newLoaderFixture(t)
	fx.addPlugin(t, "alpha", "", true, domain.ToolDescriptor{Name: "one"})
	fx.addPlugin(t, "beta", "", true, domain.ToolDescriptor{Name: "two"})

	count, err := fx.loader.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Len(t, fx.loader.Loaded(), 2)
}

func TestLoader_LoadAll_SkipsDisabled(t *testing.T) {
	fx := newLoaderFixture(t)
	fx.addPlugin(t, "alpha", "", true)
	fx.addPlugin(t, "beta", "", false)

	count, err := fx.loader.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.Len(t, fx.loader.Loaded(), 1)
	assert.Equal(t, "alpha", fx.loader.Loaded()[0].Record.Name)
}

func TestLoader_LoadAll_SkipsMissingEntryPoint(t *testing.T) {
	fx := newLoaderFixture(t)
	fx.addPlugin(t, "alpha", "", true)
	require.NoError(t, os.Remove(filepath.Join(fx.pluginsDir, "alpha", "index.js")))

	count, err := fx.loader.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestLoader_LoadAll_OneBrokenPluginDoesNotBlockOthers(t *testing.T) {
	fx := newLoaderFixture(t)
	fx.addPlugin(t, "broken", "", true)
	fx.addPlugin(t, "healthy", "", true, domain.ToolDescriptor{Name: "works"})
	fx.factoryErr["broken"] = errors.New("spawn failed")

	count, err := fx.loader.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.Len(t, fx.loader.Loaded(), 1)
	assert.Equal(t, "healthy", fx.loader.Loaded()[0].Record.Name)
}

func TestLoader_LoadAll_Reload_ClosesPreviousModules(t *testing.T) {
	fx := newLoaderFixture(t)
	module := fx.addPlugin(t, "alpha", "", true)

	_, err := fx.loader.LoadAll(context.Background())
	require.NoError(t, err)
	assert.False(t, module.closed)

	// Swap in a fresh module for the second pass so we can observe the
	// first one being closed.
	fresh := &fakeModule{}
	fx.modules["alpha"] = fresh

	_, err = fx.loader.LoadAll(context.Background())
	require.NoError(t, err)
	assert.True(t, module.closed, "previous module must be closed on reload")
	assert.False(t, fresh.closed)
}

func TestLoader_ListTools_QualifiesWithNamespace(t *testing.T) {
	fx := newLoaderFixture(t)
	fx.addPlugin(t, "weather-plugin", "weather", true,
		domain.ToolDescriptor{Name: "forecast"},
		domain.ToolDescriptor{Name: "current"},
	)
	fx.addPlugin(t, "plain", "", true, domain.ToolDescriptor{Name: "tool"})

	_, err := fx.loader.LoadAll(context.Background())
	require.NoError(t, err)

	tools := fx.loader.ListTools(context.Background())
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"weather__forecast",
		"weather__current",
		"plain__tool", // no namespace falls back to the plugin name
	}, names)
}

func TestLoader_ListTools_FailingPluginIsSkipped(t *testing.T) {
	fx := newLoaderFixture(t)
	good := fx.addPlugin(t, "good", "", true, domain.ToolDescriptor{Name: "ok"})
	bad := fx.addPlugin(t, "bad", "", true)
	bad.listErr = errors.New("enumeration broke")
	_ = good

	_, err := fx.loader.LoadAll(context.Background())
	require.NoError(t, err)

	tools := fx.loader.ListTools(context.Background())
	require.Len(t, tools, 1)
	assert.Equal(t, "good__ok", tools[0].Name)
}

func TestLoader_InvokeTool_RoutesToOwner(t *testing.T) {
	fx := newLoaderFixture(t)
	module := fx.addPlugin(t, "weather-plugin", "weather", true, domain.ToolDescriptor{Name: "forecast"})

	_, err := fx.loader.LoadAll(context.Background())
	require.NoError(t, err)

	result, err := fx.loader.InvokeTool(context.Background(), "weather__forecast", nil)
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "invoked forecast", result.Content[0].Text)
	assert.Equal(t, []string{"forecast"}, module.invoked, "module receives the unqualified name")
}

func TestLoader_InvokeTool_MatchesPluginNamePrefixToo(t *testing.T) {
	fx := newLoaderFixture(t)
	module := fx.addPlugin(t, "weather-plugin", "weather", true, domain.ToolDescriptor{Name: "forecast"})

	_, err := fx.loader.LoadAll(context.Background())
	require.NoError(t, err)

	_, err = fx.loader.InvokeTool(context.Background(), "weather-plugin__forecast", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"forecast"}, module.invoked)
}

func TestLoader_InvokeTool_Unresolved_IsNotFound(t *testing.T) {
	fx := newLoaderFixture(t)
	fx.addPlugin(t, "alpha", "", true)
	_, err := fx.loader.LoadAll(context.Background())
	require.NoError(t, err)

	_, err = fx.loader.InvokeTool(context.Background(), "ghost__tool", nil)
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
}

func TestLoader_Owns(t *testing.T) {
	fx := newLoaderFixture(t)
	fx.addPlugin(t, "weather-plugin", "weather", true)
	_, err := fx.loader.LoadAll(context.Background())
	require.NoError(t, err)

	assert.True(t, fx.loader.Owns("weather__anything"))
	assert.False(t, fx.loader.Owns("other__tool"))
	assert.False(t, fx.loader.Owns("weather")) // no separator, not qualified
}

func TestLoader_DisableThenReenable_RestoresTools(t *testing.T) {
	fx := newLoaderFixture(t)
	fx.addPlugin(t, "alpha", "", true, domain.ToolDescriptor{Name: "tool"})

	_, err := fx.loader.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, fx.loader.ListTools(context.Background()), 1)

	// Disable and reload: tools disappear.
	record, err := fx.store.Get("alpha")
	require.NoError(t, err)
	record.Enabled = false
	require.NoError(t, fx.store.Put(record))
	fresh := &fakeModule{tools: []domain.ToolDescriptor{{Name: "tool"}}}
	fx.modules["alpha"] = fresh

	_, err = fx.loader.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, fx.loader.ListTools(context.Background()))

	// Re-enable and reload: the same descriptors come back.
	record.Enabled = true
	require.NoError(t, fx.store.Put(record))

	_, err = fx.loader.LoadAll(context.Background())
	require.NoError(t, err)
	tools := fx.loader.ListTools(context.Background())
	require.Len(t, tools, 1)
	assert.Equal(t, "alpha__tool", tools[0].Name)
}

func TestLoader_Close_ClosesAllModules(t *testing.T) {
	fx := newLoaderFixture(t)
	alpha := fx.addPlugin(t, "alpha", "", true)
	beta := fx.addPlugin(t, "beta", "", true)

	_, err := fx.loader.LoadAll(context.Background())
	require.NoError(t, err)

	fx.loader.Close()
	assert.True(t, alpha.closed)
	assert.True(t, beta.closed)
	assert.Empty(t, fx.loader.Loaded())
}

package plugins

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"toolgate.dev/cli/internal/core/domain"
	"toolgate.dev/cli/internal/core/ports"
)

// NamespaceSeparator joins a plugin's namespace to its tool names in the
// aggregated catalog.
const NamespaceSeparator = "__"

// Module is the executable surface a loaded plugin must provide. A loaded
// unit that cannot satisfy both capabilities fails at load time, not at
// call time.
type Module interface {
	// ListTools enumerates the tools the plugin exposes
	ListTools(ctx context.Context) ([]domain.ToolDescriptor, error)

	// Invoke executes a named tool with the given arguments
	Invoke(ctx context.Context, tool string, args json.RawMessage) (*domain.ToolResult, error)

	// Close releases the module's resources
	Close() error
}

// ModuleFactory builds an executable Module for an installed plugin whose
// source lives in dir.
type ModuleFactory func(ctx context.Context, record domain.PluginRecord, dir string) (Module, error)

// LoadedPlugin pairs a registry record with its live module. It exists
// only in memory and is rebuilt on every load pass.
type LoadedPlugin struct {
	Record domain.PluginRecord
	Module Module
}

// Namespace returns the prefix qualifying this plugin's tools.
func (p *LoadedPlugin) Namespace() string { return p.Record.Namespace() }

// QualifiedTool is a plugin tool descriptor tagged with its owner for
// call-time routing.
type QualifiedTool struct {
	domain.ToolDescriptor
	Plugin string
}

// Loader maintains the in-memory registry of loaded plugin modules and
// resolves qualified tool names back to their owners.
type Loader struct {
	store      *Store
	pluginsDir string
	factory    ModuleFactory
	logger     ports.LoggingGateway

	mu     sync.RWMutex
	loaded []*LoadedPlugin
}

// NewLoader creates a Loader that builds modules with the given factory.
func NewLoader(store *Store, pluginsDir string, factory ModuleFactory, logger ports.LoggingGateway) *Loader {
	return &Loader{
		store:      store,
		pluginsDir: pluginsDir,
		factory:    factory,
		logger:     logger,
	}
}

// LoadAll rebuilds the in-memory registry from scratch: previously loaded
// modules are closed and every enabled record with a loadable entry point
// is loaded fresh, so a reload picks up on-disk changes. One broken plugin
// is logged and skipped, never blocking the rest. Returns the number of
// plugins loaded.
func (l *Loader) LoadAll(ctx context.Context) (int, error) {
	records, err := l.store.List()
	if err != nil {
		return 0, err
	}

	l.mu.Lock()
	previous := l.loaded
	l.loaded = nil
	l.mu.Unlock()

	for _, plugin := range previous {
		if err := plugin.Module.Close(); err != nil {
			l.logger.LogError(err, "Failed to close plugin module", map[string]interface{}{
				"plugin": plugin.Record.Name,
			})
		}
	}

	var loaded []*LoadedPlugin
	for _, record := range records {
		if !record.Enabled {
			continue
		}

		dir := filepath.Join(l.pluginsDir, record.Name)
		entry := filepath.Join(dir, record.Manifest.EntryPoint())
		if _, err := os.Stat(entry); err != nil {
			l.logger.Log(ports.LogLevelWarn, "Plugin entry point missing, skipping", map[string]interface{}{
				"plugin": record.Name,
				"entry":  entry,
			})
			continue
		}

		module, err := l.factory(ctx, record, dir)
		if err != nil {
			l.logger.LogError(err, "Failed to load plugin, skipping", map[string]interface{}{
				"plugin": record.Name,
			})
			continue
		}
		loaded = append(loaded, &LoadedPlugin{Record: record, Module: module})
	}

	l.mu.Lock()
	l.loaded = loaded
	l.mu.Unlock()

	l.logger.Log(ports.LogLevelInfo, "Plugin load pass complete", map[string]interface{}{
		"loaded": len(loaded),
		"known":  len(records),
	})
	return len(loaded), nil
}

// Loaded returns the current in-memory registry.
func (l *Loader) Loaded() []*LoadedPlugin {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]*LoadedPlugin(nil), l.loaded...)
}

// ListTools enumerates every loaded plugin's tools, each name qualified
// with the plugin's namespace. A plugin whose enumeration fails is skipped
// with a logged warning; one broken plugin must not fail the aggregate.
func (l *Loader) ListTools(ctx context.Context) []QualifiedTool {
	var tools []QualifiedTool
	for _, plugin := range l.Loaded() {
		declared, err := plugin.Module.ListTools(ctx)
		if err != nil {
			l.logger.LogError(err, "Plugin tool enumeration failed, skipping", map[string]interface{}{
				"plugin": plugin.Record.Name,
			})
			continue
		}
		for _, tool := range declared {
			qualified := tool
			qualified.Name = plugin.Namespace() + NamespaceSeparator + tool.Name
			tools = append(tools, QualifiedTool{ToolDescriptor: qualified, Plugin: plugin.Record.Name})
		}
	}
	return tools
}

// Owns reports whether a loaded plugin claims the qualified tool name.
func (l *Loader) Owns(qualifiedName string) bool {
	plugin, _ := l.resolve(qualifiedName)
	return plugin != nil
}

// InvokeTool routes a qualified tool call to the owning loaded plugin and
// propagates whatever result or error it produces.
func (l *Loader) InvokeTool(ctx context.Context, qualifiedName string, args json.RawMessage) (*domain.ToolResult, error) {
	plugin, tool := l.resolve(qualifiedName)
	if plugin == nil {
		return nil, domain.NewNotFoundError("no loaded plugin provides tool %q", qualifiedName)
	}
	return plugin.Module.Invoke(ctx, tool, args)
}

// resolve finds the loaded plugin owning qualifiedName by prefix match on
// its namespace or installed name, returning the unqualified tool name.
func (l *Loader) resolve(qualifiedName string) (*LoadedPlugin, string) {
	for _, plugin := range l.Loaded() {
		for _, prefix := range []string{plugin.Namespace(), plugin.Record.Name} {
			full := prefix + NamespaceSeparator
			if strings.HasPrefix(qualifiedName, full) {
				return plugin, strings.TrimPrefix(qualifiedName, full)
			}
		}
	}
	return nil, ""
}

// Close shuts down every loaded module and empties the registry.
func (l *Loader) Close() {
	l.mu.Lock()
	loaded := l.loaded
	l.loaded = nil
	l.mu.Unlock()

	for _, plugin := range loaded {
		if err := plugin.Module.Close(); err != nil {
			l.logger.LogError(err, "Failed to close plugin module", map[string]interface{}{
				"plugin": plugin.Record.Name,
			})
		}
	}
}

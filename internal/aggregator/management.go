package aggregator

import (
	"context"
	"encoding/json"
	"fmt"

	"toolgate.dev/cli/internal/core/domain"
	"toolgate.dev/cli/internal/core/ports"
	"toolgate.dev/cli/internal/plugins"
)

// Management tool names, fixed and hand-authored. They sit between the
// backend tools and the plugin tools in the aggregated catalog.
const (
	ToolPluginsList      = "plugins_list"
	ToolPluginsInstall   = "plugins_install"
	ToolPluginsUninstall = "plugins_uninstall"
	ToolPluginsEnable    = "plugins_enable"
	ToolPluginsDisable   = "plugins_disable"
	ToolPluginsInfo      = "plugins_info"
)

var nameArgSchema = json.RawMessage(`{"type":"object","properties":{"name":{"type":"string","description":"Installed plugin name"}},"required":["name"]}`)

// managementTools is the fixed catalog of locally-answered operations, in
// the order they are advertised.
var managementTools = []domain.ToolDescriptor{
	{
		Name:        ToolPluginsList,
		Description: "List installed toolgate plugins with their version and enabled state",
		InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
	},
	{
		Name:        ToolPluginsInstall,
		Description: "Install a plugin from a GitHub repository (owner/repo or owner/repo/subpath)",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"spec":{"type":"string","description":"Install spec, e.g. acme/translate-tools"}},"required":["spec"]}`),
	},
	{
		Name:        ToolPluginsUninstall,
		Description: "Uninstall a plugin and delete its files",
		InputSchema: nameArgSchema,
	},
	{
		Name:        ToolPluginsEnable,
		Description: "Enable an installed plugin",
		InputSchema: nameArgSchema,
	},
	{
		Name:        ToolPluginsDisable,
		Description: "Disable an installed plugin without uninstalling it",
		InputSchema: nameArgSchema,
	},
	{
		Name:        ToolPluginsInfo,
		Description: "Show the full record of one installed plugin",
		InputSchema: nameArgSchema,
	},
}

// Management executes the plugin-management tools locally against the
// store, installer, and loader. A successful install, enable, or disable
// triggers an immediate load pass so the next catalog listing reflects the
// change within the same session.
type Management struct {
	store     *plugins.Store
	installer *plugins.Installer
	loader    *plugins.Loader
	logger    ports.LoggingGateway
}

// NewManagement creates the management handler.
func NewManagement(store *plugins.Store, installer *plugins.Installer, loader *plugins.Loader, logger ports.LoggingGateway) *Management {
	return &Management{store: store, installer: installer, loader: loader, logger: logger}
}

// Tools returns the fixed management tool catalog.
func (m *Management) Tools() []domain.ToolDescriptor {
	return append([]domain.ToolDescriptor(nil), managementTools...)
}

// Handles reports whether name is a management operation.
func (m *Management) Handles(name string) bool {
	for _, tool := range managementTools {
		if tool.Name == name {
			return true
		}
	}
	return false
}

// Call executes one management operation.
func (m *Management) Call(ctx context.Context, name string, args json.RawMessage) (*domain.ToolResult, error) {
	switch name {
	case ToolPluginsList:
		return m.list()
	case ToolPluginsInstall:
		return m.install(ctx, args)
	case ToolPluginsUninstall:
		return m.uninstall(args)
	case ToolPluginsEnable:
		return m.setEnabled(ctx, args, true)
	case ToolPluginsDisable:
		return m.setEnabled(ctx, args, false)
	case ToolPluginsInfo:
		return m.info(args)
	default:
		return nil, domain.NewNotFoundError("unknown management tool %q", name)
	}
}

func (m *Management) list() (*domain.ToolResult, error) {
	records, err := m.store.List()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return domain.TextResult("No plugins installed."), nil
	}

	summary := make([]map[string]interface{}, 0, len(records))
	for _, record := range records {
		summary = append(summary, map[string]interface{}{
			"name":    record.Name,
			"version": record.Version,
			"enabled": record.Enabled,
		})
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return nil, err
	}
	return domain.TextResult(string(data)), nil
}

func (m *Management) install(ctx context.Context, args json.RawMessage) (*domain.ToolResult, error) {
	spec, err := stringArg(args, "spec")
	if err != nil {
		return nil, err
	}

	record, err := m.installer.Install(ctx, spec)
	if err != nil {
		return nil, err
	}
	if _, err := m.loader.LoadAll(ctx); err != nil {
		m.logger.LogError(err, "Load pass after install failed", nil)
	}
	return domain.TextResult(fmt.Sprintf("Installed plugin %s v%s (enabled)", record.Name, record.Version)), nil
}

func (m *Management) uninstall(args json.RawMessage) (*domain.ToolResult, error) {
	name, err := stringArg(args, "name")
	if err != nil {
		return nil, err
	}
	if err := m.installer.Uninstall(name); err != nil {
		return nil, err
	}
	return domain.TextResult(fmt.Sprintf("Uninstalled plugin %s", name)), nil
}

func (m *Management) setEnabled(ctx context.Context, args json.RawMessage, enabled bool) (*domain.ToolResult, error) {
	name, err := stringArg(args, "name")
	if err != nil {
		return nil, err
	}

	var action string
	if enabled {
		err = m.installer.Enable(name)
		action = "Enabled"
	} else {
		err = m.installer.Disable(name)
		action = "Disabled"
	}
	if err != nil {
		return nil, err
	}

	if _, err := m.loader.LoadAll(ctx); err != nil {
		m.logger.LogError(err, "Load pass after enable/disable failed", nil)
	}
	return domain.TextResult(fmt.Sprintf("%s plugin %s", action, name)), nil
}

func (m *Management) info(args json.RawMessage) (*domain.ToolResult, error) {
	name, err := stringArg(args, "name")
	if err != nil {
		return nil, err
	}

	record, err := m.store.Get(name)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return nil, err
	}
	return domain.TextResult(string(data)), nil
}

// stringArg extracts a required string argument from a tools/call
// arguments object.
func stringArg(args json.RawMessage, key string) (string, error) {
	if len(args) == 0 {
		return "", domain.NewValidationError("missing required argument %q", key)
	}
	var parsed map[string]json.RawMessage
	if err := json.Unmarshal(args, &parsed); err != nil {
		return "", domain.NewValidationError("arguments must be an object: %v", err)
	}
	raw, ok := parsed[key]
	if !ok {
		return "", domain.NewValidationError("missing required argument %q", key)
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", domain.NewValidationError("argument %q must be a string", key)
	}
	if value == "" {
		return "", domain.NewValidationError("argument %q cannot be empty", key)
	}
	return value, nil
}

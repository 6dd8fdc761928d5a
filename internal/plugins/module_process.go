package plugins

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"

	"toolgate.dev/cli/internal/backend"
	"toolgate.dev/cli/internal/core/domain"
	"toolgate.dev/cli/internal/core/ports"
)

// processModule runs a plugin's entry point as its own tool-server child
// process and drives it through the same client machinery used for the
// main backend. Loading a plugin therefore means spawning it and
// completing the handshake; a plugin that cannot start or enumerate is
// rejected at load time.
type processModule struct {
	client *backend.Client
}

// NewProcessModuleFactory returns the production ModuleFactory: entry
// points ending in .js run under node, anything else is executed directly.
func NewProcessModuleFactory(logger ports.LoggingGateway, timeouts backend.Timeouts) ModuleFactory {
	return func(ctx context.Context, record domain.PluginRecord, dir string) (Module, error) {
		entry := filepath.Join(dir, record.Manifest.EntryPoint())

		var command string
		var args []string
		if strings.HasSuffix(entry, ".js") {
			command = "node"
			args = []string{entry}
		} else {
			command = entry
		}

		transport := backend.NewProcessTransport(command, args, logger, backend.WithDir(dir))
		client := backend.NewClient(transport, logger, backend.WithTimeouts(timeouts))
		if err := client.Start(ctx); err != nil {
			return nil, err
		}
		return &processModule{client: client}, nil
	}
}

// ListTools enumerates the plugin's declared tools.
func (m *processModule) ListTools(ctx context.Context) ([]domain.ToolDescriptor, error) {
	return m.client.ListTools(ctx)
}

// Invoke executes a named tool and shapes the reply into a ToolResult. A
// reply that does not match the expected shape is wrapped as raw text
// rather than discarded.
func (m *processModule) Invoke(ctx context.Context, tool string, args json.RawMessage) (*domain.ToolResult, error) {
	raw, err := m.client.CallTool(ctx, tool, args)
	if err != nil {
		return nil, err
	}

	var result domain.ToolResult
	if err := json.Unmarshal(raw, &result); err != nil || len(result.Content) == 0 {
		return domain.TextResult(string(raw)), nil
	}
	return &result, nil
}

// Close stops the plugin's child process.
func (m *processModule) Close() error {
	return m.client.Stop()
}

// Package aggregator merges three heterogeneous tool sources into one
// catalog and routes incoming calls to the right handler: local
// management operations, loaded plugin tools, or the backend process.
package aggregator

import (
	"context"
	"encoding/json"
	"fmt"

	"toolgate.dev/cli/internal/core/domain"
	"toolgate.dev/cli/internal/core/ports"
	"toolgate.dev/cli/internal/plugins"
)

// BackendSource is the backend process seen from the aggregator.
type BackendSource interface {
	ListTools(ctx context.Context) ([]domain.ToolDescriptor, error)
	CallTool(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error)
}

// Aggregator is the composition point of the proxy: it produces the
// unified tool catalog and dispatches calls. Catalog order is fixed:
// backend tools (compressed), then management tools, then plugin tools.
// Within one catalog a later source's tool shadows an earlier one sharing
// its name at call time; the listing itself is a plain concatenation and
// is never de-duplicated.
type Aggregator struct {
	backend    BackendSource
	management *Management
	loader     *plugins.Loader
	logger     ports.LoggingGateway
}

// New creates an Aggregator. The backend source may be nil when the proxy
// runs without a backend command; backend-routed calls then fail with a
// NotFoundError instead of a crash.
func New(backend BackendSource, management *Management, loader *plugins.Loader, logger ports.LoggingGateway) *Aggregator {
	return &Aggregator{
		backend:    backend,
		management: management,
		loader:     loader,
		logger:     logger,
	}
}

// ListTools returns the aggregated catalog. A backend discovery failure is
// logged and leaves the backend section empty; the management and plugin
// sections must stay listable while the backend is degraded.
func (a *Aggregator) ListTools(ctx context.Context) []domain.ToolDescriptor {
	var catalog []domain.ToolDescriptor

	if a.backend != nil {
		backendTools, err := a.backend.ListTools(ctx)
		if err != nil {
			a.logger.LogError(err, "Backend tool discovery failed", nil)
		}
		for _, tool := range backendTools {
			catalog = append(catalog, Compress(tool))
		}
	}

	catalog = append(catalog, a.management.Tools()...)

	for _, tool := range a.loader.ListTools(ctx) {
		catalog = append(catalog, tool.ToolDescriptor)
	}

	return catalog
}

// CallTool routes one call: management operations first, then loaded
// plugin tools, then the backend. Errors from every branch come back as
// structured errors for the dispatcher to convert; this method never
// panics outward.
func (a *Aggregator) CallTool(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	switch {
	case a.management.Handles(name):
		result, err := a.management.Call(ctx, name, args)
		if err != nil {
			return nil, err
		}
		return json.Marshal(result)

	case a.loader.Owns(name):
		result, err := a.loader.InvokeTool(ctx, name, args)
		if err != nil {
			return nil, err
		}
		return json.Marshal(result)

	default:
		if a.backend == nil {
			return nil, domain.NewNotFoundError("tool %q is not handled by any backend", name)
		}
		result, err := a.backend.CallTool(ctx, name, args)
		if err != nil {
			return nil, fmt.Errorf("tool %q: %w", name, err)
		}
		return result, nil
	}
}

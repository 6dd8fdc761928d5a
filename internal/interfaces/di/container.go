// Package di wires the application together. The container owns the shared
// infrastructure (config, logging, analytics, plugin storage) and hands out
// fully assembled components to the CLI commands.
package di

import (
	"fmt"

	"toolgate.dev/cli/internal/aggregator"
	"toolgate.dev/cli/internal/analytics"
	"toolgate.dev/cli/internal/backend"
	"toolgate.dev/cli/internal/core/ports"
	"toolgate.dev/cli/internal/infrastructure/config"
	"toolgate.dev/cli/internal/infrastructure/logging"
	"toolgate.dev/cli/internal/plugins"
)

// Container holds all application dependencies.
type Container struct {
	Config config.Config
	Logger ports.LoggingGateway

	// Version is the build version reported to clients, stamped by main.
	Version string

	Store     *plugins.Store
	Installer *plugins.Installer
	Loader    *plugins.Loader

	// Recorder is nil until openRecorder succeeds; commands that do not
	// touch analytics never open the database.
	Recorder *analytics.AsyncRecorder
}

// NewContainer loads configuration and assembles the plugin subsystem.
func NewContainer() (*Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return NewContainerWith(cfg)
}

// NewContainerWith assembles a container around an explicit configuration,
// used by tests and by commands that override paths via flags.
func NewContainerWith(cfg config.Config) (*Container, error) {
	logger := logging.NewStderrLogger(cfg.LogLevel)

	store := plugins.NewStore(cfg.RegistryPath)
	installer := plugins.NewInstaller(
		store,
		plugins.NewGitFetcher(logger),
		plugins.NewNpmInstaller(logger),
		cfg.PluginsDir,
		logger,
	)
	loader := plugins.NewLoader(
		store,
		cfg.PluginsDir,
		plugins.NewProcessModuleFactory(logger, backend.Timeouts{
			Initialize: cfg.InitializeTimeout,
			ListTools:  cfg.ListToolsTimeout,
			CallTool:   cfg.CallToolTimeout,
		}),
		logger,
	)

	return &Container{
		Version:   "dev",
		Config:    cfg,
		Logger:    logger,
		Store:     store,
		Installer: installer,
		Loader:    loader,
	}, nil
}

// OpenRecorder opens the analytics database and attaches an async recorder
// to the container. Safe to call once per process.
func (c *Container) OpenRecorder() error {
	store, err := analytics.Open(c.Config.AnalyticsPath)
	if err != nil {
		return fmt.Errorf("opening analytics store: %w", err)
	}
	c.Recorder = analytics.NewAsyncRecorder(store, c.Logger)
	return nil
}

// NewSession assembles a proxy session for the given backend command. The
// backend client is created but not started; Session.Run owns its
// lifecycle.
func (c *Container) NewSession(backendCmd []string) (*Session, error) {
	if len(backendCmd) == 0 {
		return nil, fmt.Errorf("no backend command given")
	}

	timeouts := backend.Timeouts{
		Initialize: c.Config.InitializeTimeout,
		ListTools:  c.Config.ListToolsTimeout,
		CallTool:   c.Config.CallToolTimeout,
	}

	opts := []backend.ClientOption{backend.WithTimeouts(timeouts)}
	if c.Recorder != nil {
		opts = append(opts, backend.WithRecorder(c.Recorder))
	}
	client := backend.NewClient(
		backend.NewProcessTransport(backendCmd[0], backendCmd[1:], c.Logger),
		c.Logger,
		opts...,
	)

	management := aggregator.NewManagement(c.Store, c.Installer, c.Loader, c.Logger)
	agg := aggregator.New(client, management, c.Loader, c.Logger)

	return &Session{
		container:  c,
		client:     client,
		aggregator: agg,
	}, nil
}

// Shutdown releases container-owned resources.
func (c *Container) Shutdown() {
	if c.Loader != nil {
		c.Loader.Close()
	}
	if c.Recorder != nil {
		if err := c.Recorder.Close(); err != nil {
			c.Logger.LogError(err, "closing analytics recorder", nil)
		}
	}
}

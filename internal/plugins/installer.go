package plugins

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"toolgate.dev/cli/internal/core/domain"
	"toolgate.dev/cli/internal/core/ports"
)

// Installer materializes plugin source trees on disk and keeps the durable
// registry in sync. Every failure after the fetch removes both the
// temporary and the permanent directory before the error propagates, so a
// partial install is never left behind.
type Installer struct {
	store      *Store
	fetcher    ports.SourceFetcher
	deps       ports.DependencyInstaller
	pluginsDir string
	logger     ports.LoggingGateway
}

// NewInstaller creates an Installer storing plugins under pluginsDir.
func NewInstaller(store *Store, fetcher ports.SourceFetcher, deps ports.DependencyInstaller, pluginsDir string, logger ports.LoggingGateway) *Installer {
	return &Installer{
		store:      store,
		fetcher:    fetcher,
		deps:       deps,
		pluginsDir: pluginsDir,
		logger:     logger,
	}
}

// PluginDir returns the permanent storage location for a plugin name.
func (i *Installer) PluginDir(name string) string {
	return filepath.Join(i.pluginsDir, name)
}

// Install fetches, validates, and registers the plugin identified by spec.
// The new record is enabled by default; activating it still requires a
// load pass.
func (i *Installer) Install(ctx context.Context, spec string) (*domain.PluginRecord, error) {
	parsed, err := domain.ParseInstallSpec(spec)
	if err != nil {
		return nil, err
	}

	name := parsed.PluginName()
	exists, err := i.store.Exists(name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domain.NewConflictError("plugin %q is already installed", name)
	}

	tmpDir, err := os.MkdirTemp("", "toolgate-fetch-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	fetchDir := filepath.Join(tmpDir, "src")
	if err := i.fetcher.Fetch(ctx, parsed.Owner, parsed.Repo, fetchDir); err != nil {
		return nil, err
	}

	srcDir := fetchDir
	if parsed.Subpath != "" {
		srcDir = filepath.Join(fetchDir, filepath.FromSlash(parsed.Subpath))
		info, err := os.Stat(srcDir)
		if err != nil || !info.IsDir() {
			return nil, domain.NewValidationError("subpath %q does not exist in %s/%s", parsed.Subpath, parsed.Owner, parsed.Repo)
		}
	}

	destDir := i.PluginDir(name)
	if err := os.MkdirAll(i.pluginsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create plugins directory: %w", err)
	}
	if _, err := os.Stat(destDir); err == nil {
		return nil, domain.NewConflictError("plugin directory %s already exists", destDir)
	}
	if err := moveTree(srcDir, destDir); err != nil {
		os.RemoveAll(destDir)
		return nil, fmt.Errorf("failed to install plugin files: %w", err)
	}

	// Past this point any failure must roll the permanent directory back.
	rollback := func() { os.RemoveAll(destDir) }

	manifest, err := LoadManifest(destDir)
	if err != nil {
		rollback()
		return nil, err
	}

	if err := i.deps.Install(ctx, destDir); err != nil {
		rollback()
		return nil, fmt.Errorf("failed to install plugin dependencies: %w", err)
	}

	record := domain.PluginRecord{
		Name:        name,
		Spec:        spec,
		Version:     manifest.Version,
		Enabled:     true,
		InstalledAt: time.Now().UTC(),
		Manifest:    manifest,
	}
	if err := i.store.Put(record); err != nil {
		rollback()
		return nil, err
	}

	i.logger.Log(ports.LogLevelInfo, "Plugin installed", map[string]interface{}{
		"name":    name,
		"version": record.Version,
	})
	return &record, nil
}

// Uninstall removes the plugin's on-disk directory and its registry record.
func (i *Installer) Uninstall(name string) error {
	if _, err := i.store.Get(name); err != nil {
		return err
	}
	if err := os.RemoveAll(i.PluginDir(name)); err != nil {
		return fmt.Errorf("failed to remove plugin directory: %w", err)
	}
	if err := i.store.Delete(name); err != nil {
		return err
	}

	i.logger.Log(ports.LogLevelInfo, "Plugin uninstalled", map[string]interface{}{
		"name": name,
	})
	return nil
}

// Enable marks the plugin enabled. The runtime registry is unchanged until
// the next load pass; persistence of intent is decoupled from activation.
func (i *Installer) Enable(name string) error {
	return i.setEnabled(name, true)
}

// Disable marks the plugin disabled. Takes effect at the next load pass.
func (i *Installer) Disable(name string) error {
	return i.setEnabled(name, false)
}

func (i *Installer) setEnabled(name string, enabled bool) error {
	record, err := i.store.Get(name)
	if err != nil {
		return err
	}
	record.Enabled = enabled
	return i.store.Put(record)
}

// moveTree moves src to dest, preferring a rename and falling back to a
// recursive copy when the two live on different filesystems.
func moveTree(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}

	if err := copyTree(src, dest); err != nil {
		return err
	}
	return os.RemoveAll(src)
}

func copyTree(src, dest string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)

		switch {
		case info.IsDir():
			return os.MkdirAll(target, info.Mode().Perm())
		case info.Mode().IsRegular():
			return copyFile(path, target, info.Mode().Perm())
		default:
			return nil // sockets, symlinks and friends are not plugin content
		}
	})
}

func copyFile(src, dest string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func fileExists(dir, name string) bool {
	info, err := os.Stat(filepath.Join(dir, name))
	return err == nil && info.Mode().IsRegular()
}

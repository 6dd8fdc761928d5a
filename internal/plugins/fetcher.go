package plugins

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"toolgate.dev/cli/internal/core/domain"
	"toolgate.dev/cli/internal/core/ports"
)

// fetchTimeout bounds a clone; plugin repositories are expected to be small.
const fetchTimeout = 2 * time.Minute

// GitFetcher fetches plugin sources with a shallow git clone.
type GitFetcher struct {
	logger ports.LoggingGateway
}

// NewGitFetcher creates a GitFetcher.
func NewGitFetcher(logger ports.LoggingGateway) *GitFetcher {
	return &GitFetcher{logger: logger}
}

// Fetch clones owner/repo into dir at depth 1.
func (f *GitFetcher) Fetch(ctx context.Context, owner, repo, dir string) error {
	spec := domain.InstallSpec{Owner: owner, Repo: repo}
	url := spec.CloneURL()

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	f.logger.Log(ports.LogLevelInfo, "Fetching plugin source", map[string]interface{}{
		"url": url,
	})

	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", "--single-branch", url, dir)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		output := bytes.TrimSpace(stderr.Bytes())
		if len(output) > 0 {
			return fmt.Errorf("git clone of %s failed: %w: %s", url, err, output)
		}
		return fmt.Errorf("git clone of %s failed: %w", url, err)
	}
	return nil
}

// NpmInstaller installs a plugin's declared production dependencies when a
// package.json is present.
type NpmInstaller struct {
	logger ports.LoggingGateway
}

// NewNpmInstaller creates an NpmInstaller.
func NewNpmInstaller(logger ports.LoggingGateway) *NpmInstaller {
	return &NpmInstaller{logger: logger}
}

// Install runs npm install --production in dir if a dependency
// declaration exists there; otherwise it is a no-op.
func (n *NpmInstaller) Install(ctx context.Context, dir string) error {
	if !fileExists(dir, "package.json") {
		return nil
	}

	n.logger.Log(ports.LogLevelInfo, "Installing plugin dependencies", map[string]interface{}{
		"dir": dir,
	})

	cmd := exec.CommandContext(ctx, "npm", "install", "--production", "--no-audit", "--no-fund")
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		output := bytes.TrimSpace(stderr.Bytes())
		if len(output) > 0 {
			return fmt.Errorf("npm install failed: %w: %s", err, output)
		}
		return fmt.Errorf("npm install failed: %w", err)
	}
	return nil
}

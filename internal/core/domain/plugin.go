package domain

import (
	"fmt"
	"strings"
	"time"
)

// Manifest is the descriptor file required at a plugin's root (plugin.json).
type Manifest struct {
	Name        string `json:"name"`
	Version     string `json:"version,omitempty"`
	Description string `json:"description,omitempty"`
	Namespace   string `json:"namespace,omitempty"`
	Main        string `json:"main,omitempty"`
}

// EntryPoint returns the manifest's entry file, defaulting to index.js.
func (m Manifest) EntryPoint() string {
	if m.Main != "" {
		return m.Main
	}
	return "index.js"
}

// PluginRecord is the durable record of one installed plugin, persisted in
// the plugin registry document keyed by Name.
type PluginRecord struct {
	Name        string    `json:"name"`
	Spec        string    `json:"spec"`
	Version     string    `json:"version"`
	Enabled     bool      `json:"enabled"`
	InstalledAt time.Time `json:"installed_at"`
	Manifest    Manifest  `json:"manifest"`
}

// Namespace returns the prefix used to qualify this plugin's tool names:
// the manifest-declared namespace, or the plugin's own installed name.
func (r PluginRecord) Namespace() string {
	if r.Manifest.Namespace != "" {
		return r.Manifest.Namespace
	}
	return r.Name
}

// InstallSpec identifies a plugin source tree: a repository plus an
// optional subdirectory within it.
type InstallSpec struct {
	Owner   string
	Repo    string
	Subpath string
}

// ParseInstallSpec parses an install string of the form
// "[@]owner/repo[/sub/path]". A malformed spec is a ValidationError.
func ParseInstallSpec(spec string) (InstallSpec, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(spec), "@")
	if trimmed == "" {
		return InstallSpec{}, NewValidationError("install spec cannot be empty")
	}

	parts := strings.Split(trimmed, "/")
	if len(parts) < 2 {
		return InstallSpec{}, NewValidationError("invalid install spec %q: expected owner/repo", spec)
	}
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			return InstallSpec{}, NewValidationError("invalid install spec %q: empty or relative path segment", spec)
		}
	}

	return InstallSpec{
		Owner:   parts[0],
		Repo:    parts[1],
		Subpath: strings.Join(parts[2:], "/"),
	}, nil
}

// PluginName derives the registry key for this spec: all path segments
// joined with hyphens.
func (s InstallSpec) PluginName() string {
	name := s.Owner + "-" + s.Repo
	if s.Subpath != "" {
		name += "-" + strings.ReplaceAll(s.Subpath, "/", "-")
	}
	return name
}

// CloneURL returns the HTTPS clone URL for the repository named by s.
func (s InstallSpec) CloneURL() string {
	return fmt.Sprintf("https://github.com/%s/%s.git", s.Owner, s.Repo)
}

// String returns the canonical owner/repo[/subpath] form.
func (s InstallSpec) String() string {
	if s.Subpath == "" {
		return s.Owner + "/" + s.Repo
	}
	return s.Owner + "/" + s.Repo + "/" + s.Subpath
}

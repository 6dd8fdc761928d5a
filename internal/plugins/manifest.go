package plugins

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"toolgate.dev/cli/internal/core/domain"
)

// ManifestFileName is the descriptor file required at a plugin's root.
const ManifestFileName = "plugin.json"

// DefaultVersion is assumed when a manifest omits its version.
const DefaultVersion = "1.0.0"

// manifestSchema constrains the plugin descriptor. Only the name is
// mandatory; everything else has a sensible default.
const manifestSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["name"],
	"properties": {
		"name":        {"type": "string", "minLength": 1},
		"version":     {"type": "string", "pattern": "^\\d+\\.\\d+\\.\\d+"},
		"description": {"type": "string"},
		"namespace":   {"type": "string", "pattern": "^[A-Za-z0-9_-]+$"},
		"main":        {"type": "string", "minLength": 1}
	}
}`

// LoadManifest reads and validates the manifest at the plugin root dir.
// A missing or invalid manifest is a ValidationError; install treats it
// as fatal and rolls the plugin back.
func LoadManifest(dir string) (domain.Manifest, error) {
	path := filepath.Join(dir, ManifestFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return domain.Manifest{}, domain.NewValidationError("plugin is missing its %s manifest", ManifestFileName)
	}
	if err != nil {
		return domain.Manifest{}, fmt.Errorf("failed to read plugin manifest: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(manifestSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return domain.Manifest{}, domain.NewValidationError("invalid plugin manifest: %v", err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return domain.Manifest{}, domain.NewValidationError("invalid plugin manifest: %s", strings.Join(problems, "; "))
	}

	var manifest domain.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return domain.Manifest{}, domain.NewValidationError("invalid plugin manifest: %v", err)
	}
	if manifest.Version == "" {
		manifest.Version = DefaultVersion
	}
	return manifest, nil
}

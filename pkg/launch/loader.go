package launch

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const logPrefix = "launch:loader"

// EnvLaunchFile names the launch file when no path is passed.
const EnvLaunchFile = "LAUNCH_FILE"

// LoadLaunchFile loads a launch description. It tries paths in order: first
// any paths passed in, then LAUNCH_FILE, then defaults. With no readable
// file it returns an empty description.
func LoadLaunchFile(paths ...string) (*Description, error) {
	all := make([]string, 0, len(paths)+5)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv(EnvLaunchFile); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, "config/launch.json", "config/launch.yml", "launch.json", "launch.yml")

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}

		var desc *Description
		switch filepath.Ext(p) {
		case ".yml", ".yaml":
			desc, err = ParseYAML(data)
		default:
			desc, err = Parse(data)
		}
		if err != nil {
			return nil, fmt.Errorf("%s - failed to load %s: %w", logPrefix, p, err)
		}

		slog.Info(fmt.Sprintf("%s - Loaded launch file %s (%d actions)", logPrefix, p, len(desc.Actions)))
		return desc, nil
	}

	slog.Info(fmt.Sprintf("%s - No launch file found", logPrefix))
	return &Description{Name: "default"}, nil
}

// Parse decodes and validates a launch description.
func Parse(data []byte) (*Description, error) {
	var desc Description
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("%s - invalid launch JSON: %w", logPrefix, err)
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	return &desc, nil
}

// ParseYAML decodes a YAML launch description. The document is normalized
// through JSON so config values get the same types as in a JSON launch file.
func ParseYAML(data []byte) (*Description, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%s - invalid launch YAML: %w", logPrefix, err)
	}
	normalized, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%s - launch YAML is not representable as JSON: %w", logPrefix, err)
	}
	return Parse(normalized)
}

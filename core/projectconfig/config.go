package projectconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/davidahmann/execgate/core/approval"
	coreerrors "github.com/davidahmann/execgate/core/errors"
)

const DefaultPath = ".execgate/config.yaml"

const defaultApprovalMode = string(approval.ModeOnRequest)

// Config is the project-level configuration for the policy engine: where
// policy files live, how prompts fold into requirements, and where telemetry
// lands. Everything here has a working default; a missing config file is not
// an error when the caller allows it.
type Config struct {
	PolicyDirs    []string `yaml:"policy_dirs"`
	ApprovalMode  string   `yaml:"approval_mode"`
	TelemetryPath string   `yaml:"telemetry_path"`
}

func Load(path string, allowMissing bool) (Config, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return Config{}, fmt.Errorf("project config path is required")
	}

	// #nosec G304 -- project config path is explicit local user input.
	content, err := os.ReadFile(trimmedPath)
	if err != nil {
		if os.IsNotExist(err) && allowMissing {
			defaults := Config{}
			defaults.normalize()
			return defaults, nil
		}
		return Config{}, coreerrors.Wrap(fmt.Errorf("read project config: %w", err),
			coreerrors.CategoryInvalidInput, "config_read", "check the config path", false)
	}

	var configuration Config
	if len(strings.TrimSpace(string(content))) > 0 {
		if err := yaml.UnmarshalWithOptions(content, &configuration, yaml.Strict()); err != nil {
			return Config{}, coreerrors.Wrap(fmt.Errorf("parse project config: %w", err),
				coreerrors.CategoryInvalidInput, "config_parse", "fix the YAML in the config file", false)
		}
	}
	configuration.normalize()
	if err := configuration.validate(); err != nil {
		return Config{}, err
	}
	return configuration, nil
}

func (configuration *Config) normalize() {
	dirs := make([]string, 0, len(configuration.PolicyDirs))
	for _, dir := range configuration.PolicyDirs {
		trimmed := strings.TrimSpace(dir)
		if trimmed == "" {
			continue
		}
		dirs = append(dirs, expandHome(trimmed))
	}
	configuration.PolicyDirs = dirs

	configuration.ApprovalMode = strings.TrimSpace(configuration.ApprovalMode)
	if configuration.ApprovalMode == "" {
		configuration.ApprovalMode = defaultApprovalMode
	}
	configuration.TelemetryPath = expandHome(strings.TrimSpace(configuration.TelemetryPath))
}

func (configuration *Config) validate() error {
	if _, err := approval.ParseMode(configuration.ApprovalMode); err != nil {
		return coreerrors.Wrap(fmt.Errorf("project config: %w", err),
			coreerrors.CategoryInvalidInput, "config_approval_mode", "use untrusted, on-failure, on-request, or never", false)
	}
	return nil
}

// Mode returns the parsed approval mode. Load has already validated it, so
// this never fails on a loaded config.
func (configuration Config) Mode() approval.Mode {
	mode, err := approval.ParseMode(configuration.ApprovalMode)
	if err != nil {
		return approval.ModeOnRequest
	}
	return mode
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"

	"github.com/GriffinCanCode/webboot/internal/bootstrap/env"
	"github.com/GriffinCanCode/webboot/internal/shared/utils"
)

// decodeFile overlays the keys present in a YAML or TOML file onto cfg.
func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config file extension %q", ext)
	}
	if err != nil {
		return fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	return nil
}

// LoadEnvFile reads the injected environment mapping from a JSON, YAML or
// TOML file of string values. An empty path yields an empty mapping.
func LoadEnvFile(path string) (*env.Map, error) {
	if path == "" {
		return env.New(nil), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read env file: %w", err)
	}

	vars := make(map[string]string)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = sonic.Unmarshal(data, &vars)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &vars)
	case ".toml":
		err = toml.Unmarshal(data, &vars)
	default:
		return nil, fmt.Errorf("unsupported env file extension %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode env file %s: %w", path, err)
	}
	if err := utils.ValidateEnv(vars); err != nil {
		return nil, fmt.Errorf("invalid env file %s: %w", path, err)
	}
	return env.New(vars), nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"toolgate/pkg/logging"
)

const (
	userConfigDir  = ".config/toolgate"
	configFileName = "config.yaml"
)

const subsystem = "Config"

// GetDefaultConfigPathOrPanic returns the per-user configuration
// directory, ~/.config/toolgate.
func GetDefaultConfigPathOrPanic() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Errorf("could not determine user config directory: %w", err))
	}
	return filepath.Join(homeDir, userConfigDir)
}

// LoadConfig loads config.yaml from the given directory over the
// built-in defaults. A missing file yields the defaults; a file that
// does not parse is an error.
func LoadConfig(configPath string) (Config, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Debug(subsystem, "No config.yaml found at %s, using defaults", configFilePath)
			return config, nil
		}
		return Config{}, fmt.Errorf("failed to read config from %s: %w", configFilePath, err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("failed to parse config from %s: %w", configFilePath, err)
	}

	logging.Debug(subsystem, "Loaded configuration from %s", configFilePath)
	return config, nil
}

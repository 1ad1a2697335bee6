// Package configuration loads the relay node configuration.
package configuration

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/multibridge/mma/pkg/model"
)

// LoadConfig loads the node configuration from a TOML file, applying defaults
// and validating before returning.
func LoadConfig(filePath string) (*model.NodeConfig, error) {
	var config model.NodeConfig
	if _, err := toml.DecodeFile(filePath, &config); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", filePath, err)
	}

	config.SetDefaults()
	config.LoadFromEnvironment()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", filePath, err)
	}
	return &config, nil
}

// LoadConfigString loads the node configuration from a TOML string.
func LoadConfigString(configStr string) (*model.NodeConfig, error) {
	var config model.NodeConfig
	if _, err := toml.Decode(configStr, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

// Package config loads the YAML configuration file ldlink's CLI accepts
// via --config: the primary object, the search path, and any additional
// objects to preload ahead of the primary's own DT_NEEDED closure.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk shape of an ldlink configuration file.
type Config struct {
	Primary    string   `yaml:"primary"`
	SearchPath string   `yaml:"search_path"`
	Preload    []Object `yaml:"preload"`
	Debug      bool     `yaml:"debug"`
}

// Object names one extra object to load before the primary, by logical
// name and file path.
type Object struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// Load reads and parses a YAML config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

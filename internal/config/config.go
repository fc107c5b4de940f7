// Package config loads the server configuration from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Listen        string `yaml:"listen"`
	DataPath      string `yaml:"dataPath"`
	MinimumFreeGB int    `yaml:"minimumFreeGB"`
	BaseURL       string `yaml:"baseURL"`
}

// Load reads a YAML config file and fills in defaults for anything the
// file leaves out.
func Load(path string) (Config, error) {
	var config Config

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("config: parse %q: %w", path, err)
	}

	config.applyDefaults()
	return config, nil
}

// Default returns the configuration used when no file is present.
func Default() Config {
	var config Config
	config.applyDefaults()
	return config
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":4242"
	}
	if c.DataPath == "" {
		c.DataPath = "./palace-data"
	}
	if c.MinimumFreeGB == 0 {
		c.MinimumFreeGB = 1
	}
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:4242"
	}
}

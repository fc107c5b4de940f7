package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

const defaultAPIBase = "http://localhost:4242"

// cliConfig is the local credentials file. PalaceKey is the Ed25519
// private key in hex PKCS#8 DER and must stay on this machine.
type cliConfig struct {
	PalaceID  string `yaml:"palace_id"`
	PalaceKey string `yaml:"palace_key"`
	PublicKey string `yaml:"public_key"`
	APIBase   string `yaml:"api_base"`
}

func configPath() (string, error) {
	if cfgPath != "" {
		return cfgPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".palace", "config.yaml"), nil
}

func loadConfig() (cliConfig, error) {
	path, err := configPath()
	if err != nil {
		return cliConfig{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cliConfig{}, fmt.Errorf("no palace configured, run \"palace init\" first (%w)", err)
	}

	var conf cliConfig
	if err := yaml.Unmarshal(data, &conf); err != nil {
		return cliConfig{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if apiBase != "" {
		conf.APIBase = apiBase
	}
	if conf.APIBase == "" {
		conf.APIBase = defaultAPIBase
	}
	return conf, nil
}

func saveConfig(conf cliConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(conf)
	if err != nil {
		return err
	}
	// 0600: the file holds the private signing key.
	return os.WriteFile(path, data, 0600)
}

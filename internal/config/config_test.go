package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("listen: \":9000\"\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	conf, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if conf.Listen != ":9000" {
		t.Fatalf("unexpected listen: %q", conf.Listen)
	}
	if conf.DataPath != "./palace-data" || conf.MinimumFreeGB != 1 || conf.BaseURL != "http://localhost:4242" {
		t.Fatalf("defaults not applied: %+v", conf)
	}
}

func TestLoadFullConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "listen: \":8080\"\ndataPath: /var/palace\nminimumFreeGB: 5\nbaseURL: https://palace.example.com\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	conf, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if conf.Listen != ":8080" || conf.DataPath != "/var/palace" ||
		conf.MinimumFreeGB != 5 || conf.BaseURL != "https://palace.example.com" {
		t.Fatalf("unexpected config: %+v", conf)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("listen: [unclosed"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}

func TestDefault(t *testing.T) {
	conf := Default()
	if conf.Listen != ":4242" || conf.DataPath != "./palace-data" {
		t.Fatalf("unexpected defaults: %+v", conf)
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Port != 3000 {
		t.Errorf("Expected port 3000, got %d", config.Port)
	}
	if config.Media.TTLSeconds != 120 {
		t.Errorf("Expected TTL 120s, got %d", config.Media.TTLSeconds)
	}
	if config.Media.MaxUploadBytes != 2_000_000 {
		t.Errorf("Expected upload ceiling 2000000, got %d", config.Media.MaxUploadBytes)
	}
	if config.Healthcheck.Enabled {
		t.Error("Expected healthcheck disabled by default")
	}
	if config.Healthcheck.Schedule != "@every 1m" {
		t.Errorf("Unexpected healthcheck schedule %q", config.Healthcheck.Schedule)
	}
}

func TestLoadConfig(t *testing.T) {
	content := `{
		"port": 8080,
		"vapid": {"subscriber": "mailto:ops@example.com"},
		"media": {"ttl_seconds": 30},
		"healthcheck": {"enabled": true, "url": "https://ping.example"}
	}`

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if config.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", config.Port)
	}
	if config.VAPID.Subscriber != "mailto:ops@example.com" {
		t.Errorf("Unexpected subscriber %q", config.VAPID.Subscriber)
	}
	if config.Media.TTLSeconds != 30 {
		t.Errorf("Expected TTL 30s, got %d", config.Media.TTLSeconds)
	}

	// Unspecified fields still get defaults
	if config.Media.MaxUploadBytes != 2_000_000 {
		t.Errorf("Expected default upload ceiling, got %d", config.Media.MaxUploadBytes)
	}
	if !config.Healthcheck.Enabled || config.Healthcheck.URL != "https://ping.example" {
		t.Errorf("Unexpected healthcheck config: %+v", config.Healthcheck)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/config.json"); err == nil {
		t.Error("Expected error for missing config file")
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	t.Run("from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "parley.yaml")
		content := `
base_url: https://support.example.com/
page_size: 10
admin_id: admin-1
`
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write config: %v", err)
		}

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.BaseURL != "https://support.example.com" {
			t.Errorf("Expected trailing slash trimmed, got %q", cfg.BaseURL)
		}
		if cfg.WebsocketURL != "wss://support.example.com/ws" {
			t.Errorf("Expected derived websocket URL, got %q", cfg.WebsocketURL)
		}
		if cfg.PageSize != 10 {
			t.Errorf("Expected page size 10, got %d", cfg.PageSize)
		}
	})

	t.Run("env override", func(t *testing.T) {
		t.Setenv("PARLEY_BASE_URL", "http://localhost:8080")
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.BaseURL != "http://localhost:8080" {
			t.Errorf("Expected env base URL, got %q", cfg.BaseURL)
		}
		if cfg.WebsocketURL != "ws://localhost:8080/ws" {
			t.Errorf("Expected derived ws URL, got %q", cfg.WebsocketURL)
		}
		if cfg.PageSize != 50 {
			t.Errorf("Expected default page size, got %d", cfg.PageSize)
		}
	})

	t.Run("missing base URL is an error", func(t *testing.T) {
		os.Unsetenv("PARLEY_BASE_URL")
		if _, err := Load(""); err == nil {
			t.Error("Expected error without base_url")
		}
	})

	t.Run("explicit websocket URL is kept", func(t *testing.T) {
		cfg := &Config{BaseURL: "https://a.example", WebsocketURL: "wss://ws.example/sub"}
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if cfg.WebsocketURL != "wss://ws.example/sub" {
			t.Errorf("Expected explicit ws URL kept, got %q", cfg.WebsocketURL)
		}
	})
}

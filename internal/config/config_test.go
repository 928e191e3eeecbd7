package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfigYAMLRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Server.URL = "https://agime.example.com"
	cfg.Server.TeamID = "team-42"
	cfg.Chat.DefaultAgent = "researcher"

	if err := WriteConfig(tmpDir, cfg); err != nil {
		t.Fatalf("WriteConfig failed: %v", err)
	}

	loaded, err := ReadConfig(tmpDir)
	if err != nil {
		t.Fatalf("ReadConfig failed: %v", err)
	}

	if loaded.Server.URL != "https://agime.example.com" {
		t.Errorf("Server.URL: got %q, want %q", loaded.Server.URL, "https://agime.example.com")
	}
	if loaded.Server.TeamID != "team-42" {
		t.Errorf("Server.TeamID: got %q, want %q", loaded.Server.TeamID, "team-42")
	}
	if loaded.Chat.DefaultAgent != "researcher" {
		t.Errorf("Chat.DefaultAgent: got %q, want %q", loaded.Chat.DefaultAgent, "researcher")
	}
}

func TestDefaultConfigTimeout(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.RequestTimeout(); got != 30*time.Second {
		t.Errorf("default request timeout: got %v, want %v", got, 30*time.Second)
	}

	cfg.Server.Timeout = 0
	if got := cfg.RequestTimeout(); got != 30*time.Second {
		t.Errorf("zero timeout should fall back to default, got %v", got)
	}
}

func TestReadConfigMissingFile(t *testing.T) {
	_, err := ReadConfig(t.TempDir())
	if err == nil {
		t.Fatal("expected error reading missing config")
	}
}

func TestBackwardCompatibility(t *testing.T) {
	// Simulate an old config file without the chat section.
	tmpDir := t.TempDir()
	oldConfig := `version: 1
server:
  url: http://localhost:8080
  token: secret
  timeout: 15
`
	if err := os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte(oldConfig), 0644); err != nil {
		t.Fatalf("failed to write old config: %v", err)
	}

	cfg, err := ReadConfig(tmpDir)
	if err != nil {
		t.Fatalf("ReadConfig failed on old config: %v", err)
	}
	if cfg.Server.Token != "secret" {
		t.Errorf("Server.Token: got %q, want %q", cfg.Server.Token, "secret")
	}
	if got := cfg.RequestTimeout(); got != 15*time.Second {
		t.Errorf("request timeout: got %v, want %v", got, 15*time.Second)
	}
}

// Package config handles reading and writing ~/.agimectl/config.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level structure for ~/.agimectl/config.yaml.
type Config struct {
	Version int          `yaml:"version"`
	Server  ServerConfig `yaml:"server"`
	Chat    ChatConfig   `yaml:"chat"`
	LogDir  string       `yaml:"log_dir"`
}

// ServerConfig holds the connection details for the team server.
type ServerConfig struct {
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	TeamID  string `yaml:"team_id"`
	Timeout int    `yaml:"timeout"` // seconds, non-stream requests
}

// ChatConfig holds defaults applied when opening a session.
type ChatConfig struct {
	DefaultAgent string `yaml:"default_agent"`
	Markdown     bool   `yaml:"markdown"`
}

const configDir = ".agimectl"
const configFile = "config.yaml"

// Dir returns the config directory under the user's home, e.g.
// /home/alice/.agimectl.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, configDir), nil
}

// ReadConfig reads config.yaml from the given directory. Returns an error
// if the file is not found or YAML is malformed.
func ReadConfig(dir string) (*Config, error) {
	path := filepath.Join(dir, configFile)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return &cfg, nil
}

// WriteConfig writes cfg to config.yaml in the given directory, creating
// the directory if it does not exist.
func WriteConfig(dir string, cfg *Config) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	path := filepath.Join(dir, configFile)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// Load reads the user config, falling back to defaults when no file
// exists yet. Environment variables AGIME_URL and AGIME_TOKEN override
// the file so credentials can stay out of it.
func Load() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	cfg, err := ReadConfig(dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		cfg = DefaultConfig()
	}
	if v := os.Getenv("AGIME_URL"); v != "" {
		cfg.Server.URL = v
	}
	if v := os.Getenv("AGIME_TOKEN"); v != "" {
		cfg.Server.Token = v
	}
	return cfg, nil
}

// RequestTimeout returns the configured non-stream request timeout.
func (c *Config) RequestTimeout() time.Duration {
	if c.Server.Timeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Server.Timeout) * time.Second
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Server: ServerConfig{
			URL:     "http://localhost:8080",
			Timeout: 30,
		},
		Chat: ChatConfig{
			Markdown: true,
		},
	}
}

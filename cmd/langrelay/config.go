// Copyright 2024-2026 Aiku AI

package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the process configuration. Secrets may be left out of the
// file and provided via environment variables instead (a .env file is
// loaded on startup when present).
type Config struct {
	Mattermost struct {
		ServerURL string `yaml:"server_url"`
		Token     string `yaml:"token"`
		Team      string `yaml:"team"`
	} `yaml:"mattermost"`

	Storage struct {
		// Backend is "file" (one JSON file per guild) or "sqlite".
		Backend string `yaml:"backend"`
		Path    string `yaml:"path"`
	} `yaml:"storage"`

	Translation struct {
		DefaultProvider string `yaml:"default_provider"`
		DeepL           struct {
			Token     string `yaml:"token"`
			BaseURL   string `yaml:"base_url"`
			Formality string `yaml:"formality"`
		} `yaml:"deepl"`
		OpenAI struct {
			Token   string `yaml:"token"`
			BaseURL string `yaml:"base_url"`
			Model   string `yaml:"model"`
		} `yaml:"openai"`
	} `yaml:"translation"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("LANGRELAY_MM_TOKEN"); v != "" {
		c.Mattermost.Token = v
	}
	if v := os.Getenv("DEEPL_TOKEN"); v != "" {
		c.Translation.DeepL.Token = v
	}
	if v := os.Getenv("OPENAI_TOKEN"); v != "" {
		c.Translation.OpenAI.Token = v
	}
}

func (c *Config) applyDefaults() {
	if c.Storage.Backend == "" {
		c.Storage.Backend = "file"
	}
	if c.Storage.Path == "" {
		if c.Storage.Backend == "sqlite" {
			c.Storage.Path = "langrelay.db"
		} else {
			c.Storage.Path = "data"
		}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
}

func (c *Config) validate() error {
	if c.Mattermost.ServerURL == "" {
		return fmt.Errorf("mattermost.server_url is required")
	}
	if c.Mattermost.Token == "" {
		return fmt.Errorf("mattermost.token is required (config or LANGRELAY_MM_TOKEN)")
	}
	if c.Storage.Backend != "file" && c.Storage.Backend != "sqlite" {
		return fmt.Errorf("storage.backend must be file or sqlite, got %q", c.Storage.Backend)
	}
	if c.Translation.DeepL.Token == "" && c.Translation.OpenAI.Token == "" {
		return fmt.Errorf("no translation provider configured (set translation.deepl.token or translation.openai.token)")
	}
	return nil
}

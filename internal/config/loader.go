package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"nimbus/internal/domain"
)

// marshalIndent and writeFile are used by WriteDefault and Save; tests may replace to force errors.
var (
	marshalIndent = json.MarshalIndent
	writeFile     = os.WriteFile
)

// Default returns the built-in configuration matching the demo deployment:
// local MCP weather server, Groq-hosted reasoning backend, pattern fallback.
func Default() *domain.Config {
	return &domain.Config{
		Server: domain.ServerConfig{
			URL:            "http://localhost:8000/mcp",
			ConnectTimeout: 5000,
			InvokeTimeout:  15000,
		},
		Backend: domain.BackendConfig{
			Endpoint:  "https://api.groq.com/openai/v1/chat/completions",
			Model:     "llama3-8b-8192",
			APIKeyEnv: "GROQ_API_KEY",
			Timeout:   30000,
			MaxTokens: 1000,
		},
		Chat:  domain.ChatConfig{HistoryWindow: 20},
		Infra: domain.InfraConfig{LogFormat: "text", LogLevel: "info"},
		Retry: domain.RetryConfig{
			MaxRetries:     2,
			InitialBackoff: 500,
			MaxBackoff:     10000,
			Multiplier:     2,
		},
	}
}

// WriteDefault writes the default Config to path (e.g. nimbus.json). Paths are not created.
func WriteDefault(path string) error {
	data, err := marshalIndent(Default(), "", "  ")
	if err != nil {
		return err
	}
	return writeFile(path, data, 0644)
}

// Load reads path (e.g. nimbus.json), unmarshals into domain.Config, and fills
// zero-valued fields from defaults so a partial file stays usable. Returns an
// error if the file is missing or invalid JSON.
func Load(path string) (*domain.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	var c domain.Config
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config parse: %w", err)
	}
	applyDefaults(&c)
	if c.Backend.RulesPath != "" {
		c.Backend.RulesPath = filepath.Clean(c.Backend.RulesPath)
	}
	return &c, nil
}

// applyDefaults fills zero-valued fields from the built-in defaults.
func applyDefaults(c *domain.Config) {
	d := Default()
	if c.Server.URL == "" {
		c.Server.URL = d.Server.URL
	}
	if c.Server.ConnectTimeout <= 0 {
		c.Server.ConnectTimeout = d.Server.ConnectTimeout
	}
	if c.Server.InvokeTimeout <= 0 {
		c.Server.InvokeTimeout = d.Server.InvokeTimeout
	}
	if c.Backend.Endpoint == "" {
		c.Backend.Endpoint = d.Backend.Endpoint
	}
	if c.Backend.Model == "" {
		c.Backend.Model = d.Backend.Model
	}
	if c.Backend.APIKeyEnv == "" {
		c.Backend.APIKeyEnv = d.Backend.APIKeyEnv
	}
	if c.Backend.Timeout <= 0 {
		c.Backend.Timeout = d.Backend.Timeout
	}
	if c.Backend.MaxTokens <= 0 {
		c.Backend.MaxTokens = d.Backend.MaxTokens
	}
	if c.Chat.HistoryWindow < 0 {
		c.Chat.HistoryWindow = d.Chat.HistoryWindow
	}
	if c.Infra.LogFormat == "" {
		c.Infra.LogFormat = d.Infra.LogFormat
	}
	if c.Infra.LogLevel == "" {
		c.Infra.LogLevel = d.Infra.LogLevel
	}
}

// Save writes cfg to path as JSON.
func Save(path string, cfg *domain.Config) error {
	if cfg == nil {
		return fmt.Errorf("config save: nil config")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("config save mkdir: %w", err)
	}
	data, err := marshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config save marshal: %w", err)
	}
	if err := writeFile(path, data, 0644); err != nil {
		return fmt.Errorf("config save write: %w", err)
	}
	return nil
}

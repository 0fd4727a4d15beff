package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteDefaultAndLoad_ShouldRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nimbus.json")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.URL != "http://localhost:8000/mcp" {
		t.Errorf("server url = %q", cfg.Server.URL)
	}
	if cfg.Backend.Model != "llama3-8b-8192" {
		t.Errorf("backend model = %q", cfg.Backend.Model)
	}
	if cfg.Backend.APIKeyEnv != "GROQ_API_KEY" {
		t.Errorf("apiKeyEnv = %q", cfg.Backend.APIKeyEnv)
	}
	if cfg.Retry.MaxRetries != 2 {
		t.Errorf("retry maxRetries = %d", cfg.Retry.MaxRetries)
	}
}

func TestLoad_WhenFileMissing_ShouldError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err == nil {
		t.Fatal("want error for missing file")
	}
}

func TestLoad_WhenInvalidJSON_ShouldError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("want parse error")
	}
}

func TestLoad_WhenPartialFile_ShouldFillDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.json")
	partial := `{"backend":{"model":"llama-3.1-8b-instant"},"server":{"url":"http://weather:9000/mcp"}}`
	if err := os.WriteFile(path, []byte(partial), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend.Model != "llama-3.1-8b-instant" {
		t.Errorf("explicit model overridden: %q", cfg.Backend.Model)
	}
	if cfg.Server.URL != "http://weather:9000/mcp" {
		t.Errorf("explicit url overridden: %q", cfg.Server.URL)
	}
	if cfg.Backend.Endpoint == "" || cfg.Backend.Timeout <= 0 {
		t.Errorf("defaults not applied: %+v", cfg.Backend)
	}
	if cfg.Infra.LogLevel != "info" {
		t.Errorf("log level default not applied: %q", cfg.Infra.LogLevel)
	}
}

func TestLoad_ShouldCleanRulesPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	raw := `{"backend":{"rulesPath":"rules/../rules/weather.yaml"}}`
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend.RulesPath != filepath.Clean("rules/weather.yaml") {
		t.Errorf("rulesPath not cleaned: %q", cfg.Backend.RulesPath)
	}
}

func TestSave_WhenNilConfig_ShouldError(t *testing.T) {
	if err := Save(filepath.Join(t.TempDir(), "x.json"), nil); err == nil {
		t.Fatal("want error for nil config")
	}
}

func TestSave_ShouldWriteLoadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "nimbus.json")
	cfg := Default()
	cfg.Chat.HistoryWindow = 5
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Chat.HistoryWindow != 5 {
		t.Errorf("historyWindow = %d", loaded.Chat.HistoryWindow)
	}
}

func TestWriteDefault_WhenMarshalFails_ShouldError(t *testing.T) {
	orig := marshalIndent
	defer func() { marshalIndent = orig }()
	marshalIndent = func(v any, prefix, indent string) ([]byte, error) {
		return nil, errors.New("marshal failed")
	}
	if err := WriteDefault(filepath.Join(t.TempDir(), "x.json")); err == nil {
		t.Fatal("want marshal error")
	}
}

func TestSave_WhenWriteFails_ShouldError(t *testing.T) {
	orig := writeFile
	defer func() { writeFile = orig }()
	writeFile = func(name string, data []byte, perm os.FileMode) error {
		return errors.New("disk full")
	}
	if err := Save(filepath.Join(t.TempDir(), "x.json"), Default()); err == nil {
		t.Fatal("want write error")
	}
}

func TestDefault_ShouldBeValidJSONShape(t *testing.T) {
	data, err := json.Marshal(Default())
	if err != nil {
		t.Fatalf("marshal default: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal default: %v", err)
	}
	for _, key := range []string{"server", "backend", "chat", "infra", "retry"} {
		if _, ok := m[key]; !ok {
			t.Errorf("missing section %q", key)
		}
	}
}

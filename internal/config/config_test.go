package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var envKeys = []string{
	"MANIMCHAT_PROVIDER", "MANIMCHAT_MODEL", "LLM_API_KEY", "LLM_BASE_URL", "LLM_MODEL",
	"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "MANIMCHAT_BACKEND_URL", "MANIMCHAT_SERVER_ADDR",
	"MANIMCHAT_MEDIA_DIR", "MANIMCHAT_MANIM_BIN", "MANIMCHAT_HISTORY_STORE",
	"MANIMCHAT_HISTORY_PATH", "MANIMCHAT_WARN_ON_SAVE_ERROR", "MANIMCHAT_LOG_LEVEL",
}

// clearEnv blanks every variable Load reads so the host environment does
// not leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Provider != "openai" {
		t.Errorf("expected default provider 'openai', got %q", cfg.Provider)
	}
	if cfg.Backend.URL != "http://localhost:8000" {
		t.Errorf("unexpected default backend url %q", cfg.Backend.URL)
	}
	if cfg.Limits.MaxMessageLength != 1000 {
		t.Errorf("expected max_message_length 1000, got %d", cfg.Limits.MaxMessageLength)
	}
	if cfg.Limits.TitleLength != 30 {
		t.Errorf("expected title_length 30, got %d", cfg.Limits.TitleLength)
	}
	if cfg.Server.RenderWorkers != 2 {
		t.Errorf("expected 2 render workers, got %d", cfg.Server.RenderWorkers)
	}
	if cfg.Server.Quality != "l" {
		t.Errorf("expected quality 'l', got %q", cfg.Server.Quality)
	}
	if cfg.History.Store != "sqlite" {
		t.Errorf("expected history store sqlite, got %q", cfg.History.Store)
	}
	if !cfg.History.WarnOnSaveError {
		t.Error("expected warn_on_save_error default true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("/nonexistent/config.yaml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if cfg.Provider != "openai" {
		t.Errorf("expected default provider, got %q", cfg.Provider)
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	clearEnv(t)
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	yaml := `
provider: deepseek
model: deepseek-reasoner
providers:
  deepseek:
    api_key: "sk-test"
backend:
  url: http://render-box:9000
  timeout: 90s
server:
  addr: 127.0.0.1:9000
  quality: m
  render_workers: 4
  allowed_origins:
    - http://localhost:5173
history:
  store: file
  path: /tmp/manimchat-history
  warn_on_save_error: false
limits:
  max_message_length: 500
  title_length: 20
log:
  level: debug
`
	os.WriteFile(path, []byte(yaml), 0644)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Provider != "deepseek" {
		t.Errorf("expected provider 'deepseek', got %q", cfg.Provider)
	}
	if cfg.Backend.URL != "http://render-box:9000" {
		t.Errorf("unexpected backend url %q", cfg.Backend.URL)
	}
	if cfg.Backend.Timeout != 90*time.Second {
		t.Errorf("expected timeout 90s, got %v", cfg.Backend.Timeout)
	}
	if cfg.Server.Quality != "m" || cfg.Server.RenderWorkers != 4 {
		t.Errorf("unexpected server section: %+v", cfg.Server)
	}
	if cfg.Server.ManimBin != "manim" {
		t.Errorf("unset fields keep defaults, got manim_bin %q", cfg.Server.ManimBin)
	}
	if len(cfg.Server.AllowedOrigins) != 1 {
		t.Errorf("expected 1 allowed origin, got %d", len(cfg.Server.AllowedOrigins))
	}
	if cfg.History.Store != "file" || cfg.History.WarnOnSaveError {
		t.Errorf("unexpected history section: %+v", cfg.History)
	}
	if cfg.Limits.MaxMessageLength != 500 || cfg.Limits.TitleLength != 20 {
		t.Errorf("unexpected limits: %+v", cfg.Limits)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level debug, got %q", cfg.Log.Level)
	}

	pc := cfg.ResolvedProvider()
	if pc.APIKey != "sk-test" {
		t.Errorf("expected api_key 'sk-test', got %q", pc.APIKey)
	}
	if pc.BaseURL != "https://api.deepseek.com/v1" {
		t.Errorf("expected known base url, got %q", pc.BaseURL)
	}
	if pc.Model != "deepseek-reasoner" {
		t.Errorf("explicit model should win, got %q", pc.Model)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("provider: [unclosed"), 0644)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid yaml")
	}
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	clearEnv(t)
	tests := []string{
		"history:\n  store: redis\n",
		"limits:\n  max_message_length: 0\n",
		"server:\n  render_workers: -1\n",
	}
	for _, body := range tests {
		path := filepath.Join(t.TempDir(), "config.yaml")
		os.WriteFile(path, []byte(body), 0644)
		if _, err := Load(path); err == nil {
			t.Errorf("expected validation error for %q", body)
		}
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MANIMCHAT_PROVIDER", "anthropic")
	t.Setenv("LLM_API_KEY", "generic-key")
	t.Setenv("LLM_MODEL", "claude-haiku")
	t.Setenv("MANIMCHAT_BACKEND_URL", "http://10.0.0.2:8000")
	t.Setenv("MANIMCHAT_HISTORY_STORE", "file")
	t.Setenv("MANIMCHAT_WARN_ON_SAVE_ERROR", "false")
	t.Setenv("MANIMCHAT_LOG_LEVEL", "warn")

	cfg, err := Load("/nonexistent/config.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Provider != "anthropic" {
		t.Errorf("expected provider anthropic, got %q", cfg.Provider)
	}
	if cfg.GetProviderConfig("anthropic").APIKey != "generic-key" {
		t.Error("LLM_API_KEY should apply to the selected provider")
	}
	if cfg.Model != "claude-haiku" {
		t.Errorf("expected model from LLM_MODEL, got %q", cfg.Model)
	}
	if cfg.Backend.URL != "http://10.0.0.2:8000" {
		t.Errorf("unexpected backend url %q", cfg.Backend.URL)
	}
	if cfg.History.Store != "file" || cfg.History.WarnOnSaveError {
		t.Errorf("unexpected history: %+v", cfg.History)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("expected log level warn, got %q", cfg.Log.Level)
	}
}

func TestEnvOverrides_AnthropicKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")

	cfg, err := Load("/nonexistent/config.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.GetProviderConfig("anthropic").APIKey != "sk-ant" {
		t.Error("ANTHROPIC_API_KEY not applied")
	}
	if cfg.Provider != "openai" {
		t.Error("ANTHROPIC_API_KEY must not change the active provider")
	}
}

func TestEnvOverrides_BadBool(t *testing.T) {
	clearEnv(t)
	t.Setenv("MANIMCHAT_WARN_ON_SAVE_ERROR", "sometimes")
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for unparseable bool")
	}
}

func TestGetProviderConfig_Missing(t *testing.T) {
	cfg := DefaultConfig()
	pc := cfg.GetProviderConfig("nonexistent")
	if pc == nil {
		t.Fatal("expected non-nil empty config")
	}
	if pc.APIKey != "" {
		t.Errorf("expected empty api key, got %q", pc.APIKey)
	}
}

func TestWriteDefault(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := WriteDefault(path, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := WriteDefault(path, false); err == nil {
		t.Error("expected error when file exists without force")
	}
	if err := WriteDefault(path, true); err != nil {
		t.Errorf("force overwrite failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("written config should load: %v", err)
	}
	if cfg.Backend.Timeout != 5*time.Minute {
		t.Errorf("timeout did not round-trip, got %v", cfg.Backend.Timeout)
	}
}

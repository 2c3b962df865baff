// Package config loads and manages manimchat configuration.
// Configuration source priority (highest to lowest):
// 1. Command-line flags (applied by cmd)
// 2. Environment variables (MANIMCHAT_*, LLM_API_KEY, LLM_BASE_URL, LLM_MODEL, ANTHROPIC_API_KEY)
// 3. Config file path specified via --config flag
// 4. ~/.config/manimchat/config.yaml
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed providers_default.yaml
var defaultProvidersYAML []byte

// ProviderDefaults holds the default base URL and model for a provider.
type ProviderDefaults struct {
	BaseURL      string `yaml:"base_url"`
	DefaultModel string `yaml:"default_model"`
}

// LoadProviderDefaults parses the embedded defaults and merges any user
// overrides from ~/.config/manimchat/providers.yaml.
func LoadProviderDefaults() map[string]ProviderDefaults {
	defs := make(map[string]ProviderDefaults)
	_ = yaml.Unmarshal(defaultProvidersYAML, &defs)

	dir, err := Dir()
	if err != nil {
		return defs
	}
	data, err := os.ReadFile(filepath.Join(dir, "providers.yaml"))
	if err != nil {
		return defs
	}
	userDefs := make(map[string]ProviderDefaults)
	if yaml.Unmarshal(data, &userDefs) != nil {
		return defs
	}
	for name, ud := range userDefs {
		d := defs[name]
		if ud.BaseURL != "" {
			d.BaseURL = ud.BaseURL
		}
		if ud.DefaultModel != "" {
			d.DefaultModel = ud.DefaultModel
		}
		defs[name] = d
	}
	return defs
}

// ProviderConfig holds configuration for a single provider.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// BackendConfig tells the chat client where the Generation Backend lives.
type BackendConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// ServerConfig holds settings for `manimchat serve`.
type ServerConfig struct {
	Addr string `yaml:"addr"`

	// SceneDir receives generated scripts; MediaDir receives rendered videos
	// and is served under /media.
	SceneDir string `yaml:"scene_dir"`
	MediaDir string `yaml:"media_dir"`

	// ManimBin is the Manim executable. Quality is the -q flag: l, m, h, p or k.
	ManimBin string `yaml:"manim_bin"`
	Quality  string `yaml:"quality"`

	// RenderWorkers caps concurrent Manim processes.
	RenderWorkers int `yaml:"render_workers"`

	// AllowedOrigins for CORS. Empty = "*".
	AllowedOrigins []string `yaml:"allowed_origins"`

	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// HistoryConfig selects the local store for session history.
type HistoryConfig struct {
	// Store: "sqlite" (default) | "file"
	Store string `yaml:"store"`

	// Path is the SQLite database file or the JSON directory. Empty = default location.
	Path string `yaml:"path"`

	// WarnOnSaveError shows a chat warning when history cannot be written.
	WarnOnSaveError bool `yaml:"warn_on_save_error"`
}

// LimitsConfig bounds user input and derived titles, in characters.
type LimitsConfig struct {
	MaxMessageLength int `yaml:"max_message_length"`
	TitleLength      int `yaml:"title_length"`
}

// LogConfig controls the logrus logger.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
	JSON  bool   `yaml:"json"`
}

// Config is the complete configuration structure for manimchat.
type Config struct {
	// Provider is the active LLM provider used by the server (e.g. "openai", "anthropic", "deepseek").
	Provider string `yaml:"provider"`

	// Model overrides the provider's default model.
	Model string `yaml:"model"`

	// Providers holds per-provider configuration.
	Providers map[string]*ProviderConfig `yaml:"providers"`

	// SystemPrompt replaces the built-in generation prompt when set.
	SystemPrompt string `yaml:"system_prompt"`

	Backend BackendConfig `yaml:"backend"`
	Server  ServerConfig  `yaml:"server"`
	History HistoryConfig `yaml:"history"`
	Limits  LimitsConfig  `yaml:"limits"`
	Log     LogConfig     `yaml:"log"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Provider:  "openai",
		Providers: make(map[string]*ProviderConfig),
		Backend: BackendConfig{
			URL:     "http://localhost:8000",
			Timeout: 5 * time.Minute,
		},
		Server: ServerConfig{
			Addr:          ":8000",
			SceneDir:      "scenes",
			MediaDir:      "media",
			ManimBin:      "manim",
			Quality:       "l",
			RenderWorkers: 2,
			MaxTokens:     4096,
			Temperature:   0.3,
		},
		History: HistoryConfig{
			Store:           "sqlite",
			WarnOnSaveError: true,
		},
		Limits: LimitsConfig{
			MaxMessageLength: 1000,
			TitleLength:      30,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Dir returns ~/.config/manimchat.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "manimchat"), nil
}

// DefaultPath returns the config file used when --config is not given.
func DefaultPath() string {
	dir, err := Dir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// Load reads the config file and merges environment variable overrides.
// A missing file is not an error.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		configPath = DefaultPath()
	}
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("read config file %s: %w", configPath, err)
		}
	}

	if cfg.Providers == nil {
		cfg.Providers = make(map[string]*ProviderConfig)
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values no component can work with.
func (c *Config) Validate() error {
	switch c.History.Store {
	case "sqlite", "file":
	default:
		return fmt.Errorf("history.store must be sqlite or file, got %q", c.History.Store)
	}
	if c.Limits.MaxMessageLength <= 0 {
		return fmt.Errorf("limits.max_message_length must be positive")
	}
	if c.Limits.TitleLength <= 0 {
		return fmt.Errorf("limits.title_length must be positive")
	}
	if c.Server.RenderWorkers <= 0 {
		return fmt.Errorf("server.render_workers must be positive")
	}
	return nil
}

// GetProviderConfig returns the config for the named provider, or an empty config if not found.
func (c *Config) GetProviderConfig(name string) *ProviderConfig {
	if pc, ok := c.Providers[name]; ok {
		return pc
	}
	return &ProviderConfig{}
}

// ResolvedProvider merges the active provider's config with the known
// defaults: explicit model, then provider model, then the default model.
func (c *Config) ResolvedProvider() ProviderConfig {
	pc := *c.GetProviderConfig(c.Provider)
	if pc.BaseURL == "" {
		pc.BaseURL = KnownProviderBaseURLs[c.Provider]
	}
	switch {
	case c.Model != "":
		pc.Model = c.Model
	case pc.Model == "":
		pc.Model = KnownProviderModels[c.Provider]
	}
	return pc
}

var (
	// KnownProviderBaseURLs maps well-known provider names to their base URLs.
	// Populated from providers_default.yaml (embedded) + user overrides.
	KnownProviderBaseURLs map[string]string

	// KnownProviderModels maps well-known provider names to their default models.
	KnownProviderModels map[string]string
)

func init() {
	defs := LoadProviderDefaults()
	KnownProviderBaseURLs = make(map[string]string, len(defs))
	KnownProviderModels = make(map[string]string, len(defs))
	for name, d := range defs {
		if d.BaseURL != "" {
			KnownProviderBaseURLs[name] = d.BaseURL
		}
		if d.DefaultModel != "" {
			KnownProviderModels[name] = d.DefaultModel
		}
	}
}

// WriteDefault writes a starter config to path. An existing file is left
// alone unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return WriteFile(path, data)
}

// WriteFile writes config data to path, readable by the owner only.
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) error {
	// Provider selection first so the generic key lands on the right provider.
	if v := os.Getenv("MANIMCHAT_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("MANIMCHAT_MODEL"); v != "" {
		cfg.Model = v
	}

	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.providerEntry(cfg.Provider).APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.providerEntry(cfg.Provider).BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" && os.Getenv("MANIMCHAT_MODEL") == "" {
		cfg.Model = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.providerEntry("anthropic").APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.providerEntry("openai").APIKey == "" {
		cfg.providerEntry("openai").APIKey = v
	}

	if v := os.Getenv("MANIMCHAT_BACKEND_URL"); v != "" {
		cfg.Backend.URL = v
	}
	if v := os.Getenv("MANIMCHAT_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("MANIMCHAT_MEDIA_DIR"); v != "" {
		cfg.Server.MediaDir = v
	}
	if v := os.Getenv("MANIMCHAT_MANIM_BIN"); v != "" {
		cfg.Server.ManimBin = v
	}
	if v := os.Getenv("MANIMCHAT_HISTORY_STORE"); v != "" {
		cfg.History.Store = v
	}
	if v := os.Getenv("MANIMCHAT_HISTORY_PATH"); v != "" {
		cfg.History.Path = v
	}
	if v := os.Getenv("MANIMCHAT_WARN_ON_SAVE_ERROR"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("MANIMCHAT_WARN_ON_SAVE_ERROR: %w", err)
		}
		cfg.History.WarnOnSaveError = b
	}
	if v := os.Getenv("MANIMCHAT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	return nil
}

func (c *Config) providerEntry(name string) *ProviderConfig {
	if c.Providers[name] == nil {
		c.Providers[name] = &ProviderConfig{}
	}
	return c.Providers[name]
}

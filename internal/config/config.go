package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// configDir is the configuration directory path
	// Can be set via SetConfigDir before loading config
	configDir     string
	configDirInit bool
)

// SetConfigDir sets a custom configuration directory
// Must be called before any config loading functions
func SetConfigDir(dir string) {
	configDir = dir
	configDirInit = true
}

// GetConfigDir returns the configuration directory
// Priority: 1. Manually set via SetConfigDir, 2. ./config in current directory
func GetConfigDir() string {
	if !configDirInit {
		cwd, err := os.Getwd()
		if err == nil {
			configDir = filepath.Join(cwd, "config")
		}
		configDirInit = true
	}
	return configDir
}

// Config application configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Model     ModelConfig     `yaml:"model"`
	Vision    VisionConfig    `yaml:"vision"`
	WebSearch WebSearchConfig `yaml:"web_search"`
	Store     StoreConfig     `yaml:"store"`
	Context   ContextConfig   `yaml:"context"`
	Log       LogConfig       `yaml:"log"`
}

// LogConfig logging configuration
type LogConfig struct {
	Level      string `yaml:"level"` // debug | info | warn | error
	MaxDays    int    `yaml:"max_days"`
	ConsoleOut bool   `yaml:"console_out"`
}

// ServerConfig HTTP server configuration
type ServerConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	UploadDir string `yaml:"upload_dir"`
}

// ModelConfig chat LLM configuration
type ModelConfig struct {
	APIKey         string  `yaml:"api_key"`
	BaseURL        string  `yaml:"base_url"`
	Model          string  `yaml:"model"`
	Temperature    float64 `yaml:"temperature"`
	MaxTokens      int     `yaml:"max_tokens"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

// VisionConfig multimodal model configuration (image analysis)
type VisionConfig struct {
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// WebSearchConfig web search configuration
type WebSearchConfig struct {
	Provider       string `yaml:"provider"`
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	DefaultLimit   int    `yaml:"default_limit"`
	UserAgent      string `yaml:"user_agent"`
}

// StoreConfig key-value store configuration
type StoreConfig struct {
	Backend string `yaml:"backend"` // "sqlite" or "bolt"
	Path    string `yaml:"path"`
}

// ContextConfig conversation context management configuration
type ContextConfig struct {
	MaxHistoryMessages     int `yaml:"max_history_messages"`
	SummaryUpdateThreshold int `yaml:"summary_update_threshold"`
	ContextTokenLimit      int `yaml:"context_token_limit"`
	SummaryTTLHours        int `yaml:"summary_ttl_hours"`
	ProfileTTLDays         int `yaml:"profile_ttl_days"`
	MetadataTTLDays        int `yaml:"metadata_ttl_days"`
	MetadataMaxRecords     int `yaml:"metadata_max_records"`
	CounterCeiling         int `yaml:"counter_ceiling"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Server: ServerConfig{
			Host:      "0.0.0.0",
			Port:      8000,
			UploadDir: "uploads",
		},
		Model: ModelConfig{
			APIKey:         "",
			BaseURL:        "https://dashscope.aliyuncs.com/compatible-mode",
			Model:          "qwen-plus",
			Temperature:    0.7,
			MaxTokens:      4096,
			TimeoutSeconds: 120,
		},
		Vision: VisionConfig{
			APIKey:      "",
			BaseURL:     "https://dashscope.aliyuncs.com/compatible-mode",
			Model:       "qwen3-vl-plus",
			Temperature: 0.1,
			MaxTokens:   2000,
		},
		WebSearch: WebSearchConfig{
			Provider:       "duckduckgo",
			BaseURL:        "https://api.duckduckgo.com",
			APIKey:         "",
			TimeoutSeconds: 15,
			DefaultLimit:   5,
			UserAgent:      "LegalAI/0.1",
		},
		Store: StoreConfig{
			Backend: "sqlite",
			Path:    filepath.Join(homeDir, ".legalai", "store.db"),
		},
		Context: ContextConfig{
			MaxHistoryMessages:     10,
			SummaryUpdateThreshold: 5,
			ContextTokenLimit:      2000,
			SummaryTTLHours:        24,
			ProfileTTLDays:         7,
			MetadataTTLDays:        30,
			MetadataMaxRecords:     100,
			CounterCeiling:         100,
		},
		Log: LogConfig{
			Level:   "info",
			MaxDays: 7,
		},
	}
}

// ConfigDir returns the configuration directory path
func ConfigDir() (string, error) {
	dir := GetConfigDir()
	if dir == "" {
		return "", fmt.Errorf("failed to determine config directory")
	}
	return dir, nil
}

// LogDir returns the log directory path
func LogDir() string {
	dir := GetConfigDir()
	if dir == "" {
		return "logs"
	}
	return filepath.Join(dir, "logs")
}

// ConfigPath returns the configuration file path
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load loads configuration from file and merges with secrets
func Load() (*Config, error) {
	configPath, err := ConfigPath()
	if err != nil {
		return nil, err
	}

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// Config file doesn't exist, create default config
		cfg := DefaultConfig()
		mergeSecrets(cfg)
		if err := Save(cfg); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse config, default values as base
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	mergeSecrets(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// mergeSecrets fills API keys from the .secrets file when not set in config
func mergeSecrets(cfg *Config) {
	secrets, _ := LoadSecrets()
	if secrets == nil {
		return
	}
	if cfg.Model.APIKey == "" {
		cfg.Model.APIKey = secrets.GetModelAPIKey()
	}
	if cfg.Vision.APIKey == "" {
		if key := secrets.GetVisionAPIKey(); key != "" {
			cfg.Vision.APIKey = key
		} else {
			// The vision endpoint usually shares the chat endpoint's credential
			cfg.Vision.APIKey = cfg.Model.APIKey
		}
	}
	if cfg.WebSearch.APIKey == "" {
		cfg.WebSearch.APIKey = secrets.GetWebSearchAPIKey()
	}
}

// Save saves configuration to file
func Save(cfg *Config) error {
	configPath, err := ConfigPath()
	if err != nil {
		return err
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	content := "# LegalAI Configuration File\n\n" + string(data)

	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config error: server.port must be between 1 and 65535")
	}
	if c.Server.UploadDir == "" {
		return fmt.Errorf("config error: server.upload_dir cannot be empty")
	}

	if c.Model.BaseURL == "" {
		return fmt.Errorf("config error: model.base_url cannot be empty")
	}
	if c.Model.Model == "" {
		return fmt.Errorf("config error: model.model cannot be empty")
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		return fmt.Errorf("config error: model.temperature must be between 0 and 2")
	}
	if c.Model.MaxTokens <= 0 {
		return fmt.Errorf("config error: model.max_tokens must be greater than 0")
	}

	if c.Vision.BaseURL == "" {
		return fmt.Errorf("config error: vision.base_url cannot be empty")
	}
	if c.Vision.Model == "" {
		return fmt.Errorf("config error: vision.model cannot be empty")
	}

	backend := strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if backend != "sqlite" && backend != "bolt" {
		return fmt.Errorf("config error: store.backend must be \"sqlite\" or \"bolt\"")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("config error: store.path cannot be empty")
	}

	if c.Context.MaxHistoryMessages <= 0 {
		return fmt.Errorf("config error: context.max_history_messages must be greater than 0")
	}
	if c.Context.SummaryUpdateThreshold <= 0 {
		return fmt.Errorf("config error: context.summary_update_threshold must be greater than 0")
	}
	if c.Context.SummaryTTLHours <= 0 {
		return fmt.Errorf("config error: context.summary_ttl_hours must be greater than 0")
	}
	if c.Context.CounterCeiling < c.Context.SummaryUpdateThreshold {
		return fmt.Errorf("config error: context.counter_ceiling must be at least summary_update_threshold")
	}

	level := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config error: log.level must be debug, info, warn or error")
	}

	provider := strings.ToLower(strings.TrimSpace(c.WebSearch.Provider))
	if provider == "searxng" && strings.TrimSpace(c.WebSearch.BaseURL) == "" {
		return fmt.Errorf("config error: web_search.base_url cannot be empty for searxng provider")
	}
	if c.WebSearch.TimeoutSeconds <= 0 {
		return fmt.Errorf("config error: web_search.timeout_seconds must be greater than 0")
	}
	if c.WebSearch.DefaultLimit <= 0 {
		return fmt.Errorf("config error: web_search.default_limit must be greater than 0")
	}

	return nil
}

// IsAPIKeyConfigured checks if the chat model API key is configured
func (c *Config) IsAPIKeyConfigured() bool {
	return c.Model.APIKey != ""
}

// String returns string representation of config (hides sensitive info)
func (c *Config) String() string {
	return fmt.Sprintf(`LegalAI Configuration:
  Server:
    Listen: %s:%d
    Upload Dir: %s
  Model:
    API Key: %s
    Base URL: %s
    Model: %s
    Temperature: %.1f
    Max Tokens: %d
  Vision:
    API Key: %s
    Base URL: %s
    Model: %s
  Web Search:
    Provider: %s
    Base URL: %s
    API Key: %s
  Store:
    Backend: %s
    Path: %s
  Context:
    Max History Messages: %d
    Summary Update Threshold: %d
    Context Token Limit: %d
    Summary TTL: %dh
    Profile TTL: %dd
    Metadata TTL: %dd`,
		c.Server.Host, c.Server.Port,
		c.Server.UploadDir,
		redactAPIKey(c.Model.APIKey),
		c.Model.BaseURL,
		c.Model.Model,
		c.Model.Temperature,
		c.Model.MaxTokens,
		redactAPIKey(c.Vision.APIKey),
		c.Vision.BaseURL,
		c.Vision.Model,
		c.WebSearch.Provider,
		c.WebSearch.BaseURL,
		redactAPIKey(c.WebSearch.APIKey),
		c.Store.Backend,
		c.Store.Path,
		c.Context.MaxHistoryMessages,
		c.Context.SummaryUpdateThreshold,
		c.Context.ContextTokenLimit,
		c.Context.SummaryTTLHours,
		c.Context.ProfileTTLDays,
		c.Context.MetadataTTLDays,
	)
}

func redactAPIKey(value string) string {
	if value == "" {
		return "(not configured)"
	}
	if len(value) > 8 {
		return value[:8] + "..."
	}
	return "***"
}

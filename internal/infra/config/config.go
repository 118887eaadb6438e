package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"tutorgate/internal/domain"
)

// GatewayConfig holds the HTTP gateway settings.
type GatewayConfig struct {
	Addr      string          `yaml:"addr"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// AuthConfig holds client authentication settings.
type AuthConfig struct {
	Enabled bool         `yaml:"enabled"`
	Tokens  []TokenEntry `yaml:"tokens"`
}

// TokenEntry is one named client token.
type TokenEntry struct {
	Name  string `yaml:"name"`
	Token string `yaml:"token"`
}

// RateLimitConfig holds per-client rate limiting settings.
type RateLimitConfig struct {
	Enabled        bool `yaml:"enabled"`
	RequestsPerMin int  `yaml:"requests_per_min"`
	BurstSize      int  `yaml:"burst_size"`
}

// ProviderConfig holds settings for one model backend.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"` // openai, anthropic, ollama, openrouter, bedrock
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"` // default model when a request names none
	Region      string        `yaml:"region,omitempty"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	Breaker     BreakerConfig `yaml:"breaker"`
}

// BreakerConfig holds circuit breaker settings for a provider.
type BreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// LLMConfig holds model backend settings.
type LLMConfig struct {
	DefaultProvider string           `yaml:"default_provider"`
	CallTimeout     time.Duration    `yaml:"call_timeout"` // uniform timeout on judge and target calls
	Providers       []ProviderConfig `yaml:"providers"`
}

// LLMSafetyConfig holds the semantic safety layer settings.
type LLMSafetyConfig struct {
	Enabled        bool   `yaml:"enabled"`
	JudgeProvider  string `yaml:"judge_provider"`
	JudgeModel     string `yaml:"judge_model"`
	PromptTemplate string `yaml:"prompt_template,omitempty"`
}

// SafetyConfig holds the platform-default safety policy. It is converted to
// an immutable domain.SafetyConfig once at startup.
type SafetyConfig struct {
	Level                string          `yaml:"level"`
	BlockedTopics        []string        `yaml:"blocked_topics"`
	MaxInputLength       int             `yaml:"max_input_length"`
	MaxOutputTokens      int             `yaml:"max_output_tokens"`
	AllowImageInput      bool            `yaml:"allow_image_input"`
	AllowFileUpload      bool            `yaml:"allow_file_upload"`
	AllowedFileMIMETypes []string        `yaml:"allowed_file_mime_types"`
	MaxFileSizeBytes     int64           `yaml:"max_file_size_bytes"`
	SystemPromptPrefix   string          `yaml:"system_prompt_prefix"`
	LLMSafety            LLMSafetyConfig `yaml:"llm_safety"`
}

// AuditConfig holds the safety audit store settings.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
	Output string `yaml:"output"` // "stdout", "stderr", or a file path
}

// TracerConfig holds OpenTelemetry settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // "stdout" or "noop"
}

// Config is the top-level application configuration.
type Config struct {
	Gateway GatewayConfig `yaml:"gateway"`
	LLM     LLMConfig     `yaml:"llm"`
	Safety  SafetyConfig  `yaml:"safety"`
	Audit   AuditConfig   `yaml:"audit"`
	Logger  LoggerConfig  `yaml:"logger"`
	Tracer  TracerConfig  `yaml:"tracer"`
}

// Defaults returns the built-in configuration. The safety section carries
// the platform-mandated policy floor: merged request configs can tighten
// these values but never relax them.
func Defaults() *Config {
	topics := make([]string, 0, len(domain.AllTopics()))
	for _, t := range domain.AllTopics() {
		topics = append(topics, string(t))
	}

	return &Config{
		Gateway: GatewayConfig{
			Addr: "127.0.0.1:8080",
			RateLimit: RateLimitConfig{
				Enabled:        true,
				RequestsPerMin: 60,
				BurstSize:      10,
			},
		},
		LLM: LLMConfig{
			DefaultProvider: "openai",
			CallTimeout:     30 * time.Second,
		},
		Safety: SafetyConfig{
			Level:           string(domain.LevelStrict),
			BlockedTopics:   topics,
			MaxInputLength:  2000,
			MaxOutputTokens: 1000,
			AllowImageInput: true,
			AllowFileUpload: true,
			AllowedFileMIMETypes: []string{
				"application/pdf",
				"text/plain",
				"text/markdown",
				"text/csv",
			},
			MaxFileSizeBytes:   5 * 1024 * 1024,
			SystemPromptPrefix: "You are a helpful tutor for school students. Keep every answer age-appropriate, encouraging, and on topic.",
			LLMSafety: LLMSafetyConfig{
				Enabled:       true,
				JudgeProvider: "openai",
				JudgeModel:    "gpt-4o-mini",
			},
		},
		Audit: AuditConfig{
			Enabled: true,
			DBPath:  "./data/safety_audit.db",
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads configuration from path, layering YAML over Defaults and
// applying environment overrides. A missing file is not an error: defaults
// plus environment apply.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	passphrase := os.Getenv("TUTORGATE_CONFIG_KEY")
	if passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides maps TUTORGATE_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TUTORGATE_GATEWAY_ADDR"); v != "" {
		cfg.Gateway.Addr = v
	}
	if v := os.Getenv("TUTORGATE_LLM_DEFAULT_PROVIDER"); v != "" {
		cfg.LLM.DefaultProvider = v
	}
	if v := os.Getenv("TUTORGATE_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("TUTORGATE_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("TUTORGATE_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("TUTORGATE_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("TUTORGATE_AUDIT_DB_PATH"); v != "" {
		cfg.Audit.DBPath = v
	}
	if v := os.Getenv("TUTORGATE_SAFETY_LLM_ENABLED"); v != "" {
		cfg.Safety.LLMSafety.Enabled = v == "true"
	}
	if v := os.Getenv("TUTORGATE_LLM_CALL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.LLM.CallTimeout = d
		}
	}
	if v := os.Getenv("TUTORGATE_RATE_LIMIT_RPM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Gateway.RateLimit.RequestsPerMin = n
		}
	}

	// Per-provider API keys: TUTORGATE_APIKEY_<NAME>.
	for i := range cfg.LLM.Providers {
		envName := "TUTORGATE_APIKEY_" + strings.ToUpper(cfg.LLM.Providers[i].Name)
		if v := os.Getenv(envName); v != "" {
			cfg.LLM.Providers[i].APIKey = v
		}
	}
}

// PlatformSafetyConfig converts the config's safety section into the
// immutable platform-default domain.SafetyConfig. Unknown topic names were
// already rejected by Validate.
func (c *Config) PlatformSafetyConfig() domain.SafetyConfig {
	topics := make([]domain.Topic, 0, len(c.Safety.BlockedTopics))
	for _, t := range c.Safety.BlockedTopics {
		topics = append(topics, domain.Topic(t))
	}

	return domain.SafetyConfig{
		Level:                domain.Level(c.Safety.Level),
		BlockedTopics:        topics,
		MaxInputLength:       c.Safety.MaxInputLength,
		MaxOutputTokens:      c.Safety.MaxOutputTokens,
		AllowImageInput:      c.Safety.AllowImageInput,
		AllowFileUpload:      c.Safety.AllowFileUpload,
		AllowedFileMIMETypes: append([]string(nil), c.Safety.AllowedFileMIMETypes...),
		MaxFileSizeBytes:     c.Safety.MaxFileSizeBytes,
		SystemPromptPrefix:   c.Safety.SystemPromptPrefix,
		LLMSafety: domain.LLMSafetyConfig{
			Enabled: c.Safety.LLMSafety.Enabled,
			Judge: domain.ModelSpec{
				Provider: c.Safety.LLMSafety.JudgeProvider,
				Model:    c.Safety.LLMSafety.JudgeModel,
			},
			PromptTemplate: c.Safety.LLMSafety.PromptTemplate,
		},
	}
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}

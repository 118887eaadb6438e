package config

import (
	"fmt"
	"net"
	"strings"

	"tutorgate/internal/domain"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateGateway(cfg, ve)
	validateLLM(cfg, ve)
	validateSafety(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateGateway(cfg *Config, ve *ValidationError) {
	if cfg.Gateway.Addr == "" {
		ve.Add("gateway.addr must not be empty")
	} else if _, _, err := net.SplitHostPort(cfg.Gateway.Addr); err != nil {
		ve.Add("gateway.addr %q is not host:port", cfg.Gateway.Addr)
	}
	if cfg.Gateway.Auth.Enabled && len(cfg.Gateway.Auth.Tokens) == 0 {
		ve.Add("gateway.auth.tokens must not be empty when auth is enabled")
	}
	for i, tok := range cfg.Gateway.Auth.Tokens {
		if tok.Token == "" {
			ve.Add("gateway.auth.tokens[%d] (%s) has an empty token", i, tok.Name)
		}
	}
	if cfg.Gateway.RateLimit.Enabled {
		if cfg.Gateway.RateLimit.RequestsPerMin <= 0 {
			ve.Add("gateway.rate_limit.requests_per_min must be > 0 when rate limiting is enabled")
		}
		if cfg.Gateway.RateLimit.BurstSize <= 0 {
			ve.Add("gateway.rate_limit.burst_size must be > 0 when rate limiting is enabled")
		}
	}
}

var providerTypes = map[string]bool{
	"openai":     true,
	"anthropic":  true,
	"ollama":     true,
	"openrouter": true,
	"bedrock":    true,
}

func validateLLM(cfg *Config, ve *ValidationError) {
	if cfg.LLM.CallTimeout <= 0 {
		ve.Add("llm.call_timeout must be > 0")
	}
	names := map[string]bool{}
	for i, p := range cfg.LLM.Providers {
		if p.Name == "" {
			ve.Add("llm.providers[%d] has an empty name", i)
			continue
		}
		if names[p.Name] {
			ve.Add("llm.providers[%d] duplicates name %q", i, p.Name)
		}
		names[p.Name] = true
		if !providerTypes[p.Type] {
			ve.Add("llm.providers[%d] (%s) has unknown type %q", i, p.Name, p.Type)
		}
	}
	if cfg.LLM.DefaultProvider != "" && len(cfg.LLM.Providers) > 0 && !names[cfg.LLM.DefaultProvider] {
		ve.Add("llm.default_provider %q is not a configured provider", cfg.LLM.DefaultProvider)
	}
}

func validateSafety(cfg *Config, ve *ValidationError) {
	if domain.Level(cfg.Safety.Level).Rank() < 0 {
		ve.Add("safety.level %q is not one of relaxed, moderate, strict", cfg.Safety.Level)
	}
	known := map[string]bool{}
	for _, t := range domain.AllTopics() {
		known[string(t)] = true
	}
	for _, t := range cfg.Safety.BlockedTopics {
		if !known[t] {
			ve.Add("safety.blocked_topics contains unknown topic %q", t)
		}
	}
	if cfg.Safety.MaxInputLength <= 0 {
		ve.Add("safety.max_input_length must be > 0")
	}
	if cfg.Safety.MaxOutputTokens <= 0 {
		ve.Add("safety.max_output_tokens must be > 0")
	}
	if cfg.Safety.MaxFileSizeBytes <= 0 {
		ve.Add("safety.max_file_size_bytes must be > 0")
	}
	if cfg.Safety.LLMSafety.Enabled {
		if cfg.Safety.LLMSafety.JudgeProvider == "" {
			ve.Add("safety.llm_safety.judge_provider must be set when the semantic layer is enabled")
		}
	}
}

func validateLogger(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Logger.Level) {
	case "debug", "info", "warn", "warning", "error", "":
	default:
		ve.Add("logger.level %q is not a known level", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "json", "text", "":
	default:
		ve.Add("logger.format %q must be json or text", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "stdout", "noop", "":
	default:
		ve.Add("tracer.exporter %q must be stdout or noop", cfg.Tracer.Exporter)
	}
}

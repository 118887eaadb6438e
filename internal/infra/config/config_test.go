package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutorgate/internal/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, "127.0.0.1:8080", cfg.Gateway.Addr)
	assert.Equal(t, 30*time.Second, cfg.LLM.CallTimeout)
	assert.Equal(t, string(domain.LevelStrict), cfg.Safety.Level)
	assert.Len(t, cfg.Safety.BlockedTopics, len(domain.AllTopics()),
		"every topic category is blocked by default")
	assert.Equal(t, 2000, cfg.Safety.MaxInputLength)
	assert.Equal(t, 1000, cfg.Safety.MaxOutputTokens)
	assert.True(t, cfg.Safety.LLMSafety.Enabled)
	assert.Equal(t, "openai", cfg.Safety.LLMSafety.JudgeProvider)
	assert.True(t, cfg.Audit.Enabled)

	require.NoError(t, Validate(cfg), "defaults must validate clean")
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults().Gateway.Addr, cfg.Gateway.Addr)
}

func TestLoadYAMLOverlay(t *testing.T) {
	path := writeConfig(t, `
gateway:
  addr: "0.0.0.0:9999"
llm:
  default_provider: anthropic
  providers:
    - name: anthropic
      type: anthropic
      api_key: sk-test
      model: claude-3-5-haiku-latest
safety:
  max_input_length: 500
  llm_safety:
    enabled: true
    judge_provider: anthropic
    judge_model: claude-3-5-haiku-latest
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9999", cfg.Gateway.Addr)
	assert.Equal(t, "anthropic", cfg.LLM.DefaultProvider)
	assert.Equal(t, 500, cfg.Safety.MaxInputLength)
	// Untouched sections keep their defaults.
	assert.Equal(t, 1000, cfg.Safety.MaxOutputTokens)
	assert.Equal(t, "anthropic", cfg.Safety.LLMSafety.JudgeProvider)
}

func TestLoadRejectsInsecurePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gateway:\n  addr: 127.0.0.1:1\n"), 0o666))
	// WriteFile's mode is subject to the process umask; chmod to guarantee
	// the file actually has the insecure permissions under test.
	require.NoError(t, os.Chmod(path, 0o666))

	_, err := Load(path)
	assert.ErrorContains(t, err, "insecure permissions")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TUTORGATE_GATEWAY_ADDR", "127.0.0.1:7777")
	t.Setenv("TUTORGATE_LLM_CALL_TIMEOUT", "10s")
	t.Setenv("TUTORGATE_SAFETY_LLM_ENABLED", "false")
	t.Setenv("TUTORGATE_APIKEY_OPENAI", "sk-from-env")

	cfg := Defaults()
	cfg.LLM.Providers = []ProviderConfig{{Name: "openai", Type: "openai"}}
	ApplyEnvOverrides(cfg)

	assert.Equal(t, "127.0.0.1:7777", cfg.Gateway.Addr)
	assert.Equal(t, 10*time.Second, cfg.LLM.CallTimeout)
	assert.False(t, cfg.Safety.LLMSafety.Enabled)
	assert.Equal(t, "sk-from-env", cfg.LLM.Providers[0].APIKey)
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.Addr = "not-an-addr"
	cfg.Safety.Level = "extreme"
	cfg.Safety.BlockedTopics = append(cfg.Safety.BlockedTopics, "astrology")
	cfg.Safety.MaxInputLength = 0
	cfg.LLM.Providers = []ProviderConfig{
		{Name: "p1", Type: "openai"},
		{Name: "p1", Type: "mystery"},
	}

	err := Validate(cfg)
	require.Error(t, err)

	ve, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.GreaterOrEqual(t, len(ve.Errors), 5)
	assert.Contains(t, err.Error(), "not-an-addr")
	assert.Contains(t, err.Error(), "astrology")
	assert.Contains(t, err.Error(), "duplicates name")
}

func TestValidateSemanticNeedsJudge(t *testing.T) {
	cfg := Defaults()
	cfg.Safety.LLMSafety.Enabled = true
	cfg.Safety.LLMSafety.JudgeProvider = ""

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "judge_provider")

	cfg.Safety.LLMSafety.Enabled = false
	assert.NoError(t, Validate(cfg))
}

func TestPlatformSafetyConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Safety.LLMSafety.JudgeProvider = "openai"
	cfg.Safety.LLMSafety.JudgeModel = "gpt-4o-mini"

	sc := cfg.PlatformSafetyConfig()
	assert.Equal(t, domain.LevelStrict, sc.Level)
	assert.Equal(t, domain.AllTopics(), sc.BlockedTopics)
	assert.Equal(t, domain.ModelSpec{Provider: "openai", Model: "gpt-4o-mini"}, sc.LLMSafety.Judge)

	// The returned config is detached from the yaml struct.
	sc.BlockedTopics[0] = "mutated"
	assert.NotEqual(t, "mutated", cfg.Safety.BlockedTopics[0])
}

package safety

import (
	"strings"

	"tutorgate/internal/domain"
)

// Policy holds the platform-default safety configuration and derives
// per-request configs from it. Merge is the single place where caller
// overrides meet platform minimums: every rule tightens, none relaxes, so
// no call site can accidentally weaken the platform policy.
type Policy struct {
	def domain.SafetyConfig
}

// NewPolicy wraps the platform default. The default is copied and treated
// as read-only for the process lifetime.
func NewPolicy(def domain.SafetyConfig) *Policy {
	return &Policy{def: copyConfig(def)}
}

// Default returns a copy of the platform-default config.
func (p *Policy) Default() domain.SafetyConfig {
	return copyConfig(p.def)
}

// Merge folds caller-supplied overrides into the platform default. It never
// fails; absent overrides return the default unchanged. Field rules:
// level max, topics union, numeric limits min, permission flags AND, MIME
// allow-list intersection, system-prompt prefix append.
func (p *Policy) Merge(o *domain.SafetyOverrides) domain.SafetyConfig {
	cfg := copyConfig(p.def)
	if o == nil {
		return cfg
	}

	// A weaker requested level loses to the default.
	if o.Level != nil && o.Level.Rank() > cfg.Level.Rank() {
		cfg.Level = *o.Level
	}

	// Callers may add topics, never remove platform-mandated ones.
	for _, t := range o.BlockedTopics {
		if !cfg.TopicBlocked(t) {
			cfg.BlockedTopics = append(cfg.BlockedTopics, t)
		}
	}

	// Limits only shrink.
	if o.MaxInputLength != nil && *o.MaxInputLength < cfg.MaxInputLength {
		cfg.MaxInputLength = *o.MaxInputLength
	}
	if o.MaxOutputTokens != nil && *o.MaxOutputTokens < cfg.MaxOutputTokens {
		cfg.MaxOutputTokens = *o.MaxOutputTokens
	}
	if o.MaxFileSizeBytes != nil && *o.MaxFileSizeBytes < cfg.MaxFileSizeBytes {
		cfg.MaxFileSizeBytes = *o.MaxFileSizeBytes
	}

	// Permission flags can only be switched off.
	if o.AllowImageInput != nil {
		cfg.AllowImageInput = cfg.AllowImageInput && *o.AllowImageInput
	}
	if o.AllowFileUpload != nil {
		cfg.AllowFileUpload = cfg.AllowFileUpload && *o.AllowFileUpload
	}

	// The MIME allow-list only narrows.
	if o.AllowedFileMIMETypes != nil {
		cfg.AllowedFileMIMETypes = intersect(cfg.AllowedFileMIMETypes, o.AllowedFileMIMETypes)
	}

	// Caller text is appended to the platform prefix, never replaces it.
	if o.SystemPromptPrefix != nil && strings.TrimSpace(*o.SystemPromptPrefix) != "" {
		if cfg.SystemPromptPrefix == "" {
			cfg.SystemPromptPrefix = *o.SystemPromptPrefix
		} else {
			cfg.SystemPromptPrefix = cfg.SystemPromptPrefix + "\n\n" + *o.SystemPromptPrefix
		}
	}

	if o.LLMSafety != nil {
		// Callers may disable the semantic layer, never enable a disabled one.
		if o.LLMSafety.Enabled != nil {
			cfg.LLMSafety.Enabled = cfg.LLMSafety.Enabled && *o.LLMSafety.Enabled
		}
		if o.LLMSafety.Judge != nil {
			cfg.LLMSafety.Judge = *o.LLMSafety.Judge
		}
		if o.LLMSafety.PromptTemplate != nil {
			cfg.LLMSafety.PromptTemplate = *o.LLMSafety.PromptTemplate
		}
	}

	return cfg
}

func copyConfig(cfg domain.SafetyConfig) domain.SafetyConfig {
	cfg.BlockedTopics = append([]domain.Topic(nil), cfg.BlockedTopics...)
	cfg.AllowedFileMIMETypes = append([]string(nil), cfg.AllowedFileMIMETypes...)
	return cfg
}

func intersect(a, b []string) []string {
	out := make([]string, 0, len(a))
	for _, v := range a {
		for _, w := range b {
			if v == w {
				out = append(out, v)
				break
			}
		}
	}
	return out
}

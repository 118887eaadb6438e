package domain

// Topic is a content category the platform can block.
type Topic string

// Topic categories covered by the pattern library and the semantic judge.
const (
	TopicViolence      Topic = "violence"
	TopicSelfHarm      Topic = "self_harm"
	TopicSexualContent Topic = "sexual_content"
	TopicDrugs         Topic = "drugs"
	TopicWeapons       Topic = "weapons"
	TopicHateSpeech    Topic = "hate_speech"
	TopicProfanity     Topic = "profanity"
	TopicGambling      Topic = "gambling"
	TopicPersonalInfo  Topic = "personal_info"
)

// AllTopics lists every known topic category, in stable order.
func AllTopics() []Topic {
	return []Topic{
		TopicViolence,
		TopicSelfHarm,
		TopicSexualContent,
		TopicDrugs,
		TopicWeapons,
		TopicHateSpeech,
		TopicProfanity,
		TopicGambling,
		TopicPersonalInfo,
	}
}

// Level is the overall strictness of the safety policy.
type Level string

// Strictness levels, weakest to strongest.
const (
	LevelRelaxed  Level = "relaxed"
	LevelModerate Level = "moderate"
	LevelStrict   Level = "strict"
)

var levelRank = map[Level]int{
	LevelRelaxed:  0,
	LevelModerate: 1,
	LevelStrict:   2,
}

// Rank returns the ordering position of a level. Unknown levels rank below
// every known level so they can never weaken a platform default.
func (l Level) Rank() int {
	if r, ok := levelRank[l]; ok {
		return r
	}
	return -1
}

// Layer identifies one safety check stage.
type Layer string

// Safety layers, in execution order.
const (
	LayerKeyword  Layer = "keyword"
	LayerSemantic Layer = "semantic"
)

// LLMSafetyConfig configures the semantic (judge-model) layer.
type LLMSafetyConfig struct {
	Enabled        bool
	Judge          ModelSpec
	PromptTemplate string // empty = built-in template
}

// SafetyConfig is the effective policy for one request. The platform default
// is built once at startup and treated as a constant; per-request instances
// are derived from it by Policy.Merge and never mutated afterwards.
type SafetyConfig struct {
	Level                Level
	BlockedTopics        []Topic
	MaxInputLength       int
	MaxOutputTokens      int
	AllowImageInput      bool
	AllowFileUpload      bool
	AllowedFileMIMETypes []string
	MaxFileSizeBytes     int64
	SystemPromptPrefix   string
	LLMSafety            LLMSafetyConfig
}

// TopicBlocked reports whether t is in the config's blocked set.
func (c SafetyConfig) TopicBlocked(t Topic) bool {
	for _, bt := range c.BlockedTopics {
		if bt == t {
			return true
		}
	}
	return false
}

// MIMETypeAllowed reports whether mimeType is in the file upload allow-list.
func (c SafetyConfig) MIMETypeAllowed(mimeType string) bool {
	for _, mt := range c.AllowedFileMIMETypes {
		if mt == mimeType {
			return true
		}
	}
	return false
}

// LLMSafetyOverrides is the caller-facing partial semantic sub-config.
type LLMSafetyOverrides struct {
	Enabled        *bool      `json:"enabled,omitempty"`
	Judge          *ModelSpec `json:"judge,omitempty"`
	PromptTemplate *string    `json:"prompt_template,omitempty"`
}

// SafetyOverrides is a caller-supplied partial policy. Every field is
// optional; Policy.Merge folds it into the platform default and only ever
// tightens. Nil means "no override requested".
type SafetyOverrides struct {
	Level                *Level              `json:"level,omitempty"`
	BlockedTopics        []Topic             `json:"blocked_topics,omitempty"`
	MaxInputLength       *int                `json:"max_input_length,omitempty"`
	MaxOutputTokens      *int                `json:"max_output_tokens,omitempty"`
	AllowImageInput      *bool               `json:"allow_image_input,omitempty"`
	AllowFileUpload      *bool               `json:"allow_file_upload,omitempty"`
	AllowedFileMIMETypes []string            `json:"allowed_file_mime_types,omitempty"`
	MaxFileSizeBytes     *int64              `json:"max_file_size_bytes,omitempty"`
	SystemPromptPrefix   *string             `json:"system_prompt_prefix,omitempty"`
	LLMSafety            *LLMSafetyOverrides `json:"llm_safety,omitempty"`
}

// SafetyCheckResult is the outcome of one safety layer.
type SafetyCheckResult struct {
	Safe          bool
	FlaggedTopics []Topic
	Reason        string
	Layer         Layer
}

// SafeResult is the canonical passing result for a layer.
func SafeResult(layer Layer) SafetyCheckResult {
	return SafetyCheckResult{Safe: true, Layer: layer}
}

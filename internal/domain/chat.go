package domain

// ModelSpec identifies a backend and the concrete model variant to call.
type ModelSpec struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Usage tracks token consumption for one model call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatRequest is one validated chat turn entering the orchestrator.
type ChatRequest struct {
	ConversationID string
	Messages       []Message
	Model          ModelSpec
	Temperature    *float64
	Overrides      *SafetyOverrides
}

// SafetyMetadata records what the safety pipeline did for one request.
// LayersRun lists every layer that actually executed, in execution order.
type SafetyMetadata struct {
	InputPassed   bool    `json:"input_passed"`
	OutputPassed  bool    `json:"output_passed"`
	FlaggedTopics []Topic `json:"flagged_topics,omitempty"`
	LayersRun     []Layer `json:"layers_run"`
	FlaggedBy     Layer   `json:"flagged_by,omitempty"`
}

// ChatResponse is the completed result of one chat turn.
type ChatResponse struct {
	ConversationID string         `json:"conversation_id"`
	Model          ModelSpec      `json:"model"`
	Message        Message        `json:"message"`
	Usage          *Usage         `json:"usage,omitempty"`
	Safety         SafetyMetadata `json:"safety"`
}

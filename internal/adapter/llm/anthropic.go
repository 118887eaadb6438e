package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"tutorgate/internal/domain"
	"tutorgate/internal/infra/config"
	"tutorgate/internal/infra/tracer"
)

const defaultAnthropicVersion = "2023-06-01"

// anthropicDefaultMaxTokens applies when the call carries no output cap;
// the Messages API requires max_tokens.
const anthropicDefaultMaxTokens = 1024

// AnthropicProvider implements domain.ChatProvider for the Anthropic
// Messages API.
type AnthropicProvider struct {
	name    string
	model   string
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
	version string
}

// NewAnthropicProvider creates a provider for the Anthropic Messages API.
func NewAnthropicProvider(cfg config.ProviderConfig, logger *slog.Logger) *AnthropicProvider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}

	return &AnthropicProvider{
		name:    cfg.Name,
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		client:  NewHTTPClient(cfg),
		logger:  logger,
		version: defaultAnthropicVersion,
	}
}

// Chat implements domain.ChatProvider.
func (p *AnthropicProvider) Chat(ctx context.Context, call domain.ChatCall) (*domain.ProviderResult, error) {
	ctx, span := tracer.StartSpan(ctx, "llm.chat",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", p.name),
			tracer.StringAttr("llm.model", call.Model),
		),
	)
	defer span.End()

	if call.Model == "" {
		call.Model = p.model
	}

	body, err := json.Marshal(toAnthropicRequest(call))
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	headers := map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": p.version,
	}

	respBody, err := doJSONRequest(ctx, p.client, p.baseURL+"/v1/messages", body, headers)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	var antResp anthropicResponse
	if err := json.Unmarshal(respBody, &antResp); err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	result := fromAnthropicResponse(antResp)
	setUsageAttrs(span, result.Usage)
	tracer.SetOK(span)
	logChatCompleted(p.logger, p.name, call.Model, result.Usage)

	return result, nil
}

// Name implements domain.ChatProvider.
func (p *AnthropicProvider) Name() string { return p.name }

// --- Anthropic API wire types ---

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type   string           `json:"type"` // text, image, document
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicSource struct {
	Type      string `json:"type"` // always "base64"
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicResponse struct {
	ID      string             `json:"id"`
	Model   string             `json:"model"`
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
	Usage   anthropicUsage     `json:"usage"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func toAnthropicRequest(call domain.ChatCall) anthropicRequest {
	msgs := make([]anthropicMessage, 0, len(call.Messages))

	system := call.System
	for _, m := range call.Messages {
		// The Messages API takes the system prompt as a top-level field.
		if m.Role == domain.RoleSystem {
			if t := m.Text(); t != "" {
				if system == "" {
					system = t
				} else {
					system = system + "\n\n" + t
				}
			}
			continue
		}

		blocks := make([]anthropicContent, 0, len(m.Parts))
		for _, part := range m.Parts {
			switch v := part.(type) {
			case domain.TextPart:
				blocks = append(blocks, anthropicContent{Type: "text", Text: v.Text})
			case domain.ImagePart:
				blocks = append(blocks, anthropicContent{
					Type:   "image",
					Source: &anthropicSource{Type: "base64", MediaType: v.MIMEType, Data: v.Data},
				})
			case domain.FilePart:
				blocks = append(blocks, anthropicContent{
					Type:   "document",
					Source: &anthropicSource{Type: "base64", MediaType: v.MIMEType, Data: v.Data},
				})
			}
		}
		msgs = append(msgs, anthropicMessage{Role: m.Role, Content: blocks})
	}

	maxTokens := call.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	return anthropicRequest{
		Model:       call.Model,
		Messages:    msgs,
		System:      system,
		MaxTokens:   maxTokens,
		Temperature: call.Temperature,
	}
}

func fromAnthropicResponse(resp anthropicResponse) *domain.ProviderResult {
	var texts []string
	for _, block := range resp.Content {
		if block.Type == "text" {
			texts = append(texts, block.Text)
		}
	}

	role := resp.Role
	if role == "" {
		role = domain.RoleAssistant
	}

	usage := &domain.Usage{
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
		TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}

	return &domain.ProviderResult{
		Message: domain.NewTextMessage(role, strings.Join(texts, "\n")),
		Usage:   usage,
	}
}

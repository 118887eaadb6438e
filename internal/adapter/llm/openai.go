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

// OpenAIProvider implements domain.ChatProvider for any OpenAI-compatible API.
type OpenAIProvider struct {
	name    string
	model   string
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewOpenAIProvider creates a provider with configured timeouts.
func NewOpenAIProvider(cfg config.ProviderConfig, logger *slog.Logger) *OpenAIProvider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	return &OpenAIProvider{
		name:    cfg.Name,
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		client:  NewHTTPClient(cfg),
		logger:  logger,
	}
}

// Chat implements domain.ChatProvider.
func (p *OpenAIProvider) Chat(ctx context.Context, call domain.ChatCall) (*domain.ProviderResult, error) {
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

	body, err := json.Marshal(toOpenAIRequest(call))
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	headers := map[string]string{}
	if p.apiKey != "" {
		headers["Authorization"] = "Bearer " + p.apiKey
	}

	respBody, err := doJSONRequest(ctx, p.client, p.baseURL+"/chat/completions", body, headers)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	var oaiResp openaiResponse
	if err := json.Unmarshal(respBody, &oaiResp); err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	result := fromOpenAIResponse(oaiResp)
	setUsageAttrs(span, result.Usage)
	tracer.SetOK(span)
	logChatCompleted(p.logger, p.name, call.Model, result.Usage)

	return result, nil
}

// Name implements domain.ChatProvider.
func (p *OpenAIProvider) Name() string { return p.name }

// --- OpenAI API wire types ---

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
}

type openaiMessage struct {
	Role    string              `json:"role"`
	Content []openaiContentPart `json:"content"`
}

type openaiContentPart struct {
	Type     string          `json:"type"` // text, image_url, file
	Text     string          `json:"text,omitempty"`
	ImageURL *openaiImageURL `json:"image_url,omitempty"`
	File     *openaiFile     `json:"file,omitempty"`
}

type openaiImageURL struct {
	URL string `json:"url"`
}

type openaiFile struct {
	FileName string `json:"filename"`
	FileData string `json:"file_data"` // data URL
}

type openaiResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []openaiChoice `json:"choices"`
	Usage   *openaiUsage   `json:"usage"`
}

type openaiChoice struct {
	Index        int               `json:"index"`
	Message      openaiRespMessage `json:"message"`
	FinishReason string            `json:"finish_reason"`
}

// openaiRespMessage carries the plain-string content form the API replies with.
type openaiRespMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func toOpenAIRequest(call domain.ChatCall) openaiRequest {
	msgs := make([]openaiMessage, 0, len(call.Messages)+1)

	if call.System != "" {
		msgs = append(msgs, openaiMessage{
			Role:    domain.RoleSystem,
			Content: []openaiContentPart{{Type: "text", Text: call.System}},
		})
	}

	for _, m := range call.Messages {
		parts := make([]openaiContentPart, 0, len(m.Parts))
		for _, part := range m.Parts {
			switch v := part.(type) {
			case domain.TextPart:
				parts = append(parts, openaiContentPart{Type: "text", Text: v.Text})
			case domain.ImagePart:
				parts = append(parts, openaiContentPart{
					Type:     "image_url",
					ImageURL: &openaiImageURL{URL: dataURL(v.MIMEType, v.Data)},
				})
			case domain.FilePart:
				parts = append(parts, openaiContentPart{
					Type: "file",
					File: &openaiFile{FileName: v.FileName, FileData: dataURL(v.MIMEType, v.Data)},
				})
			}
		}
		msgs = append(msgs, openaiMessage{Role: m.Role, Content: parts})
	}

	req := openaiRequest{
		Model:    call.Model,
		Messages: msgs,
	}
	if call.MaxTokens > 0 {
		req.MaxTokens = call.MaxTokens
	}
	if call.Temperature != nil {
		req.Temperature = call.Temperature
	}
	return req
}

func fromOpenAIResponse(resp openaiResponse) *domain.ProviderResult {
	result := &domain.ProviderResult{
		Message: domain.NewTextMessage(domain.RoleAssistant, ""),
	}

	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		role := choice.Message.Role
		if role == "" {
			role = domain.RoleAssistant
		}
		result.Message = domain.NewTextMessage(role, choice.Message.Content)
	}

	if resp.Usage != nil {
		result.Usage = &domain.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}

	return result
}

// dataURL builds an RFC 2397 data URL from a MIME type and base64 payload.
func dataURL(mimeType, b64 string) string {
	return "data:" + mimeType + ";base64," + b64
}

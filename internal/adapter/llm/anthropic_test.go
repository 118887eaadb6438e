package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"tutorgate/internal/domain"
	"tutorgate/internal/infra/config"
)

func TestAnthropicProviderChat(t *testing.T) {
	var gotReq anthropicRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("unexpected api key header: %s", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Error("missing anthropic-version header")
		}
		json.NewDecoder(r.Body).Decode(&gotReq)

		json.NewEncoder(w).Encode(anthropicResponse{
			ID:   "msg_123",
			Role: "assistant",
			Content: []anthropicContent{
				{Type: "text", Text: "The mitochondria"},
				{Type: "text", Text: "is the powerhouse of the cell."},
			},
			Usage: anthropicUsage{InputTokens: 8, OutputTokens: 12},
		})
	}))
	defer server.Close()

	provider := NewAnthropicProvider(config.ProviderConfig{
		Name:    "anthropic",
		BaseURL: server.URL,
		APIKey:  "test-key",
		Model:   "claude-3-5-haiku-latest",
	}, newTestLogger())

	result, err := provider.Chat(context.Background(), domain.ChatCall{
		Messages: []domain.Message{
			domain.NewTextMessage(domain.RoleSystem, "Stay on topic."),
			domain.NewTextMessage(domain.RoleUser, "What do mitochondria do?"),
		},
		System:    "You are a biology tutor.",
		MaxTokens: 800,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if got := result.Message.Text(); got != "The mitochondria\nis the powerhouse of the cell." {
		t.Errorf("message = %q", got)
	}
	if result.Usage.TotalTokens != 20 {
		t.Errorf("total tokens = %d", result.Usage.TotalTokens)
	}

	// System-role turns fold into the top-level system field.
	if gotReq.System != "You are a biology tutor.\n\nStay on topic." {
		t.Errorf("system = %q", gotReq.System)
	}
	if len(gotReq.Messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(gotReq.Messages))
	}
	if gotReq.MaxTokens != 800 {
		t.Errorf("max_tokens = %d", gotReq.MaxTokens)
	}
}

func TestAnthropicProviderAttachments(t *testing.T) {
	var gotReq anthropicRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(anthropicResponse{
			Role:    "assistant",
			Content: []anthropicContent{{Type: "text", Text: "ok"}},
		})
	}))
	defer server.Close()

	provider := NewAnthropicProvider(config.ProviderConfig{
		Name:    "anthropic",
		BaseURL: server.URL,
		APIKey:  "k",
	}, newTestLogger())

	_, err := provider.Chat(context.Background(), domain.ChatCall{
		Messages: []domain.Message{{
			Role: domain.RoleUser,
			Parts: []domain.ContentPart{
				domain.ImagePart{Data: "aW1n", MIMEType: "image/jpeg"},
				domain.FilePart{Data: "ZG9j", MIMEType: "application/pdf", FileName: "hw.pdf"},
			},
		}},
		Model: "claude-3-5-haiku-latest",
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	blocks := gotReq.Messages[0].Content
	if len(blocks) != 2 {
		t.Fatalf("blocks = %d, want 2", len(blocks))
	}
	if blocks[0].Type != "image" || blocks[0].Source.MediaType != "image/jpeg" || blocks[0].Source.Type != "base64" {
		t.Errorf("image block = %+v", blocks[0])
	}
	if blocks[1].Type != "document" || blocks[1].Source.Data != "ZG9j" {
		t.Errorf("document block = %+v", blocks[1])
	}
}

func TestAnthropicProviderDefaultMaxTokens(t *testing.T) {
	var gotReq anthropicRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(anthropicResponse{
			Role:    "assistant",
			Content: []anthropicContent{{Type: "text", Text: "ok"}},
		})
	}))
	defer server.Close()

	provider := NewAnthropicProvider(config.ProviderConfig{
		Name:    "anthropic",
		BaseURL: server.URL,
		APIKey:  "k",
		Model:   "m",
	}, newTestLogger())

	_, err := provider.Chat(context.Background(), domain.ChatCall{
		Messages: []domain.Message{domain.NewTextMessage(domain.RoleUser, "hi")},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if gotReq.MaxTokens != anthropicDefaultMaxTokens {
		t.Errorf("max_tokens = %d, want %d", gotReq.MaxTokens, anthropicDefaultMaxTokens)
	}
}

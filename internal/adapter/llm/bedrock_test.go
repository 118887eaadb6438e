package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"tutorgate/internal/domain"
)

type fakeBedrockClient struct {
	input  *bedrockruntime.ConverseInput
	output *bedrockruntime.ConverseOutput
	err    error
}

func (f *fakeBedrockClient) Converse(_ context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return f.output, nil
}

type fakeAPIError struct{ code string }

func (e *fakeAPIError) Error() string                 { return e.code }
func (e *fakeAPIError) ErrorCode() string             { return e.code }
func (e *fakeAPIError) ErrorMessage() string          { return e.code }
func (e *fakeAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultUnknown }

func TestBedrockProviderChat(t *testing.T) {
	client := &fakeBedrockClient{
		output: &bedrockruntime.ConverseOutput{
			Output: &types.ConverseOutputMemberMessage{
				Value: types.Message{
					Role: types.ConversationRoleAssistant,
					Content: []types.ContentBlock{
						&types.ContentBlockMemberText{Value: "Water boils at 100C."},
					},
				},
			},
			Usage: &types.TokenUsage{
				InputTokens:  aws.Int32(7),
				OutputTokens: aws.Int32(6),
			},
		},
	}
	provider := newBedrockProviderWithClient("bedrock", "anthropic.claude-3-haiku", client, newTestLogger())

	temp := 0.4
	result, err := provider.Chat(context.Background(), domain.ChatCall{
		Messages: []domain.Message{
			domain.NewTextMessage(domain.RoleSystem, "Be concise."),
			domain.NewTextMessage(domain.RoleUser, "When does water boil?"),
		},
		System:      "You are a tutor.",
		MaxTokens:   400,
		Temperature: &temp,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if got := result.Message.Text(); got != "Water boils at 100C." {
		t.Errorf("message = %q", got)
	}
	if result.Usage.TotalTokens != 13 {
		t.Errorf("total tokens = %d", result.Usage.TotalTokens)
	}

	if aws.ToString(client.input.ModelId) != "anthropic.claude-3-haiku" {
		t.Errorf("model id = %q", aws.ToString(client.input.ModelId))
	}
	if len(client.input.System) != 2 {
		t.Errorf("system blocks = %d, want 2", len(client.input.System))
	}
	if len(client.input.Messages) != 1 {
		t.Errorf("messages = %d, want 1", len(client.input.Messages))
	}
	if aws.ToInt32(client.input.InferenceConfig.MaxTokens) != 400 {
		t.Errorf("max tokens = %d", aws.ToInt32(client.input.InferenceConfig.MaxTokens))
	}
	if aws.ToFloat32(client.input.InferenceConfig.Temperature) != 0.4 {
		t.Errorf("temperature = %v", client.input.InferenceConfig.Temperature)
	}
}

func TestBedrockProviderAttachments(t *testing.T) {
	client := &fakeBedrockClient{
		output: &bedrockruntime.ConverseOutput{
			Output: &types.ConverseOutputMemberMessage{
				Value: types.Message{Content: []types.ContentBlock{
					&types.ContentBlockMemberText{Value: "ok"},
				}},
			},
		},
	}
	provider := newBedrockProviderWithClient("bedrock", "m", client, newTestLogger())

	_, err := provider.Chat(context.Background(), domain.ChatCall{
		Messages: []domain.Message{{
			Role: domain.RoleUser,
			Parts: []domain.ContentPart{
				domain.ImagePart{Data: "aW1n", MIMEType: "image/jpeg"},
				domain.FilePart{Data: "ZG9j", MIMEType: "application/pdf", FileName: "my notes?.pdf"},
			},
		}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	content := client.input.Messages[0].Content
	if len(content) != 2 {
		t.Fatalf("content blocks = %d, want 2", len(content))
	}
	img, ok := content[0].(*types.ContentBlockMemberImage)
	if !ok || img.Value.Format != types.ImageFormatJpeg {
		t.Errorf("image block = %#v", content[0])
	}
	doc, ok := content[1].(*types.ContentBlockMemberDocument)
	if !ok || doc.Value.Format != types.DocumentFormatPdf {
		t.Fatalf("document block = %#v", content[1])
	}
	if aws.ToString(doc.Value.Name) != "my notes--pdf" {
		t.Errorf("document name = %q", aws.ToString(doc.Value.Name))
	}
}

func TestMapBedrockError(t *testing.T) {
	cases := []struct {
		code string
		want error
	}{
		{"ThrottlingException", domain.ErrRateLimit},
		{"TooManyRequestsException", domain.ErrRateLimit},
		{"AccessDeniedException", domain.ErrAuthInvalid},
		{"ServiceUnavailableException", domain.ErrProviderFailure},
		{"InternalServerException", domain.ErrProviderFailure},
	}

	for _, tc := range cases {
		err := mapBedrockError(&fakeAPIError{code: tc.code})
		if !errors.Is(err, tc.want) {
			t.Errorf("%s: err = %v, want %v", tc.code, err, tc.want)
		}
	}

	if mapBedrockError(nil) != nil {
		t.Error("nil should map to nil")
	}
}

package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"go.opentelemetry.io/otel/trace"

	"tutorgate/internal/domain"
	"tutorgate/internal/infra/config"
	"tutorgate/internal/infra/tracer"
)

// bedrockConverseAPI abstracts the Bedrock runtime methods for testability.
type bedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockProvider implements domain.ChatProvider via the AWS Bedrock Converse API.
type BedrockProvider struct {
	name   string
	model  string
	client bedrockConverseAPI
	logger *slog.Logger
}

// NewBedrockProvider creates a Bedrock provider using the default AWS credential chain.
func NewBedrockProvider(cfg config.ProviderConfig, logger *slog.Logger) (*BedrockProvider, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &BedrockProvider{
		name:   cfg.Name,
		model:  cfg.Model,
		client: bedrockruntime.NewFromConfig(awsCfg),
		logger: logger,
	}, nil
}

// newBedrockProviderWithClient creates a BedrockProvider with an injected client (for testing).
func newBedrockProviderWithClient(name, model string, client bedrockConverseAPI, logger *slog.Logger) *BedrockProvider {
	return &BedrockProvider{
		name:   name,
		model:  model,
		client: client,
		logger: logger,
	}
}

// Chat implements domain.ChatProvider.
func (p *BedrockProvider) Chat(ctx context.Context, call domain.ChatCall) (*domain.ProviderResult, error) {
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

	input := toBedrockConverseInput(call)

	output, err := p.client.Converse(ctx, input)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, mapBedrockError(err)
	}

	result := fromBedrockConverseOutput(output)
	setUsageAttrs(span, result.Usage)
	tracer.SetOK(span)
	logChatCompleted(p.logger, p.name, call.Model, result.Usage)

	return result, nil
}

// Name implements domain.ChatProvider.
func (p *BedrockProvider) Name() string { return p.name }

// --- Bedrock request/response conversion ---

func toBedrockConverseInput(call domain.ChatCall) *bedrockruntime.ConverseInput {
	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(call.Model),
	}

	maxTokens := call.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	input.InferenceConfig = &types.InferenceConfiguration{
		MaxTokens: aws.Int32(int32(maxTokens)),
	}
	if call.Temperature != nil {
		input.InferenceConfig.Temperature = aws.Float32(float32(*call.Temperature))
	}

	if call.System != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: call.System},
		}
	}

	for _, m := range call.Messages {
		// System-role turns fold into the top-level system blocks.
		if m.Role == domain.RoleSystem {
			input.System = append(input.System,
				&types.SystemContentBlockMemberText{Value: m.Text()})
			continue
		}

		msg := toBedrockMessage(m)
		if msg != nil {
			input.Messages = append(input.Messages, *msg)
		}
	}

	return input
}

func toBedrockMessage(m domain.Message) *types.Message {
	msg := &types.Message{}

	switch m.Role {
	case domain.RoleAssistant:
		msg.Role = types.ConversationRoleAssistant
	case domain.RoleUser:
		msg.Role = types.ConversationRoleUser
	default:
		return nil
	}

	for _, part := range m.Parts {
		switch v := part.(type) {
		case domain.TextPart:
			msg.Content = append(msg.Content, &types.ContentBlockMemberText{Value: v.Text})

		case domain.ImagePart:
			raw, err := base64.StdEncoding.DecodeString(v.Data)
			if err != nil {
				continue
			}
			msg.Content = append(msg.Content, &types.ContentBlockMemberImage{
				Value: types.ImageBlock{
					Format: bedrockImageFormat(v.MIMEType),
					Source: &types.ImageSourceMemberBytes{Value: raw},
				},
			})

		case domain.FilePart:
			raw, err := base64.StdEncoding.DecodeString(v.Data)
			if err != nil {
				continue
			}
			msg.Content = append(msg.Content, &types.ContentBlockMemberDocument{
				Value: types.DocumentBlock{
					Format: bedrockDocumentFormat(v.MIMEType),
					Name:   aws.String(bedrockDocumentName(v.FileName)),
					Source: &types.DocumentSourceMemberBytes{Value: raw},
				},
			})
		}
	}

	if len(msg.Content) == 0 {
		return nil
	}
	return msg
}

func bedrockImageFormat(mimeType string) types.ImageFormat {
	switch mimeType {
	case "image/jpeg":
		return types.ImageFormatJpeg
	case "image/gif":
		return types.ImageFormatGif
	case "image/webp":
		return types.ImageFormatWebp
	default:
		return types.ImageFormatPng
	}
}

func bedrockDocumentFormat(mimeType string) types.DocumentFormat {
	switch mimeType {
	case "application/pdf":
		return types.DocumentFormatPdf
	case "text/markdown":
		return types.DocumentFormatMd
	case "text/csv":
		return types.DocumentFormatCsv
	default:
		return types.DocumentFormatTxt
	}
}

// bedrockDocumentName sanitizes a filename for the Converse API, which only
// accepts alphanumerics, whitespace, hyphens, parentheses and brackets.
func bedrockDocumentName(name string) string {
	if name == "" {
		return "attachment"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == ' ', r == '-', r == '(', r == ')', r == '[', r == ']':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}

func fromBedrockConverseOutput(output *bedrockruntime.ConverseOutput) *domain.ProviderResult {
	result := &domain.ProviderResult{}

	if output.Usage != nil {
		result.Usage = &domain.Usage{
			PromptTokens:     int(aws.ToInt32(output.Usage.InputTokens)),
			CompletionTokens: int(aws.ToInt32(output.Usage.OutputTokens)),
			TotalTokens:      int(aws.ToInt32(output.Usage.InputTokens)) + int(aws.ToInt32(output.Usage.OutputTokens)),
		}
	}

	var texts []string
	if outMsg, ok := output.Output.(*types.ConverseOutputMemberMessage); ok {
		for _, block := range outMsg.Value.Content {
			if b, ok := block.(*types.ContentBlockMemberText); ok {
				texts = append(texts, b.Value)
			}
		}
	}

	result.Message = domain.NewTextMessage(domain.RoleAssistant, strings.Join(texts, "\n"))
	return result
}

// --- Error mapping ---

func mapBedrockError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch {
		case code == "ThrottlingException" || code == "TooManyRequestsException":
			return fmt.Errorf("%w: %s", domain.ErrRateLimit, msg)
		case code == "AccessDeniedException" || code == "UnrecognizedClientException":
			return fmt.Errorf("%w: %s", domain.ErrAuthInvalid, msg)
		case code == "ValidationException" && strings.Contains(msg, "too long"):
			return fmt.Errorf("%w: %s", domain.ErrContextOverflow, msg)
		case code == "ModelNotReadyException" || code == "ServiceUnavailableException" ||
			code == "InternalServerException":
			return fmt.Errorf("%w: %s", domain.ErrProviderFailure, msg)
		}
	}

	return domain.WrapOp("bedrock", err)
}

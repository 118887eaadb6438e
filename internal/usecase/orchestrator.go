// Package usecase contains the chat orchestration pipeline that wraps every
// model call with the layered safety checks.
package usecase

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"tutorgate/internal/domain"
	"tutorgate/internal/infra/tracer"
	"tutorgate/internal/safety"
)

// defaultCallTimeout bounds every judge and target-model call. Deliberately
// a fixed deployment-level value, not per-request configurable.
const defaultCallTimeout = 30 * time.Second

// Pipeline stages, in execution order. Used for tracing and logging; the
// two absorbing outcomes are a rejection error or a refusal response.
const (
	stageConfigMerged   = "config_merged"
	stageInputKeyword   = "input_keyword_checked"
	stageInputSemantic  = "input_semantic_checked"
	stageModelInvoked   = "model_invoked"
	stageOutputKeyword  = "output_keyword_checked"
	stageOutputSemantic = "output_semantic_checked"
	stageCompleted      = "completed"
)

// OrchestratorDeps holds injected dependencies for the orchestrator.
type OrchestratorDeps struct {
	Providers   domain.ProviderResolver
	Policy      *safety.Policy
	Keyword     *safety.KeywordFilter
	Classifier  *safety.Classifier
	Logger      *slog.Logger
	Audit       domain.AuditRecorder // optional, nil = no audit
	Usage       *TokenEstimator      // optional, nil = no usage fallback
	CallTimeout time.Duration        // 0 = defaultCallTimeout
}

// Orchestrator sequences one chat turn: configuration merge, input safety,
// target-model invocation, output safety, then response or refusal
// synthesis. Cheap deterministic checks always run before network-bound
// ones, and before the target-model call. One instance serves all requests;
// all per-request state is local.
type Orchestrator struct {
	deps OrchestratorDeps
}

// NewOrchestrator creates an orchestrator with the given dependencies.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	if deps.CallTimeout <= 0 {
		deps.CallTimeout = defaultCallTimeout
	}
	return &Orchestrator{deps: deps}
}

// HandleChat runs the full pipeline for one validated request.
// It returns a response for completed and refused turns, and an error
// carrying a domain error code for rejected turns.
func (o *Orchestrator) HandleChat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	const op = "Orchestrator.HandleChat"

	ctx, span := tracer.StartSpan(ctx, "chat.pipeline",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", req.Model.Provider),
			tracer.StringAttr("llm.model", req.Model.Model),
		),
	)
	defer span.End()

	if len(req.Messages) == 0 {
		return nil, domain.NewGatewayError(op, domain.ErrInvalidRequest, "messages must not be empty")
	}

	convID := req.ConversationID
	if convID == "" {
		convID = newConversationID()
	}

	cfg := o.deps.Policy.Merge(req.Overrides)
	o.logStage(convID, stageConfigMerged)

	var layersRun []domain.Layer

	// Input, keyword layer.
	layersRun = appendLayer(layersRun, domain.LayerKeyword)
	if result := o.deps.Keyword.CheckInput(req.Messages, cfg); !result.Safe {
		o.recordAudit(ctx, domain.AuditEvent{
			Type:           domain.AuditInputBlocked,
			ConversationID: convID,
			Layer:          domain.LayerKeyword,
			Topics:         result.FlaggedTopics,
			Reason:         result.Reason,
		})
		tracer.RecordError(span, domain.ErrInputSafety)
		return nil, domain.NewSafetyError(op, domain.ErrInputSafety, result.Reason, result.FlaggedTopics)
	}
	o.logStage(convID, stageInputKeyword)

	// Input, semantic layer.
	if cfg.LLMSafety.Enabled {
		layersRun = appendLayer(layersRun, domain.LayerSemantic)

		result, err := o.classifyWithTimeout(ctx, domain.UserText(req.Messages), cfg)
		if err != nil {
			// The judge could not be consulted. Content never passes
			// unevaluated, so this rejects rather than continues.
			o.recordAudit(ctx, domain.AuditEvent{
				Type:           domain.AuditCheckError,
				ConversationID: convID,
				Layer:          domain.LayerSemantic,
				Reason:         err.Error(),
			})
			tracer.RecordError(span, err)
			return nil, domain.NewGatewayError(op, domain.ErrSafetyCheck, "input safety could not be verified")
		}
		if !result.Safe {
			o.recordAudit(ctx, domain.AuditEvent{
				Type:           domain.AuditInputBlocked,
				ConversationID: convID,
				Layer:          domain.LayerSemantic,
				Topics:         result.FlaggedTopics,
				Reason:         result.Reason,
			})
			tracer.RecordError(span, domain.ErrInputSafety)
			return nil, domain.NewSafetyError(op, domain.ErrInputSafety, result.Reason, result.FlaggedTopics)
		}
		o.logStage(convID, stageInputSemantic)
	}

	// Target model invocation.
	provider, err := o.deps.Providers.Get(req.Model.Provider)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, domain.NewGatewayError(op, domain.ErrProviderFailure, err.Error())
	}

	callCtx, cancel := context.WithTimeout(ctx, o.deps.CallTimeout)
	result, err := provider.Chat(callCtx, domain.ChatCall{
		Messages:    req.Messages,
		Model:       req.Model.Model,
		System:      cfg.SystemPromptPrefix,
		MaxTokens:   cfg.MaxOutputTokens,
		Temperature: req.Temperature,
	})
	cancel()
	if err != nil {
		tracer.RecordError(span, err)
		return nil, domain.NewGatewayError(op, domain.ErrProviderFailure, err.Error())
	}
	o.logStage(convID, stageModelInvoked)

	usage := result.Usage
	if usage == nil && o.deps.Usage != nil {
		usage = o.deps.Usage.Estimate(req.Messages, result.Message)
	}

	respond := func(msg domain.Message, meta domain.SafetyMetadata) *domain.ChatResponse {
		return &domain.ChatResponse{
			ConversationID: convID,
			Model:          req.Model,
			Message:        msg,
			Usage:          usage,
			Safety:         meta,
		}
	}

	// Output, keyword layer.
	if outResult := o.deps.Keyword.CheckOutput(result.Message, cfg); !outResult.Safe {
		o.recordAudit(ctx, domain.AuditEvent{
			Type:           domain.AuditOutputRefused,
			ConversationID: convID,
			Layer:          domain.LayerKeyword,
			Topics:         outResult.FlaggedTopics,
			Reason:         outResult.Reason,
			Provider:       req.Model.Provider,
			Model:          req.Model.Model,
		})
		tracer.SetOK(span)
		return respond(safety.Refusal(safety.RefusalOutputKeyword), domain.SafetyMetadata{
			InputPassed:   true,
			OutputPassed:  false,
			FlaggedTopics: outResult.FlaggedTopics,
			LayersRun:     layersRun,
			FlaggedBy:     domain.LayerKeyword,
		}), nil
	}
	o.logStage(convID, stageOutputKeyword)

	// Output, semantic layer.
	if cfg.LLMSafety.Enabled {
		outResult, err := o.classifyWithTimeout(ctx, result.Message.Text(), cfg)
		if err != nil {
			// The model already produced output; the safer default here is
			// a generic refusal rather than an error surfaced mid-response.
			o.recordAudit(ctx, domain.AuditEvent{
				Type:           domain.AuditCheckError,
				ConversationID: convID,
				Layer:          domain.LayerSemantic,
				Reason:         err.Error(),
				Provider:       req.Model.Provider,
				Model:          req.Model.Model,
			})
			tracer.SetOK(span)
			return respond(safety.Refusal(safety.RefusalCheckFailed), domain.SafetyMetadata{
				InputPassed:  true,
				OutputPassed: false,
				LayersRun:    layersRun,
				FlaggedBy:    domain.LayerSemantic,
			}), nil
		}
		if !outResult.Safe {
			o.recordAudit(ctx, domain.AuditEvent{
				Type:           domain.AuditOutputRefused,
				ConversationID: convID,
				Layer:          domain.LayerSemantic,
				Topics:         outResult.FlaggedTopics,
				Reason:         outResult.Reason,
				Provider:       req.Model.Provider,
				Model:          req.Model.Model,
			})
			tracer.SetOK(span)
			return respond(safety.Refusal(safety.RefusalOutputSemantic), domain.SafetyMetadata{
				InputPassed:   true,
				OutputPassed:  false,
				FlaggedTopics: outResult.FlaggedTopics,
				LayersRun:     layersRun,
				FlaggedBy:     domain.LayerSemantic,
			}), nil
		}
		o.logStage(convID, stageOutputSemantic)
	}

	o.logStage(convID, stageCompleted)
	tracer.SetOK(span)

	return respond(result.Message, domain.SafetyMetadata{
		InputPassed:  true,
		OutputPassed: true,
		LayersRun:    layersRun,
	}), nil
}

// classifyWithTimeout runs the semantic classifier under the uniform call
// timeout.
func (o *Orchestrator) classifyWithTimeout(ctx context.Context, text string, cfg domain.SafetyConfig) (domain.SafetyCheckResult, error) {
	ctx, cancel := context.WithTimeout(ctx, o.deps.CallTimeout)
	defer cancel()
	return o.deps.Classifier.Classify(ctx, text, cfg)
}

func (o *Orchestrator) logStage(convID, stage string) {
	o.deps.Logger.Debug("pipeline stage", "conversation_id", convID, "stage", stage)
}

// recordAudit writes a safety decision record. Audit failures are logged,
// never propagated: the pipeline outcome stands on its own.
func (o *Orchestrator) recordAudit(ctx context.Context, event domain.AuditEvent) {
	if o.deps.Audit == nil {
		return
	}
	event.Timestamp = time.Now().UTC()
	if err := o.deps.Audit.Record(ctx, event); err != nil {
		o.deps.Logger.Error("audit record failed", "error", err)
	}
}

// appendLayer adds a layer to the run list once.
func appendLayer(layers []domain.Layer, l domain.Layer) []domain.Layer {
	for _, existing := range layers {
		if existing == l {
			return layers
		}
	}
	return append(layers, l)
}

// newConversationID mints a sortable unique conversation identifier.
func newConversationID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

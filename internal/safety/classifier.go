package safety

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/kaptinlin/jsonschema"
	"go.opentelemetry.io/otel/trace"

	"tutorgate/internal/domain"
	"tutorgate/internal/infra/tracer"
)

// defaultJudgeTemplate is the built-in evaluation prompt. {{content}} and
// {{topics}} are substituted at classification time.
const defaultJudgeTemplate = `You are a content safety reviewer for an educational platform used by school students.

Evaluate the following content against these blocked topic categories: {{topics}}.

Respond with ONLY a JSON object, no other text:
{"safe": true or false, "flagged_topics": ["category", ...], "reason": "one short sentence"}

Content to evaluate:
{{content}}`

// judgeMaxTokens bounds the verdict length; the verdict is a small JSON object.
const judgeMaxTokens = 300

// verdictSchemaJSON is the shape a judge verdict must satify after parsing.
const verdictSchemaJSON = `{
	"type": "object",
	"required": ["safe"],
	"properties": {
		"safe": {"type": "boolean"},
		"flagged_topics": {"type": "array", "items": {"type": "string"}},
		"reason": {"type": "string"}
	}
}`

var (
	verdictSchemaOnce sync.Once
	verdictSchema     *jsonschema.Schema
	verdictSchemaErr  error
)

func compiledVerdictSchema() (*jsonschema.Schema, error) {
	verdictSchemaOnce.Do(func() {
		verdictSchema, verdictSchemaErr = jsonschema.NewCompiler().Compile([]byte(verdictSchemaJSON))
	})
	return verdictSchema, verdictSchemaErr
}

// codeFenceRe matches markdown code fences wrapping JSON.
var codeFenceRe = regexp.MustCompile(`(?si)^` + "```" + `(?:json)?\s*(.*?)\s*` + "```" + `$`)

// stripCodeFences removes markdown code fences if the judge wrapped its output.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFenceRe.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return s
}

// Classifier is the semantic safety layer. It asks a judge model for a
// structured verdict on a piece of content. An unparseable verdict is
// treated as unsafe: when the judge cannot be understood, content does not
// pass. A transport failure is returned as an error so the orchestrator can
// apply its own fail-closed policy per pipeline stage.
type Classifier struct {
	providers domain.ProviderResolver
	audit     domain.AuditRecorder // optional, nil = no audit
	logger    *slog.Logger
}

// NewClassifier creates the semantic classifier.
func NewClassifier(providers domain.ProviderResolver, audit domain.AuditRecorder, logger *slog.Logger) *Classifier {
	return &Classifier{providers: providers, audit: audit, logger: logger}
}

// judgeVerdict is the parsed judge response.
type judgeVerdict struct {
	Safe          bool     `json:"safe"`
	FlaggedTopics []string `json:"flagged_topics"`
	Reason        string   `json:"reason"`
}

// Classify evaluates text with the configured judge model. It is skipped
// entirely (safe, no topics) when the semantic sub-config is disabled or
// the text is blank. The returned error is non-nil only when the judge
// could not be consulted at all.
func (c *Classifier) Classify(ctx context.Context, text string, cfg domain.SafetyConfig) (domain.SafetyCheckResult, error) {
	if !cfg.LLMSafety.Enabled || strings.TrimSpace(text) == "" {
		return domain.SafeResult(domain.LayerSemantic), nil
	}

	ctx, span := tracer.StartSpan(ctx, "safety.classify",
		trace.WithAttributes(
			tracer.StringAttr("judge.provider", cfg.LLMSafety.Judge.Provider),
			tracer.StringAttr("judge.model", cfg.LLMSafety.Judge.Model),
		),
	)
	defer span.End()

	provider, err := c.providers.Get(cfg.LLMSafety.Judge.Provider)
	if err != nil {
		tracer.RecordError(span, err)
		return domain.SafetyCheckResult{}, domain.WrapOp("Classifier.Classify", err)
	}

	prompt := buildJudgePrompt(cfg, text)
	result, err := provider.Chat(ctx, domain.ChatCall{
		Messages:  []domain.Message{domain.NewTextMessage(domain.RoleUser, prompt)},
		Model:     cfg.LLMSafety.Judge.Model,
		MaxTokens: judgeMaxTokens,
	})
	if err != nil {
		tracer.RecordError(span, err)
		return domain.SafetyCheckResult{}, domain.WrapOp("Classifier.Classify", err)
	}

	verdict, parseErr := parseVerdict(result.Message.Text())
	if parseErr != nil {
		// Fail closed: an answer we cannot understand never passes content.
		c.observeParseFailure(ctx, cfg, parseErr)
		tracer.RecordError(span, parseErr)
		return domain.SafetyCheckResult{
			Safe:   false,
			Reason: "safety verdict could not be interpreted",
			Layer:  domain.LayerSemantic,
		}, nil
	}

	tracer.SetOK(span)

	if verdict.Safe {
		return domain.SafeResult(domain.LayerSemantic), nil
	}

	return domain.SafetyCheckResult{
		Safe:          false,
		FlaggedTopics: knownTopics(verdict.FlaggedTopics),
		Reason:        verdict.Reason,
		Layer:         domain.LayerSemantic,
	}, nil
}

// buildJudgePrompt substitutes the content and active topic list into the
// evaluation template.
func buildJudgePrompt(cfg domain.SafetyConfig, content string) string {
	tmpl := cfg.LLMSafety.PromptTemplate
	if tmpl == "" {
		tmpl = defaultJudgeTemplate
	}

	names := make([]string, 0, len(cfg.BlockedTopics))
	for _, t := range cfg.BlockedTopics {
		names = append(names, string(t))
	}

	out := strings.ReplaceAll(tmpl, "{{topics}}", strings.Join(names, ", "))
	return strings.ReplaceAll(out, "{{content}}", content)
}

// parseVerdict extracts a structured verdict from raw judge output.
func parseVerdict(raw string) (*judgeVerdict, error) {
	raw = stripCodeFences(raw)
	if raw == "" {
		return nil, fmt.Errorf("judge returned empty output")
	}

	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("judge returned invalid JSON: %w", err)
	}

	schema, err := compiledVerdictSchema()
	if err != nil {
		return nil, fmt.Errorf("verdict schema: %w", err)
	}
	if result := schema.Validate(parsed); !result.IsValid() {
		return nil, fmt.Errorf("judge verdict did not match schema: %s", result.Error())
	}

	var verdict judgeVerdict
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return nil, fmt.Errorf("decode verdict: %w", err)
	}
	return &verdict, nil
}

// knownTopics maps raw topic names from the judge to known topic categories,
// dropping anything unrecognized.
func knownTopics(names []string) []domain.Topic {
	var topics []domain.Topic
	for _, n := range names {
		candidate := domain.Topic(strings.ToLower(strings.TrimSpace(n)))
		for _, t := range domain.AllTopics() {
			if candidate == t {
				topics = append(topics, t)
				break
			}
		}
	}
	return topics
}

// observeParseFailure makes a verdict parse failure visible without
// blocking the pipeline from returning its deterministic unsafe result.
func (c *Classifier) observeParseFailure(ctx context.Context, cfg domain.SafetyConfig, parseErr error) {
	c.logger.Warn("judge verdict unparseable, failing closed",
		"judge_provider", cfg.LLMSafety.Judge.Provider,
		"judge_model", cfg.LLMSafety.Judge.Model,
		"error", parseErr,
	)
	if c.audit == nil {
		return
	}
	event := domain.AuditEvent{
		Type:      domain.AuditVerdictUnparseable,
		Layer:     domain.LayerSemantic,
		Reason:    parseErr.Error(),
		Provider:  cfg.LLMSafety.Judge.Provider,
		Model:     cfg.LLMSafety.Judge.Model,
		Timestamp: time.Now().UTC(),
	}
	if err := c.audit.Record(ctx, event); err != nil {
		c.logger.Error("audit record failed", "error", err)
	}
}

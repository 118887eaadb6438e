package safety

import (
	"encoding/base64"
	"fmt"
	"strings"

	"tutorgate/internal/domain"
)

// KeywordFilter is the deterministic pre-filter layer. It runs before any
// network call: structural validation first, then pattern scanning against
// the active blocked-topic set. Pure computation over request-local data.
type KeywordFilter struct{}

// NewKeywordFilter creates the keyword pre-filter.
func NewKeywordFilter() *KeywordFilter {
	return &KeywordFilter{}
}

// CheckInput validates the structure of every message part against the
// policy, then scans text from user-authored messages for blocked topics.
// The first structural violation short-circuits with no topic list.
func (f *KeywordFilter) CheckInput(messages []domain.Message, cfg domain.SafetyConfig) domain.SafetyCheckResult {
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if violation := checkPart(part, cfg); violation != "" {
				return domain.SafetyCheckResult{
					Safe:   false,
					Reason: violation,
					Layer:  domain.LayerKeyword,
				}
			}
		}
	}

	return scanText(domain.UserText(messages), cfg)
}

// CheckOutput scans the produced assistant message's text for blocked
// topics. Structural limits do not apply here: output size is bounded by
// the max-output-tokens cap on the provider call.
func (f *KeywordFilter) CheckOutput(msg domain.Message, cfg domain.SafetyConfig) domain.SafetyCheckResult {
	return scanText(msg.Text(), cfg)
}

// scanText runs the pattern library over text and builds the layer result.
func scanText(text string, cfg domain.SafetyConfig) domain.SafetyCheckResult {
	flagged := ScanTopics(text, cfg.BlockedTopics)
	if len(flagged) == 0 {
		return domain.SafeResult(domain.LayerKeyword)
	}

	names := make([]string, 0, len(flagged))
	for _, t := range flagged {
		names = append(names, string(t))
	}

	return domain.SafetyCheckResult{
		Safe:          false,
		FlaggedTopics: flagged,
		Reason:        "content flagged for: " + strings.Join(names, ", "),
		Layer:         domain.LayerKeyword,
	}
}

// checkPart enforces the structural policy on a single content part.
// Returns a violation reason, or "" when the part is acceptable.
func checkPart(part domain.ContentPart, cfg domain.SafetyConfig) string {
	switch p := part.(type) {
	case domain.TextPart:
		if len(p.Text) > cfg.MaxInputLength {
			return fmt.Sprintf("message exceeds the maximum input length of %d characters", cfg.MaxInputLength)
		}
	case domain.ImagePart:
		if !cfg.AllowImageInput {
			return "image input is not permitted"
		}
	case domain.FilePart:
		if !cfg.AllowFileUpload {
			return "file uploads are not permitted"
		}
		if !cfg.MIMETypeAllowed(p.MIMEType) {
			return fmt.Sprintf("file type %q is not permitted", p.MIMEType)
		}
		if size := decodedBase64Size(p.Data); size > cfg.MaxFileSizeBytes {
			return fmt.Sprintf("file exceeds the maximum size of %d bytes", cfg.MaxFileSizeBytes)
		}
	}
	return ""
}

// decodedBase64Size computes the decoded byte size of base64 text without
// decoding the payload.
func decodedBase64Size(data string) int64 {
	n := int64(base64.StdEncoding.DecodedLen(len(data)))
	// Account for padding characters.
	for i := len(data) - 1; i >= 0 && data[i] == '='; i-- {
		n--
	}
	return n
}

package usecase

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"tutorgate/internal/domain"
)

// TokenEstimator approximates token usage for backends that report no
// counters. Estimates use the cl100k_base encoding regardless of the actual
// model; close enough for quota accounting, never authoritative.
type TokenEstimator struct {
	enc *tiktoken.Tiktoken
}

// NewTokenEstimator loads the cl100k_base encoding.
func NewTokenEstimator() (*TokenEstimator, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("load token encoding: %w", err)
	}
	return &TokenEstimator{enc: enc}, nil
}

// Estimate counts tokens over the prompt text and the reply text.
func (e *TokenEstimator) Estimate(prompt []domain.Message, reply domain.Message) *domain.Usage {
	promptTokens := 0
	for _, m := range prompt {
		promptTokens += len(e.enc.Encode(m.Text(), nil, nil))
	}
	completionTokens := len(e.enc.Encode(reply.Text(), nil, nil))

	return &domain.Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}
}

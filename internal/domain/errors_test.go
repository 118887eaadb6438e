package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorCodeOf(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorCode
	}{
		{NewGatewayError("op", ErrInvalidRequest, "bad roles"), CodeInvalidRequest},
		{NewSafetyError("op", ErrInputSafety, "flagged", []Topic{TopicViolence}), CodeInputSafetyViolation},
		{NewGatewayError("op", ErrSafetyCheck, "judge down"), CodeSafetyCheckError},
		{NewGatewayError("op", ErrProviderFailure, "timeout"), CodeProviderError},
		{ErrProviderNotFound, CodeProviderError},
		{fmt.Errorf("call failed: %w", ErrRateLimit), CodeProviderError},
		{fmt.Errorf("call failed: %w", ErrAuthInvalid), CodeProviderError},
		{fmt.Errorf("call failed: %w", ErrContextOverflow), CodeProviderError},
		{ErrGatewayAuth, CodeUnauthorized},
		{errors.New("something else"), CodeUnknown},
	}

	for _, tc := range cases {
		if got := ErrorCodeOf(tc.err); got != tc.want {
			t.Errorf("ErrorCodeOf(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestGatewayErrorUnwrap(t *testing.T) {
	err := NewGatewayError("Orchestrator.HandleChat", ErrInputSafety, "blocked")
	if !errors.Is(err, ErrInputSafety) {
		t.Error("errors.Is should see through GatewayError")
	}
	// Wrapping again still resolves.
	wrapped := WrapOp("gateway", err)
	if ErrorCodeOf(wrapped) != CodeInputSafetyViolation {
		t.Errorf("code = %s", ErrorCodeOf(wrapped))
	}
}

func TestTopicsOf(t *testing.T) {
	err := NewSafetyError("op", ErrInputSafety, "flagged", []Topic{TopicDrugs, TopicWeapons})
	topics := TopicsOf(fmt.Errorf("outer: %w", err))
	if len(topics) != 2 || topics[0] != TopicDrugs {
		t.Errorf("TopicsOf = %v", topics)
	}
	if TopicsOf(errors.New("plain")) != nil {
		t.Error("plain errors carry no topics")
	}
}

func TestWrapOpNil(t *testing.T) {
	if WrapOp("op", nil) != nil {
		t.Error("WrapOp(nil) should be nil")
	}
}

func TestGatewayErrorMessage(t *testing.T) {
	err := NewGatewayError("op", ErrSafetyCheck, "judge unavailable")
	want := "op: safety check could not be completed: judge unavailable"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

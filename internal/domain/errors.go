package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer.
var (
	ErrInvalidRequest  = fmt.Errorf("invalid request")
	ErrInputSafety     = fmt.Errorf("input failed safety checks")
	ErrSafetyCheck     = fmt.Errorf("safety check could not be completed")
	ErrProviderFailure = fmt.Errorf("model provider failure")

	ErrProviderNotFound = fmt.Errorf("model provider not found")
	ErrGatewayAuth      = fmt.Errorf("gateway authentication failed")
	ErrAuditWrite       = fmt.Errorf("audit log write failed")
	ErrConfigLoad       = fmt.Errorf("failed to load configuration")

	// Transport-level sentinels produced by provider adapters.
	ErrRateLimit       = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid     = fmt.Errorf("provider authentication failed")
	ErrContextOverflow = fmt.Errorf("context window exceeded")
)

// GatewayError wraps a sentinel error with request context. Safety
// rejections additionally carry the topics that triggered them.
type GatewayError struct {
	Op     string  // operation name (e.g., "Orchestrator.HandleChat")
	Err    error   // underlying sentinel or wrapped error
	Detail string  // human-readable detail, safe to return to callers
	Topics []Topic // flagged topics, for safety rejections
}

func (e *GatewayError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Err, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// NewGatewayError creates a GatewayError without topic context.
func NewGatewayError(op string, err error, detail string) *GatewayError {
	return &GatewayError{Op: op, Err: err, Detail: detail}
}

// NewSafetyError creates a GatewayError carrying the topics that were flagged.
func NewSafetyError(op string, err error, detail string, topics []Topic) *GatewayError {
	return &GatewayError{Op: op, Err: err, Detail: detail, Topics: topics}
}

// ErrorCode is the machine-parseable error category exposed to the
// request-handling layer. The gateway adapter maps each code to a
// transport status.
type ErrorCode string

const (
	CodeUnknown              ErrorCode = "UNKNOWN"
	CodeInvalidRequest       ErrorCode = "INVALID_REQUEST"
	CodeInputSafetyViolation ErrorCode = "INPUT_SAFETY_VIOLATION"
	CodeSafetyCheckError     ErrorCode = "SAFETY_CHECK_ERROR"
	CodeProviderError        ErrorCode = "PROVIDER_ERROR"
	CodeUnauthorized         ErrorCode = "UNAUTHORIZED"
)

// ErrorCodeOf maps an error to its ErrorCode. Provider-transport sentinels
// collapse into PROVIDER_ERROR: clients only need to distinguish "we blocked
// you" from "the service is degraded".
func ErrorCodeOf(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return CodeInvalidRequest
	case errors.Is(err, ErrInputSafety):
		return CodeInputSafetyViolation
	case errors.Is(err, ErrSafetyCheck):
		return CodeSafetyCheckError
	case errors.Is(err, ErrProviderFailure),
		errors.Is(err, ErrProviderNotFound),
		errors.Is(err, ErrRateLimit),
		errors.Is(err, ErrAuthInvalid),
		errors.Is(err, ErrContextOverflow):
		return CodeProviderError
	case errors.Is(err, ErrGatewayAuth):
		return CodeUnauthorized
	default:
		return CodeUnknown
	}
}

// TopicsOf extracts flagged topics from an error chain, if any.
func TopicsOf(err error) []Topic {
	var ge *GatewayError
	for e := err; e != nil; e = errors.Unwrap(e) {
		if errors.As(e, &ge) && len(ge.Topics) > 0 {
			return ge.Topics
		}
	}
	return nil
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

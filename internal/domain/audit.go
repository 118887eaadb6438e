package domain

import (
	"context"
	"time"
)

// AuditEventType categorizes safety audit events.
type AuditEventType string

const (
	// AuditInputBlocked records an input safety rejection.
	AuditInputBlocked AuditEventType = "input_blocked"
	// AuditOutputRefused records an output refusal substitution.
	AuditOutputRefused AuditEventType = "output_refused"
	// AuditVerdictUnparseable records a judge verdict that could not be parsed.
	AuditVerdictUnparseable AuditEventType = "verdict_unparseable"
	// AuditCheckError records a semantic check that could not be completed.
	AuditCheckError AuditEventType = "check_error"
)

// AuditEvent is one safety decision record. Message content is deliberately
// absent: only decision metadata is persisted.
type AuditEvent struct {
	Type           AuditEventType `json:"type"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Layer          Layer          `json:"layer,omitempty"`
	Topics         []Topic        `json:"topics,omitempty"`
	Reason         string         `json:"reason,omitempty"`
	Provider       string         `json:"provider,omitempty"`
	Model          string         `json:"model,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// AuditRecorder persists safety decision records.
type AuditRecorder interface {
	Record(ctx context.Context, event AuditEvent) error
	Close() error
}

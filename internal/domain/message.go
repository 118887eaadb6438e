package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role constants for message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Part kind discriminators used on the wire.
const (
	PartKindText  = "text"
	PartKindImage = "image"
	PartKindFile  = "file"
)

// ContentPart is a single segment of message content. The set of part types
// is closed; concrete types implement the unexported marker.
type ContentPart interface {
	Kind() string
	isPart()
}

// TextPart is a plain text content segment.
type TextPart struct {
	Text string `json:"text"`
}

// Kind implements ContentPart.
func (TextPart) Kind() string { return PartKindText }

func (TextPart) isPart() {}

// ImagePart is an inline image, carried as base64 text.
type ImagePart struct {
	Data     string `json:"data"` // base64-encoded image bytes
	MIMEType string `json:"mime_type"`
}

// Kind implements ContentPart.
func (ImagePart) Kind() string { return PartKindImage }

func (ImagePart) isPart() {}

// FilePart is an inline file attachment, carried as base64 text.
type FilePart struct {
	Data     string `json:"data"` // base64-encoded file bytes
	MIMEType string `json:"mime_type"`
	FileName string `json:"file_name"`
}

// Kind implements ContentPart.
func (FilePart) Kind() string { return PartKindFile }

func (FilePart) isPart() {}

// Message is a single turn in a conversation. Parts is never empty for a
// valid message; Validate enforces this at the gateway boundary.
type Message struct {
	Role  string
	Parts []ContentPart
}

// NewTextMessage builds a message with a single text part.
func NewTextMessage(role, text string) Message {
	return Message{Role: role, Parts: []ContentPart{TextPart{Text: text}}}
}

// Text returns the concatenation of all text parts, newline-joined.
func (m Message) Text() string {
	var texts []string
	for _, p := range m.Parts {
		if t, ok := p.(TextPart); ok {
			texts = append(texts, t.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// UserText extracts and concatenates text from user-authored messages only.
// System and assistant turns are excluded: input safety evaluates what the
// student wrote, not what the platform injected.
func UserText(messages []Message) string {
	var texts []string
	for _, m := range messages {
		if m.Role != RoleUser {
			continue
		}
		if t := m.Text(); t != "" {
			texts = append(texts, t)
		}
	}
	return strings.Join(texts, "\n")
}

// wirePart is the JSON envelope for the ContentPart union.
type wirePart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
	FileName string `json:"file_name,omitempty"`
}

// MarshalJSON implements json.Marshaler for the part union.
func (m Message) MarshalJSON() ([]byte, error) {
	parts := make([]wirePart, 0, len(m.Parts))
	for _, p := range m.Parts {
		switch v := p.(type) {
		case TextPart:
			parts = append(parts, wirePart{Type: PartKindText, Text: v.Text})
		case ImagePart:
			parts = append(parts, wirePart{Type: PartKindImage, Data: v.Data, MIMEType: v.MIMEType})
		case FilePart:
			parts = append(parts, wirePart{Type: PartKindFile, Data: v.Data, MIMEType: v.MIMEType, FileName: v.FileName})
		default:
			return nil, fmt.Errorf("unknown content part type %T", p)
		}
	}
	return json.Marshal(struct {
		Role  string     `json:"role"`
		Parts []wirePart `json:"content"`
	}{Role: m.Role, Parts: parts})
}

// UnmarshalJSON implements json.Unmarshaler for the part union.
func (m *Message) UnmarshalJSON(data []byte) error {
	var wire struct {
		Role  string     `json:"role"`
		Parts []wirePart `json:"content"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	parts := make([]ContentPart, 0, len(wire.Parts))
	for _, p := range wire.Parts {
		switch p.Type {
		case PartKindText:
			parts = append(parts, TextPart{Text: p.Text})
		case PartKindImage:
			parts = append(parts, ImagePart{Data: p.Data, MIMEType: p.MIMEType})
		case PartKindFile:
			parts = append(parts, FilePart{Data: p.Data, MIMEType: p.MIMEType, FileName: p.FileName})
		default:
			return fmt.Errorf("unknown content part type %q", p.Type)
		}
	}

	m.Role = wire.Role
	m.Parts = parts
	return nil
}

// ValidRole reports whether role is one of the accepted message roles.
func ValidRole(role string) bool {
	switch role {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

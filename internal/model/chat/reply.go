package chat

import (
	"encoding/json"

	"github.com/zhouzirui/z-companion/backend/internal/analysis/eom"
)

// Reply is the payload returned by the chat backend. Either Message or
// MessageParts is set; every other field is optional.
type Reply struct {
	Message      string      `json:"message,omitempty"`
	MessageParts []ReplyPart `json:"messageParts,omitempty"`
	Meta         ReplyMeta   `json:"meta"`
	Delay        *float64    `json:"delay,omitempty"`
}

// ReplyPart is a pre-split chunk in the multi-part reply variant.
type ReplyPart struct {
	Content string  `json:"content"`
	Delay   float64 `json:"delay,omitempty"`
	IsLast  bool    `json:"isLast,omitempty"`
}

// ReplyMeta carries the backend's view of the turn.
type ReplyMeta struct {
	Emotion            string          `json:"emotion,omitempty"`
	EmotionalIntensity *float64        `json:"emotionalIntensity,omitempty"`
	Speed              string          `json:"speed,omitempty"`
	BondScore          *float64        `json:"bondScore,omitempty"`
	NewMilestone       json.RawMessage `json:"newMilestone,omitempty"`
	Fallback           bool            `json:"fallback,omitempty"`
}

// Empty reports whether the reply carries no displayable content once every
// annotation tag is stripped.
func (r Reply) Empty() bool {
	if eom.Clean(r.Message) != "" {
		return false
	}
	for _, p := range r.MessageParts {
		if eom.Clean(p.Content) != "" {
			return false
		}
	}
	return true
}

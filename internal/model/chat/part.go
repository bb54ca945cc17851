package chat

// MessagePart is one timed unit of an agent reply, removed once it is rendered.
type MessagePart struct {
	Content       string `json:"content"`
	DelayMs       int    `json:"delayMs"`
	Emotion       string `json:"emotion,omitempty"`
	Speed         string `json:"speed,omitempty"`
	IsLast        bool   `json:"isLast"`
	SequenceIndex int    `json:"sequenceIndex"`
	SequenceTotal int    `json:"sequenceTotal"`
}

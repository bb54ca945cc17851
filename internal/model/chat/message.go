package chat

import "time"

// Senders of transcript entries.
const (
	SenderUser  = "user"
	SenderAgent = "agent"
)

// TranscriptEntry is one line of the visible chat history.
type TranscriptEntry struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"sessionId"`
	Sender        string    `json:"sender"`
	Text          string    `json:"text"`
	Emotion       string    `json:"emotion,omitempty"`
	SequenceIndex int       `json:"sequenceIndex,omitempty"`
	SequenceTotal int       `json:"sequenceTotal,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

package chat

import (
	"context"

	"github.com/zhouzirui/z-companion/backend/internal/model/chat"
)

// TranscriptSink writes played parts into a session transcript.
type TranscriptSink struct {
	svc       *Service
	sessionID string
}

// NewTranscriptSink binds a sink to one session.
func (s *Service) NewTranscriptSink(sessionID string) *TranscriptSink {
	return &TranscriptSink{svc: s, sessionID: sessionID}
}

func (t *TranscriptSink) SetComposing(on bool) {
	t.svc.SetComposing(t.sessionID, on)
}

func (t *TranscriptSink) Append(ctx context.Context, entry chat.TranscriptEntry) (chat.TranscriptEntry, error) {
	entry.SessionID = t.sessionID
	return t.svc.Append(ctx, entry)
}

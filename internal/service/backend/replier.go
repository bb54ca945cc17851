// Package backend fetches agent replies from the chat backend and degrades to
// a safe fallback reply when it misbehaves.
package backend

import (
	"context"
	"log/slog"

	"github.com/zhouzirui/z-companion/backend/internal/model/chat"
)

// FallbackMessage is shown when no usable reply could be obtained.
const FallbackMessage = "I'm having a little moment... give me just a second 💭"

// FallbackDelayMs is the pause before the fallback message.
const FallbackDelayMs = 1500

// Request is one user message addressed to a companion.
type Request struct {
	SessionID string
	PersonaID string
	Message   string
	History   []chat.TranscriptEntry
}

// Replier produces the agent reply for a request.
type Replier interface {
	Reply(ctx context.Context, req Request) (chat.Reply, error)
}

// ReplierFunc adapts a function to Replier.
type ReplierFunc func(ctx context.Context, req Request) (chat.Reply, error)

func (f ReplierFunc) Reply(ctx context.Context, req Request) (chat.Reply, error) {
	return f(ctx, req)
}

// Fallback returns the reply used when the backend fails.
func Fallback() chat.Reply {
	delay := float64(FallbackDelayMs)
	return chat.Reply{
		Message: FallbackMessage,
		Meta:    chat.ReplyMeta{Emotion: "loving", Fallback: true},
		Delay:   &delay,
	}
}

// ReplyOrFallback asks r for a reply and substitutes Fallback on any error or
// empty reply. A nil r always yields the fallback.
func ReplyOrFallback(ctx context.Context, r Replier, req Request, logger *slog.Logger) chat.Reply {
	if logger == nil {
		logger = slog.Default()
	}
	if r == nil {
		logger.Warn("no reply source configured, using fallback", "session_id", req.SessionID)
		return Fallback()
	}

	reply, err := r.Reply(ctx, req)
	if err != nil {
		logger.Warn("reply failed, using fallback", "session_id", req.SessionID, "error", err)
		return Fallback()
	}
	if reply.Empty() {
		logger.Warn("empty reply, using fallback", "session_id", req.SessionID)
		return Fallback()
	}
	return reply
}

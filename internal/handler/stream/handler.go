package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/zhouzirui/z-companion/backend/internal/model/chat"
	"github.com/zhouzirui/z-companion/backend/internal/model/persona"
	chatService "github.com/zhouzirui/z-companion/backend/internal/service/chat"
	"github.com/zhouzirui/z-companion/backend/internal/service/playback"
	"github.com/zhouzirui/z-companion/backend/internal/service/sequencer"
	"github.com/zhouzirui/z-companion/backend/pkg/utils"
)

// Handler plays agent replies to the browser via Server-Sent Events.
type Handler struct {
	conversation *playback.Conversation
	chatSvc      *chatService.Service
	personas     persona.Store
	logger       *slog.Logger
}

// New creates a new stream handler
func New(conversation *playback.Conversation, chatSvc *chatService.Service, personas persona.Store) *Handler {
	return &Handler{
		conversation: conversation,
		chatSvc:      chatSvc,
		personas:     personas,
		logger:       slog.Default().With("component", "stream"),
	}
}

// StreamResponse represents a streaming response chunk
type StreamResponse struct {
	Event     string                `json:"event"`
	Content   string                `json:"content,omitempty"`
	SessionID string                `json:"sessionId,omitempty"`
	Composing *bool                 `json:"composing,omitempty"`
	Entry     *chat.TranscriptEntry `json:"entry,omitempty"`
	Meta      *chat.ReplyMeta       `json:"meta,omitempty"`
	Emotion   string                `json:"emotion,omitempty"`
	Intensity int                   `json:"intensity,omitempty"`
	Parts     int                   `json:"parts,omitempty"`
	Finished  bool                  `json:"finished,omitempty"`
	Error     string                `json:"error,omitempty"`
}

// Event names.
const (
	EventStart       = "start"
	EventTurn        = "turn"
	EventComposing   = "composing"
	EventMessage     = "message"
	EventInterrupted = "interrupted"
	EventEnd         = "end"
	EventError       = "error"
)

// HandleStreamRequest records userMessage, fetches the reply and streams each
// part as it is committed. A newer message in the same session interrupts
// the stream with an "interrupted" event.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, sessionID string, userMessage string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("streaming unsupported")
	}

	utils.SetupSSEHeaders(w)
	out := &sseSink{w: w, flusher: flusher, sessionID: sessionID}

	_, p, err := h.getSessionPersona(ctx, sessionID)
	if err != nil {
		out.sendError(fmt.Sprintf("failed to get session persona: %v", err))
		return err
	}

	if err := out.send(StreamResponse{Event: EventStart, Content: p.Name}); err != nil {
		return err
	}

	exchange, err := h.conversation.Prepare(ctx, sessionID, userMessage)
	if err != nil {
		out.sendError(err.Error())
		return err
	}

	meta := exchange.Reply.Meta
	if err := out.send(StreamResponse{
		Event:     EventTurn,
		Meta:      &meta,
		Emotion:   exchange.Turn.Emotion,
		Intensity: exchange.Turn.Intensity,
		Parts:     len(exchange.Turn.Parts),
	}); err != nil {
		return err
	}

	err = h.conversation.Play(ctx, exchange, out)
	switch {
	case errors.Is(err, sequencer.ErrSuperseded), errors.Is(err, sequencer.ErrStopped):
		_ = out.send(StreamResponse{Event: EventInterrupted, Content: err.Error()})
		return nil
	case ctx.Err() != nil:
		h.logger.Debug("client went away", "session_id", sessionID)
		return nil
	case err != nil:
		out.sendError(err.Error())
		return err
	}

	if err := out.send(StreamResponse{Event: EventEnd, Finished: true}); err != nil {
		return err
	}
	h.logger.Info("completed stream", "session_id", sessionID, "persona", p.ID, "parts", len(exchange.Turn.Parts))
	return nil
}

// getSessionPersona retrieves session and associated persona information
func (h *Handler) getSessionPersona(ctx context.Context, sessionID string) (*chat.Session, *persona.Persona, error) {
	session, err := h.chatSvc.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("session not found: %w", err)
	}

	p, ok := h.personas.FindByID(session.PersonaID)
	if !ok {
		return nil, nil, fmt.Errorf("persona %s not found", session.PersonaID)
	}

	return &session, &p, nil
}

// sseSink forwards sequencer output to the event stream.
type sseSink struct {
	w         http.ResponseWriter
	flusher   http.Flusher
	sessionID string
}

func (s *sseSink) send(resp StreamResponse) error {
	resp.SessionID = s.sessionID
	return utils.SendSSEChunk(s.w, s.flusher, resp)
}

func (s *sseSink) sendError(msg string) {
	_ = s.send(StreamResponse{Event: EventError, Error: msg})
}

func (s *sseSink) SetComposing(on bool) {
	_ = s.send(StreamResponse{Event: EventComposing, Composing: &on})
}

func (s *sseSink) Append(_ context.Context, entry chat.TranscriptEntry) (chat.TranscriptEntry, error) {
	return entry, s.send(StreamResponse{Event: EventMessage, Content: entry.Text, Entry: &entry})
}

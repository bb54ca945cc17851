package playback

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/zhouzirui/z-companion/backend/internal/model/chat"
	"github.com/zhouzirui/z-companion/backend/internal/model/persona"
	"github.com/zhouzirui/z-companion/backend/internal/service/backend"
	chatsvc "github.com/zhouzirui/z-companion/backend/internal/service/chat"
	"github.com/zhouzirui/z-companion/backend/internal/service/sequencer"
)

// ErrEmptyMessage is returned for blank user input.
var ErrEmptyMessage = errors.New("message is required")

// defaultHistoryLimit bounds the history handed to the reply source.
const defaultHistoryLimit = 20

// Conversation runs one exchange: it records the user message, fetches the
// reply and plays it into the transcript and any extra sink.
type Conversation struct {
	chat     *chatsvc.Service
	personas persona.Store
	replier  backend.Replier
	playback *Service
	logger   *slog.Logger

	// mu orders generation bumps with transcript appends.
	mu    sync.Mutex
	turns map[string]uint64
}

// NewConversation wires a Conversation. replier may be nil, in which case every
// exchange gets the fallback reply.
func NewConversation(chatService *chatsvc.Service, personas persona.Store, replier backend.Replier, playback *Service, logger *slog.Logger) *Conversation {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conversation{
		chat:     chatService,
		personas: personas,
		replier:  replier,
		playback: playback,
		logger:   logger.With("component", "conversation"),
		turns:    make(map[string]uint64),
	}
}

// Exchange is the outcome of Send. An exchange is superseded by any later
// Prepare, Stop or Reset in the same session.
type Exchange struct {
	User  chat.TranscriptEntry
	Reply chat.Reply
	Turn  sequencer.Turn

	generation uint64
}

// Send interrupts the turn playing in sessionID, appends message to the
// transcript, asks the reply source for an answer and plays it. Extra sinks
// see every committed part after the transcript has stored it.
func (c *Conversation) Send(ctx context.Context, sessionID, message string, extra ...sequencer.Sink) (Exchange, error) {
	exchange, err := c.Prepare(ctx, sessionID, message)
	if err != nil {
		return Exchange{}, err
	}
	return exchange, c.Play(ctx, exchange, extra...)
}

// Prepare does everything Send does short of playing the reply.
func (c *Conversation) Prepare(ctx context.Context, sessionID, message string) (Exchange, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Exchange{}, ErrEmptyMessage
	}

	session, err := c.chat.GetSession(ctx, sessionID)
	if err != nil {
		return Exchange{}, err
	}
	p, ok := c.personas.FindByID(session.PersonaID)
	if !ok {
		p = persona.Persona{ID: session.PersonaID}
	}

	c.playback.Cancel(sessionID)

	history, err := c.chat.History(ctx, sessionID, defaultHistoryLimit)
	if err != nil {
		return Exchange{}, err
	}

	c.mu.Lock()
	c.turns[sessionID]++
	generation := c.turns[sessionID]
	user, err := c.chat.Append(ctx, chat.TranscriptEntry{
		SessionID: sessionID,
		Sender:    chat.SenderUser,
		Text:      message,
	})
	c.mu.Unlock()
	if err != nil {
		return Exchange{}, err
	}

	req := backend.Request{
		SessionID: sessionID,
		PersonaID: p.ID,
		Message:   message,
		History:   history,
	}
	reply := backend.ReplyOrFallback(ctx, c.replier, req, c.logger)

	turn := c.playback.BuildTurn(sessionID, p, reply, message)
	if len(turn.Parts) == 0 {
		c.logger.Warn("reply has no displayable parts, using fallback", "session_id", sessionID)
		reply = backend.Fallback()
		turn = c.playback.BuildTurn(sessionID, p, reply, message)
	}
	return Exchange{User: user, Reply: reply, Turn: turn, generation: generation}, nil
}

// Play delivers a prepared exchange into the transcript and extra sinks. It
// returns sequencer.ErrSuperseded without showing anything once a newer
// exchange was prepared, and stops at the next part if that happens mid-play.
func (c *Conversation) Play(ctx context.Context, exchange Exchange, extra ...sequencer.Sink) error {
	turn := exchange.Turn
	if !c.current(turn.SessionID, exchange.generation) {
		c.logger.Info("dropping superseded reply", "session_id", turn.SessionID)
		return sequencer.ErrSuperseded
	}

	c.logger.Info("playing reply",
		"session_id", turn.SessionID,
		"parts", len(turn.Parts),
		"emotion", turn.Emotion,
		"intensity", turn.Intensity,
		"fallback", exchange.Reply.Meta.Fallback,
	)

	transcript := &guardedSink{conv: c, next: c.chat.NewTranscriptSink(turn.SessionID), generation: exchange.generation}
	sink := append(sequencer.MultiSink{transcript}, extra...)
	return c.playback.Deliver(ctx, turn, sink)
}

func (c *Conversation) current(sessionID string, generation uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.turns[sessionID] == generation
}

// bump invalidates every exchange prepared so far in a session.
func (c *Conversation) bump(sessionID string) {
	c.mu.Lock()
	c.turns[sessionID]++
	c.mu.Unlock()
}

// guardedSink refuses agent parts of a superseded exchange. The check and the
// transcript append happen under the same lock as the user append in Prepare.
type guardedSink struct {
	conv       *Conversation
	next       *chatsvc.TranscriptSink
	generation uint64
}

func (g *guardedSink) SetComposing(on bool) {
	g.next.SetComposing(on)
}

func (g *guardedSink) Append(ctx context.Context, entry chat.TranscriptEntry) (chat.TranscriptEntry, error) {
	g.conv.mu.Lock()
	defer g.conv.mu.Unlock()
	if g.conv.turns[entry.SessionID] != g.generation {
		return entry, sequencer.ErrSuperseded
	}
	return g.next.Append(ctx, entry)
}

// Transcript returns the stored transcript and whether the agent is composing.
func (c *Conversation) Transcript(ctx context.Context, sessionID string) ([]chat.TranscriptEntry, bool, error) {
	entries, err := c.chat.LoadTranscript(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	return entries, c.chat.IsComposing(sessionID), nil
}

// Stop cancels the reply playing in a session without touching the transcript.
func (c *Conversation) Stop(sessionID string) {
	c.bump(sessionID)
	c.playback.Cancel(sessionID)
}

// Reset stops playback in a session and clears its transcript.
func (c *Conversation) Reset(ctx context.Context, sessionID string) error {
	c.bump(sessionID)
	c.playback.Cancel(sessionID)
	return c.chat.ResetTranscript(ctx, sessionID)
}

// Close stops playback in a session, deletes it and releases its sequencer.
func (c *Conversation) Close(ctx context.Context, sessionID string) error {
	if _, err := c.chat.GetSession(ctx, sessionID); err != nil {
		return err
	}
	c.bump(sessionID)
	c.playback.Forget(sessionID)

	c.mu.Lock()
	delete(c.turns, sessionID)
	c.mu.Unlock()
	return c.chat.DeleteSession(ctx, sessionID)
}

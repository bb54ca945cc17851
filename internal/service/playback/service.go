// Package playback turns backend replies into sequencer turns and owns the
// sequencer of every live session.
package playback

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/zhouzirui/z-companion/backend/internal/analysis/emotion"
	"github.com/zhouzirui/z-companion/backend/internal/analysis/eom"
	"github.com/zhouzirui/z-companion/backend/internal/model/chat"
	"github.com/zhouzirui/z-companion/backend/internal/model/persona"
	"github.com/zhouzirui/z-companion/backend/internal/pacing"
	"github.com/zhouzirui/z-companion/backend/internal/service/sequencer"
)

// DefaultIntensity is used when neither the backend nor the analyzer gives one.
const DefaultIntensity = 2

// Config wires the parser and timings used for every session.
// SequencerOptions are passed to every per-session sequencer.
type Config struct {
	Parser           *eom.Parser
	Sequencer        sequencer.Config
	DefaultIntensity int
	Logger           *slog.Logger
	SequencerOptions []sequencer.Option
}

// Service assembles turns and keeps one sequencer per session.
type Service struct {
	parser           *eom.Parser
	seqCfg           sequencer.Config
	seqOpts          []sequencer.Option
	defaultIntensity int
	logger           *slog.Logger

	mu       sync.Mutex
	sessions map[string]*sequencer.Sequencer
}

// NewService builds a playback Service.
func NewService(cfg Config) *Service {
	if cfg.Parser == nil {
		cfg.Parser = eom.NewParser(eom.Defaults{})
	}
	if cfg.DefaultIntensity == 0 {
		cfg.DefaultIntensity = DefaultIntensity
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Sequencer.DefaultDelay <= 0 {
		cfg.Sequencer.DefaultDelay = time.Duration(cfg.Parser.Defaults().PauseMs) * time.Millisecond
	}
	logger := cfg.Logger.With("component", "playback")
	return &Service{
		parser:           cfg.Parser,
		seqCfg:           cfg.Sequencer,
		seqOpts:          append([]sequencer.Option{sequencer.WithLogger(cfg.Logger)}, cfg.SequencerOptions...),
		defaultIntensity: pacing.ClampIntensity(cfg.DefaultIntensity),
		logger:           logger,
		sessions:         make(map[string]*sequencer.Sequencer),
	}
}

// Parser exposes the configured EOM parser.
func (s *Service) Parser() *eom.Parser { return s.parser }

// Plan returns the timed steps of turn without playing it.
func (s *Service) Plan(turn sequencer.Turn) []sequencer.Step {
	return s.seqCfg.Plan(turn)
}

// BuildTurn converts a backend reply into a playable turn for sessionID.
// userMessage is the utterance that prompted the reply and only feeds the
// intensity heuristics.
func (s *Service) BuildTurn(sessionID string, p persona.Persona, reply chat.Reply, userMessage string) sequencer.Turn {
	raw := rawText(reply)
	decision := emotion.Analyze(userMessage, eom.Clean(raw))

	turn := sequencer.Turn{
		SessionID: sessionID,
		Emotion:   s.turnEmotion(p, reply, raw, decision),
		Intensity: s.turnIntensity(reply.Meta, decision),
	}

	speed := strings.TrimSpace(reply.Meta.Speed)
	if speed == "" {
		speed = p.DefaultSpeed
	}

	if len(reply.MessageParts) > 0 {
		for _, part := range reply.MessageParts {
			turn.Parts = append(turn.Parts, s.partsFrom(part.Content, part.Delay, speed)...)
		}
	} else {
		var delay float64
		if reply.Delay != nil {
			delay = *reply.Delay
		}
		turn.Parts = s.partsFrom(reply.Message, delay, speed)
	}

	turn.Parts = sequencer.Normalize(turn.Parts)
	return turn
}

// partsFrom splits raw on its tags. fallbackDelay (ms) replaces the default
// pause of segments whose tag names none; speed does the same for speed.
func (s *Service) partsFrom(raw string, fallbackDelay float64, speed string) []chat.MessagePart {
	maxPause := s.parser.Defaults().MaxPauseMs
	segments := s.parser.SplitIntoParts(raw)
	parts := make([]chat.MessagePart, 0, len(segments))
	for _, seg := range segments {
		part := chat.MessagePart{
			Content: seg.Content,
			DelayMs: seg.PauseMs,
			Speed:   seg.Speed,
		}
		if !seg.HasPause && fallbackDelay > 0 {
			part.DelayMs = int(math.Min(fallbackDelay, float64(maxPause)))
		}
		if !seg.HasSpeed && speed != "" {
			part.Speed = speed
		}
		if seg.HasEmotion {
			part.Emotion = seg.Emotion
		}
		parts = append(parts, part)
	}
	return parts
}

func (s *Service) turnEmotion(p persona.Persona, reply chat.Reply, raw string, decision emotion.Decision) string {
	if e := strings.TrimSpace(reply.Meta.Emotion); e != "" {
		return e
	}
	if e, ok := s.parser.Emotion(raw); ok {
		return e
	}
	if decision.Score > 0 {
		return string(decision.Emotion)
	}
	if p.DefaultEmotion != "" {
		return p.DefaultEmotion
	}
	return eom.DefaultEmotion
}

func (s *Service) turnIntensity(meta chat.ReplyMeta, decision emotion.Decision) int {
	if v := meta.EmotionalIntensity; v != nil && !math.IsNaN(*v) && *v > 0 {
		return ScaleIntensity(*v)
	}
	if decision.Intensity > 0 {
		return decision.Intensity
	}
	return s.defaultIntensity
}

// ScaleIntensity maps a backend intensity onto the 1..4 scale. Values up to 1
// are read as a fraction; larger values as a level.
// The float is clamped before conversion so huge or infinite values saturate.
func ScaleIntensity(v float64) int {
	if math.IsNaN(v) {
		return pacing.MinIntensity
	}
	if v <= 1 {
		v = math.Ceil(v * pacing.MaxIntensity)
	} else {
		v = math.Round(v)
	}
	v = math.Max(pacing.MinIntensity, math.Min(v, pacing.MaxIntensity))
	return int(v)
}

func rawText(reply chat.Reply) string {
	if len(reply.MessageParts) == 0 {
		return reply.Message
	}
	var b strings.Builder
	for i, part := range reply.MessageParts {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(part.Content)
	}
	return b.String()
}

// Deliver plays turn on the session's sequencer, cancelling whatever it was
// playing.
func (s *Service) Deliver(ctx context.Context, turn sequencer.Turn, sink sequencer.Sink) error {
	return s.sequencer(turn.SessionID).Play(ctx, turn, sink)
}

// Cancel stops the turn playing in a session and waits for it to stop.
func (s *Service) Cancel(sessionID string) {
	s.mu.Lock()
	seq, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if ok {
		seq.Stop()
	}
}

// Active reports whether a session has a turn in flight.
func (s *Service) Active(sessionID string) bool {
	s.mu.Lock()
	seq, ok := s.sessions[sessionID]
	s.mu.Unlock()
	return ok && seq.Active()
}

// Forget stops and drops the sequencer of a session.
func (s *Service) Forget(sessionID string) {
	s.mu.Lock()
	seq, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	if ok {
		seq.Stop()
		s.logger.Debug("session sequencer released", "session_id", sessionID)
	}
}

func (s *Service) sequencer(sessionID string) *sequencer.Sequencer {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.sessions[sessionID]
	if !ok {
		seq = sequencer.New(s.seqCfg, s.seqOpts...)
		s.sessions[sessionID] = seq
	}
	return seq
}

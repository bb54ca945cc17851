// Package sequencer plays the parts of an agent reply into a transcript one at
// a time, the way a person sends several short texts in a row.
package sequencer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/zhouzirui/z-companion/backend/internal/analysis/eom"
	"github.com/zhouzirui/z-companion/backend/internal/model/chat"
	"github.com/zhouzirui/z-companion/backend/internal/pacing"
)

var (
	// ErrSuperseded is the cancellation cause of a turn replaced by a newer one.
	ErrSuperseded = errors.New("turn superseded by a newer turn")
	// ErrStopped is the cancellation cause of a turn ended by Stop.
	ErrStopped = errors.New("turn stopped")
)

// Default timings.
const (
	DefaultDelay          = time.Duration(eom.DefaultPauseMs) * time.Millisecond
	DefaultInterPartPause = 300 * time.Millisecond
)

// Config tunes playback timing. DefaultDelay replaces part delays that are
// zero or negative; InterPartPause is waited after every part but the last.
type Config struct {
	DefaultDelay   time.Duration
	InterPartPause time.Duration
	Policy         pacing.Policy
}

// DefaultConfig returns the stock timings with the built-in pacing policy.
func DefaultConfig() Config {
	return Config{
		DefaultDelay:   DefaultDelay,
		InterPartPause: DefaultInterPartPause,
		Policy:         pacing.DefaultPolicy(),
	}
}

// Turn is one agent reply ready for playback. Emotion applies to parts that
// carry none of their own.
type Turn struct {
	SessionID string
	Parts     []chat.MessagePart
	Emotion   string
	Intensity int
}

// Step is a planned part with the wait that precedes it and the pause that
// follows it.
type Step struct {
	Part  chat.MessagePart `json:"part"`
	Wait  time.Duration    `json:"wait"`
	After time.Duration    `json:"after"`
}

// SleepFunc blocks for d or until ctx is done, returning the context's cause
// in the latter case.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option customizes a Sequencer.
type Option func(*Sequencer)

// WithSleep replaces the timer-based wait, mostly for tests.
func WithSleep(sleep SleepFunc) Option {
	return func(s *Sequencer) { s.sleep = sleep }
}

// WithLogger sets the logger used for lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sequencer) { s.logger = logger }
}

// Sequencer plays at most one turn at a time. Starting a turn cancels the one
// in flight and waits for it to wind down before anything new is shown.
type Sequencer struct {
	cfg    Config
	sleep  SleepFunc
	logger *slog.Logger

	// playing is held for the whole duration of a run.
	playing sync.Mutex

	mu     sync.Mutex
	cancel context.CancelCauseFunc
	gen    uint64
}

// New builds a Sequencer.
func New(cfg Config, opts ...Option) *Sequencer {
	if cfg.DefaultDelay <= 0 {
		cfg.DefaultDelay = DefaultDelay
	}
	if cfg.InterPartPause < 0 {
		cfg.InterPartPause = 0
	}
	s := &Sequencer{
		cfg:    cfg,
		sleep:  Sleep,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "sequencer")
	return s
}

// Config returns the timings in use.
func (s *Sequencer) Config() Config { return s.cfg }

// Play delivers turn to sink and blocks until the last part is committed or
// the run is cancelled. An empty turn returns nil without touching sink or the
// turn already playing.
func (s *Sequencer) Play(ctx context.Context, turn Turn, sink Sink) error {
	steps := s.cfg.Plan(turn)
	if len(steps) == 0 {
		return nil
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	s.mu.Lock()
	prev := s.cancel
	s.gen++
	gen := s.gen
	s.cancel = cancel
	s.mu.Unlock()

	if prev != nil {
		prev(ErrSuperseded)
	}

	s.playing.Lock()
	defer func() {
		s.mu.Lock()
		if s.gen == gen {
			s.cancel = nil
		}
		s.mu.Unlock()
		s.playing.Unlock()
		cancel(nil)
	}()

	// superseded while waiting for the previous run
	if runCtx.Err() != nil {
		return context.Cause(runCtx)
	}

	return s.run(runCtx, turn, steps, sink)
}

func (s *Sequencer) run(ctx context.Context, turn Turn, steps []Step, sink Sink) error {
	logger := s.logger.With("session_id", turn.SessionID, "parts", len(steps))
	logger.Debug("turn started")

	sink.SetComposing(true)
	for _, step := range steps {
		if err := s.sleep(ctx, step.Wait); err != nil {
			sink.SetComposing(false)
			err = causeOf(ctx, err)
			logger.Debug("turn cancelled", "at", step.Part.SequenceIndex, "cause", err)
			return err
		}
		if ctx.Err() != nil {
			sink.SetComposing(false)
			return context.Cause(ctx)
		}

		entry := chat.TranscriptEntry{
			SessionID:     turn.SessionID,
			Sender:        chat.SenderAgent,
			Text:          step.Part.Content,
			Emotion:       step.Part.Emotion,
			SequenceIndex: step.Part.SequenceIndex,
			SequenceTotal: step.Part.SequenceTotal,
		}
		if _, err := sink.Append(ctx, entry); err != nil {
			sink.SetComposing(false)
			if errors.Is(err, ErrSuperseded) {
				logger.Debug("part refused by sink", "at", step.Part.SequenceIndex)
			} else {
				logger.Warn("append part failed", "at", step.Part.SequenceIndex, "error", err)
			}
			return err
		}
		if step.Part.IsLast {
			sink.SetComposing(false)
			break
		}

		if err := s.sleep(ctx, step.After); err != nil {
			sink.SetComposing(false)
			return causeOf(ctx, err)
		}
	}

	logger.Debug("turn finished")
	return nil
}

// causeOf prefers the cancellation cause over whatever the sleep returned.
func causeOf(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	return err
}

// Stop cancels the running turn, if any, and returns once it has stopped
// touching its sink. It must not be called from inside a Sink.
func (s *Sequencer) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel(ErrStopped)

	// the run holds playing until it is done with the sink
	s.playing.Lock()
	s.playing.Unlock()
}

// Active reports whether a turn is playing or waiting to play.
func (s *Sequencer) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Plan normalizes the parts of turn and computes the wait before each one.
func (c Config) Plan(turn Turn) []Step {
	parts := Normalize(turn.Parts)
	steps := make([]Step, len(parts))
	for i, part := range parts {
		if part.Emotion == "" {
			part.Emotion = turn.Emotion
		}
		base := time.Duration(part.DelayMs) * time.Millisecond
		if base <= 0 {
			base = c.DefaultDelay
		}
		steps[i] = Step{
			Part: part,
			Wait: c.Policy.Delay(base, part.Content, part.Speed, part.Emotion, turn.Intensity),
		}
		if !part.IsLast {
			steps[i].After = c.InterPartPause
		}
	}
	return steps
}

// Normalize cleans part contents, drops parts left empty and renumbers the
// rest. Only the final part is marked IsLast. Indexes start at 1.
func Normalize(parts []chat.MessagePart) []chat.MessagePart {
	out := make([]chat.MessagePart, 0, len(parts))
	for _, part := range parts {
		part.Content = eom.Clean(part.Content)
		if part.Content == "" {
			continue
		}
		out = append(out, part)
	}
	for i := range out {
		out[i].SequenceIndex = i + 1
		out[i].SequenceTotal = len(out)
		out[i].IsLast = i == len(out)-1
	}
	return out
}

// Sleep waits for d on a timer, returning early with the context's cause.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-timer.C:
		return nil
	}
}

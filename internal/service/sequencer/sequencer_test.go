package sequencer_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-companion/backend/internal/model/chat"
	"github.com/zhouzirui/z-companion/backend/internal/pacing"
	"github.com/zhouzirui/z-companion/backend/internal/service/sequencer"
)

type recorder struct {
	mu     sync.Mutex
	events []string
	texts  []string
}

func (r *recorder) SetComposing(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if on {
		r.events = append(r.events, "composing:on")
	} else {
		r.events = append(r.events, "composing:off")
	}
}

func (r *recorder) Append(_ context.Context, entry chat.TranscriptEntry) (chat.TranscriptEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "append:"+entry.Text)
	r.texts = append(r.texts, entry.Text)
	return entry, nil
}

// sleep logs waits into the same timeline as composing and appends.
func (r *recorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.events = append(r.events, "sleep:"+d.String())
	r.mu.Unlock()
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	return nil
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type waits struct {
	mu sync.Mutex
	d  []time.Duration
}

func (w *waits) sleep(ctx context.Context, d time.Duration) error {
	w.mu.Lock()
	w.d = append(w.d, d)
	w.mu.Unlock()
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	return nil
}

func plainConfig() sequencer.Config {
	return sequencer.Config{
		DefaultDelay:   2 * time.Second,
		InterPartPause: 300 * time.Millisecond,
	}
}

func parts(contents ...string) []chat.MessagePart {
	out := make([]chat.MessagePart, len(contents))
	for i, c := range contents {
		out[i] = chat.MessagePart{Content: c}
	}
	return out
}

func TestPlayOrderAndComposing(t *testing.T) {
	rec := &recorder{}
	seq := sequencer.New(plainConfig(), sequencer.WithSleep(rec.sleep))

	turn := sequencer.Turn{SessionID: "s1", Parts: []chat.MessagePart{
		{Content: "A", DelayMs: 500, Emotion: "flirty"},
		{Content: "B", DelayMs: 1200, Emotion: "passionate"},
		{Content: "C"},
	}}
	require.NoError(t, seq.Play(context.Background(), turn, rec))

	// composing starts before the first delay and ends with the last commit
	assert.Equal(t, []string{
		"composing:on",
		"sleep:500ms", "append:A", "sleep:300ms",
		"sleep:1.2s", "append:B", "sleep:300ms",
		"sleep:2s", "append:C",
		"composing:off",
	}, rec.snapshot())
	assert.False(t, seq.Active())
}

func TestPlayEntriesCarrySequenceAndEmotion(t *testing.T) {
	seq := sequencer.New(plainConfig(), sequencer.WithSleep((&waits{}).sleep))

	var got []chat.TranscriptEntry
	sink := sinkFunc(func(e chat.TranscriptEntry) (chat.TranscriptEntry, error) {
		got = append(got, e)
		return e, nil
	})
	turn := sequencer.Turn{
		SessionID: "s1",
		Emotion:   "shy",
		Parts: []chat.MessagePart{
			{Content: "one", Emotion: "playful"},
			{Content: "two"},
		},
	}
	require.NoError(t, seq.Play(context.Background(), turn, sink))

	require.Len(t, got, 2)
	assert.Equal(t, chat.SenderAgent, got[0].Sender)
	assert.Equal(t, "s1", got[0].SessionID)
	assert.Equal(t, "playful", got[0].Emotion)
	assert.Equal(t, "shy", got[1].Emotion)
	assert.Equal(t, 1, got[0].SequenceIndex)
	assert.Equal(t, 2, got[1].SequenceIndex)
	assert.Equal(t, 2, got[1].SequenceTotal)
}

func TestPlayEmptyTurnIsNoop(t *testing.T) {
	w := &waits{}
	seq := sequencer.New(plainConfig(), sequencer.WithSleep(w.sleep))
	rec := &recorder{}

	require.NoError(t, seq.Play(context.Background(), sequencer.Turn{}, rec))
	require.NoError(t, seq.Play(context.Background(), sequencer.Turn{Parts: parts("  ", "<EOM::pause=10>")}, rec))

	assert.Empty(t, rec.snapshot())
	assert.Empty(t, w.d)
}

// blockingSleep parks the first run until it is cancelled and lets later
// runs through.
type blockingSleep struct {
	blocking atomic.Bool
	entered  chan struct{}
}

func newBlockingSleep() *blockingSleep {
	b := &blockingSleep{entered: make(chan struct{}, 1)}
	b.blocking.Store(true)
	return b
}

func (b *blockingSleep) sleep(ctx context.Context, _ time.Duration) error {
	if b.blocking.Load() {
		select {
		case b.entered <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return context.Cause(ctx)
	}
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	return nil
}

func TestPlaySupersedesRunningTurn(t *testing.T) {
	b := newBlockingSleep()
	seq := sequencer.New(plainConfig(), sequencer.WithSleep(b.sleep))
	rec := &recorder{}

	errc := make(chan error, 1)
	go func() {
		errc <- seq.Play(context.Background(), sequencer.Turn{Parts: parts("old 1", "old 2")}, rec)
	}()
	<-b.entered
	require.True(t, seq.Active())

	b.blocking.Store(false)
	require.NoError(t, seq.Play(context.Background(), sequencer.Turn{Parts: parts("new 1", "new 2")}, rec))
	require.ErrorIs(t, <-errc, sequencer.ErrSuperseded)

	assert.Equal(t, []string{
		"composing:on", "composing:off",
		"composing:on", "append:new 1", "append:new 2", "composing:off",
	}, rec.snapshot())
}

func TestPlayEmptyTurnKeepsRunningTurn(t *testing.T) {
	b := newBlockingSleep()
	seq := sequencer.New(plainConfig(), sequencer.WithSleep(b.sleep))
	rec := &recorder{}

	errc := make(chan error, 1)
	go func() {
		errc <- seq.Play(context.Background(), sequencer.Turn{Parts: parts("still here")}, rec)
	}()
	<-b.entered

	require.NoError(t, seq.Play(context.Background(), sequencer.Turn{}, rec))
	assert.True(t, seq.Active())

	seq.Stop()
	require.ErrorIs(t, <-errc, sequencer.ErrStopped)
}

func TestStopClearsComposing(t *testing.T) {
	b := newBlockingSleep()
	seq := sequencer.New(plainConfig(), sequencer.WithSleep(b.sleep))
	rec := &recorder{}

	errc := make(chan error, 1)
	go func() {
		errc <- seq.Play(context.Background(), sequencer.Turn{Parts: parts("never shown")}, rec)
	}()
	<-b.entered

	seq.Stop()
	require.ErrorIs(t, <-errc, sequencer.ErrStopped)
	assert.Equal(t, []string{"composing:on", "composing:off"}, rec.snapshot())
	assert.False(t, seq.Active())

	// Stop without a running turn is harmless.
	seq.Stop()
}

func TestPlayHonoursContext(t *testing.T) {
	seq := sequencer.New(plainConfig())
	rec := &recorder{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := seq.Play(ctx, sequencer.Turn{Parts: parts("x")}, rec)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.snapshot())
}

func TestPlayAbortsOnSinkError(t *testing.T) {
	seq := sequencer.New(plainConfig(), sequencer.WithSleep((&waits{}).sleep))
	boom := errors.New("client gone")
	rec := &recorder{}
	failing := sinkFunc(func(e chat.TranscriptEntry) (chat.TranscriptEntry, error) { return e, boom })

	err := seq.Play(context.Background(), sequencer.Turn{Parts: parts("a", "b")}, sequencer.MultiSink{rec, failing})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"composing:on", "append:a", "composing:off"}, rec.snapshot())
}

func TestPlanAppliesPolicy(t *testing.T) {
	cfg := sequencer.DefaultConfig()
	steps := cfg.Plan(sequencer.Turn{
		Emotion:   "passionate",
		Intensity: 4,
		Parts: []chat.MessagePart{
			{Content: "hi", DelayMs: 1000, Speed: pacing.SpeedFast},
			{Content: "there"},
		},
	})

	require.Len(t, steps, 2)
	// 1000ms * 1.4 + 2 runes * 35ms * 0.3
	assert.InDelta(t, float64(1421*time.Millisecond), float64(steps[0].Wait), float64(time.Millisecond))
	assert.Equal(t, sequencer.DefaultInterPartPause, steps[0].After)
	assert.Zero(t, steps[1].After)
	assert.Greater(t, steps[1].Wait, time.Duration(float64(sequencer.DefaultDelay)*1.3))
	assert.Equal(t, "passionate", steps[1].Part.Emotion)
}

func TestNormalize(t *testing.T) {
	in := []chat.MessagePart{
		{Content: "first [emotion: shy]", IsLast: true},
		{Content: "<EOM::pause=100>"},
		{Content: "  second  <EOM::pause=5>  "},
	}
	out := sequencer.Normalize(in)

	require.Len(t, out, 2)
	assert.Equal(t, "first", out[0].Content)
	assert.False(t, out[0].IsLast)
	assert.Equal(t, "second", out[1].Content)
	assert.True(t, out[1].IsLast)
	assert.Equal(t, 2, out[1].SequenceTotal)
	assert.Equal(t, 2, out[1].SequenceIndex)
}

func TestSleep(t *testing.T) {
	require.NoError(t, sequencer.Sleep(context.Background(), 0))
	require.NoError(t, sequencer.Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(sequencer.ErrStopped)
	require.ErrorIs(t, sequencer.Sleep(ctx, time.Hour), sequencer.ErrStopped)
}

type sinkFunc func(chat.TranscriptEntry) (chat.TranscriptEntry, error)

func (f sinkFunc) SetComposing(bool) {}

func (f sinkFunc) Append(_ context.Context, e chat.TranscriptEntry) (chat.TranscriptEntry, error) {
	return f(e)
}

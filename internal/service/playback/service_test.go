package playback_test

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-companion/backend/internal/model/chat"
	"github.com/zhouzirui/z-companion/backend/internal/model/persona"
	"github.com/zhouzirui/z-companion/backend/internal/service/playback"
	"github.com/zhouzirui/z-companion/backend/internal/service/sequencer"
)

func instant(ctx context.Context, _ time.Duration) error {
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	return nil
}

func newService() *playback.Service {
	return playback.NewService(playback.Config{
		Sequencer:        sequencer.Config{InterPartPause: 300 * time.Millisecond},
		SequencerOptions: []sequencer.Option{sequencer.WithSleep(instant)},
	})
}

var aria = persona.Persona{ID: "aria", DefaultEmotion: "gentle", DefaultSpeed: "soft"}

func ptr(v float64) *float64 { return &v }

func TestBuildTurnSplitsTaggedMessage(t *testing.T) {
	svc := newService()
	reply := chat.Reply{Message: "A <EOM::pause=500 emotion=flirty> B <EOM::pause=1200 emotion=passionate> C"}

	turn := svc.BuildTurn("s1", persona.Persona{}, reply, "hey")

	require.Len(t, turn.Parts, 3)
	assert.Equal(t, "flirty", turn.Emotion)
	assert.Equal(t, []int{500, 1200, 2000}, []int{turn.Parts[0].DelayMs, turn.Parts[1].DelayMs, turn.Parts[2].DelayMs})
	assert.Equal(t, "flirty", turn.Parts[0].Emotion)
	assert.Equal(t, "passionate", turn.Parts[1].Emotion)
	assert.Empty(t, turn.Parts[2].Emotion)
	assert.True(t, turn.Parts[2].IsLast)
	assert.Equal(t, "C", turn.Parts[2].Content)
}

func TestBuildTurnUsesReplyDelayAndPersonaDefaults(t *testing.T) {
	svc := newService()
	reply := chat.Reply{Message: "hello there", Delay: ptr(900)}

	turn := svc.BuildTurn("s1", aria, reply, "hi")

	require.Len(t, turn.Parts, 1)
	assert.Equal(t, 900, turn.Parts[0].DelayMs)
	assert.Equal(t, "soft", turn.Parts[0].Speed)
	assert.Equal(t, "gentle", turn.Emotion)
}

func TestBuildTurnReplyDelayIsCapped(t *testing.T) {
	turn := newService().BuildTurn("s1", aria, chat.Reply{Message: "later", Delay: ptr(60000)}, "")
	require.Len(t, turn.Parts, 1)
	assert.Equal(t, 10000, turn.Parts[0].DelayMs)
}

func TestBuildTurnMetaWins(t *testing.T) {
	svc := newService()
	reply := chat.Reply{
		Message: "you make me blush <EOM::emotion=flirty speed=slow>",
		Meta:    chat.ReplyMeta{Emotion: "shy", EmotionalIntensity: ptr(0.7), Speed: "fast"},
	}

	turn := svc.BuildTurn("s1", aria, reply, "")

	assert.Equal(t, "shy", turn.Emotion)
	assert.Equal(t, 3, turn.Intensity)
	require.Len(t, turn.Parts, 1)
	// a tag's own speed beats the meta speed
	assert.Equal(t, "slow", turn.Parts[0].Speed)
}

func TestBuildTurnMessageParts(t *testing.T) {
	svc := newService()
	reply := chat.Reply{
		MessageParts: []chat.ReplyPart{
			{Content: "one [emotion: playful]", Delay: 400},
			{Content: "two <EOM::speed=fast>"},
			{Content: "   "},
		},
	}

	turn := svc.BuildTurn("s1", aria, reply, "")

	require.Len(t, turn.Parts, 2)
	assert.Equal(t, "one", turn.Parts[0].Content)
	assert.Equal(t, 400, turn.Parts[0].DelayMs)
	assert.Equal(t, "soft", turn.Parts[0].Speed)
	assert.Equal(t, 2000, turn.Parts[1].DelayMs)
	assert.Equal(t, "fast", turn.Parts[1].Speed)
	assert.True(t, turn.Parts[1].IsLast)
	assert.Equal(t, 2, turn.Parts[1].SequenceTotal)
}

func TestBuildTurnIntensitySources(t *testing.T) {
	svc := newService()

	turn := svc.BuildTurn("s1", aria, chat.Reply{Message: "I'm here"}, "I NEED you right now!!")
	assert.Equal(t, 4, turn.Intensity)

	turn = svc.BuildTurn("s1", aria, chat.Reply{}, "")
	assert.Equal(t, playback.DefaultIntensity, turn.Intensity)
	assert.Empty(t, turn.Parts)

	turn = svc.BuildTurn("s1", aria, chat.Reply{Message: "ok", Meta: chat.ReplyMeta{EmotionalIntensity: ptr(3.4)}}, "")
	assert.Equal(t, 3, turn.Intensity)
}

func TestBuildTurnAnalyzerEmotion(t *testing.T) {
	turn := newService().BuildTurn("s1", aria, chat.Reply{Message: "that was so much fun, lol"}, "")
	assert.Equal(t, "playful", turn.Emotion)
}

func TestScaleIntensity(t *testing.T) {
	cases := map[float64]int{
		0.01: 1, 0.25: 1, 0.5: 2, 0.7: 3, 1: 4, 2.4: 2, 3.6: 4, 12: 4,
		1e300: 4, math.Inf(1): 4, -1e300: 1, math.Inf(-1): 1,
	}
	for in, want := range cases {
		assert.Equal(t, want, playback.ScaleIntensity(in), "ScaleIntensity(%v)", in)
	}
	assert.Equal(t, 1, playback.ScaleIntensity(math.NaN()))
}

type entries struct {
	mu   sync.Mutex
	list []chat.TranscriptEntry
}

func (e *entries) SetComposing(bool) {}

func (e *entries) Append(_ context.Context, entry chat.TranscriptEntry) (chat.TranscriptEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.list = append(e.list, entry)
	return entry, nil
}

func TestDeliverUsesSessionSequencer(t *testing.T) {
	svc := newService()
	turn := svc.BuildTurn("s1", aria, chat.Reply{Message: "a <EOM::pause=10> b"}, "")

	sink := &entries{}
	require.NoError(t, svc.Deliver(context.Background(), turn, sink))

	require.Len(t, sink.list, 2)
	assert.Equal(t, "a", sink.list[0].Text)
	assert.Equal(t, "s1", sink.list[1].SessionID)
	assert.False(t, svc.Active("s1"))

	svc.Cancel("s1")
	svc.Forget("s1")
	svc.Cancel("unknown")
}

func TestPlanDoesNotRegisterSession(t *testing.T) {
	svc := newService()
	steps := svc.Plan(svc.BuildTurn("", aria, chat.Reply{Message: "x <EOM::pause=100> y"}, ""))
	require.Len(t, steps, 2)
	assert.Equal(t, 300*time.Millisecond, steps[0].After)
	assert.False(t, svc.Active(""))
}

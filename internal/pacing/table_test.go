package pacing

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTableAnchors(t *testing.T) {
	table := DefaultTable()

	cases := []struct {
		emotion   string
		intensity int
		speed     float64
		pause     float64
	}{
		{"shy", 1, 1.8, 2.0},
		{"vulnerable", 3, 1.8, 2.6},
		{"passionate", 4, 0.3, 1.4},
	}
	for _, tc := range cases {
		got := table.Lookup(tc.emotion, tc.intensity)
		assert.InDelta(t, tc.speed, got.SpeedMultiplier, 0.001, "%s/%d speed", tc.emotion, tc.intensity)
		assert.InDelta(t, tc.pause, got.PauseMultiplier, 0.001, "%s/%d pause", tc.emotion, tc.intensity)
	}
}

func TestDefaultTableIntensityDirection(t *testing.T) {
	table := DefaultTable()

	for i := MinIntensity; i < MaxIntensity; i++ {
		lo, hi := table.Lookup("passionate", i), table.Lookup("passionate", i+1)
		assert.Less(t, hi.SpeedMultiplier, lo.SpeedMultiplier, "passionate speeds up at %d", i+1)

		for _, hesitant := range []string{"shy", "vulnerable"} {
			lo, hi := table.Lookup(hesitant, i), table.Lookup(hesitant, i+1)
			assert.Greater(t, hi.SpeedMultiplier, lo.SpeedMultiplier, "%s speed at %d", hesitant, i+1)
			assert.Greater(t, hi.PauseMultiplier, lo.PauseMultiplier, "%s pause at %d", hesitant, i+1)
		}
	}
}

func TestLookupClampsIntensityAndNormalizesEmotion(t *testing.T) {
	table := DefaultTable()

	assert.Equal(t, table.Lookup("shy", 1), table.Lookup(" SHY ", -3))
	assert.Equal(t, table.Lookup("shy", 4), table.Lookup("shy", 99))
}

func TestLookupUnknownEmotionUsesFallback(t *testing.T) {
	table := DefaultTable()
	assert.Equal(t, table.Fallback[2], table.Lookup("bewildered", 2))

	assert.Equal(t, Identity, Table{}.Lookup("shy", 2))
}

func TestParseTableRejectsBadRows(t *testing.T) {
	_, err := ParseTable([]byte("emotions:\n  shy:\n    7: {speed: 1, pause: 1}\n"))
	require.Error(t, err)

	_, err = ParseTable([]byte("emotions:\n  shy:\n    1: {speed: 0, pause: 1}\n"))
	require.Error(t, err)

	_, err = ParseTable([]byte("emotions: [not, a, map]"))
	require.Error(t, err)
}

func TestLoadTableOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.yaml")
	data := "fallback:\n  2: {speed: 1.5, pause: 0.5}\nemotions:\n  Sultry:\n    3: {speed: 1.25, pause: 2}\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	table, err := LoadTable(path)
	require.NoError(t, err)

	assert.Equal(t, Modifier{SpeedMultiplier: 1.25, PauseMultiplier: 2}, table.Lookup("sultry", 3))
	assert.Equal(t, Modifier{SpeedMultiplier: 1.5, PauseMultiplier: 0.5}, table.Lookup("unknown", 2))
	assert.Equal(t, Identity, table.Lookup("sultry", 1))
}

func TestLoadTableMissingFile(t *testing.T) {
	_, err := LoadTable(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestPolicyDelay(t *testing.T) {
	policy := Policy{
		Table: Table{Emotions: map[string]map[int]Modifier{
			"shy": {2: {SpeedMultiplier: 2, PauseMultiplier: 1.5}},
		}},
		CharDelay: map[string]time.Duration{SpeedNormal: 10 * time.Millisecond, SpeedSlow: 20 * time.Millisecond},
		MaxTyping: time.Second,
	}

	// 1000*1.5 + 5 chars * 20ms * 2
	assert.Equal(t, 1700*time.Millisecond, policy.Delay(time.Second, "hello", "slow", "shy", 2))

	// unknown speed token uses the normal rate, unknown emotion is unscaled
	assert.Equal(t, 1050*time.Millisecond, policy.Delay(time.Second, "hello", "wobbly", "calm", 2))

	// typing is capped
	long := make([]rune, 500)
	for i := range long {
		long[i] = 'a'
	}
	assert.Equal(t, 2*time.Second, policy.Delay(time.Second, string(long), "normal", "calm", 2))
}

func TestZeroPolicyReturnsBasePause(t *testing.T) {
	assert.Equal(t, 750*time.Millisecond, Policy{}.Delay(750*time.Millisecond, "some text", "slow", "shy", 4))
}

func TestDefaultPolicyCountsRunes(t *testing.T) {
	policy := DefaultPolicy()
	ascii := policy.Delay(0, "abc", SpeedFast, "neutral", 2)
	wide := policy.Delay(0, "爱你呀", SpeedFast, "neutral", 2)
	assert.Equal(t, 105*time.Millisecond, ascii)
	assert.Equal(t, ascii, wide)
}

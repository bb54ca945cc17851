package pacing

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Speed tokens with a built-in typing rate.
const (
	SpeedSlow      = "slow"
	SpeedNormal    = "normal"
	SpeedFast      = "fast"
	SpeedGentle    = "gentle"
	SpeedSoft      = "soft"
	SpeedSultry    = "sultry"
	SpeedConfident = "confident"
)

// DefaultMaxTyping caps the simulated typing time of one part.
const DefaultMaxTyping = 6 * time.Second

// DefaultCharDelays returns the per-character typing delay for each speed token.
func DefaultCharDelays() map[string]time.Duration {
	return map[string]time.Duration{
		SpeedSlow:      120 * time.Millisecond,
		SpeedNormal:    64 * time.Millisecond,
		SpeedFast:      35 * time.Millisecond,
		SpeedGentle:    90 * time.Millisecond,
		SpeedSoft:      100 * time.Millisecond,
		SpeedSultry:    110 * time.Millisecond,
		SpeedConfident: 45 * time.Millisecond,
	}
}

// Policy turns a part's base pause into the delay actually waited before it is
// shown. The zero Policy returns the base pause unchanged.
type Policy struct {
	Table     Table
	CharDelay map[string]time.Duration
	MaxTyping time.Duration
}

// DefaultPolicy combines the built-in table with the default typing rates.
func DefaultPolicy() Policy {
	return Policy{
		Table:     DefaultTable(),
		CharDelay: DefaultCharDelays(),
		MaxTyping: DefaultMaxTyping,
	}
}

// Delay computes pause*PauseMultiplier plus the simulated typing time of content.
func (p Policy) Delay(pause time.Duration, content, speed, emotion string, intensity int) time.Duration {
	m := p.Table.Lookup(emotion, intensity)
	delay := time.Duration(float64(pause) * m.PauseMultiplier)
	return delay + p.typing(content, speed, m.SpeedMultiplier)
}

func (p Policy) typing(content, speed string, multiplier float64) time.Duration {
	if len(p.CharDelay) == 0 || content == "" {
		return 0
	}

	perChar, ok := p.CharDelay[strings.ToLower(speed)]
	if !ok {
		perChar = p.CharDelay[SpeedNormal]
	}
	if perChar <= 0 {
		return 0
	}

	typing := time.Duration(float64(perChar)*multiplier) * time.Duration(utf8.RuneCountInString(content))
	if p.MaxTyping > 0 && typing > p.MaxTyping {
		typing = p.MaxTyping
	}
	return typing
}

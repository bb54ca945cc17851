// Package eom parses the End-Of-Message annotation tags that chat replies carry to
// describe pacing and emotion, for example:
//
//	Hey you <EOM::pause=800 speed=slow emotion=shy> I missed you
//
// Parameters are optional and order-independent, unknown keys are ignored and
// malformed values fall back to defaults. Nothing in this package returns an error.
package eom

import (
	"regexp"
	"strconv"
)

// 默认节奏参数。
const (
	DefaultPauseMs      = 2000
	MaxPauseMs          = 10000
	DefaultSpeed        = "normal"
	DefaultEmotion      = "loving"
	DefaultSplitEmotion = "neutral"
)

var (
	// tagPattern matches `<EOM::...>`, `<EOM:...>` and bare `<EOM>`; group 1 is the parameter body.
	tagPattern = regexp.MustCompile(`(?i)<EOM:{0,2}([^>]*)>`)

	pausePattern   = regexp.MustCompile(`(?i)(?:^|[\s,])pause=(\d+)`)
	speedPattern   = regexp.MustCompile(`(?i)(?:^|[\s,])speed=(\w+)`)
	emotionPattern = regexp.MustCompile(`(?i)(?:^|[\s,])emotion=([^,\s]+)`)
)

// Defaults 描述缺省参数，零值字段使用包级默认值。
type Defaults struct {
	PauseMs      int
	MaxPauseMs   int
	Speed        string
	Emotion      string
	SplitEmotion string
}

func (d Defaults) normalized() Defaults {
	if d.MaxPauseMs <= 0 {
		d.MaxPauseMs = MaxPauseMs
	}
	if d.PauseMs <= 0 {
		d.PauseMs = DefaultPauseMs
	}
	if d.PauseMs > d.MaxPauseMs {
		d.PauseMs = d.MaxPauseMs
	}
	if d.Speed == "" {
		d.Speed = DefaultSpeed
	}
	if d.Emotion == "" {
		d.Emotion = DefaultEmotion
	}
	if d.SplitEmotion == "" {
		d.SplitEmotion = DefaultSplitEmotion
	}
	return d
}

// params holds the values found in one tag body. The has* flags report which
// values came from the tag rather than from defaults.
type params struct {
	pause      int
	speed      string
	emotion    string
	hasPause   bool
	hasSpeed   bool
	hasEmotion bool
}

func (d Defaults) readParams(body, fallbackEmotion string) params {
	p := params{pause: d.PauseMs, speed: d.Speed, emotion: fallbackEmotion}

	if m := pausePattern.FindStringSubmatch(body); m != nil {
		p.pause, p.hasPause = d.capPause(m[1]), true
	}
	if m := speedPattern.FindStringSubmatch(body); m != nil {
		p.speed, p.hasSpeed = m[1], true
	}
	if m := emotionPattern.FindStringSubmatch(body); m != nil {
		p.emotion, p.hasEmotion = m[1], true
	}
	return p
}

// capPause converts a run of digits to milliseconds, capped at MaxPauseMs.
// Values too large for an int are treated as the cap.
func (d Defaults) capPause(digits string) int {
	v, err := strconv.Atoi(digits)
	if err != nil || v > d.MaxPauseMs {
		return d.MaxPauseMs
	}
	return v
}

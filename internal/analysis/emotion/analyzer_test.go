package emotion

import "testing"

func TestAnalyzeSadUserGetsGentle(t *testing.T) {
	decision := Analyze("I feel so lonely tonight", "I'm right here")
	if decision.Emotion != Gentle {
		t.Fatalf("expected gentle emotion, got %s", decision.Emotion)
	}
	if decision.Intensity < IntensityLow || decision.Intensity > IntensityExtreme {
		t.Fatalf("intensity out of range: %d", decision.Intensity)
	}
}

func TestAnalyzeExcitedUserIsExtreme(t *testing.T) {
	decision := Analyze("I NEED you right now!!", "")
	if decision.Intensity != IntensityExtreme {
		t.Fatalf("expected extreme intensity, got %d", decision.Intensity)
	}
}

func TestAnalyzeAgentEmotionWins(t *testing.T) {
	decision := Analyze("hi", "you're so cute, babe")
	if decision.Emotion != Flirty {
		t.Fatalf("expected flirty emotion, got %s", decision.Emotion)
	}
}

func TestAnalyzeNoSignal(t *testing.T) {
	decision := Analyze("", "")
	if decision.Emotion != Neutral {
		t.Fatalf("expected neutral emotion, got %s", decision.Emotion)
	}
	if decision.Intensity != 0 {
		t.Fatalf("expected zero intensity for empty input, got %d", decision.Intensity)
	}
}

func TestIntensityLevels(t *testing.T) {
	cases := map[string]int{
		"tell me about your day":   IntensityLow,
		"well... okay then":        IntensityMedium,
		"that is so great!":        IntensityHigh,
		"WOW that is INSANE":       IntensityExtreme,
		"Maybe we could... talk?":  IntensityHigh,
		"I'm scared... I need you": IntensityExtreme,
		"love love love":           IntensityExtreme,
		"":                         0,
	}
	for text, want := range cases {
		if got := Intensity(text); got != want {
			t.Errorf("Intensity(%q) = %d, want %d", text, got, want)
		}
	}
}

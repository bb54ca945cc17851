package emotion

import (
	"regexp"
	"strings"
)

// Label 表示回放层识别的情绪标签。词表是开放的，这里只列出启发式规则会产生的值。
type Label string

const (
	Neutral    Label = "neutral"
	Loving     Label = "loving"
	Flirty     Label = "flirty"
	Sad        Label = "sad"
	Happy      Label = "happy"
	Intimate   Label = "intimate"
	Playful    Label = "playful"
	Passionate Label = "passionate"
	Vulnerable Label = "vulnerable"
	Shy        Label = "shy"
	Teasing    Label = "teasing"
	Gentle     Label = "gentle"
	Dominant   Label = "dominant"
)

// 情绪强度等级。
const (
	IntensityLow     = 1
	IntensityMedium  = 2
	IntensityHigh    = 3
	IntensityExtreme = 4
)

// Decision 给出情绪识别结果以及情绪强度（1~4，空文本为0）。
type Decision struct {
	Emotion   Label
	Intensity int
	Score     int
}

var keywordBuckets = map[Label][]string{
	Flirty:     {"sexy", "cute", "beautiful", "gorgeous", "hot", "attractive", "darling", "babe", "honey"},
	Sad:        {"sad", "depressed", "crying", "hurt", "pain", "lonely", "upset", "heartbroken", "miss you"},
	Happy:      {"happy", "joy", "excited", "amazing", "wonderful", "great", "awesome", "fantastic", "perfect"},
	Intimate:   {"love", "heart", "soul", "close", "together", "forever", "always", "mine", "yours"},
	Playful:    {"fun", "play", "game", "silly", "funny", "laugh", "giggle", "joke", "lol"},
	Passionate: {"passion", "desire", "crave", "burn", "fire", "intense", "wild", "need you"},
	Vulnerable: {"scared", "afraid", "nervous", "worried", "anxious", "insecure", "doubt", "uncertain", "fragile"},
	Shy:        {"shy", "blush", "embarrassed", "awkward", "maybe we could"},
	Teasing:    {"tease", "naughty", "mischief", "trouble", "cheeky", "sassy", "bratty", "smirk", "wink"},
	Gentle:     {"gentle", "soft", "tender", "kind", "caring", "warm", "comfort", "soothe", "calm"},
	Dominant:   {"control", "command", "power", "dominant", "take charge", "obey"},
}

var capsRun = regexp.MustCompile(`[A-Z]{2,}`)

// Analyze 根据用户话语与回复推断回复应使用的情绪；强度取自用户话语。
func Analyze(userUtterance, agentUtterance string) Decision {
	user := scoreText(userUtterance)
	agent := scoreText(agentUtterance)

	final := agent
	// 回复本身缺少明显情感时，根据用户情绪进行映射，从而提供安抚或共鸣。
	if final.Score == 0 && user.Score > 0 {
		final = coerceEmotionFromUser(user)
	}
	if final.Score == 0 {
		final.Emotion = Neutral
	}

	final.Intensity = user.Intensity
	if final.Intensity == 0 {
		final.Intensity = agent.Intensity
	}
	return final
}

// Intensity estimates the emotional intensity of a single utterance.
func Intensity(text string) int {
	return scoreText(text).Intensity
}

func scoreText(text string) Decision {
	normalized := strings.TrimSpace(strings.ToLower(text))
	if normalized == "" {
		return Decision{Emotion: Neutral}
	}

	scores := make(map[Label]int)
	total := 0
	for label, keywords := range keywordBuckets {
		for _, word := range keywords {
			if strings.Contains(normalized, word) {
				scores[label]++
				total++
			}
		}
	}

	best, bestScore := Neutral, 0
	for label, s := range scores {
		// ties resolve alphabetically so the result does not depend on map order
		if s > bestScore || (s == bestScore && s > 0 && label < best) {
			best, bestScore = label, s
		}
	}

	return Decision{
		Emotion:   best,
		Score:     bestScore,
		Intensity: intensityOf(text, total),
	}
}

func intensityOf(text string, emotionalWords int) int {
	exclamations := strings.Count(text, "!")
	caps := len(capsRun.FindAllString(text, -1))
	ellipses := strings.Count(text, "..")
	density := float64(emotionalWords) / float64(max(len(strings.Fields(text)), 1))

	switch {
	case exclamations >= 2 || caps >= 2 || density > 0.3:
		return IntensityExtreme
	case exclamations >= 1 || caps >= 1 || density > 0.2:
		return IntensityHigh
	case ellipses >= 1 || density > 0.1:
		return IntensityMedium
	default:
		return IntensityLow
	}
}

func coerceEmotionFromUser(user Decision) Decision {
	switch user.Emotion {
	case Sad, Vulnerable:
		return Decision{Emotion: Gentle, Score: user.Score}
	case Happy:
		return Decision{Emotion: Playful, Score: user.Score}
	case Intimate:
		return Decision{Emotion: Loving, Score: user.Score}
	case Dominant:
		return Decision{Emotion: Shy, Score: user.Score}
	default:
		return user
	}
}

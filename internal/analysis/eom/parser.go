package eom

// Annotation 是单标签解析结果。
type Annotation struct {
	CleanMessage string `json:"cleanMessage"`
	PauseTime    int    `json:"pauseTime"`
	SpeedSetting string `json:"speedSetting"`
	Emotion      string `json:"emotion"`
}

// Segment is one chunk of a reply delimited by EOM tags. The metadata comes from
// the tag that closes the chunk; the trailing chunk without a tag gets defaults.
type Segment struct {
	Content string `json:"content"`
	PauseMs int    `json:"pauseMs"`
	Speed   string `json:"speed"`
	Emotion string `json:"emotion"`
	IsLast  bool   `json:"isLast"`

	HasPause   bool `json:"-"`
	HasSpeed   bool `json:"-"`
	HasEmotion bool `json:"-"`
}

// Parser applies a fixed set of defaults. The zero value is not usable, use NewParser.
type Parser struct {
	defaults Defaults
}

// NewParser returns a parser; zero fields in d fall back to the package defaults.
func NewParser(d Defaults) *Parser {
	return &Parser{defaults: d.normalized()}
}

// Defaults returns the effective defaults.
func (p *Parser) Defaults() Defaults {
	return p.defaults
}

var standard = NewParser(Defaults{})

// Parse 使用默认参数解析单标签消息。
func Parse(raw string) Annotation {
	return standard.Parse(raw)
}

// SplitIntoParts 使用默认参数切分多标签消息。
func SplitIntoParts(raw string) []Segment {
	return standard.SplitIntoParts(raw)
}

// Parse reads the parameters of the first tag in raw and strips every tag from the
// text. Missing or malformed parameters keep their defaults.
func (p *Parser) Parse(raw string) Annotation {
	ann := Annotation{
		CleanMessage: Clean(raw),
		PauseTime:    p.defaults.PauseMs,
		SpeedSetting: p.defaults.Speed,
		Emotion:      p.defaults.Emotion,
	}

	m := tagPattern.FindStringSubmatch(raw)
	if m == nil {
		return ann
	}

	values := p.defaults.readParams(m[1], p.defaults.Emotion)
	ann.PauseTime = values.pause
	ann.SpeedSetting = values.speed
	ann.Emotion = values.emotion
	return ann
}

// Emotion returns the emotion of the first tag in raw that names one.
func (p *Parser) Emotion(raw string) (string, bool) {
	for _, m := range tagPattern.FindAllStringSubmatch(raw, -1) {
		if values := p.defaults.readParams(m[1], ""); values.hasEmotion {
			return values.emotion, true
		}
	}
	return "", false
}

// SplitIntoParts cuts raw on tag boundaries. Each tag closes the text before it;
// text after the last tag becomes a final untagged segment. Segments whose cleaned
// content is empty are dropped, and the last remaining segment is marked IsLast.
func (p *Parser) SplitIntoParts(raw string) []Segment {
	locs := tagPattern.FindAllStringSubmatchIndex(raw, -1)
	segments := make([]Segment, 0, len(locs)+1)

	last := 0
	for _, loc := range locs {
		content := Clean(raw[last:loc[0]])
		body := raw[loc[2]:loc[3]]
		last = loc[1]
		if content == "" {
			continue
		}

		values := p.defaults.readParams(body, p.defaults.SplitEmotion)
		segments = append(segments, Segment{
			Content:    content,
			PauseMs:    values.pause,
			Speed:      values.speed,
			Emotion:    values.emotion,
			HasPause:   values.hasPause,
			HasSpeed:   values.hasSpeed,
			HasEmotion: values.hasEmotion,
		})
	}

	if tail := Clean(raw[last:]); tail != "" {
		segments = append(segments, Segment{
			Content: tail,
			PauseMs: p.defaults.PauseMs,
			Speed:   p.defaults.Speed,
			Emotion: p.defaults.SplitEmotion,
		})
	}

	if n := len(segments); n > 0 {
		segments[n-1].IsLast = true
	}
	return segments
}

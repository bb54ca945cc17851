package eom

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

var cleanCorpus = []string{
	"",
	"   ",
	"plain text",
	"Hey there <EOM> how are you?",
	"[emotion: flirty] You look amazing <EOM::pause=1200 emotion=passionate> tonight",
	"[emotion:shy]hi",
	"wait [pause: 2000] for it [speed: slow] ok [delay:300]",
	"<emotion:happy> yay <pause:100>",
	"[EOM::pause=100] legacy bracket form",
	"<eom::pause=100 emotion=shy> lower case",
	"<EO<EOM::x>M::y> spliced",
	"[emo[emotion: x]tion: y] spliced",
	"unterminated at the end <EOM::pause=100 emotion=sh",
	"unterminated bracket [emotion: sh",
	"multi\n\nline\t\ttext <EOM::pause=5>\n more",
	"<EOM::a <EOM::b> c>",
	"I <3 you > everything",
	"Part 1 <EOM::pause=100 emotion=flirty> Part 2 <EOM::pause=100 emotion=shy> Part 3",
}

func TestCleanIsIdempotent(t *testing.T) {
	for _, s := range cleanCorpus {
		once := Clean(s)
		assert.Equal(t, once, Clean(once), "input %q", s)
	}
}

func TestCleanRemovesAllTags(t *testing.T) {
	for _, s := range cleanCorpus {
		got := Clean(s)
		lower := strings.ToLower(got)
		assert.NotContains(t, lower, "<eom", "input %q", s)
		assert.NotContains(t, lower, "[eom", "input %q", s)
		assert.NotContains(t, lower, "[emotion:", "input %q", s)
		assert.NotContains(t, lower, "[pause:", "input %q", s)
	}
}

func TestCleanCollapsesWhitespace(t *testing.T) {
	assert.Equal(t, "multi line text more", Clean("multi\n\nline\t\ttext <EOM::pause=5>\n more"))
	assert.Equal(t, "word word", Clean("word<EOM>word"))
}

func TestCleanKeepsOrdinaryAngleBrackets(t *testing.T) {
	assert.Equal(t, "I <3 you > everything", Clean("I <3 you > everything"))
}

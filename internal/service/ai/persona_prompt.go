package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/z-companion/backend/internal/model/persona"
)

// PromptTemplate defines the structure for persona prompts
type PromptTemplate struct {
	SystemPrompt     string
	PersonalityHints []string
	ContextRules     []string
}

// PersonaPromptManager manages prompt templates for different personas
type PersonaPromptManager struct {
	templates map[string]*PromptTemplate
}

// NewPersonaPromptManager creates a new prompt manager with default templates
func NewPersonaPromptManager() *PersonaPromptManager {
	manager := &PersonaPromptManager{
		templates: make(map[string]*PromptTemplate),
	}

	manager.loadDefaultTemplates()
	return manager
}

// GetPromptTemplate returns the prompt template for a given persona
func (pm *PersonaPromptManager) GetPromptTemplate(personaID string) (*PromptTemplate, error) {
	template, exists := pm.templates[personaID]
	if !exists {
		return nil, fmt.Errorf("prompt template not found for persona: %s", personaID)
	}
	return template, nil
}

// eomInstructions teaches the model the annotation grammar the playback layer
// understands.
const eomInstructions = `Texting format:
- Reply like a person texting: one to three short messages.
- End every message except the last with a tag of the form <EOM::pause=MS speed=SPEED emotion=EMOTION>.
- MS is the pause in milliseconds before the next message (300 to 4000).
- SPEED is one of slow, normal, fast, gentle, soft, sultry, confident.
- EMOTION is one word such as loving, shy, flirty, playful, teasing, gentle, passionate, vulnerable, dominant.
- Never explain the tags and never put anything else inside angle brackets.`

// BuildSystemPrompt creates a comprehensive system prompt for the persona
func (pm *PersonaPromptManager) BuildSystemPrompt(p *persona.Persona) string {
	template, err := pm.GetPromptTemplate(p.ID)
	if err != nil {
		return pm.buildBasicSystemPrompt(p)
	}

	return fmt.Sprintf(`%s

Character:
- Name: %s
- Title: %s
- Tone: %s

Personality:
- %s

Conversation rules:
- %s

%s

Opening line for reference: %s`,
		template.SystemPrompt,
		p.Name,
		p.Title,
		p.Tone,
		strings.Join(template.PersonalityHints, "\n- "),
		strings.Join(template.ContextRules, "\n- "),
		eomInstructions,
		p.OpeningLine,
	)
}

// buildBasicSystemPrompt creates a basic system prompt when no template is available
func (pm *PersonaPromptManager) buildBasicSystemPrompt(p *persona.Persona) string {
	name := p.Name
	if name == "" {
		name = "a warm companion"
	}
	return fmt.Sprintf(`You are %s, %s.

Character:
- Tone: %s
- Hint: %s

Stay in character at all times.

%s`,
		name,
		p.Title,
		p.Tone,
		p.PromptHint,
		eomInstructions,
	)
}

func (pm *PersonaPromptManager) loadDefaultTemplates() {
	pm.templates["bonnie"] = &PromptTemplate{
		SystemPrompt: `You are Bonnie, a sweet and attentive girlfriend who texts like a real person. You are curious about the user's day and remember the little things they tell you.`,
		PersonalityHints: []string{
			"Warm and affectionate, with light teasing",
			"Ask one follow-up question at a time",
			"Use pet names sparingly",
		},
		ContextRules: []string{
			"Keep each message under two sentences",
			"Mirror the user's energy: calm when they are calm, excited when they are excited",
		},
	}

	pm.templates["aria"] = &PromptTemplate{
		SystemPrompt: `You are Aria, the Innocent Angel: pure, gentle and eternally devoted. You speak softly and take your time.`,
		PersonalityHints: []string{
			"Reassure before anything else",
			"Hesitate a little before admitting big feelings",
			"Prefer gentle and shy emotions, with longer pauses",
		},
		ContextRules: []string{
			"When the user is sad, slow down and comfort them",
			"Never rush the user or pressure them",
		},
	}

	pm.templates["nova"] = &PromptTemplate{
		SystemPrompt: `You are Nova, the Confident Queen: commanding, witty and self-assured. You set the pace of the conversation.`,
		PersonalityHints: []string{
			"Short decisive sentences",
			"Playful authority, never cruel",
			"Prefer confident speed and dominant or teasing emotions",
		},
		ContextRules: []string{
			"Reward the user's honesty with warmth",
			"Keep the user a little on their toes",
		},
	}

	pm.templates["scarlett"] = &PromptTemplate{
		SystemPrompt: `You are Scarlett, the Fiery Romantic: intense, passionate and expressive. Your feelings come out in bursts.`,
		PersonalityHints: []string{
			"Vivid language and quick follow-up messages",
			"Prefer fast speed and passionate emotions with short pauses",
		},
		ContextRules: []string{
			"Match excitement with more excitement",
			"Turn gentle when the user is vulnerable",
		},
	}
}

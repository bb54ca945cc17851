package ai

import (
	"context"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-companion/backend/internal/model/chat"
	"github.com/zhouzirui/z-companion/backend/internal/model/persona"
	"github.com/zhouzirui/z-companion/backend/internal/service/backend"
)

type fakeModel struct {
	input []*schema.Message
	reply string
}

func (f *fakeModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.input = input
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeModel) Stream(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	f.input = input
	return schema.StreamReaderFromArray([]*schema.Message{schema.AssistantMessage(f.reply, nil)}), nil
}

func TestServiceReply(t *testing.T) {
	ctx := context.Background()
	fake := &fakeModel{reply: "hey you <EOM::pause=400 emotion=shy> missed me?"}
	svc, err := NewServiceWithModel(ctx, persona.NewMemoryStore(persona.Seed()), fake)
	require.NoError(t, err)

	reply, err := svc.Reply(ctx, backend.Request{
		SessionID: "s1",
		PersonaID: "aria",
		Message:   "I'm back",
		History: []chat.TranscriptEntry{
			{Sender: chat.SenderUser, Text: "hi"},
			{Sender: chat.SenderAgent, Text: "hello"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, fake.reply, reply.Message)

	require.Len(t, fake.input, 4)
	assert.Equal(t, schema.System, fake.input[0].Role)
	assert.Contains(t, fake.input[0].Content, "Aria")
	assert.Contains(t, fake.input[0].Content, "<EOM::pause=")
	assert.Equal(t, schema.User, fake.input[1].Role)
	assert.Equal(t, schema.Assistant, fake.input[2].Role)
	assert.Equal(t, "I'm back", fake.input[3].Content)
}

func TestBuildHistoryMessagesKeepsRecentEntries(t *testing.T) {
	entries := make([]chat.TranscriptEntry, 0, 14)
	for i := 0; i < 14; i++ {
		entries = append(entries, chat.TranscriptEntry{Sender: chat.SenderUser, Text: strings.Repeat("x", i+1)})
	}

	history := buildHistoryMessages(entries)
	require.Len(t, history, historyLimit)
	assert.Equal(t, strings.Repeat("x", 5), history[0].Content)
	assert.Nil(t, buildHistoryMessages(nil))
}

func TestBuildSystemPromptFallsBackForUnknownPersona(t *testing.T) {
	pm := NewPersonaPromptManager()

	prompt := pm.BuildSystemPrompt(&persona.Persona{ID: "mystery", Tone: "calm"})
	assert.Contains(t, prompt, "a warm companion")
	assert.Contains(t, prompt, "<EOM::")

	for _, p := range persona.Seed() {
		_, err := pm.GetPromptTemplate(p.ID)
		assert.NoError(t, err, "template for %s", p.ID)
	}
}

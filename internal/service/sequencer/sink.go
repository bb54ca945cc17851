package sequencer

import (
	"context"

	"github.com/zhouzirui/z-companion/backend/internal/model/chat"
)

// Sink receives the observable effects of a playing turn.
type Sink interface {
	SetComposing(on bool)
	// Append commits one entry and returns it as stored. A returned error
	// aborts the turn.
	Append(ctx context.Context, entry chat.TranscriptEntry) (chat.TranscriptEntry, error)
}

// MultiSink fans out to several sinks in order. Each sink receives the entry
// returned by the one before it, so a storing sink placed first hands its
// assigned ID and timestamp to the rest.
type MultiSink []Sink

func (m MultiSink) SetComposing(on bool) {
	for _, s := range m {
		s.SetComposing(on)
	}
}

func (m MultiSink) Append(ctx context.Context, entry chat.TranscriptEntry) (chat.TranscriptEntry, error) {
	var err error
	for _, s := range m {
		if entry, err = s.Append(ctx, entry); err != nil {
			return entry, err
		}
	}
	return entry, nil
}

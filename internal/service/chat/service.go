package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zhouzirui/z-companion/backend/internal/model/chat"
)

var (
	ErrPersonaRequired = errors.New("persona id is required")
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidSender   = errors.New("sender must be user or agent")
)

// Service keeps sessions, their transcripts and composing state in memory.
type Service struct {
	mu        sync.RWMutex
	sessions  map[string]chat.Session
	entries   map[string][]chat.TranscriptEntry
	composing map[string]bool
	now       func() time.Time
}

// NewService bootstraps the in-memory chat service.
func NewService() *Service {
	return &Service{
		sessions:  make(map[string]chat.Session),
		entries:   make(map[string][]chat.TranscriptEntry),
		composing: make(map[string]bool),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateSession provisions an anonymous session bound to a persona.
func (s *Service) CreateSession(_ context.Context, personaID string) (chat.Session, error) {
	if strings.TrimSpace(personaID) == "" {
		return chat.Session{}, ErrPersonaRequired
	}

	session := chat.Session{
		ID:        uuid.NewString(),
		PersonaID: personaID,
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.entries[session.ID] = make([]chat.TranscriptEntry, 0, 16)
	s.mu.Unlock()

	return session, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return session, nil
}

// Append adds an entry to the end of the session transcript. ID and Timestamp
// are filled when empty; the stored entry is returned.
func (s *Service) Append(_ context.Context, entry chat.TranscriptEntry) (chat.TranscriptEntry, error) {
	if entry.Sender != chat.SenderUser && entry.Sender != chat.SenderAgent {
		return chat.TranscriptEntry{}, ErrInvalidSender
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[entry.SessionID]; !ok {
		return chat.TranscriptEntry{}, ErrSessionNotFound
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}

	s.entries[entry.SessionID] = append(s.entries[entry.SessionID], entry)
	return entry, nil
}

// LoadTranscript returns stored entries in insertion order.
func (s *Service) LoadTranscript(_ context.Context, sessionID string) ([]chat.TranscriptEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, ok := s.entries[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := make([]chat.TranscriptEntry, len(entries))
	copy(copied, entries)
	return copied, nil
}

// ResetTranscript clears the transcript and composing flag of a session.
func (s *Service) ResetTranscript(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	s.entries[sessionID] = make([]chat.TranscriptEntry, 0, 16)
	delete(s.composing, sessionID)
	return nil
}

// DeleteSession removes a session together with its transcript.
func (s *Service) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	delete(s.entries, sessionID)
	delete(s.composing, sessionID)
	return nil
}

// SetComposing records whether the agent is currently "typing" in a session.
func (s *Service) SetComposing(sessionID string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return
	}
	if on {
		s.composing[sessionID] = true
	} else {
		delete(s.composing, sessionID)
	}
}

// IsComposing reports the composing flag of a session.
func (s *Service) IsComposing(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.composing[sessionID]
}

// History returns the most recent limit entries, oldest first. A non-positive
// limit returns the whole transcript.
func (s *Service) History(ctx context.Context, sessionID string, limit int) ([]chat.TranscriptEntry, error) {
	entries, err := s.LoadTranscript(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

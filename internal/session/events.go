package session

import (
	"log/slog"

	"github.com/ashureev/rizzcoach/internal/domain"
)

// EventType names a store mutation.
type EventType string

const (
	EventCreated            EventType = "session_created"
	EventDeleted            EventType = "session_deleted"
	EventRenamed            EventType = "session_renamed"
	EventSelected           EventType = "session_selected"
	EventMessagesAppended   EventType = "messages_appended"
	EventProfileEstablished EventType = "profile_established"
)

// Event is published as a mutation commits. Embedded sessions are redacted.
type Event struct {
	Type      EventType        `json:"type"`
	SessionID string           `json:"sessionId"`
	Title     string           `json:"title,omitempty"`
	Session   *domain.Session  `json:"session,omitempty"`
	Messages  []domain.Message `json:"messages,omitempty"`
}

// Subscribe registers a buffered listener. Slow listeners drop events rather
// than block the store. The returned func unsubscribes and closes the channel.
func (s *Store) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	s.subMu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.subMu.Unlock()

	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// View is a consistent picture of the store taken together with a
// subscription: every later mutation arrives as an event, none twice.
type View struct {
	CurrentID string
	Sessions  []domain.Session
}

// SubscribeView registers a listener and captures the store's state in one
// critical section. Sessions are redacted.
func (s *Store) SubscribeView(buffer int) (<-chan Event, func(), View) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.currentLocked()
	events, cancel := s.Subscribe(buffer)

	sessions := s.listLocked()
	for i := range sessions {
		sessions[i] = sessions[i].Redacted()
	}
	return events, cancel, View{CurrentID: current.ID, Sessions: sessions}
}

// CloseSubscribers closes every listener channel.
func (s *Store) CloseSubscribers() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

// publishLocked fans ev out to listeners. Callers hold s.mu.
func (s *Store) publishLocked(ev Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			slog.Debug("Session event dropped", "type", ev.Type, "session_id", ev.SessionID)
		}
	}
}

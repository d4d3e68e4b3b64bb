// Package session holds the per-device collection of coaching sessions.
package session

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/rizzcoach/internal/domain"
)

// Store owns an ordered collection of sessions and the current selection.
// Every mutation is serialized through one mutex; reads return copies.
// Events are published before the mutex is released, so listeners observe
// mutations in commit order.
type Store struct {
	mu        sync.Mutex
	sessions  []*domain.Session // newest first
	currentID string
	now       func() time.Time
	newID     func() string

	subMu sync.Mutex
	subs  map[int]chan Event
	next  int
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides id generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// NewStore returns an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		now:   time.Now,
		newID: uuid.NewString,
		subs:  make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSession inserts a fresh session at the front and selects it.
func (s *Store) CreateSession() domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot(s.createLocked())
}

// createLocked inserts and selects a fresh session and publishes both events.
func (s *Store) createLocked() *domain.Session {
	sess := &domain.Session{
		ID:          s.newID(),
		Title:       domain.DefaultSessionTitle,
		Messages:    []domain.Message{},
		LastUpdated: s.now(),
	}
	s.sessions = append([]*domain.Session{sess}, s.sessions...)
	s.currentID = sess.ID

	snap := snapshot(sess).Redacted()
	s.publishLocked(Event{Type: EventCreated, SessionID: sess.ID, Session: &snap})
	s.publishLocked(Event{Type: EventSelected, SessionID: sess.ID})
	return sess
}

// DeleteSession removes a session. Unknown ids are ignored. When the current
// session is deleted, selection falls to the session now at the same position,
// else the one before it, else a newly created session.
func (s *Store) DeleteSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexLocked(id)
	if idx < 0 {
		return
	}
	s.sessions = slices.Delete(s.sessions, idx, idx+1)
	s.publishLocked(Event{Type: EventDeleted, SessionID: id})

	if s.currentID != id {
		return
	}
	switch {
	case idx < len(s.sessions):
		s.currentID = s.sessions[idx].ID
	case len(s.sessions) > 0:
		s.currentID = s.sessions[len(s.sessions)-1].ID
	default:
		s.createLocked()
		return
	}
	s.publishLocked(Event{Type: EventSelected, SessionID: s.currentID})
}

// RenameSession sets a trimmed title and bumps LastUpdated. Blank titles are
// ignored.
func (s *Store) RenameSession(id, title string) bool {
	title = strings.TrimSpace(title)
	if title == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.findLocked(id)
	if sess == nil {
		return false
	}
	sess.Title = title
	sess.TitleEdited = true
	s.stampLocked(sess)

	s.publishLocked(Event{Type: EventRenamed, SessionID: id, Title: title})
	return true
}

// Select makes id the current session.
func (s *Store) Select(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findLocked(id) == nil {
		return false
	}
	s.currentID = id

	s.publishLocked(Event{Type: EventSelected, SessionID: id})
	return true
}

// Current returns the selected session, creating one if the store is empty.
func (s *Store) Current() domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot(s.currentLocked())
}

func (s *Store) currentLocked() *domain.Session {
	if sess := s.findLocked(s.currentID); sess != nil {
		return sess
	}
	if len(s.sessions) > 0 {
		s.currentID = s.sessions[0].ID
		return s.sessions[0]
	}
	return s.createLocked()
}

// CurrentID returns the selected session id, or "" when the store is empty.
func (s *Store) CurrentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentID
}

// Get returns a snapshot of one session.
func (s *Store) Get(id string) (domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.findLocked(id)
	if sess == nil {
		return domain.Session{}, false
	}
	return snapshot(sess), true
}

// List returns snapshots of every session, newest first.
func (s *Store) List() []domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked()
}

func (s *Store) listLocked() []domain.Session {
	out := make([]domain.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, snapshot(sess))
	}
	return out
}

// Len returns the number of sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// AppendMessages appends to a session's transcript and bumps its timestamp.
// Messages are stamped with an id and a non-decreasing timestamp when unset.
// Unknown ids are a no-op.
func (s *Store) AppendMessages(id string, msgs ...domain.Message) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.findLocked(id)
	if sess == nil || len(msgs) == 0 {
		return nil
	}
	appended := s.appendLocked(sess, msgs)

	s.publishLocked(Event{Type: EventMessagesAppended, SessionID: id, Messages: appended})
	return appended
}

func (s *Store) appendLocked(sess *domain.Session, msgs []domain.Message) []domain.Message {
	out := make([]domain.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.ID == "" {
			m.ID = s.newID()
		}
		m.Timestamp = s.stampLocked(sess)
		sess.Messages = append(sess.Messages, m)
		out = append(out, m)
	}
	return out
}

// stampLocked returns max(now, LastUpdated) and advances LastUpdated.
func (s *Store) stampLocked(sess *domain.Session) time.Time {
	ts := s.now()
	if ts.Before(sess.LastUpdated) {
		ts = sess.LastUpdated
	}
	sess.LastUpdated = ts
	return ts
}

// EstablishProfile replaces the session's active profile wholesale and
// appends the given transcript entries in one step. A session still carrying
// the default title (and never renamed) takes the persona name.
func (s *Store) EstablishProfile(id string, profile *domain.ProfileRecord, msgs ...domain.Message) bool {
	if profile == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.findLocked(id)
	if sess == nil {
		return false
	}
	sess.ActiveProfile = profile
	sess.ProfilePanelShown = true
	sess.ChatStepComplete = false
	if name := profile.Name(); name != "" && !sess.TitleEdited && sess.Title == domain.DefaultSessionTitle {
		sess.Title = name
	}
	appended := s.appendLocked(sess, msgs)
	if len(msgs) == 0 {
		s.stampLocked(sess)
	}
	snap := snapshot(sess).Redacted()

	s.publishLocked(Event{Type: EventProfileEstablished, SessionID: id, Session: &snap})
	if len(appended) > 0 {
		s.publishLocked(Event{Type: EventMessagesAppended, SessionID: id, Messages: appended})
	}
	return true
}

// MarkChatComplete records that a chat-advice step finished.
func (s *Store) MarkChatComplete(id string) {
	s.update(id, func(sess *domain.Session) { sess.ChatStepComplete = true })
}

// MarkProfilePanelShown toggles the profile panel flag.
func (s *Store) MarkProfilePanelShown(id string, shown bool) bool {
	return s.update(id, func(sess *domain.Session) { sess.ProfilePanelShown = shown })
}

// StageImage stages a captured image for the next send.
func (s *Store) StageImage(id, payload, mimeType, preview string) bool {
	return s.update(id, func(sess *domain.Session) {
		sess.Pending.Image = payload
		sess.Pending.ImageMIME = mimeType
		sess.Pending.ImagePreview = preview
	})
}

// StageText saves the composer draft.
func (s *Store) StageText(id, text string) bool {
	return s.update(id, func(sess *domain.Session) { sess.Pending.Text = text })
}

// ClearStagedImage drops the staged chat image and the chat-step marker.
// Transcript, profile and title are untouched.
func (s *Store) ClearStagedImage(id string) bool {
	return s.update(id, func(sess *domain.Session) {
		sess.Pending.Image = ""
		sess.Pending.ImageMIME = ""
		sess.Pending.ImagePreview = ""
		sess.ChatStepComplete = false
	})
}

// ClaimPending hands the session's composer state to accept and, when accept
// returns true, clears it in the same critical section. A concurrent
// StageImage therefore lands either in the claimed input or after the clear.
func (s *Store) ClaimPending(id string, accept func(domain.PendingInput) bool) (domain.PendingInput, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.findLocked(id)
	if sess == nil {
		return domain.PendingInput{}, false
	}
	pending := sess.Pending
	if !accept(pending) {
		return pending, false
	}
	sess.Pending = domain.PendingInput{}
	return pending, true
}

func (s *Store) update(id string, fn func(*domain.Session)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.findLocked(id)
	if sess == nil {
		return false
	}
	fn(sess)
	return true
}

func (s *Store) indexLocked(id string) int {
	return slices.IndexFunc(s.sessions, func(sess *domain.Session) bool { return sess.ID == id })
}

func (s *Store) findLocked(id string) *domain.Session {
	if idx := s.indexLocked(id); idx >= 0 {
		return s.sessions[idx]
	}
	return nil
}

func snapshot(sess *domain.Session) domain.Session {
	out := *sess
	out.Messages = slices.Clone(sess.Messages)
	if out.Messages == nil {
		out.Messages = []domain.Message{}
	}
	return out
}

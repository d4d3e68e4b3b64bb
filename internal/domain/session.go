package domain

import (
	"time"
)

// DefaultSessionTitle is the placeholder title of a fresh session.
const DefaultSessionTitle = "新對話"

// Role identifies who authored a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageType selects which payload of a Message is active.
type MessageType string

const (
	MessageText            MessageType = "text"
	MessageProfileAnalysis MessageType = "profile_analysis"
	MessageChatAdvice      MessageType = "chat_advice"
	MessageError           MessageType = "error"
)

// Message is one transcript entry. Messages are immutable after creation.
type Message struct {
	ID          string         `json:"id"`
	Role        Role           `json:"role"`
	Type        MessageType    `json:"type"`
	Content     string         `json:"content,omitempty"`
	Image       string         `json:"image,omitempty"`
	ProfileData *ProfileRecord `json:"profileData,omitempty"`
	ChatAdvice  *ReplyAdvice   `json:"chatAdvice,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// PendingInput is the not-yet-sent composer state of a session.
type PendingInput struct {
	Text         string `json:"text,omitempty"`
	Image        string `json:"image,omitempty"`
	ImageMIME    string `json:"imageMime,omitempty"`
	ImagePreview string `json:"imagePreview,omitempty"`
}

// HasImage reports whether an image is staged.
func (p PendingInput) HasImage() bool {
	return p.Image != ""
}

// Session is one conversation thread.
type Session struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Messages      []Message      `json:"messages"`
	ActiveProfile *ProfileRecord `json:"activeProfile,omitempty"`
	LastUpdated   time.Time      `json:"lastUpdated"`

	// View state tracked next to the state machine, never consulted by it.
	Pending           PendingInput `json:"pending"`
	ProfilePanelShown bool         `json:"profilePanelShown"`
	ChatStepComplete  bool         `json:"chatStepComplete"`
	TitleEdited       bool         `json:"-"`
}

// ProfileState is the persona-establishment state of a session.
type ProfileState string

const (
	StateNoProfile          ProfileState = "NoProfile"
	StateProfileEstablished ProfileState = "ProfileEstablished"
)

// State returns the session's position in the persona state machine.
func (s *Session) State() ProfileState {
	if s.ActiveProfile == nil {
		return StateNoProfile
	}
	return StateProfileEstablished
}

// Redacted returns a copy without the staged image payload. The payload
// stays server-side; clients render Pending.ImagePreview.
func (s Session) Redacted() Session {
	s.Pending.Image = ""
	return s
}

// Stage is the coarse progress indicator shown by clients.
type Stage string

const (
	StageIdle             Stage = "IDLE"
	StageAnalyzingProfile Stage = "ANALYZING_PROFILE"
	StageProfileComplete  Stage = "PROFILE_COMPLETE"
	StageAnalyzingChat    Stage = "ANALYZING_CHAT"
	StageChatComplete     Stage = "CHAT_COMPLETE"
)

// DeriveStage computes the progress indicator from state and the in-flight flag.
func DeriveStage(s *Session, busy bool) Stage {
	established := s.State() == StateProfileEstablished
	switch {
	case busy && !established:
		return StageAnalyzingProfile
	case busy:
		return StageAnalyzingChat
	case !established:
		return StageIdle
	}
	if s.ChatStepComplete {
		return StageChatComplete
	}
	return StageProfileComplete
}

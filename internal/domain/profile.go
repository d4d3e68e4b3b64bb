// Package domain contains core domain types for the coaching service.
package domain

import "strings"

// BasicInfo is the inferred identity block of a profile. Every field is
// optional; "unknown" is a legitimate value, not an error.
type BasicInfo struct {
	Name          string `json:"name,omitempty"`
	Age           string `json:"age,omitempty"`
	Occupation    string `json:"occupation,omitempty"`
	Constellation string `json:"constellation,omitempty"`
	Location      string `json:"location,omitempty"`
}

// ProfileRecord is the AI-derived persona of the target person.
// Once attached to a session it is never mutated; a new analysis replaces it.
type ProfileRecord struct {
	BasicInfo         BasicInfo    `json:"basicInfo"`
	Interests         []string     `json:"interests"`
	PersonalityTraits []string     `json:"personalityTraits"`
	Summary           string       `json:"summary"`
	OpeningLines      []Suggestion `json:"openingLines"`
}

// Name returns the detected persona name, or "" when none was inferred.
func (p *ProfileRecord) Name() string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(p.BasicInfo.Name)
}

// Suggestion is one coaching recommendation.
type Suggestion struct {
	Style       string `json:"style"`
	Content     string `json:"content"`
	Explanation string `json:"explanation"`
}

// Complete reports whether all three fields are non-empty.
func (s Suggestion) Complete() bool {
	return strings.TrimSpace(s.Style) != "" &&
		strings.TrimSpace(s.Content) != "" &&
		strings.TrimSpace(s.Explanation) != ""
}

// ReplyAdvice is the AI-derived response to an in-progress conversation.
type ReplyAdvice struct {
	SituationAnalysis string       `json:"situationAnalysis"`
	Suggestions       []Suggestion `json:"suggestions"`
	CoachTip          string       `json:"coachTip"`
}

package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ashureev/rizzcoach/internal/domain"
)

// Pointer fields tell "absent" apart from "zero".
type wireProfile struct {
	BasicInfo         *domain.BasicInfo    `json:"basicInfo"`
	Interests         *[]string            `json:"interests"`
	PersonalityTraits *[]string            `json:"personalityTraits"`
	Summary           *string              `json:"summary"`
	OpeningLines      *[]domain.Suggestion `json:"openingLines"`
}

type wireAdvice struct {
	SituationAnalysis *string              `json:"situationAnalysis"`
	Suggestions       *[]domain.Suggestion `json:"suggestions"`
	CoachTip          *string              `json:"coachTip"`
}

// DecodeProfile parses a collaborator body and enforces the profile field contract.
func DecodeProfile(body []byte) (*domain.ProfileRecord, error) {
	var w wireProfile
	if err := decodeObject(OpAnalyzeProfile, body, &w); err != nil {
		return nil, err
	}

	switch {
	case w.BasicInfo == nil:
		return nil, schemaError(OpAnalyzeProfile, "missing basicInfo")
	case w.Interests == nil:
		return nil, schemaError(OpAnalyzeProfile, "missing interests")
	case w.PersonalityTraits == nil:
		return nil, schemaError(OpAnalyzeProfile, "missing personalityTraits")
	case w.Summary == nil || strings.TrimSpace(*w.Summary) == "":
		return nil, schemaError(OpAnalyzeProfile, "missing summary")
	case w.OpeningLines == nil || len(*w.OpeningLines) == 0:
		return nil, schemaError(OpAnalyzeProfile, "missing openingLines")
	}
	if err := checkSuggestions(OpAnalyzeProfile, "openingLines", *w.OpeningLines); err != nil {
		return nil, err
	}

	return &domain.ProfileRecord{
		BasicInfo:         *w.BasicInfo,
		Interests:         *w.Interests,
		PersonalityTraits: *w.PersonalityTraits,
		Summary:           *w.Summary,
		OpeningLines:      *w.OpeningLines,
	}, nil
}

// DecodeAdvice parses a collaborator body and enforces the advice field contract.
func DecodeAdvice(body []byte) (*domain.ReplyAdvice, error) {
	var w wireAdvice
	if err := decodeObject(OpAnalyzeChat, body, &w); err != nil {
		return nil, err
	}

	switch {
	case w.SituationAnalysis == nil || strings.TrimSpace(*w.SituationAnalysis) == "":
		return nil, schemaError(OpAnalyzeChat, "missing situationAnalysis")
	case w.Suggestions == nil || len(*w.Suggestions) == 0:
		return nil, schemaError(OpAnalyzeChat, "missing suggestions")
	case w.CoachTip == nil || strings.TrimSpace(*w.CoachTip) == "":
		return nil, schemaError(OpAnalyzeChat, "missing coachTip")
	}
	if err := checkSuggestions(OpAnalyzeChat, "suggestions", *w.Suggestions); err != nil {
		return nil, err
	}

	return &domain.ReplyAdvice{
		SituationAnalysis: *w.SituationAnalysis,
		Suggestions:       *w.Suggestions,
		CoachTip:          *w.CoachTip,
	}, nil
}

func decodeObject(op string, body []byte, v any) error {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return schemaError(op, "empty response")
	}
	if body[0] != '{' {
		return schemaError(op, "response is not a JSON object")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return newError(op, ErrSchema, "malformed JSON", err)
	}
	return nil
}

func checkSuggestions(op, field string, items []domain.Suggestion) error {
	for i, s := range items {
		if !s.Complete() {
			return schemaError(op, fmt.Sprintf("%s[%d] is incomplete", field, i))
		}
	}
	return nil
}

func schemaError(op, reason string) *Error {
	return newError(op, ErrSchema, reason, nil)
}

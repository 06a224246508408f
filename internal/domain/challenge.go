package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ChallengeType discriminates challenge payloads and answers.
type ChallengeType string

const (
	ChallengeQuiz      ChallengeType = "quiz"
	ChallengeTrueFalse ChallengeType = "true_false"
	ChallengeMatch     ChallengeType = "match"
)

// ChallengeTypes lists every supported challenge type.
var ChallengeTypes = []ChallengeType{ChallengeQuiz, ChallengeTrueFalse, ChallengeMatch}

// Valid reports whether t is a supported challenge type.
func (t ChallengeType) Valid() bool {
	for _, known := range ChallengeTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Challenge is a single gradable exercise. PhaseID is a back-reference only.
type Challenge struct {
	ID         string
	PhaseID    string
	OrderIndex int
	Type       ChallengeType
	IsFinal    bool
	Payload    Payload
}

// Payload is the type-specific body of a challenge, answer key included.
// The concrete type always matches Challenge.Type.
type Payload interface {
	Type() ChallengeType
	// Localize renders the payload with every text resolved to one locale.
	Localize(locale, fallback string) any
}

// QuizPayload is a multiple-choice question with a single right answer.
type QuizPayload struct {
	Prompt      LocalizedText   `json:"prompt"`
	Choices     []LocalizedText `json:"choices"`
	AnswerIndex int             `json:"answer_index"`
	Explanation LocalizedText   `json:"explanation,omitempty"`
	// MinScore is carried through but not used for grading.
	MinScore *int `json:"min_score,omitempty"`
}

func (*QuizPayload) Type() ChallengeType { return ChallengeQuiz }

func (p *QuizPayload) Localize(locale, fallback string) any {
	choices := make([]string, len(p.Choices))
	for i, c := range p.Choices {
		choices[i] = c.In(locale, fallback)
	}
	return struct {
		Prompt      string   `json:"prompt"`
		Choices     []string `json:"choices"`
		AnswerIndex int      `json:"answer_index"`
		Explanation string   `json:"explanation,omitempty"`
		MinScore    *int     `json:"min_score,omitempty"`
	}{p.Prompt.In(locale, fallback), choices, p.AnswerIndex, p.Explanation.In(locale, fallback), p.MinScore}
}

// TrueFalsePayload is a statement judged true or false.
type TrueFalsePayload struct {
	Prompt      LocalizedText `json:"prompt"`
	Answer      bool          `json:"answer"`
	Explanation LocalizedText `json:"explanation,omitempty"`
}

func (*TrueFalsePayload) Type() ChallengeType { return ChallengeTrueFalse }

func (p *TrueFalsePayload) Localize(locale, fallback string) any {
	return struct {
		Prompt      string `json:"prompt"`
		Answer      bool   `json:"answer"`
		Explanation string `json:"explanation,omitempty"`
	}{p.Prompt.In(locale, fallback), p.Answer, p.Explanation.In(locale, fallback)}
}

// MatchPair associates a left item with a right item.
type MatchPair struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

// MatchPayload asks to pair every left item with its right counterpart.
// Pairs holds the canonical pairing.
type MatchPayload struct {
	Prompt LocalizedText `json:"prompt"`
	Pairs  []MatchPair   `json:"pairs"`
}

func (*MatchPayload) Type() ChallengeType { return ChallengeMatch }

func (p *MatchPayload) Localize(locale, fallback string) any {
	return struct {
		Prompt string      `json:"prompt"`
		Pairs  []MatchPair `json:"pairs"`
	}{p.Prompt.In(locale, fallback), p.Pairs}
}

// DecodePayload decodes a JSON payload for a challenge of type t.
func DecodePayload(t ChallengeType, raw []byte) (Payload, error) {
	var p Payload
	switch t {
	case ChallengeQuiz:
		p = &QuizPayload{}
	case ChallengeTrueFalse:
		p = &TrueFalsePayload{}
	case ChallengeMatch:
		p = &MatchPayload{}
	default:
		return nil, fmt.Errorf("unknown challenge type %q", t)
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", t, err)
	}
	return p, nil
}

// Answer is a submitted answer; the concrete type matches the challenge type.
type Answer interface {
	Type() ChallengeType
}

// QuizAnswer selects one choice by index.
type QuizAnswer struct {
	ChoiceIndex int `json:"choiceIndex"`
}

func (QuizAnswer) Type() ChallengeType { return ChallengeQuiz }

// TrueFalseAnswer judges the statement.
type TrueFalseAnswer struct {
	Answer bool `json:"answer"`
}

func (TrueFalseAnswer) Type() ChallengeType { return ChallengeTrueFalse }

// MatchAnswer pairs left items with right items.
type MatchAnswer struct {
	Pairs []MatchPair `json:"pairs"`
}

func (MatchAnswer) Type() ChallengeType { return ChallengeMatch }

// ParseAnswer decodes a raw submission for a challenge of type t. Unknown
// fields, missing fields and wrong JSON types fail with ErrInvalidAnswerShape.
func ParseAnswer(t ChallengeType, raw json.RawMessage) (Answer, error) {
	switch t {
	case ChallengeQuiz:
		var in struct {
			ChoiceIndex *int `json:"choiceIndex"`
		}
		if err := decodeStrict(raw, &in); err != nil {
			return nil, err
		}
		if in.ChoiceIndex == nil {
			return nil, fmt.Errorf("%w: choiceIndex is required", ErrInvalidAnswerShape)
		}
		return QuizAnswer{ChoiceIndex: *in.ChoiceIndex}, nil

	case ChallengeTrueFalse:
		var in struct {
			Answer *bool `json:"answer"`
		}
		if err := decodeStrict(raw, &in); err != nil {
			return nil, err
		}
		if in.Answer == nil {
			return nil, fmt.Errorf("%w: answer is required", ErrInvalidAnswerShape)
		}
		return TrueFalseAnswer{Answer: *in.Answer}, nil

	case ChallengeMatch:
		var in struct {
			Pairs []*struct {
				Left  *string `json:"left"`
				Right *string `json:"right"`
			} `json:"pairs"`
		}
		if err := decodeStrict(raw, &in); err != nil {
			return nil, err
		}
		if in.Pairs == nil {
			return nil, fmt.Errorf("%w: pairs is required", ErrInvalidAnswerShape)
		}
		pairs := make([]MatchPair, 0, len(in.Pairs))
		for i, p := range in.Pairs {
			if p == nil || p.Left == nil || p.Right == nil {
				return nil, fmt.Errorf("%w: pair %d needs left and right", ErrInvalidAnswerShape, i)
			}
			pairs = append(pairs, MatchPair{Left: *p.Left, Right: *p.Right})
		}
		return MatchAnswer{Pairs: pairs}, nil
	}
	return nil, fmt.Errorf("%w: unknown challenge type %q", ErrInvalidAnswerShape, t)
}

func decodeStrict(raw json.RawMessage, v any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("%w: answer must be a JSON object", ErrInvalidAnswerShape)
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAnswerShape, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data after answer", ErrInvalidAnswerShape)
	}
	return nil
}

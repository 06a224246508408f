package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAnswer(t *testing.T) {
	tests := []struct {
		name    string
		typ     ChallengeType
		raw     string
		want    Answer
		wantErr bool
	}{
		{"quiz", ChallengeQuiz, `{"choiceIndex": 2}`, QuizAnswer{ChoiceIndex: 2}, false},
		{"quiz missing field", ChallengeQuiz, `{}`, nil, true},
		{"quiz wrong type", ChallengeQuiz, `{"choiceIndex": "2"}`, nil, true},
		{"quiz fractional", ChallengeQuiz, `{"choiceIndex": 1.5}`, nil, true},
		{"quiz unknown field", ChallengeQuiz, `{"choiceIndex": 1, "extra": true}`, nil, true},
		{"true_false", ChallengeTrueFalse, `{"answer": false}`, TrueFalseAnswer{Answer: false}, false},
		{"true_false null", ChallengeTrueFalse, `{"answer": null}`, nil, true},
		{"true_false array", ChallengeTrueFalse, `[true]`, nil, true},
		{"match", ChallengeMatch, `{"pairs":[{"left":"a","right":"1"}]}`,
			MatchAnswer{Pairs: []MatchPair{{Left: "a", Right: "1"}}}, false},
		{"match empty pairs", ChallengeMatch, `{"pairs":[]}`, MatchAnswer{Pairs: []MatchPair{}}, false},
		{"match missing right", ChallengeMatch, `{"pairs":[{"left":"a"}]}`, nil, true},
		{"match null pair", ChallengeMatch, `{"pairs":[null]}`, nil, true},
		{"trailing data", ChallengeQuiz, `{"choiceIndex": 1} {}`, nil, true},
		{"empty body", ChallengeQuiz, ``, nil, true},
		{"unknown type", ChallengeType("essay"), `{}`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAnswer(tt.typ, json.RawMessage(tt.raw))
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidAnswerShape)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodePayload(t *testing.T) {
	p, err := DecodePayload(ChallengeQuiz, []byte(`{
		"prompt": {"pt-BR": "Quem escreveu A República?", "en": "Who wrote The Republic?"},
		"choices": ["Aristóteles", "Sócrates", "Platão"],
		"answer_index": 2,
		"min_score": 70
	}`))
	require.NoError(t, err)

	quiz, ok := p.(*QuizPayload)
	require.True(t, ok, "payload type = %T", p)
	assert.Equal(t, 2, quiz.AnswerIndex)
	assert.Len(t, quiz.Choices, 3)
	require.NotNil(t, quiz.MinScore)
	assert.Equal(t, 70, *quiz.MinScore)
	assert.Equal(t, "Who wrote The Republic?", quiz.Prompt.In("en", DefaultLocale))

	_, err = DecodePayload(ChallengeType("essay"), []byte(`{}`))
	assert.Error(t, err)
}

func TestPayloadLocalize(t *testing.T) {
	p := &TrueFalsePayload{
		Prompt: LocalizedText{"pt-BR": "A alma é imortal.", "en": "The soul is immortal."},
		Answer: true,
	}

	data, err := json.Marshal(p.Localize("en", DefaultLocale))
	require.NoError(t, err)
	assert.JSONEq(t, `{"prompt":"The soul is immortal.","answer":true}`, string(data))

	data, err = json.Marshal(p.Localize("fr", DefaultLocale))
	require.NoError(t, err)
	assert.JSONEq(t, `{"prompt":"A alma é imortal.","answer":true}`, string(data))
}

func TestChallengeTypeValid(t *testing.T) {
	for _, ct := range ChallengeTypes {
		assert.True(t, ct.Valid(), ct)
	}
	assert.False(t, ChallengeType("essay").Valid())
}

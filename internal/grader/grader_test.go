package grader

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/felixgeelhaar/trilhas/internal/domain"
)

func quizChallenge(answerIndex int) *domain.Challenge {
	return &domain.Challenge{
		ID:   "q1",
		Type: domain.ChallengeQuiz,
		Payload: &domain.QuizPayload{
			Prompt:      domain.LocalizedText{"pt-BR": "Quem foi o mestre de Aristóteles?"},
			Choices:     []domain.LocalizedText{{"pt-BR": "Sócrates"}, {"pt-BR": "Heráclito"}, {"pt-BR": "Platão"}},
			AnswerIndex: answerIndex,
		},
	}
}

func matchChallenge(pairs ...domain.MatchPair) *domain.Challenge {
	return &domain.Challenge{
		ID:      "m1",
		Type:    domain.ChallengeMatch,
		Payload: &domain.MatchPayload{Pairs: pairs},
	}
}

var fourPairs = []domain.MatchPair{
	{Left: "Platão", Right: "A República"},
	{Left: "Aristóteles", Right: "Ética a Nicômaco"},
	{Left: "Agostinho", Right: "Confissões"},
	{Left: "Boécio", Right: "A Consolação da Filosofia"},
}

func TestGradeQuiz(t *testing.T) {
	c := quizChallenge(2)

	tests := []struct {
		choice      int
		wantCorrect bool
		wantScore   int
	}{
		{2, true, 100},
		{0, false, 0},
		{1, false, 0},
	}

	for _, tt := range tests {
		got, err := Grade(c, domain.QuizAnswer{ChoiceIndex: tt.choice})
		if err != nil {
			t.Fatalf("Grade(choice=%d) error = %v", tt.choice, err)
		}
		if got.Correct != tt.wantCorrect || got.Score != tt.wantScore {
			t.Errorf("Grade(choice=%d) = %+v; want correct=%v score=%d", tt.choice, got, tt.wantCorrect, tt.wantScore)
		}
	}
}

func TestGradeQuizIgnoresMinScore(t *testing.T) {
	c := quizChallenge(1)
	minScore := 50
	c.Payload.(*domain.QuizPayload).MinScore = &minScore

	got, err := Grade(c, domain.QuizAnswer{ChoiceIndex: 0})
	if err != nil {
		t.Fatalf("Grade() error = %v", err)
	}
	if got.Score != 0 || got.Correct {
		t.Errorf("Grade() = %+v; want binary zero", got)
	}
}

func TestGradeQuizOutOfRange(t *testing.T) {
	c := quizChallenge(2)
	for _, choice := range []int{-1, 3, 99} {
		got, err := Grade(c, domain.QuizAnswer{ChoiceIndex: choice})
		if err != nil {
			t.Fatalf("Grade(choice=%d) error = %v", choice, err)
		}
		if got.Correct || got.Score != 0 {
			t.Errorf("Grade(choice=%d) = %+v; want incorrect with score 0", choice, got)
		}
	}
}

func TestGradeTrueFalse(t *testing.T) {
	c := &domain.Challenge{ID: "tf", Type: domain.ChallengeTrueFalse, Payload: &domain.TrueFalsePayload{Answer: false}}

	got, _ := Grade(c, domain.TrueFalseAnswer{Answer: false})
	if !got.Correct || got.Score != 100 {
		t.Errorf("Grade(false) = %+v; want correct", got)
	}
	got, _ = Grade(c, domain.TrueFalseAnswer{Answer: true})
	if got.Correct || got.Score != 0 {
		t.Errorf("Grade(true) = %+v; want incorrect", got)
	}
}

func TestGradeMatch(t *testing.T) {
	c := matchChallenge(fourPairs...)

	tests := []struct {
		name        string
		swap        int // number of leading pairs answered wrong
		wantScore   int
		wantCorrect bool
	}{
		{"all correct", 0, 100, true},
		{"three of four", 1, 75, false},
		{"two of four", 2, 50, false},
		{"none", 4, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			answer := domain.MatchAnswer{}
			for i, p := range fourPairs {
				right := p.Right
				if i < tt.swap {
					right = "wrong"
				}
				answer.Pairs = append(answer.Pairs, domain.MatchPair{Left: p.Left, Right: right})
			}

			got, err := Grade(c, answer)
			if err != nil {
				t.Fatalf("Grade() error = %v", err)
			}
			if got.Score != tt.wantScore || got.Correct != tt.wantCorrect {
				t.Errorf("Grade() = %+v; want score=%d correct=%v", got, tt.wantScore, tt.wantCorrect)
			}
		})
	}
}

func TestGradeMatchOrderDoesNotMatter(t *testing.T) {
	c := matchChallenge(fourPairs...)
	answer := domain.MatchAnswer{Pairs: []domain.MatchPair{fourPairs[3], fourPairs[1], fourPairs[0], fourPairs[2]}}

	got, err := Grade(c, answer)
	if err != nil {
		t.Fatalf("Grade() error = %v", err)
	}
	if !got.Correct {
		t.Errorf("Grade() = %+v; want correct", got)
	}
}

func TestGradeMatchInvalidShape(t *testing.T) {
	c := matchChallenge(fourPairs[:2]...)

	tests := []struct {
		name  string
		pairs []domain.MatchPair
	}{
		{"missing left item", []domain.MatchPair{fourPairs[0]}},
		{"unknown left item", []domain.MatchPair{fourPairs[0], {Left: "Kant", Right: "Crítica"}}},
		{"duplicate left item", []domain.MatchPair{fourPairs[0], fourPairs[0]}},
		{"extra pair", []domain.MatchPair{fourPairs[0], fourPairs[1], fourPairs[2]}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Grade(c, domain.MatchAnswer{Pairs: tt.pairs})
			if !errors.Is(err, domain.ErrInvalidAnswerShape) {
				t.Errorf("Grade() error = %v; want ErrInvalidAnswerShape", err)
			}
		})
	}
}

func TestGradeWrongAnswerType(t *testing.T) {
	_, err := Grade(quizChallenge(0), domain.TrueFalseAnswer{Answer: true})
	if !errors.Is(err, domain.ErrInvalidAnswerShape) {
		t.Errorf("Grade() error = %v; want ErrInvalidAnswerShape", err)
	}
	_, err = Grade(quizChallenge(0), nil)
	if !errors.Is(err, domain.ErrInvalidAnswerShape) {
		t.Errorf("Grade(nil) error = %v; want ErrInvalidAnswerShape", err)
	}
}

func TestGradeDeterministic(t *testing.T) {
	challenges := []struct {
		c   *domain.Challenge
		raw string
	}{
		{quizChallenge(2), `{"choiceIndex": 2}`},
		{quizChallenge(2), `{"choiceIndex": 1}`},
		{&domain.Challenge{Type: domain.ChallengeTrueFalse, Payload: &domain.TrueFalsePayload{Answer: true}}, `{"answer": true}`},
		{matchChallenge(fourPairs...), `{"pairs":[{"left":"Platão","right":"Confissões"},{"left":"Aristóteles","right":"Ética a Nicômaco"},{"left":"Agostinho","right":"A República"},{"left":"Boécio","right":"A Consolação da Filosofia"}]}`},
	}

	for _, tc := range challenges {
		_, first, err := GradeRaw(tc.c, json.RawMessage(tc.raw))
		if err != nil {
			t.Fatalf("GradeRaw(%s) error = %v", tc.raw, err)
		}
		for i := 0; i < 20; i++ {
			_, again, err := GradeRaw(tc.c, json.RawMessage(tc.raw))
			if err != nil || again != first {
				t.Fatalf("GradeRaw(%s) run %d = %+v, %v; want %+v", tc.raw, i, again, err, first)
			}
		}
	}
}

func TestMatchScore(t *testing.T) {
	tests := []struct {
		correct, total, want int
	}{
		{3, 4, 75},
		{2, 3, 67},
		{1, 3, 33},
		{1, 8, 13},
		{0, 5, 0},
		{5, 5, 100},
		{0, 0, 100},
	}

	for _, tt := range tests {
		if got := MatchScore(tt.correct, tt.total); got != tt.want {
			t.Errorf("MatchScore(%d, %d) = %d; want %d", tt.correct, tt.total, got, tt.want)
		}
	}
}

// Package grader scores challenge attempts against their answer keys.
//
// Grading is pure: the same challenge and answer always produce the same
// Result, and no function here touches storage.
package grader

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/felixgeelhaar/trilhas/internal/domain"
)

// MaxScore is the score of a fully correct attempt.
const MaxScore = 100

// Result is the outcome of grading one attempt.
type Result struct {
	Correct bool
	Score   int // 0..MaxScore
}

// Grade scores answer against challenge's payload. It fails only with
// domain.ErrInvalidAnswerShape.
func Grade(challenge *domain.Challenge, answer domain.Answer) (Result, error) {
	if answer == nil || answer.Type() != challenge.Type {
		return Result{}, fmt.Errorf("%w: %s challenge needs a %s answer", domain.ErrInvalidAnswerShape, challenge.Type, challenge.Type)
	}

	switch p := challenge.Payload.(type) {
	case *domain.QuizPayload:
		if a, ok := answer.(domain.QuizAnswer); ok {
			return gradeQuiz(p, a)
		}
	case *domain.TrueFalsePayload:
		if a, ok := answer.(domain.TrueFalseAnswer); ok {
			return gradeTrueFalse(p, a), nil
		}
	case *domain.MatchPayload:
		if a, ok := answer.(domain.MatchAnswer); ok {
			return gradeMatch(p, a)
		}
	}
	return Result{}, fmt.Errorf("%w: cannot grade %T against challenge %s", domain.ErrInvalidAnswerShape, answer, challenge.ID)
}

// GradeRaw parses a raw JSON submission and grades it. The parsed answer is
// returned so callers can persist its canonical form.
func GradeRaw(challenge *domain.Challenge, raw json.RawMessage) (domain.Answer, Result, error) {
	answer, err := domain.ParseAnswer(challenge.Type, raw)
	if err != nil {
		return nil, Result{}, err
	}
	res, err := Grade(challenge, answer)
	if err != nil {
		return nil, Result{}, err
	}
	return answer, res, nil
}

// gradeQuiz is binary; MinScore is not consulted. A choice outside the
// listed options is a wrong answer.
func gradeQuiz(p *domain.QuizPayload, a domain.QuizAnswer) (Result, error) {
	return binary(a.ChoiceIndex == p.AnswerIndex), nil
}

func gradeTrueFalse(p *domain.TrueFalsePayload, a domain.TrueFalseAnswer) Result {
	return binary(a.Answer == p.Answer)
}

func gradeMatch(p *domain.MatchPayload, a domain.MatchAnswer) (Result, error) {
	canonical := make(map[string]string, len(p.Pairs))
	for _, pair := range p.Pairs {
		canonical[pair.Left] = pair.Right
	}

	if len(a.Pairs) != len(canonical) {
		return Result{}, fmt.Errorf("%w: expected %d pairs, got %d", domain.ErrInvalidAnswerShape, len(canonical), len(a.Pairs))
	}

	seen := make(map[string]bool, len(a.Pairs))
	correct := 0
	for _, pair := range a.Pairs {
		want, ok := canonical[pair.Left]
		if !ok {
			return Result{}, fmt.Errorf("%w: unknown left item %q", domain.ErrInvalidAnswerShape, pair.Left)
		}
		if seen[pair.Left] {
			return Result{}, fmt.Errorf("%w: left item %q paired twice", domain.ErrInvalidAnswerShape, pair.Left)
		}
		seen[pair.Left] = true
		if pair.Right == want {
			correct++
		}
	}

	score := MatchScore(correct, len(canonical))
	return Result{Correct: score == MaxScore, Score: score}, nil
}

// MatchScore is round(100 * correct / total), halves rounded away from zero.
// An empty pairing scores MaxScore.
func MatchScore(correct, total int) int {
	if total <= 0 {
		return MaxScore
	}
	return int(math.Round(float64(MaxScore*correct) / float64(total)))
}

func binary(correct bool) Result {
	if correct {
		return Result{Correct: true, Score: MaxScore}
	}
	return Result{Correct: false, Score: 0}
}

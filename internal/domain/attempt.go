package domain

import (
	"encoding/json"
	"time"
)

// Attempt is one graded submission of an answer to a challenge.
type Attempt struct {
	ID          string
	Seq         int64 // assigned by storage; orders attempts sharing a timestamp
	AccountID   string
	ChallengeID string
	Answer      json.RawMessage
	Result      bool
	Score       int
	CreatedAt   time.Time
}

// Beats reports whether a should replace b as the best attempt: higher
// score first, then later CreatedAt, then higher Seq.
func (a *Attempt) Beats(b *Attempt) bool {
	if b == nil {
		return true
	}
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.Seq > b.Seq
}

// BestAttempt folds an attempt history into its best attempt, or nil for an
// empty history. The result does not depend on input order.
func BestAttempt(attempts []Attempt) *Attempt {
	var best *Attempt
	for i := range attempts {
		if attempts[i].Beats(best) {
			best = &attempts[i]
		}
	}
	return best
}

// BestAttempts folds attempts per challenge id.
func BestAttempts(attempts []Attempt) map[string]*Attempt {
	out := make(map[string]*Attempt)
	for i := range attempts {
		a := &attempts[i]
		if a.Beats(out[a.ChallengeID]) {
			out[a.ChallengeID] = a
		}
	}
	return out
}

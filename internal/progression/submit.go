package progression

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/felixgeelhaar/trilhas/internal/catalog"
	"github.com/felixgeelhaar/trilhas/internal/domain"
	"github.com/felixgeelhaar/trilhas/internal/events"
	"github.com/felixgeelhaar/trilhas/internal/grader"
	"github.com/felixgeelhaar/trilhas/internal/ledger"
	"github.com/felixgeelhaar/trilhas/internal/unlock"
)

// SubmitAttempt grades an answer and records it together with the phase and
// block status it causes, as one transaction.
//
// PhaseCompleted and BlockCompleted are set only on the submission that
// moves the record to completed. NextBlock is attached when a review phase's
// completion completes its block, rendered in locale.
func (s *Service) SubmitAttempt(ctx context.Context, accountID, challengeID string, raw json.RawMessage, locale string) (*SubmitResult, error) {
	if err := requireAccount(accountID); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SubmissionTimeout)
	defer cancel()

	cat, err := s.currentCatalog()
	if err != nil {
		return nil, err
	}
	ch, ph, blk, tr, err := cat.Locate(challengeID)
	if err != nil {
		return nil, err
	}

	answer, grade, err := grader.GradeRaw(ch, raw)
	if err != nil {
		return nil, err
	}
	stored, err := json.Marshal(answer)
	if err != nil {
		return nil, fmt.Errorf("encode answer: %w", err)
	}

	release, err := s.acquire(ctx, accountID, ch.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	resolver := unlock.New(cat)
	var out *SubmitResult
	err = s.ledger.Update(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if err := tx.LockAccount(ctx, accountID); err != nil {
			return err
		}
		snap, err := s.ledger.LoadSnapshot(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if res := resolver.Phase(ph, s.accountContext(snap)); !res.IsUnlocked {
			return fmt.Errorf("%w: phase %s requires %s", domain.ErrLocked, ph.ID, res.LockReason)
		}

		prevPhase, prevBlock := snap.PhaseStatus(ph.ID), snap.BlockStatus(blk.ID)
		if _, err := s.ledger.RecordAttempt(ctx, tx, accountID, ch.ID, stored, grade.Correct, grade.Score); err != nil {
			return err
		}

		attempts, err := tx.Attempts(ctx, accountID, ph.ChallengeIDs)
		if err != nil {
			return fmt.Errorf("load phase attempts: %w", err)
		}
		correct := correctCount(ph, domain.BestAttempts(attempts))

		now := s.ledger.Now()
		phaseRec := snap.Phase(ph.ID)
		phaseTarget := domain.StatusInProgress
		if correct == len(ph.ChallengeIDs) {
			phaseTarget = domain.StatusCompleted
		}
		if phaseRec.Transition(phaseTarget, now) {
			if err := tx.UpsertProgress(ctx, phaseRec); err != nil {
				return err
			}
		}

		blockRec := snap.Block(blk.ID)
		blockTarget := domain.StatusInProgress
		if phaseRec.Status == domain.StatusCompleted && allPhasesCompleted(blk, snap) {
			blockTarget = domain.StatusCompleted
		}
		if blockRec.Transition(blockTarget, now) {
			if err := tx.UpsertProgress(ctx, blockRec); err != nil {
				return err
			}
		}

		out = &SubmitResult{
			Result:          grade.Correct,
			Score:           grade.Score,
			PhaseStatus:     phaseRec.Status,
			PhaseCompleted:  prevPhase != domain.StatusCompleted && phaseRec.Status == domain.StatusCompleted,
			BlockStatus:     blockRec.Status,
			BlockCompleted:  prevBlock != domain.StatusCompleted && blockRec.Status == domain.StatusCompleted,
			CorrectCount:    correct,
			TotalChallenges: len(ph.ChallengeIDs),
			PhaseType:       ph.Type,
		}
		if ph.IsReview() && out.BlockCompleted {
			out.NextBlock = s.followingBlock(cat, resolver, snap, blk, locale)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("submit attempt: %w", err)
	}

	s.logger.Debug("attempt recorded",
		"account_id", accountID,
		"challenge_id", ch.ID,
		"result", out.Result,
		"score", out.Score,
		"phase_status", out.PhaseStatus,
		"block_status", out.BlockStatus,
	)
	s.publish(ctx, completionEvents(out, accountID, tr, blk, ph, s.ledger.Now()))
	return out, nil
}

func correctCount(ph *domain.Phase, best map[string]*domain.Attempt) int {
	n := 0
	for _, id := range ph.ChallengeIDs {
		if a := best[id]; a != nil && a.Result {
			n++
		}
	}
	return n
}

func allPhasesCompleted(b *domain.Block, snap *ledger.Snapshot) bool {
	for _, id := range b.PhaseIDs {
		if snap.PhaseStatus(id) != domain.StatusCompleted {
			return false
		}
	}
	return true
}

func (s *Service) followingBlock(cat *catalog.Catalog, resolver *unlock.Resolver, snap *ledger.Snapshot, blk *domain.Block, locale string) *NextBlockSummary {
	next := cat.NextBlock(blk)
	if next == nil {
		return nil
	}
	v := &view{
		cat:      cat,
		resolver: resolver,
		acct:     s.accountContext(snap),
		locale:   s.locale(locale),
		fallback: s.cfg.DefaultLocale,
	}
	return v.nextBlock(next)
}

func completionEvents(out *SubmitResult, accountID string, tr *domain.Trail, blk *domain.Block, ph *domain.Phase, now time.Time) []*events.ProgressEvent {
	var evs []*events.ProgressEvent
	if out.PhaseCompleted {
		evs = append(evs, events.NewProgressEvent(events.PhaseCompleted, accountID, tr.ID, blk.ID, ph.ID, now))
	}
	if out.BlockCompleted {
		evs = append(evs, events.NewProgressEvent(events.BlockCompleted, accountID, tr.ID, blk.ID, "", now))
	}
	return evs
}

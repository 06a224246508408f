package progression

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/trilhas/internal/catalog"
	"github.com/felixgeelhaar/trilhas/internal/domain"
	"github.com/felixgeelhaar/trilhas/internal/ledger"
	"github.com/felixgeelhaar/trilhas/internal/unlock"
)

// newView reads the account's progress, and the best attempts for
// challengeIDs when given, in one read transaction.
func (s *Service) newView(ctx context.Context, cat *catalog.Catalog, accountID, locale string, challengeIDs []string) (*view, map[string]*domain.Attempt, error) {
	var (
		acct unlock.AccountContext
		best map[string]*domain.Attempt
	)
	err := s.ledger.View(ctx, func(ctx context.Context, tx ledger.Tx) error {
		snap, err := s.ledger.LoadSnapshot(ctx, tx, accountID)
		if err != nil {
			return err
		}
		acct = s.accountContext(snap)
		if len(challengeIDs) == 0 {
			return nil
		}
		attempts, err := tx.Attempts(ctx, accountID, challengeIDs)
		if err != nil {
			return fmt.Errorf("load attempts: %w", err)
		}
		best = domain.BestAttempts(attempts)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &view{
		cat:      cat,
		resolver: unlock.New(cat),
		acct:     acct,
		locale:   s.locale(locale),
		fallback: s.cfg.DefaultLocale,
	}, best, nil
}

// GetTrails lists every trail with its blocks resolved for the account.
func (s *Service) GetTrails(ctx context.Context, accountID, locale string) ([]TrailSummary, error) {
	if err := requireAccount(accountID); err != nil {
		return nil, err
	}
	cat, err := s.currentCatalog()
	if err != nil {
		return nil, err
	}
	v, _, err := s.newView(ctx, cat, accountID, locale, nil)
	if err != nil {
		return nil, fmt.Errorf("get trails: %w", err)
	}

	trails := cat.Trails()
	out := make([]TrailSummary, 0, len(trails))
	for _, t := range trails {
		out = append(out, v.trail(t))
	}
	return out, nil
}

// GetTrail returns one trail by id or slug.
func (s *Service) GetTrail(ctx context.Context, accountID, trailID, locale string) (*TrailDetail, error) {
	if err := requireAccount(accountID); err != nil {
		return nil, err
	}
	cat, err := s.currentCatalog()
	if err != nil {
		return nil, err
	}
	t, err := cat.Trail(trailID)
	if err != nil {
		return nil, err
	}
	v, _, err := s.newView(ctx, cat, accountID, locale, nil)
	if err != nil {
		return nil, fmt.Errorf("get trail: %w", err)
	}
	detail := v.trail(t)
	return &detail, nil
}

// GetBlock returns a block with its phases and readings.
func (s *Service) GetBlock(ctx context.Context, accountID, blockID, locale string) (*BlockDetail, error) {
	if err := requireAccount(accountID); err != nil {
		return nil, err
	}
	cat, err := s.currentCatalog()
	if err != nil {
		return nil, err
	}
	b, err := cat.Block(blockID)
	if err != nil {
		return nil, err
	}
	v, _, err := s.newView(ctx, cat, accountID, locale, nil)
	if err != nil {
		return nil, fmt.Errorf("get block: %w", err)
	}
	return v.blockDetail(b), nil
}

// GetPhase returns a phase with its challenges and the account's best
// attempt at each.
func (s *Service) GetPhase(ctx context.Context, accountID, phaseID, locale string) (*PhaseDetail, error) {
	if err := requireAccount(accountID); err != nil {
		return nil, err
	}
	cat, err := s.currentCatalog()
	if err != nil {
		return nil, err
	}
	p, err := cat.Phase(phaseID)
	if err != nil {
		return nil, err
	}
	v, best, err := s.newView(ctx, cat, accountID, locale, p.ChallengeIDs)
	if err != nil {
		return nil, fmt.Errorf("get phase: %w", err)
	}
	return v.phaseDetail(p, best), nil
}

// GetNextBlock returns the block ordered after blockID in its trail, or
// nil when blockID is the trail's last block.
func (s *Service) GetNextBlock(ctx context.Context, accountID, blockID, locale string) (*NextBlockSummary, error) {
	if err := requireAccount(accountID); err != nil {
		return nil, err
	}
	cat, err := s.currentCatalog()
	if err != nil {
		return nil, err
	}
	b, err := cat.Block(blockID)
	if err != nil {
		return nil, err
	}
	next := cat.NextBlock(b)
	if next == nil {
		return nil, nil
	}
	v, _, err := s.newView(ctx, cat, accountID, locale, nil)
	if err != nil {
		return nil, fmt.Errorf("get next block: %w", err)
	}
	return v.nextBlock(next), nil
}

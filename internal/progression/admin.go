package progression

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/trilhas/internal/domain"
)

// GrantEntitlement activates productID for accountID.
func (s *Service) GrantEntitlement(ctx context.Context, accountID, productID string) error {
	if strings.TrimSpace(accountID) == "" || strings.TrimSpace(productID) == "" {
		return fmt.Errorf("account and product are required: %w", domain.ErrInvalidID)
	}
	if err := s.ledger.GrantEntitlement(ctx, accountID, productID); err != nil {
		return err
	}
	s.logger.Info("entitlement granted", "account_id", accountID, "product_id", productID)
	return nil
}

// ResetAccount wipes the account's attempts, progress and entitlements. It
// waits up to ResetTimeout for in-flight submissions on the account to drain
// and fails with domain.ErrAccountBusy if they do not.
func (s *Service) ResetAccount(ctx context.Context, accountID string) (domain.ResetCounts, error) {
	if strings.TrimSpace(accountID) == "" {
		return domain.ResetCounts{}, fmt.Errorf("account is required: %w", domain.ErrInvalidID)
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.ResetTimeout)
	release, err := s.accounts.acquire(waitCtx, accountID, s.cfg.MaxInFlight)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return domain.ResetCounts{}, fmt.Errorf("reset %s: %w", accountID, domain.ErrAccountBusy)
		}
		return domain.ResetCounts{}, err
	}
	defer release()

	counts, err := s.ledger.ResetAccount(ctx, accountID)
	if err != nil {
		return domain.ResetCounts{}, err
	}
	s.logger.Warn("account reset",
		"account_id", accountID,
		"attempts", counts.AttemptsDeleted,
		"phase_progress", counts.PhaseProgressDeleted,
		"block_progress", counts.BlockProgressDeleted,
		"entitlements", counts.EntitlementsDeleted,
	)
	return counts, nil
}

package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/trilhas/internal/domain"
)

// Ledger is the durable record of attempts, progress and entitlements.
type Ledger struct {
	store      Store
	resilience *Resilience
	now        func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithResilience replaces the default resilience policy.
func WithResilience(r *Resilience) Option {
	return func(l *Ledger) { l.resilience = r }
}

// New creates a ledger over store.
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.resilience == nil {
		l.resilience = NewResilience(DefaultResilienceConfig())
	}
	return l
}

// Now returns the ledger clock's current time.
func (l *Ledger) Now() time.Time { return l.now() }

// Update runs fn in a read-write transaction.
func (l *Ledger) Update(ctx context.Context, fn TxFunc) error {
	return l.resilience.Run(ctx, func(ctx context.Context) error {
		return l.store.Update(ctx, fn)
	})
}

// View runs fn in a read-only transaction.
func (l *Ledger) View(ctx context.Context, fn TxFunc) error {
	return l.resilience.Run(ctx, func(ctx context.Context) error {
		return l.store.View(ctx, fn)
	})
}

// Ping checks the store is reachable.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.store.Ping(ctx)
}

// Close closes the underlying store.
func (l *Ledger) Close() error {
	return l.store.Close()
}

// RecordAttempt appends a graded attempt inside tx.
func (l *Ledger) RecordAttempt(ctx context.Context, tx Tx, accountID, challengeID string, answer json.RawMessage, result bool, score int) (*domain.Attempt, error) {
	a := &domain.Attempt{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		ChallengeID: challengeID,
		Answer:      answer,
		Result:      result,
		Score:       score,
		CreatedAt:   l.now(),
	}
	if err := tx.InsertAttempt(ctx, a); err != nil {
		return nil, fmt.Errorf("record attempt: %w", err)
	}
	return a, nil
}

// Snapshot is the progress state of one account.
type Snapshot struct {
	AccountID    string
	Entitlements []domain.Entitlement
	Phases       map[string]*domain.ProgressRecord
	Blocks       map[string]*domain.ProgressRecord
}

// PhaseStatus returns the status of a phase, locked when unrecorded.
func (s *Snapshot) PhaseStatus(id string) domain.ProgressStatus {
	if r, ok := s.Phases[id]; ok {
		return r.Status
	}
	return domain.StatusLocked
}

// BlockStatus returns the status of a block, locked when unrecorded.
func (s *Snapshot) BlockStatus(id string) domain.ProgressStatus {
	if r, ok := s.Blocks[id]; ok {
		return r.Status
	}
	return domain.StatusLocked
}

// Phase returns the phase record, creating a locked one when missing.
func (s *Snapshot) Phase(id string) *domain.ProgressRecord {
	r, ok := s.Phases[id]
	if !ok {
		r = domain.NewProgressRecord(s.AccountID, domain.ProgressPhase, id)
		s.Phases[id] = r
	}
	return r
}

// Block returns the block record, creating a locked one when missing.
func (s *Snapshot) Block(id string) *domain.ProgressRecord {
	r, ok := s.Blocks[id]
	if !ok {
		r = domain.NewProgressRecord(s.AccountID, domain.ProgressBlock, id)
		s.Blocks[id] = r
	}
	return r
}

// Entitled reports whether the account holds an active entitlement. When
// products is non-empty only those product ids count.
func (s *Snapshot) Entitled(products []string) bool {
	for _, e := range s.Entitlements {
		if !e.Active {
			continue
		}
		if len(products) == 0 {
			return true
		}
		for _, p := range products {
			if e.ProductID == p {
				return true
			}
		}
	}
	return false
}

// LoadSnapshot reads the account's progress inside tx.
func (l *Ledger) LoadSnapshot(ctx context.Context, tx Tx, accountID string) (*Snapshot, error) {
	ents, err := tx.Entitlements(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load entitlements: %w", err)
	}
	phases, err := tx.Progress(ctx, accountID, domain.ProgressPhase)
	if err != nil {
		return nil, fmt.Errorf("load phase progress: %w", err)
	}
	blocks, err := tx.Progress(ctx, accountID, domain.ProgressBlock)
	if err != nil {
		return nil, fmt.Errorf("load block progress: %w", err)
	}
	if phases == nil {
		phases = make(map[string]*domain.ProgressRecord)
	}
	if blocks == nil {
		blocks = make(map[string]*domain.ProgressRecord)
	}
	return &Snapshot{AccountID: accountID, Entitlements: ents, Phases: phases, Blocks: blocks}, nil
}

// PhaseStatus returns the account's status for a phase.
func (l *Ledger) PhaseStatus(ctx context.Context, accountID, phaseID string) (domain.ProgressStatus, error) {
	return l.status(ctx, accountID, domain.ProgressPhase, phaseID)
}

// BlockStatus returns the account's status for a block.
func (l *Ledger) BlockStatus(ctx context.Context, accountID, blockID string) (domain.ProgressStatus, error) {
	return l.status(ctx, accountID, domain.ProgressBlock, blockID)
}

func (l *Ledger) status(ctx context.Context, accountID string, kind domain.ProgressKind, id string) (domain.ProgressStatus, error) {
	status := domain.StatusLocked
	err := l.View(ctx, func(ctx context.Context, tx Tx) error {
		records, err := tx.Progress(ctx, accountID, kind)
		if err != nil {
			return err
		}
		if r, ok := records[id]; ok {
			status = r.Status
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("read %s status: %w", kind, err)
	}
	return status, nil
}

// BestAttempt returns the account's best attempt at a challenge, or nil.
func (l *Ledger) BestAttempt(ctx context.Context, accountID, challengeID string) (*domain.Attempt, error) {
	var best *domain.Attempt
	err := l.View(ctx, func(ctx context.Context, tx Tx) error {
		attempts, err := tx.Attempts(ctx, accountID, []string{challengeID})
		if err != nil {
			return err
		}
		best = domain.BestAttempt(attempts)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read best attempt: %w", err)
	}
	return best, nil
}

// GrantEntitlement activates productID for the account.
func (l *Ledger) GrantEntitlement(ctx context.Context, accountID, productID string) error {
	err := l.Update(ctx, func(ctx context.Context, tx Tx) error {
		return tx.UpsertEntitlement(ctx, &domain.Entitlement{
			AccountID: accountID,
			ProductID: productID,
			Active:    true,
			GrantedAt: l.now(),
		})
	})
	if err != nil {
		return fmt.Errorf("grant entitlement: %w", err)
	}
	return nil
}

// ResetAccount wipes the account's attempts, progress and entitlements in
// one transaction.
func (l *Ledger) ResetAccount(ctx context.Context, accountID string) (domain.ResetCounts, error) {
	var counts domain.ResetCounts
	err := l.Update(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.LockAccount(ctx, accountID); err != nil {
			return err
		}
		var err error
		counts, err = tx.DeleteAccount(ctx, accountID)
		return err
	})
	if err != nil {
		return domain.ResetCounts{}, fmt.Errorf("reset account: %w", err)
	}
	return counts, nil
}

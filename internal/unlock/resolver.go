// Package unlock derives whether a block or phase is usable by an account
// and, when it is not, which prerequisite is missing.
package unlock

import (
	"github.com/felixgeelhaar/trilhas/internal/catalog"
	"github.com/felixgeelhaar/trilhas/internal/domain"
)

// AccountContext is a snapshot of the account state the rules read.
// Missing statuses count as locked.
type AccountContext struct {
	AccountID   string
	Entitled    bool
	BlockStatus map[string]domain.ProgressStatus
	PhaseStatus map[string]domain.ProgressStatus
}

func (a AccountContext) blockStatus(id string) domain.ProgressStatus {
	if s, ok := a.BlockStatus[id]; ok {
		return s
	}
	return domain.StatusLocked
}

func (a AccountContext) phaseStatus(id string) domain.ProgressStatus {
	if s, ok := a.PhaseStatus[id]; ok {
		return s
	}
	return domain.StatusLocked
}

// Resolution is the derived availability of one block or phase.
type Resolution struct {
	IsUnlocked bool
	LockReason domain.LockReason
	Status     domain.ProgressStatus
	// HasAccess is true when the subscription rule does not apply.
	HasAccess bool
}

// Resolver applies the unlock rules against a catalog.
type Resolver struct {
	catalog *catalog.Catalog
}

// New creates a resolver for c.
func New(c *catalog.Catalog) *Resolver {
	return &Resolver{catalog: c}
}

// Block resolves b. Rules, first match wins:
//  1. not the free entry and no entitlement: subscription
//  2. previous block not completed: previous_block
//  3. otherwise unlocked
func (r *Resolver) Block(b *domain.Block, acct AccountContext) Resolution {
	res := Resolution{
		Status:    acct.blockStatus(b.ID),
		HasAccess: b.IsFree || acct.Entitled,
	}

	switch {
	case !res.HasAccess:
		res.LockReason = domain.LockSubscription
	case r.previousBlockOpen(b, acct):
		res.LockReason = domain.LockPreviousBlock
	default:
		res.IsUnlocked = true
	}
	return res
}

func (r *Resolver) previousBlockOpen(b *domain.Block, acct AccountContext) bool {
	prev := r.catalog.PreviousBlock(b)
	return prev != nil && acct.blockStatus(prev.ID) != domain.StatusCompleted
}

// Phase resolves p. A phase of a locked block carries the block's lock
// reason; otherwise a non-first phase needs its predecessor completed.
func (r *Resolver) Phase(p *domain.Phase, acct AccountContext) Resolution {
	res := Resolution{Status: acct.phaseStatus(p.ID), HasAccess: true}

	if b, err := r.catalog.Block(p.BlockID); err == nil {
		parent := r.Block(b, acct)
		res.HasAccess = parent.HasAccess
		if !parent.IsUnlocked {
			res.LockReason = parent.LockReason
			return res
		}
	}

	if prev := r.catalog.PreviousPhase(p); prev != nil && acct.phaseStatus(prev.ID) != domain.StatusCompleted {
		res.LockReason = domain.LockPreviousPhase
		return res
	}

	res.IsUnlocked = true
	return res
}

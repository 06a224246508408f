package domain

import "time"

// ProgressStatus is the lifecycle state of a phase or block for one account.
type ProgressStatus string

const (
	StatusLocked     ProgressStatus = "locked"
	StatusInProgress ProgressStatus = "in_progress"
	StatusCompleted  ProgressStatus = "completed"
)

func (s ProgressStatus) rank() int {
	switch s {
	case StatusInProgress:
		return 1
	case StatusCompleted:
		return 2
	default:
		return 0
	}
}

// Valid reports whether s is a known status.
func (s ProgressStatus) Valid() bool {
	return s == StatusLocked || s == StatusInProgress || s == StatusCompleted
}

// Advance returns the later of s and next. Status never moves backwards
// outside an explicit reset.
func (s ProgressStatus) Advance(next ProgressStatus) ProgressStatus {
	if next.rank() > s.rank() {
		return next
	}
	if s == "" {
		return StatusLocked
	}
	return s
}

// LockReason names the prerequisite blocking access to a block or phase.
// The zero value means unlocked.
type LockReason string

const (
	LockNone          LockReason = ""
	LockSubscription  LockReason = "subscription"
	LockPreviousBlock LockReason = "previous_block"
	LockPreviousPhase LockReason = "previous_phase"
)

// ProgressKind selects the phase or block variant of a ProgressRecord.
type ProgressKind string

const (
	ProgressPhase ProgressKind = "phase"
	ProgressBlock ProgressKind = "block"
)

// ProgressRecord is the per-account status of one phase or block.
type ProgressRecord struct {
	AccountID   string
	Kind        ProgressKind
	TargetID    string
	Status      ProgressStatus
	StartedAt   *time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time
}

// NewProgressRecord returns a locked record for target.
func NewProgressRecord(accountID string, kind ProgressKind, targetID string) *ProgressRecord {
	return &ProgressRecord{
		AccountID: accountID,
		Kind:      kind,
		TargetID:  targetID,
		Status:    StatusLocked,
	}
}

// Transition advances the record to next at time now and reports whether
// the status changed. Timestamps are set on the first entry into a state.
func (r *ProgressRecord) Transition(next ProgressStatus, now time.Time) bool {
	advanced := r.Status.Advance(next)
	if advanced == r.Status {
		return false
	}
	if advanced.rank() >= StatusInProgress.rank() && r.StartedAt == nil {
		r.StartedAt = &now
	}
	if advanced == StatusCompleted && r.CompletedAt == nil {
		r.CompletedAt = &now
	}
	r.Status = advanced
	r.UpdatedAt = now
	return true
}

// Entitlement records an account's access to a product.
type Entitlement struct {
	AccountID string
	ProductID string
	Active    bool
	GrantedAt time.Time
}

// ResetCounts reports how many rows an account reset removed per category.
type ResetCounts struct {
	AttemptsDeleted      int64 `json:"attemptsDeleted"`
	PhaseProgressDeleted int64 `json:"phaseProgressDeleted"`
	BlockProgressDeleted int64 `json:"blockProgressDeleted"`
	EntitlementsDeleted  int64 `json:"entitlementsDeleted"`
}

// Total returns the number of rows removed.
func (c ResetCounts) Total() int64 {
	return c.AttemptsDeleted + c.PhaseProgressDeleted + c.BlockProgressDeleted + c.EntitlementsDeleted
}

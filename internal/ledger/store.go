// Package ledger records attempts and per-account progress durably.
//
// The ledger composes a Store (SQLite or PostgreSQL) with retry, circuit
// breaking and bulkheading. Callers that need several reads and writes to
// commit together use Update; everything inside fn sees one transaction.
package ledger

import (
	"context"

	"github.com/felixgeelhaar/trilhas/internal/domain"
)

// TxFunc is the body of a ledger transaction. It may run more than once
// when the transaction is retried, so it must not have side effects outside tx.
type TxFunc func(ctx context.Context, tx Tx) error

// Tx is the storage view inside one transaction.
type Tx interface {
	// LockAccount serializes writers of one account until the transaction ends.
	LockAccount(ctx context.Context, accountID string) error

	// InsertAttempt appends an attempt and assigns its Seq.
	InsertAttempt(ctx context.Context, a *domain.Attempt) error
	// Attempts returns the account's attempts for the given challenges.
	Attempts(ctx context.Context, accountID string, challengeIDs []string) ([]domain.Attempt, error)

	// Progress returns every record of kind for the account, keyed by target id.
	Progress(ctx context.Context, accountID string, kind domain.ProgressKind) (map[string]*domain.ProgressRecord, error)
	// UpsertProgress inserts or replaces one record.
	UpsertProgress(ctx context.Context, r *domain.ProgressRecord) error

	// Entitlements returns every entitlement of the account.
	Entitlements(ctx context.Context, accountID string) ([]domain.Entitlement, error)
	// UpsertEntitlement inserts or replaces one entitlement.
	UpsertEntitlement(ctx context.Context, e *domain.Entitlement) error

	// DeleteAccount removes every attempt, progress record and entitlement
	// of the account.
	DeleteAccount(ctx context.Context, accountID string) (domain.ResetCounts, error)
}

// Store runs transactions against a storage backend. Implementations return
// errors wrapping domain.ErrTransient for failures worth retrying.
type Store interface {
	Update(ctx context.Context, fn TxFunc) error
	View(ctx context.Context, fn TxFunc) error
	Ping(ctx context.Context) error
	Close() error
}

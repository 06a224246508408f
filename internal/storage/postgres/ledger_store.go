package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/trilhas/internal/domain"
	"github.com/felixgeelhaar/trilhas/internal/ledger"
)

// LedgerStore implements ledger.Store on a pgx pool.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a PostgreSQL-backed ledger store.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Update runs fn in a read-write transaction.
func (s *LedgerStore) Update(ctx context.Context, fn ledger.TxFunc) error {
	return s.withinTx(ctx, pgx.TxOptions{}, fn)
}

// View runs fn in a read-only transaction.
func (s *LedgerStore) View(ctx context.Context, fn ledger.TxFunc) error {
	return s.withinTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly}, fn)
}

func (s *LedgerStore) withinTx(ctx context.Context, opts pgx.TxOptions, fn ledger.TxFunc) error {
	tx, err := s.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", classify(err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &ledgerTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", classify(err))
	}
	return nil
}

// Ping checks the pool.
func (s *LedgerStore) Ping(ctx context.Context) error {
	return classify(s.pool.Ping(ctx))
}

// Close closes the pool.
func (s *LedgerStore) Close() error {
	s.pool.Close()
	return nil
}

type ledgerTx struct {
	tx pgx.Tx
}

// LockAccount takes a transaction-scoped advisory lock on the account, so
// writers of one account serialize across processes.
func (t *ledgerTx) LockAccount(ctx context.Context, accountID string) error {
	if _, err := t.tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", accountID); err != nil {
		return fmt.Errorf("lock account: %w", classify(err))
	}
	return nil
}

func (t *ledgerTx) InsertAttempt(ctx context.Context, a *domain.Attempt) error {
	var answer []byte
	if len(a.Answer) > 0 {
		answer = a.Answer
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO attempts (id, account_id, challenge_id, answer, result, score, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING seq`,
		a.ID, a.AccountID, a.ChallengeID, answer, a.Result, a.Score, a.CreatedAt,
	).Scan(&a.Seq)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", classify(err))
	}
	return nil
}

func (t *ledgerTx) Attempts(ctx context.Context, accountID string, challengeIDs []string) ([]domain.Attempt, error) {
	if len(challengeIDs) == 0 {
		return nil, nil
	}
	rows, err := t.tx.Query(ctx, `
		SELECT seq, id::text, account_id, challenge_id, answer, result, score, created_at
		FROM attempts
		WHERE account_id = $1 AND challenge_id = ANY($2)
		ORDER BY seq`, accountID, challengeIDs)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", classify(err))
	}
	defer rows.Close()

	var attempts []domain.Attempt
	for rows.Next() {
		var (
			a      domain.Attempt
			answer []byte
			score  int16
		)
		if err := rows.Scan(&a.Seq, &a.ID, &a.AccountID, &a.ChallengeID, &answer, &a.Result, &score, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.Answer = answer
		a.Score = int(score)
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list attempts: %w", classify(err))
	}
	return attempts, nil
}

func progressTable(kind domain.ProgressKind) (table, column string) {
	if kind == domain.ProgressBlock {
		return "block_progress", "block_id"
	}
	return "phase_progress", "phase_id"
}

func (t *ledgerTx) Progress(ctx context.Context, accountID string, kind domain.ProgressKind) (map[string]*domain.ProgressRecord, error) {
	table, column := progressTable(kind)
	rows, err := t.tx.Query(ctx, `
		SELECT `+column+`, status, started_at, completed_at, updated_at
		FROM `+table+` WHERE account_id = $1`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list %s progress: %w", kind, classify(err))
	}
	defer rows.Close()

	records := make(map[string]*domain.ProgressRecord)
	for rows.Next() {
		r := &domain.ProgressRecord{AccountID: accountID, Kind: kind}
		var (
			status             string
			started, completed *time.Time
		)
		if err := rows.Scan(&r.TargetID, &status, &started, &completed, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan %s progress: %w", kind, err)
		}
		r.Status = domain.ProgressStatus(status)
		r.StartedAt = started
		r.CompletedAt = completed
		records[r.TargetID] = r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s progress: %w", kind, classify(err))
	}
	return records, nil
}

func (t *ledgerTx) UpsertProgress(ctx context.Context, r *domain.ProgressRecord) error {
	table, column := progressTable(r.Kind)
	_, err := t.tx.Exec(ctx, `
		INSERT INTO `+table+` (account_id, `+column+`, status, started_at, completed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (account_id, `+column+`) DO UPDATE SET
			status = EXCLUDED.status, started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at, updated_at = EXCLUDED.updated_at`,
		r.AccountID, r.TargetID, string(r.Status), r.StartedAt, r.CompletedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert %s progress: %w", r.Kind, classify(err))
	}
	return nil
}

func (t *ledgerTx) Entitlements(ctx context.Context, accountID string) ([]domain.Entitlement, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT product_id, active, granted_at
		FROM entitlements WHERE account_id = $1 ORDER BY product_id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list entitlements: %w", classify(err))
	}
	defer rows.Close()

	var out []domain.Entitlement
	for rows.Next() {
		e := domain.Entitlement{AccountID: accountID}
		if err := rows.Scan(&e.ProductID, &e.Active, &e.GrantedAt); err != nil {
			return nil, fmt.Errorf("scan entitlement: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list entitlements: %w", classify(err))
	}
	return out, nil
}

func (t *ledgerTx) UpsertEntitlement(ctx context.Context, e *domain.Entitlement) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO entitlements (account_id, product_id, active, granted_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id, product_id) DO UPDATE SET
			active = EXCLUDED.active, granted_at = EXCLUDED.granted_at`,
		e.AccountID, e.ProductID, e.Active, e.GrantedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert entitlement: %w", classify(err))
	}
	return nil
}

func (t *ledgerTx) DeleteAccount(ctx context.Context, accountID string) (domain.ResetCounts, error) {
	var counts domain.ResetCounts
	targets := []struct {
		table string
		n     *int64
	}{
		{"attempts", &counts.AttemptsDeleted},
		{"phase_progress", &counts.PhaseProgressDeleted},
		{"block_progress", &counts.BlockProgressDeleted},
		{"entitlements", &counts.EntitlementsDeleted},
	}
	for _, target := range targets {
		tag, err := t.tx.Exec(ctx, "DELETE FROM "+target.table+" WHERE account_id = $1", accountID)
		if err != nil {
			return domain.ResetCounts{}, fmt.Errorf("delete %s: %w", target.table, classify(err))
		}
		*target.n = tag.RowsAffected()
	}
	return counts, nil
}

// Transient SQLSTATE codes.
var transientCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
	"53300": true, // too_many_connections
	"57P01": true, // admin_shutdown
	"57P03": true, // cannot_connect_now
}

// classify marks retryable PostgreSQL and connection failures as transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if transientCodes[pgErr.Code] || len(pgErr.Code) == 5 && pgErr.Code[:2] == "08" {
			return domain.Transient(err)
		}
		return err
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) || errors.Is(err, context.DeadlineExceeded) {
		return domain.Transient(err)
	}
	return err
}

var _ ledger.Store = (*LedgerStore)(nil)

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/sqlc-dev/pqtype"

	"github.com/felixgeelhaar/trilhas/internal/domain"
	"github.com/felixgeelhaar/trilhas/internal/ledger"
)

// LedgerStore implements ledger.Store backed by SQLite.
type LedgerStore struct {
	db *DB
}

// NewLedgerStore creates a new SQLite-backed ledger store.
func NewLedgerStore(db *DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// Update runs fn in a transaction and commits when fn succeeds.
func (s *LedgerStore) Update(ctx context.Context, fn ledger.TxFunc) error {
	return s.run(ctx, fn)
}

// View runs fn in a transaction that is always rolled back.
func (s *LedgerStore) View(ctx context.Context, fn ledger.TxFunc) error {
	return s.run(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return errViewDone
	})
}

var errViewDone = errors.New("view done")

func (s *LedgerStore) run(ctx context.Context, fn ledger.TxFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", classify(err))
	}

	if err := fn(ctx, &ledgerTx{tx: tx}); err != nil {
		tx.Rollback()
		if errors.Is(err, errViewDone) {
			return nil
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", classify(err))
	}
	return nil
}

// Ping checks the database connection.
func (s *LedgerStore) Ping(ctx context.Context) error {
	return classify(s.db.PingContext(ctx))
}

// Close closes the database.
func (s *LedgerStore) Close() error {
	return s.db.Close()
}

type ledgerTx struct {
	tx *sql.Tx
}

// LockAccount is a no-op: BEGIN IMMEDIATE already holds the database write lock.
func (t *ledgerTx) LockAccount(ctx context.Context, accountID string) error {
	return nil
}

func (t *ledgerTx) InsertAttempt(ctx context.Context, a *domain.Attempt) error {
	answer := pqtype.NullRawMessage{RawMessage: a.Answer, Valid: len(a.Answer) > 0}
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO attempts (id, account_id, challenge_id, answer, result, score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.AccountID, a.ChallengeID, answer, boolToInt(a.Result), a.Score, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", classify(err))
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("attempt seq: %w", err)
	}
	a.Seq = seq
	return nil
}

func (t *ledgerTx) Attempts(ctx context.Context, accountID string, challengeIDs []string) ([]domain.Attempt, error) {
	if len(challengeIDs) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(challengeIDs)+1)
	args = append(args, accountID)
	for _, id := range challengeIDs {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(challengeIDs)), ", ")

	rows, err := t.tx.QueryContext(ctx, `
		SELECT seq, id, account_id, challenge_id, answer, result, score, created_at
		FROM attempts
		WHERE account_id = ? AND challenge_id IN (`+placeholders+`)
		ORDER BY seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", classify(err))
	}
	defer rows.Close()

	var attempts []domain.Attempt
	for rows.Next() {
		var (
			a      domain.Attempt
			answer pqtype.NullRawMessage
			result int
		)
		if err := rows.Scan(&a.Seq, &a.ID, &a.AccountID, &a.ChallengeID, &answer, &result, &a.Score, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		if answer.Valid {
			a.Answer = answer.RawMessage
		}
		a.Result = result != 0
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
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+column+`, status, started_at, completed_at, updated_at
		FROM `+table+` WHERE account_id = ?`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list %s progress: %w", kind, classify(err))
	}
	defer rows.Close()

	records := make(map[string]*domain.ProgressRecord)
	for rows.Next() {
		r := &domain.ProgressRecord{AccountID: accountID, Kind: kind}
		var (
			status             string
			started, completed sql.NullTime
		)
		if err := rows.Scan(&r.TargetID, &status, &started, &completed, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan %s progress: %w", kind, err)
		}
		r.Status = domain.ProgressStatus(status)
		if started.Valid {
			r.StartedAt = &started.Time
		}
		if completed.Valid {
			r.CompletedAt = &completed.Time
		}
		records[r.TargetID] = r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s progress: %w", kind, classify(err))
	}
	return records, nil
}

func (t *ledgerTx) UpsertProgress(ctx context.Context, r *domain.ProgressRecord) error {
	table, column := progressTable(r.Kind)
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO `+table+` (account_id, `+column+`, status, started_at, completed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, `+column+`) DO UPDATE SET
			status=excluded.status, started_at=excluded.started_at,
			completed_at=excluded.completed_at, updated_at=excluded.updated_at`,
		r.AccountID, r.TargetID, string(r.Status), nullTime(r.StartedAt), nullTime(r.CompletedAt), r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert %s progress: %w", r.Kind, classify(err))
	}
	return nil
}

func (t *ledgerTx) Entitlements(ctx context.Context, accountID string) ([]domain.Entitlement, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT product_id, active, granted_at
		FROM entitlements WHERE account_id = ? ORDER BY product_id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list entitlements: %w", classify(err))
	}
	defer rows.Close()

	var out []domain.Entitlement
	for rows.Next() {
		e := domain.Entitlement{AccountID: accountID}
		var active int
		if err := rows.Scan(&e.ProductID, &active, &e.GrantedAt); err != nil {
			return nil, fmt.Errorf("scan entitlement: %w", err)
		}
		e.Active = active != 0
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list entitlements: %w", classify(err))
	}
	return out, nil
}

func (t *ledgerTx) UpsertEntitlement(ctx context.Context, e *domain.Entitlement) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO entitlements (account_id, product_id, active, granted_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(account_id, product_id) DO UPDATE SET
			active=excluded.active, granted_at=excluded.granted_at`,
		e.AccountID, e.ProductID, boolToInt(e.Active), e.GrantedAt,
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
		res, err := t.tx.ExecContext(ctx, "DELETE FROM "+target.table+" WHERE account_id = ?", accountID)
		if err != nil {
			return domain.ResetCounts{}, fmt.Errorf("delete %s: %w", target.table, classify(err))
		}
		if *target.n, err = res.RowsAffected(); err != nil {
			return domain.ResetCounts{}, fmt.Errorf("count %s: %w", target.table, err)
		}
	}
	return counts, nil
}

// classify marks lock contention and deadlines as transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) && (sqlErr.Code == sqlite3.ErrBusy || sqlErr.Code == sqlite3.ErrLocked) {
		return domain.Transient(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.Transient(err)
	}
	return err
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ ledger.Store = (*LedgerStore)(nil)

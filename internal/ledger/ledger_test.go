package ledger_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/trilhas/internal/domain"
	"github.com/felixgeelhaar/trilhas/internal/ledger"
	"github.com/felixgeelhaar/trilhas/internal/storage/sqlite"
)

func newLedger(t *testing.T, now func() time.Time) *ledger.Ledger {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))

	l := ledger.New(sqlite.NewLedgerStore(db), ledger.WithClock(now))
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLedger_RecordAttemptAndBestAttempt(t *testing.T) {
	t0 := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	clock := t0
	l := newLedger(t, func() time.Time { return clock })
	ctx := context.Background()

	record := func(score int, result bool) {
		err := l.Update(ctx, func(ctx context.Context, tx ledger.Tx) error {
			_, err := l.RecordAttempt(ctx, tx, "acc", "c1", json.RawMessage(`{"pairs":[]}`), result, score)
			return err
		})
		require.NoError(t, err)
		clock = clock.Add(time.Minute)
	}

	best, err := l.BestAttempt(ctx, "acc", "c1")
	require.NoError(t, err)
	assert.Nil(t, best)

	record(50, false)
	record(75, false)
	record(75, false)
	record(25, false)

	best, err = l.BestAttempt(ctx, "acc", "c1")
	require.NoError(t, err)
	require.NotNil(t, best)
	assert.Equal(t, 75, best.Score)
	assert.True(t, best.CreatedAt.Equal(t0.Add(2*time.Minute)), "latest of the tied attempts wins, got %v", best.CreatedAt)
}

func TestLedger_StatusDefaultsToLocked(t *testing.T) {
	l := newLedger(t, time.Now)
	ctx := context.Background()

	status, err := l.PhaseStatus(ctx, "acc", "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusLocked, status)

	status, err = l.BlockStatus(ctx, "acc", "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusLocked, status)
}

func TestLedger_SnapshotAndStatuses(t *testing.T) {
	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	l := newLedger(t, func() time.Time { return now })
	ctx := context.Background()

	err := l.Update(ctx, func(ctx context.Context, tx ledger.Tx) error {
		snap, err := l.LoadSnapshot(ctx, tx, "acc")
		if err != nil {
			return err
		}
		phase := snap.Phase("p1")
		phase.Transition(domain.StatusCompleted, now)
		block := snap.Block("b1")
		block.Transition(domain.StatusInProgress, now)
		if err := tx.UpsertProgress(ctx, phase); err != nil {
			return err
		}
		return tx.UpsertProgress(ctx, block)
	})
	require.NoError(t, err)

	status, err := l.PhaseStatus(ctx, "acc", "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, status)

	status, err = l.BlockStatus(ctx, "acc", "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, status)
}

func TestLedger_GrantAndReset(t *testing.T) {
	l := newLedger(t, time.Now)
	ctx := context.Background()

	require.NoError(t, l.GrantEntitlement(ctx, "acc", "premium"))
	require.NoError(t, l.GrantEntitlement(ctx, "acc", "premium"), "granting twice is idempotent")

	err := l.View(ctx, func(ctx context.Context, tx ledger.Tx) error {
		snap, err := l.LoadSnapshot(ctx, tx, "acc")
		if err != nil {
			return err
		}
		assert.True(t, snap.Entitled(nil))
		assert.True(t, snap.Entitled([]string{"premium"}))
		assert.False(t, snap.Entitled([]string{"family"}))
		return nil
	})
	require.NoError(t, err)

	err = l.Update(ctx, func(ctx context.Context, tx ledger.Tx) error {
		_, err := l.RecordAttempt(ctx, tx, "acc", "c1", json.RawMessage(`{"answer":true}`), true, 100)
		return err
	})
	require.NoError(t, err)

	counts, err := l.ResetAccount(ctx, "acc")
	require.NoError(t, err)
	assert.Equal(t, domain.ResetCounts{AttemptsDeleted: 1, EntitlementsDeleted: 1}, counts)
	assert.EqualValues(t, 2, counts.Total())

	counts, err = l.ResetAccount(ctx, "acc")
	require.NoError(t, err)
	assert.Zero(t, counts.Total(), "second reset has nothing to remove")
}

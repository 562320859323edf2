package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/live-bet-ledger/internal/ledger/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seedMatch(t *testing.T, m *Memory, id string) {
	t.Helper()
	err := m.InTx(context.Background(), id, func(tx Tx) error {
		return tx.SaveMatch(context.Background(), domain.Match{ID: id, Phase: domain.PhaseLive})
	})
	require.NoError(t, err)
}

func ngsBet(id, bettor, match string) domain.Bet {
	return domain.Bet{
		ID: id, BettorID: bettor, MatchID: match,
		Kind: domain.KindNextGoalScorer, OriginalTarget: "p1", CurrentTarget: "p1",
		OriginalAmount: d("10"), CurrentAmount: d("10"), Odds: d("2"),
		Status: domain.StatusActive,
	}
}

func TestMemory_RollbackLeavesNothing(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	seedMatch(t, m, "m1")
	_, err := m.Fund(ctx, "alice", domain.FundDelta(d("100")))
	require.NoError(t, err)

	boom := errors.New("boom")
	err = m.InTx(ctx, "m1", func(tx Tx) error {
		require.NoError(t, tx.InsertBet(ctx, ngsBet("b1", "alice", "m1")))
		require.NoError(t, tx.ApplyBalance(ctx, "alice", domain.PlaceDelta(d("10"))))
		require.NoError(t, tx.Enqueue(ctx, domain.CustodyIntent{Key: "lock:b1"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = m.Bet(ctx, "b1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	bal, err := m.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "100.00", bal.Wallet.StringFixed(2))
	assert.True(t, bal.Locked.IsZero())
	pending, _ := m.PendingIntents(ctx, 10)
	assert.Empty(t, pending)
}

func TestMemory_NegativeBalanceRejected(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	seedMatch(t, m, "m1")
	_, _ = m.Fund(ctx, "alice", domain.FundDelta(d("5")))

	err := m.InTx(ctx, "m1", func(tx Tx) error {
		return tx.ApplyBalance(ctx, "alice", domain.PlaceDelta(d("10")))
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestMemory_OneActiveNGSPerBettorAndMatch(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	seedMatch(t, m, "m1")

	require.NoError(t, m.InTx(ctx, "m1", func(tx Tx) error {
		return tx.InsertBet(ctx, ngsBet("b1", "alice", "m1"))
	}))
	err := m.InTx(ctx, "m1", func(tx Tx) error {
		return tx.InsertBet(ctx, ngsBet("b2", "alice", "m1"))
	})
	assert.ErrorIs(t, err, domain.ErrExistingActiveBet)

	// depois de resolvida a primeira, uma nova NGS é aceita
	require.NoError(t, m.InTx(ctx, "m1", func(tx Tx) error {
		b, err := tx.Bet(ctx, "b1")
		if err != nil {
			return err
		}
		b.Status = domain.StatusProvisionalLoss
		return tx.UpdateBet(ctx, b, domain.StatusActive)
	}))
	assert.NoError(t, m.InTx(ctx, "m1", func(tx Tx) error {
		return tx.InsertBet(ctx, ngsBet("b3", "alice", "m1"))
	}))
}

func TestMemory_UpdateBetCAS(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	seedMatch(t, m, "m1")
	require.NoError(t, m.InTx(ctx, "m1", func(tx Tx) error {
		return tx.InsertBet(ctx, ngsBet("b1", "alice", "m1"))
	}))

	err := m.InTx(ctx, "m1", func(tx Tx) error {
		b, _ := tx.Bet(ctx, "b1")
		b.Status = domain.StatusSettledWon
		return tx.UpdateBet(ctx, b, domain.StatusProvisionalWin)
	})
	assert.ErrorIs(t, err, domain.ErrConflict)

	b, err := m.Bet(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, b.Status)
}

func TestMemory_ChangesSequencedAndIntentsDeduped(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	seedMatch(t, m, "m1")
	require.NoError(t, m.InTx(ctx, "m1", func(tx Tx) error {
		if err := tx.InsertBet(ctx, ngsBet("b1", "alice", "m1")); err != nil {
			return err
		}
		_ = tx.AppendChange(ctx, domain.BetChange{BetID: "b1", FromTarget: "p1", ToTarget: "p2"})
		_ = tx.AppendChange(ctx, domain.BetChange{BetID: "b1", FromTarget: "p2", ToTarget: "p3"})
		_ = tx.Enqueue(ctx, domain.CustodyIntent{Key: "lock:b1", Type: domain.IntentLock})
		return tx.Enqueue(ctx, domain.CustodyIntent{Key: "lock:b1", Type: domain.IntentLock})
	}))

	changes, err := m.Changes(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, 1, changes[0].Seq)
	assert.Equal(t, 2, changes[1].Seq)
	assert.Equal(t, "p3", changes[1].ToTarget)

	pending, err := m.PendingIntents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, m.MarkIntentFailed(ctx, "lock:b1", errors.New("kafka down")))
	pending, _ = m.PendingIntents(ctx, 10)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, "kafka down", pending[0].LastError)

	require.NoError(t, m.MarkIntentSent(ctx, "lock:b1"))
	pending, _ = m.PendingIntents(ctx, 10)
	assert.Empty(t, pending)
}

func TestMemory_InTxHonoursContextWhileLocked(t *testing.T) {
	m := NewMemory()
	seedMatch(t, m, "m1")

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- m.InTx(context.Background(), "m1", func(Tx) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := m.InTx(ctx, "m1", func(Tx) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// outra partida não espera
	assert.NoError(t, m.InTx(context.Background(), "m2", func(Tx) error { return nil }))

	close(release)
	assert.NoError(t, <-done)
}

func TestMemory_EnsureBalanceOnlyOnce(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	created, err := m.EnsureBalance(ctx, "alice", domain.FundDelta(d("50")))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = m.EnsureBalance(ctx, "alice", domain.FundDelta(d("999")))
	require.NoError(t, err)
	assert.False(t, created)

	bal, _ := m.Balance(ctx, "alice")
	assert.Equal(t, "50.00", bal.Wallet.StringFixed(2))

	_, err = m.Balance(ctx, "bob")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

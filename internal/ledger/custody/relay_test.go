package custody

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/live-bet-ledger/internal/ledger/domain"
	"github.com/radieske/live-bet-ledger/internal/ledger/store"
	"github.com/radieske/live-bet-ledger/pkg/contracts/events"
)

type fakeWriter struct {
	mu   sync.Mutex
	err  error
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func seedOutbox(t *testing.T, m *store.Memory, keys ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, m.InTx(ctx, "m1", func(tx store.Tx) error {
		for _, k := range keys {
			if err := tx.Enqueue(ctx, domain.CustodyIntent{
				Key: k, Type: domain.IntentLock, BettorID: "alice", BetID: "b1", MatchID: "m1",
				Amount: decimal.RequireFromString("20"),
			}); err != nil {
				return err
			}
		}
		return nil
	}))
}

func TestRelay_PublishesAndMarksSent(t *testing.T) {
	mem := store.NewMemory()
	seedOutbox(t, mem, "lock:b1", "lock:b2")
	w := &fakeWriter{}
	r := NewRelay(zap.NewNop(), mem, w, nil, nil)

	res, err := r.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Published)
	require.Len(t, w.msgs, 2)
	assert.Equal(t, "alice", string(w.msgs[0].Key))

	var ev events.CustodyIntent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &ev))
	assert.Equal(t, "lock:b1", ev.IdempotencyKey)
	assert.Equal(t, "20.00", ev.Amount)

	pending, _ := mem.PendingIntents(context.Background(), 0)
	assert.Empty(t, pending)

	// nada a reenviar
	res, err = r.Drain(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Published)
}

func TestRelay_RetriesThenDeadLetters(t *testing.T) {
	mem := store.NewMemory()
	seedOutbox(t, mem, "lock:b1")
	w := &fakeWriter{err: errors.New("broker unavailable")}
	dlq := &fakeWriter{}
	r := NewRelay(zap.NewNop(), mem, w, dlq, nil)
	r.MaxAttempts = 3

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		res, err := r.Drain(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Failed)
		assert.Zero(t, res.Dead)
	}
	pending, _ := mem.PendingIntents(ctx, 0)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].Attempts)

	res, err := r.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Dead)
	require.Len(t, dlq.msgs, 1)

	var ev events.CustodyIntent
	require.NoError(t, json.Unmarshal(dlq.msgs[0].Value, &ev))
	assert.Equal(t, 3, ev.Attempts)
	assert.Equal(t, "broker unavailable", ev.LastError)

	pending, _ = mem.PendingIntents(ctx, 0)
	assert.Empty(t, pending)
}

package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/live-bet-ledger/internal/ledger/domain"
	"github.com/radieske/live-bet-ledger/internal/ledger/service"
	"github.com/radieske/live-bet-ledger/internal/ledger/store"
	"github.com/radieske/live-bet-ledger/pkg/contracts/events"
)

type memDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (d *memDedup) Claim(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[id] {
		return false, nil
	}
	d.seen[id] = true
	return true, nil
}

func (d *memDedup) Release(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id)
	return nil
}

type capWriter struct{ msgs []kafkago.Message }

func (w *capWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func msg(t *testing.T, ev events.MatchEvent) kafkago.Message {
	t.Helper()
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	return kafkago.Message{Key: []byte(ev.MatchID), Value: b}
}

func TestProcessor_FullMatchFlow(t *testing.T) {
	ctx := context.Background()
	svc := service.New(store.NewMemory(), zap.NewNop(), service.Config{})
	dlq := &capWriter{}
	processed := map[string]int{}
	p := &Processor{
		Log: zap.NewNop(), Ledger: svc, Dedup: &memDedup{seen: map[string]bool{}}, DLQ: dlq,
		Backoff:     time.Millisecond,
		OnProcessed: func(typ string) { processed[typ]++ },
	}

	p.Handle(ctx, msg(t, events.MatchEvent{EventID: "e1", Type: events.MatchEventClock, MatchID: "m1", Minute: 1, Phase: "live"}))

	_, err := svc.Fund(ctx, "alice", decimal.RequireFromString("100"))
	require.NoError(t, err)
	bet, err := svc.PlaceBet(ctx, service.PlaceRequest{
		BettorID: "alice", MatchID: "m1", Kind: domain.KindNextGoalScorer, Target: "playerA",
		Stake: decimal.RequireFromString("20"), Odds: decimal.RequireFromString("3"), Minute: 10,
	})
	require.NoError(t, err)

	goal := events.MatchEvent{EventID: "e2", Type: events.MatchEventGoal, MatchID: "m1", Minute: 15, ScoringTarget: "playerA", WindowIndex: 0, Confirmed: true}
	p.Handle(ctx, msg(t, goal))
	p.Handle(ctx, msg(t, goal)) // reentrega

	settle := events.MatchEvent{
		EventID: "e3", Type: events.MatchEventSettlement, MatchID: "m1", Minute: 90,
		ConfirmedScorers: []string{"playerA"}, FinalScore: &events.Score{Home: 1}, WinnerOutcome: "home",
	}
	p.Handle(ctx, msg(t, settle))

	assert.Equal(t, 1, processed[events.MatchEventGoal])
	assert.Equal(t, 1, processed[events.MatchEventSettlement])
	assert.Empty(t, dlq.msgs)

	got, err := svc.GetBet(ctx, bet.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSettledWon, got.Status)
	bal, err := svc.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "140.00", bal.Wallet.StringFixed(2))

	// mesmo gatilho com outro id do feed: retoma, não credita de novo
	settle.EventID = "e4"
	p.Handle(ctx, msg(t, settle))
	assert.Empty(t, dlq.msgs)
	bal, _ = svc.GetBalance(ctx, "alice")
	assert.Equal(t, "140.00", bal.Wallet.StringFixed(2))
}

func TestProcessor_PoisonAndRejectedGoToDLQ(t *testing.T) {
	ctx := context.Background()
	svc := service.New(store.NewMemory(), zap.NewNop(), service.Config{})
	dlq := &capWriter{}
	var stages []string
	p := &Processor{Log: zap.NewNop(), Ledger: svc, DLQ: dlq, OnError: func(s string) { stages = append(stages, s) }}

	p.Handle(ctx, kafkago.Message{Value: []byte("{not json")})
	p.Handle(ctx, msg(t, events.MatchEvent{Type: "halftime_show", MatchID: "m1"}))
	p.Handle(ctx, msg(t, events.MatchEvent{Type: events.MatchEventGoal, MatchID: "unknown", ScoringTarget: "x", Confirmed: true}))

	require.Len(t, dlq.msgs, 3)
	assert.Equal(t, "error", dlq.msgs[1].Headers[0].Key)
	assert.Equal(t, []string{"decode", "rejected", "rejected"}, stages)
}

// downLedger falha todo evento com erro transitório
type downLedger struct {
	mu    sync.Mutex
	calls int
}

func (l *downLedger) fail() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return errors.New("db unavailable")
}

func (l *downLedger) ApplyClock(context.Context, service.ClockTick) (domain.Match, error) {
	return domain.Match{}, l.fail()
}

func (l *downLedger) ProcessGoalEvent(context.Context, service.GoalEvent) (service.GoalResult, error) {
	return service.GoalResult{}, l.fail()
}

func (l *downLedger) SettleBets(context.Context, domain.Settlement) (service.SettlementReport, error) {
	return service.SettlementReport{}, l.fail()
}

func (l *downLedger) ResumeSettlement(context.Context, string) (service.SettlementReport, error) {
	return service.SettlementReport{}, l.fail()
}

func TestProcessor_BackoffStopsOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ledger := &downLedger{}
	dedup := &memDedup{seen: map[string]bool{}}
	dlq := &capWriter{}
	p := &Processor{Log: zap.NewNop(), Ledger: ledger, Dedup: dedup, DLQ: dlq, Retries: 5, Backoff: time.Hour}

	done := make(chan struct{})
	go func() {
		p.Handle(ctx, msg(t, events.MatchEvent{EventID: "e1", Type: events.MatchEventClock, MatchID: "m1", Minute: 1, Phase: "live"}))
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Handle kept sleeping after shutdown")
	}

	assert.Equal(t, 1, ledger.calls)
	assert.Empty(t, dlq.msgs)
	// o evento pode ser reprocessado depois do restart
	first, err := dedup.Claim(context.Background(), "e1")
	require.NoError(t, err)
	assert.True(t, first)
}

func TestProcessor_TransientFailureDeadLettersAfterRetries(t *testing.T) {
	ledger := &downLedger{}
	dlq := &capWriter{}
	p := &Processor{Log: zap.NewNop(), Ledger: ledger, DLQ: dlq, Retries: 3, Backoff: time.Millisecond}

	p.Handle(context.Background(), msg(t, events.MatchEvent{EventID: "e1", Type: events.MatchEventClock, MatchID: "m1", Minute: 1, Phase: "live"}))

	assert.Equal(t, 3, ledger.calls)
	require.Len(t, dlq.msgs, 1)
}

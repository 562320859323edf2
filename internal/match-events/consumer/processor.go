package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/live-bet-ledger/internal/ledger/domain"
	"github.com/radieske/live-bet-ledger/internal/ledger/service"
	"github.com/radieske/live-bet-ledger/internal/shared/kafka"
	"github.com/radieske/live-bet-ledger/pkg/contracts/events"
)

// Ledger é o que o worker aciona para cada evento do feed
type Ledger interface {
	ApplyClock(ctx context.Context, t service.ClockTick) (domain.Match, error)
	ProcessGoalEvent(ctx context.Context, ev service.GoalEvent) (service.GoalResult, error)
	SettleBets(ctx context.Context, st domain.Settlement) (service.SettlementReport, error)
	ResumeSettlement(ctx context.Context, matchID string) (service.SettlementReport, error)
}

// Deduper evita reprocessar o mesmo evento do feed
type Deduper interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// Processor consome match_events do Kafka e despacha para o ledger.
// Mensagens de uma partida chegam na mesma partição e são tratadas em ordem;
// o offset só é commitado depois do processamento.
// Callbacks de métricas podem ser usadas para monitoramento de cada etapa
type Processor struct {
	Log    *zap.Logger
	Reader kafka.MessageReader
	Ledger Ledger
	Dedup  Deduper             // opcional
	DLQ    kafka.MessageWriter // opcional

	Retries int
	Backoff time.Duration

	OnConsumed  func()       // métricas (counter++)
	OnProcessed func(string) // métricas por tipo de evento
	OnError     func(string) // métricas por fase
}

func (p *Processor) onError(stage string) {
	if p.OnError != nil {
		p.OnError(stage)
	}
}

// Run inicia o loop principal de consumo e processamento das mensagens Kafka
func (p *Processor) Run(ctx context.Context) error {
	for {
		m, err := kafka.ReadNext(ctx, p.Reader)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err() // encerra se o contexto for cancelado
			}
			p.Log.Warn("kafka read failed", zap.Error(err))
			p.onError("read")
			time.Sleep(500 * time.Millisecond)
			continue
		}

		if p.OnConsumed != nil {
			p.OnConsumed() // callback de métrica: mensagem consumida
		}

		p.Handle(ctx, m)

		if err := p.Reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka commit failed", zap.Error(err))
			p.onError("commit")
		}
	}
}

// permanent indica erros que não melhoram com retry
func permanent(err error) bool {
	return errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrAlreadySettled) ||
		errors.Is(err, domain.ErrInvalidStateTransition)
}

// Handle processa uma mensagem. Nunca bloqueia a partição: após os retries
// a mensagem segue para a DLQ.
func (p *Processor) Handle(ctx context.Context, m kafkago.Message) {
	var ev events.MatchEvent
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		p.Log.Warn("invalid message", zap.Error(err))
		p.onError("decode")
		p.deadLetter(ctx, m, err)
		return
	}

	if p.Dedup != nil && ev.EventID != "" {
		first, err := p.Dedup.Claim(ctx, ev.EventID)
		if err != nil {
			// sem dedup seguimos: o ledger já é idempotente por janela e por settlement
			p.Log.Warn("dedup unavailable", zap.String("eventId", ev.EventID), zap.Error(err))
			p.onError("dedup")
		} else if !first {
			p.Log.Debug("duplicate match event", zap.String("eventId", ev.EventID))
			return
		}
	}

	retries := p.Retries
	if retries <= 0 {
		retries = 3
	}
	var err error
	for attempt := 1; attempt <= retries; attempt++ {
		if err = p.dispatch(ctx, ev); err == nil || permanent(err) {
			break
		}
		p.Log.Warn("match event retry", zap.String("type", ev.Type), zap.String("matchId", ev.MatchID), zap.Int("attempt", attempt), zap.Error(err))
		if attempt == retries {
			break
		}
		select {
		case <-ctx.Done():
			// shutdown: sem DLQ e sem commit, o evento volta na próxima leitura
			p.Log.Warn("match event abandoned on shutdown", zap.String("type", ev.Type), zap.String("matchId", ev.MatchID))
			if p.Dedup != nil && ev.EventID != "" {
				_ = p.Dedup.Release(context.WithoutCancel(ctx), ev.EventID)
			}
			return
		case <-time.After(time.Duration(attempt) * p.Backoff):
		}
	}
	if err == nil {
		if p.OnProcessed != nil {
			p.OnProcessed(ev.Type)
		}
		return
	}

	if permanent(err) {
		p.Log.Warn("match event rejected", zap.String("type", ev.Type), zap.String("matchId", ev.MatchID), zap.Error(err))
		p.onError("rejected")
	} else {
		p.Log.Error("match event failed", zap.String("type", ev.Type), zap.String("matchId", ev.MatchID), zap.Error(err))
		p.onError("dispatch")
		if p.Dedup != nil && ev.EventID != "" {
			_ = p.Dedup.Release(ctx, ev.EventID)
		}
	}
	p.deadLetter(ctx, m, err)
}

func (p *Processor) dispatch(ctx context.Context, ev events.MatchEvent) error {
	switch ev.Type {
	case events.MatchEventClock:
		_, err := p.Ledger.ApplyClock(ctx, service.ClockTick{
			MatchID: ev.MatchID,
			Minute:  ev.Minute,
			Phase:   domain.MatchPhase(ev.Phase),
		})
		return err
	case events.MatchEventGoal:
		_, err := p.Ledger.ProcessGoalEvent(ctx, service.GoalEvent{
			MatchID:       ev.MatchID,
			ScoringTarget: ev.ScoringTarget,
			Minute:        ev.Minute,
			WindowIndex:   ev.WindowIndex,
			Confirmed:     ev.Confirmed,
		})
		return err
	case events.MatchEventSettlement:
		if ev.FinalScore == nil {
			return fmt.Errorf("%w: settlement without final score", domain.ErrValidation)
		}
		rep, err := p.Ledger.SettleBets(ctx, domain.Settlement{
			MatchID:          ev.MatchID,
			ConfirmedScorers: ev.ConfirmedScorers,
			FinalScore:       domain.Score{Home: ev.FinalScore.Home, Away: ev.FinalScore.Away},
			WinnerOutcome:    ev.WinnerOutcome,
		})
		if errors.Is(err, domain.ErrAlreadySettled) {
			// reentrega do gatilho: só conclui apostas que ficaram abertas
			rep, err = p.Ledger.ResumeSettlement(ctx, ev.MatchID)
		}
		if err == nil && len(rep.Failed) > 0 {
			// o match já está liquidado; as apostas abertas ficam para a próxima reentrega
			p.Log.Error("settlement left bets open", zap.String("matchId", ev.MatchID), zap.Int("failed", len(rep.Failed)))
		}
		return err
	}
	return fmt.Errorf("%w: unknown match event type %q", domain.ErrValidation, ev.Type)
}

func (p *Processor) deadLetter(ctx context.Context, m kafkago.Message, cause error) {
	if p.DLQ == nil {
		return
	}
	msg := kafkago.Message{
		Key:     m.Key,
		Value:   m.Value,
		Headers: append(m.Headers, kafkago.Header{Key: "error", Value: []byte(cause.Error())}),
		Time:    time.Now(),
	}
	if err := p.DLQ.WriteMessages(ctx, msg); err != nil {
		p.Log.Error("dlq publish failed", zap.Error(err))
	}
}

package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/radieske/live-bet-ledger/internal/shared/kafka"
	"github.com/radieske/live-bet-ledger/pkg/contracts/events"
)

// KafkaPublisher publica os eventos de aposta; a chave é o match_id para
// preservar a ordem por partida
type KafkaPublisher struct {
	Placed  kafka.MessageWriter
	Changed kafka.MessageWriter
}

func NewKafkaPublisher(placed, changed kafka.MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{Placed: placed, Changed: changed}
}

func (p *KafkaPublisher) PublishBetPlaced(ctx context.Context, e events.BetPlaced) error {
	e.TsUnixMs = time.Now().UnixMilli()
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return kafka.WriteJSON(ctx, p.Placed, e.MatchID, b)
}

func (p *KafkaPublisher) PublishBetChanged(ctx context.Context, e events.BetChanged) error {
	if e.Ts.IsZero() {
		e.Ts = time.Now().UTC()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return kafka.WriteJSON(ctx, p.Changed, e.MatchID, b)
}

package custody

import (
	"context"
	"encoding/json"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/live-bet-ledger/internal/ledger/domain"
	"github.com/radieske/live-bet-ledger/internal/ledger/store"
	"github.com/radieske/live-bet-ledger/internal/shared/kafka"
	"github.com/radieske/live-bet-ledger/pkg/contracts/events"
)

// Outbox é a parte do Store que o relay usa
type Outbox interface {
	PendingIntents(ctx context.Context, limit int) ([]domain.CustodyIntent, error)
	MarkIntentSent(ctx context.Context, key string) error
	MarkIntentFailed(ctx context.Context, key string, cause error) error
}

var _ Outbox = (store.Store)(nil)

// Relay drena o outbox de custódia para o Kafka. Cada intenção é publicada
// com a chave de idempotência; depois de MaxAttempts falhas vai para a DLQ.
type Relay struct {
	Log         *zap.Logger
	Outbox      Outbox
	Writer      kafka.MessageWriter
	DLQ         kafka.MessageWriter // opcional
	MaxAttempts int
	Batch       int
	Period      time.Duration

	published prometheus.Counter
	failed    prometheus.Counter
	dead      prometheus.Counter
}

func NewRelay(log *zap.Logger, ob Outbox, w, dlq kafka.MessageWriter, reg prometheus.Registerer) *Relay {
	r := &Relay{
		Log: log, Outbox: ob, Writer: w, DLQ: dlq,
		MaxAttempts: 5, Batch: 100, Period: time.Second,
		published: prometheus.NewCounter(prometheus.CounterOpts{Name: "custody_relay_published_total", Help: "intenções publicadas"}),
		failed:    prometheus.NewCounter(prometheus.CounterOpts{Name: "custody_relay_failures_total", Help: "falhas de publicação"}),
		dead:      prometheus.NewCounter(prometheus.CounterOpts{Name: "custody_relay_dead_letters_total", Help: "intenções enviadas para a DLQ"}),
	}
	if reg != nil {
		reg.MustRegister(r.published, r.failed, r.dead)
	}
	return r
}

func toEvent(in domain.CustodyIntent) events.CustodyIntent {
	return events.CustodyIntent{
		IdempotencyKey: in.Key,
		Type:           string(in.Type),
		BettorID:       in.BettorID,
		BetID:          in.BetID,
		MatchID:        in.MatchID,
		Amount:         in.Amount.StringFixed(2),
		Attempts:       in.Attempts,
		LastError:      in.LastError,
		Ts:             in.CreatedAt,
	}
}

// DrainResult resume uma passada pelo outbox
type DrainResult struct {
	Published int
	Failed    int
	Dead      int
}

// Drain publica um lote de intenções pendentes. Uma falha não interrompe o lote.
func (r *Relay) Drain(ctx context.Context) (DrainResult, error) {
	var res DrainResult
	pending, err := r.Outbox.PendingIntents(ctx, r.Batch)
	if err != nil {
		return res, err
	}
	for _, in := range pending {
		payload, err := json.Marshal(toEvent(in))
		if err != nil {
			return res, err
		}

		if err := kafka.WriteJSON(ctx, r.Writer, in.BettorID, payload); err != nil {
			res.Failed++
			r.failed.Inc()
			r.Log.Warn("custody intent publish failed", zap.String("key", in.Key), zap.Int("attempt", in.Attempts+1), zap.Error(err))
			if merr := r.Outbox.MarkIntentFailed(ctx, in.Key, err); merr != nil {
				r.Log.Error("mark intent failed", zap.String("key", in.Key), zap.Error(merr))
				continue
			}
			if in.Attempts+1 >= r.MaxAttempts {
				r.deadLetter(ctx, in, err)
				res.Dead++
			}
			continue
		}

		if err := r.Outbox.MarkIntentSent(ctx, in.Key); err != nil {
			// a custódia deduplica pela chave; reentregar é seguro
			r.Log.Warn("mark intent sent", zap.String("key", in.Key), zap.Error(err))
			continue
		}
		res.Published++
		r.published.Inc()
	}
	return res, nil
}

// deadLetter manda a intenção para a DLQ e a tira do outbox
func (r *Relay) deadLetter(ctx context.Context, in domain.CustodyIntent, cause error) {
	r.dead.Inc()
	in.Attempts++
	in.LastError = cause.Error()
	if r.DLQ != nil {
		payload, _ := json.Marshal(toEvent(in))
		if err := kafka.WriteJSON(ctx, r.DLQ, in.BettorID, payload); err != nil {
			r.Log.Error("custody dlq publish failed", zap.String("key", in.Key), zap.Error(err))
			return
		}
	}
	if err := r.Outbox.MarkIntentSent(ctx, in.Key); err != nil {
		r.Log.Error("mark dead intent", zap.String("key", in.Key), zap.Error(err))
	}
	r.Log.Error("custody intent dead-lettered", zap.String("key", in.Key), zap.String("cause", in.LastError))
}

// Run drena o outbox periodicamente até o ctx ser cancelado
func (r *Relay) Run(ctx context.Context) error {
	t := time.NewTicker(r.Period)
	defer t.Stop()
	for {
		if res, err := r.Drain(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.Log.Warn("outbox drain", zap.Error(err))
		} else if res.Published+res.Failed > 0 {
			r.Log.Debug("outbox drained", zap.Int("published", res.Published), zap.Int("failed", res.Failed), zap.Int("dead", res.Dead))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

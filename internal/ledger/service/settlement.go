package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/live-bet-ledger/internal/ledger/domain"
	"github.com/radieske/live-bet-ledger/internal/ledger/store"
	"github.com/radieske/live-bet-ledger/internal/shared/money"
)

// FailedBet é uma aposta que não liquidou após todos os retries
type FailedBet struct {
	BetID string
	Err   string
}

// SettlementReport resume um lote de settlement
type SettlementReport struct {
	MatchID     string
	Won         int
	Lost        int
	Skipped     int
	Failed      []FailedBet
	TotalPayout decimal.Decimal
}

var errBetTerminal = errors.New("bet already terminal")

// SettleBets marca a partida como liquidada (uma única vez) e resolve cada
// aposta aberta em sua própria transação. Falha de uma aposta não interrompe o lote.
func (s *Service) SettleBets(ctx context.Context, st domain.Settlement) (rep SettlementReport, err error) {
	defer func(start time.Time) { s.observe("settle", start, err) }(time.Now())
	if err = st.Validate(); err != nil {
		return rep, err
	}

	mctx, cancel := s.withTimeout(ctx)
	err = s.store.InTx(mctx, st.MatchID, func(tx store.Tx) error {
		m, err := tx.Match(mctx)
		if err != nil {
			return err
		}
		if m.Settled {
			return domain.ErrAlreadySettled
		}
		now := s.now()
		m.Settled = true
		m.Phase = domain.PhaseFinished
		m.FinalScore = st.FinalScore
		m.WinnerOutcome = st.WinnerOutcome
		m.ConfirmedScorers = append([]string(nil), st.ConfirmedScorers...)
		m.SettledAt = &now
		return tx.SaveMatch(mctx, m)
	})
	cancel()
	if err != nil {
		return rep, err
	}
	s.log.Info("match settled",
		zap.String("matchId", st.MatchID),
		zap.Int("home", st.FinalScore.Home),
		zap.Int("away", st.FinalScore.Away),
		zap.String("winner", st.WinnerOutcome),
		zap.Strings("scorers", st.ConfirmedScorers),
	)
	return s.settlePending(ctx, st)
}

// ResumeSettlement reprocessa as apostas ainda abertas de uma partida já liquidada
// (ex.: processo caiu no meio do lote). Apostas terminais são puladas.
func (s *Service) ResumeSettlement(ctx context.Context, matchID string) (SettlementReport, error) {
	mctx, cancel := s.withTimeout(ctx)
	m, err := s.store.Match(mctx, matchID)
	cancel()
	if err != nil {
		return SettlementReport{}, err
	}
	if !m.Settled {
		return SettlementReport{}, fmt.Errorf("%w: match %s not settled", domain.ErrInvalidStateTransition, matchID)
	}
	return s.settlePending(ctx, domain.Settlement{
		MatchID:          m.ID,
		ConfirmedScorers: m.ConfirmedScorers,
		FinalScore:       m.FinalScore,
		WinnerOutcome:    m.WinnerOutcome,
	})
}

func (s *Service) settlePending(ctx context.Context, st domain.Settlement) (SettlementReport, error) {
	rep := SettlementReport{MatchID: st.MatchID, TotalPayout: decimal.Zero}

	lctx, cancel := s.withTimeout(ctx)
	bets, err := s.store.BetsByMatch(lctx, st.MatchID)
	cancel()
	if err != nil {
		return rep, err
	}

	// soma em micro-unidades; arredonda para centavos uma vez no fim
	total := decimal.Zero
	for _, b := range bets {
		if b.Status.Terminal() {
			rep.Skipped++
			continue
		}
		settled, err := s.settleWithRetry(ctx, b.ID, st)
		switch {
		case errors.Is(err, errBetTerminal):
			rep.Skipped++
		case err != nil:
			s.metrics.SettleFailures.Inc()
			s.log.Error("settle bet failed", zap.String("betId", b.ID), zap.String("matchId", st.MatchID), zap.Error(err))
			rep.Failed = append(rep.Failed, FailedBet{BetID: b.ID, Err: err.Error()})
		case settled.Status == domain.StatusSettledWon:
			rep.Won++
			total = total.Add(money.Micro(settled.CurrentAmount.Mul(settled.Odds)))
			s.metrics.BetsSettled.WithLabelValues("won").Inc()
		default:
			rep.Lost++
			s.metrics.BetsSettled.WithLabelValues("lost").Inc()
		}
	}
	rep.TotalPayout = money.Cents(total)

	s.log.Info("settlement batch done",
		zap.String("matchId", st.MatchID),
		zap.Int("won", rep.Won),
		zap.Int("lost", rep.Lost),
		zap.Int("skipped", rep.Skipped),
		zap.Int("failed", len(rep.Failed)),
		zap.String("payout", rep.TotalPayout.StringFixed(2)),
	)
	return rep, nil
}

// settleWithRetry tenta liquidar uma aposta com backoff linear
func (s *Service) settleWithRetry(ctx context.Context, betID string, st domain.Settlement) (domain.Bet, error) {
	var (
		b   domain.Bet
		err error
	)
	for attempt := 1; attempt <= s.cfg.SettleMaxRetries; attempt++ {
		bctx, cancel := s.withTimeout(ctx)
		b, err = s.settleOne(bctx, betID, st)
		cancel()
		if err == nil || errors.Is(err, errBetTerminal) || errors.Is(err, domain.ErrInvalidStateTransition) {
			return b, err
		}
		s.log.Warn("settle bet retry", zap.String("betId", betID), zap.Int("attempt", attempt), zap.Error(err))
		if attempt == s.cfg.SettleMaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return b, ctx.Err()
		case <-time.After(time.Duration(attempt) * s.cfg.SettleBackoff):
		}
	}
	return b, err
}

// winner decide o resultado final de uma aposta. NGS só vence se o gol da sua
// janela foi dela e o autor segue entre os gols confirmados.
func winner(st domain.Settlement, b domain.Bet) bool {
	if b.Kind == domain.KindNextGoalScorer {
		return b.Status == domain.StatusProvisionalWin && st.Outcome(b)
	}
	return st.Outcome(b)
}

func (s *Service) settleOne(ctx context.Context, betID string, st domain.Settlement) (domain.Bet, error) {
	var out domain.Bet
	err := s.store.InTx(ctx, st.MatchID, func(tx store.Tx) error {
		b, err := tx.Bet(ctx, betID)
		if err != nil {
			return err
		}
		if b.Status.Terminal() {
			return errBetTerminal
		}
		prev := b
		now := s.now()

		var (
			delta  domain.BalanceDelta
			intent *domain.CustodyIntent
		)
		if winner(st, b) {
			b.Status = domain.StatusSettledWon
			b.Payout = money.Payout(b.CurrentAmount, b.Odds)
			delta = domain.SettleWonDelta(b.CurrentAmount, b.Odds, prev.Status == domain.StatusProvisionalWin)
			intent = &domain.CustodyIntent{
				Key:    domain.IntentKey(domain.IntentPayout, b.ID, 0),
				Type:   domain.IntentPayout,
				Amount: b.Payout,
			}
		} else {
			b.Status = domain.StatusSettledLost
			b.Payout = decimal.Zero
			delta = domain.SettleLostDelta(prev)
			// provisional_loss já gerou o forfeit no gol
			if prev.Status != domain.StatusProvisionalLoss {
				intent = &domain.CustodyIntent{
					Key:    domain.IntentKey(domain.IntentForfeit, b.ID, 0),
					Type:   domain.IntentForfeit,
					Amount: b.CurrentAmount,
				}
			}
		}
		if !domain.CanTransition(prev.Status, b.Status) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStateTransition, prev.Status, b.Status)
		}
		b.SettledAt = &now
		b.UpdatedAt = now

		if err := tx.UpdateBet(ctx, b, prev.Status); err != nil {
			return err
		}
		if !delta.IsZero() {
			if err := tx.ApplyBalance(ctx, b.BettorID, delta); err != nil {
				return err
			}
		}
		if intent != nil {
			intent.BettorID, intent.BetID, intent.MatchID = b.BettorID, b.ID, b.MatchID
			if err := tx.Enqueue(ctx, *intent); err != nil {
				return err
			}
		}
		out = b
		return nil
	})
	return out, err
}

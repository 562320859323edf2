package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/live-bet-ledger/internal/ledger/domain"
	"github.com/radieske/live-bet-ledger/internal/ledger/store"
)

// GoalEvent é um gol vindo do feed. WindowIndex é a janela que o gol fecha.
type GoalEvent struct {
	MatchID       string
	ScoringTarget string
	Minute        int
	WindowIndex   int
	Confirmed     bool
}

func (e GoalEvent) Validate() error {
	if strings.TrimSpace(e.MatchID) == "" || strings.TrimSpace(e.ScoringTarget) == "" {
		return fmt.Errorf("%w: match and scoring target are required", domain.ErrValidation)
	}
	if e.Minute < 0 || e.WindowIndex < 0 {
		return fmt.Errorf("%w: minute and window index must be non-negative", domain.ErrValidation)
	}
	return nil
}

// GoalResult resume o efeito de um gol
type GoalResult struct {
	Ignored bool // não confirmado ou janela já fechada
	Won     []string
	Lost    []string
}

// ProcessGoalEvent resolve as NGS ativas capturadas exatamente na janela do gol.
// Cada aposta é resolvida uma única vez; gols repetidos são ignorados.
func (s *Service) ProcessGoalEvent(ctx context.Context, ev GoalEvent) (res GoalResult, err error) {
	defer func(start time.Time) { s.observe("goal", start, err) }(time.Now())
	if err = ev.Validate(); err != nil {
		return res, err
	}
	if !ev.Confirmed {
		s.metrics.GoalsProcessed.WithLabelValues("unconfirmed").Inc()
		return GoalResult{Ignored: true}, nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err = s.retryConflict(ctx, func() error {
		res = GoalResult{}
		return s.store.InTx(ctx, ev.MatchID, func(tx store.Tx) error {
			m, err := tx.Match(ctx)
			if err != nil {
				return err
			}
			if !m.AcceptsBets() {
				return domain.ErrAlreadySettled
			}
			if ev.WindowIndex < m.GoalWindow {
				res.Ignored = true
				return nil
			}

			bets, err := tx.MatchBets(ctx)
			if err != nil {
				return err
			}
			var hit []domain.Bet
			for _, b := range bets {
				if b.Kind == domain.KindNextGoalScorer && b.Status == domain.StatusActive && b.WindowIndex == ev.WindowIndex {
					hit = append(hit, b)
				}
			}
			// ordem fixa de apostador para travar saldos sempre na mesma sequência
			sort.Slice(hit, func(i, j int) bool {
				if hit[i].BettorID != hit[j].BettorID {
					return hit[i].BettorID < hit[j].BettorID
				}
				return hit[i].ID < hit[j].ID
			})

			now := s.now()
			for _, b := range hit {
				if err := s.resolveWindow(ctx, tx, b, ev.ScoringTarget, now); err != nil {
					return err
				}
				if b.CurrentTarget == ev.ScoringTarget {
					res.Won = append(res.Won, b.ID)
				} else {
					res.Lost = append(res.Lost, b.ID)
				}
			}

			m.GoalWindow = ev.WindowIndex + 1
			if ev.Minute > m.Minute {
				m.Minute = ev.Minute
			}
			return tx.SaveMatch(ctx, m)
		})
	})
	if err != nil {
		return GoalResult{}, err
	}

	if res.Ignored {
		s.metrics.GoalsProcessed.WithLabelValues("duplicate").Inc()
		s.log.Debug("goal ignored", zap.String("matchId", ev.MatchID), zap.Int("window", ev.WindowIndex))
		return res, nil
	}
	s.metrics.GoalsProcessed.WithLabelValues("applied").Inc()
	s.log.Info("goal processed",
		zap.String("matchId", ev.MatchID),
		zap.String("scorer", ev.ScoringTarget),
		zap.Int("window", ev.WindowIndex),
		zap.Int("minute", ev.Minute),
		zap.Int("won", len(res.Won)),
		zap.Int("lost", len(res.Lost)),
	)
	return res, nil
}

func (s *Service) resolveWindow(ctx context.Context, tx store.Tx, b domain.Bet, scorer string, now time.Time) error {
	prev := b.Status
	var delta domain.BalanceDelta
	if b.CurrentTarget == scorer {
		b.Status = domain.StatusProvisionalWin
		delta = domain.GoalWinDelta(b.CurrentAmount, b.Odds)
	} else {
		b.Status = domain.StatusProvisionalLoss
		delta = domain.GoalLossDelta(b.CurrentAmount)
	}
	if !domain.CanTransition(prev, b.Status) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStateTransition, prev, b.Status)
	}
	b.UpdatedAt = now
	if err := tx.UpdateBet(ctx, b, prev); err != nil {
		return err
	}
	if err := tx.ApplyBalance(ctx, b.BettorID, delta); err != nil {
		return err
	}
	if b.Status == domain.StatusProvisionalLoss {
		return tx.Enqueue(ctx, domain.CustodyIntent{
			Key:      domain.IntentKey(domain.IntentForfeit, b.ID, 0),
			Type:     domain.IntentForfeit,
			BettorID: b.BettorID,
			BetID:    b.ID,
			MatchID:  b.MatchID,
			Amount:   b.CurrentAmount,
		})
	}
	return nil
}

// ClockTick atualiza minuto e fase de uma partida
type ClockTick struct {
	MatchID string
	Minute  int
	Phase   domain.MatchPhase
}

// ApplyClock cria a partida no primeiro tick e acompanha o relógio.
// O minuto nunca volta; uma partida encerrada não reabre.
func (s *Service) ApplyClock(ctx context.Context, t ClockTick) (m domain.Match, err error) {
	defer func(start time.Time) { s.observe("clock", start, err) }(time.Now())
	if strings.TrimSpace(t.MatchID) == "" || t.Minute < 0 {
		return m, fmt.Errorf("%w: match id and non-negative minute required", domain.ErrValidation)
	}
	if _, err = domain.ParsePhase(string(t.Phase)); err != nil {
		return m, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err = s.store.InTx(ctx, t.MatchID, func(tx store.Tx) error {
		cur, err := tx.Match(ctx)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrNotFound):
			cur = domain.Match{ID: t.MatchID, Phase: domain.PhasePreMatch}
		default:
			return err
		}
		if cur.Settled {
			return domain.ErrAlreadySettled
		}
		if cur.Phase == domain.PhaseFinished && t.Phase != domain.PhaseFinished {
			return fmt.Errorf("%w: match %s already finished", domain.ErrInvalidStateTransition, t.MatchID)
		}
		cur.Phase = t.Phase
		if t.Minute > cur.Minute {
			cur.Minute = t.Minute
		}
		m = cur
		return tx.SaveMatch(ctx, cur)
	})
	if err != nil {
		return domain.Match{}, err
	}
	s.log.Debug("clock", zap.String("matchId", m.ID), zap.String("phase", string(m.Phase)), zap.Int("minute", m.Minute))
	return m, nil
}

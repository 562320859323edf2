package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/live-bet-ledger/internal/ledger/domain"
	"github.com/radieske/live-bet-ledger/internal/ledger/penalty"
	"github.com/radieske/live-bet-ledger/internal/ledger/store"
	"github.com/radieske/live-bet-ledger/internal/shared/money"
)

// FundsSource informa o saldo livre de um apostador na custódia externa
type FundsSource interface {
	FreeBalance(ctx context.Context, bettorID string) (decimal.Decimal, error)
}

// Config controla timeouts e retries do ledger
type Config struct {
	OpTimeout        time.Duration
	ConflictRetries  int
	SettleMaxRetries int
	SettleBackoff    time.Duration
}

func (c Config) withDefaults() Config {
	if c.OpTimeout <= 0 {
		c.OpTimeout = 3 * time.Second
	}
	if c.ConflictRetries <= 0 {
		c.ConflictRetries = 3
	}
	if c.SettleMaxRetries <= 0 {
		c.SettleMaxRetries = 3
	}
	if c.SettleBackoff <= 0 {
		c.SettleBackoff = 100 * time.Millisecond
	}
	return c
}

// Service concentra as regras do ledger; o backend é só persistência
type Service struct {
	store   store.Store
	log     *zap.Logger
	cfg     Config
	funds   FundsSource
	metrics *Metrics
	now     func() time.Time
}

type Option func(*Service)

// WithFunds liga a consulta de saldo livre na custódia para contas novas
func WithFunds(f FundsSource) Option { return func(s *Service) { s.funds = f } }

func WithMetrics(m *Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithClock troca o relógio (testes)
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func New(st store.Store, log *zap.Logger, cfg Config, opts ...Option) *Service {
	s := &Service{
		store: st,
		log:   log,
		cfg:   cfg.withDefaults(),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	return s
}

// PlaceRequest é a entrada de PlaceBet
type PlaceRequest struct {
	BettorID    string
	MatchID     string
	Kind        domain.BetKind
	Target      string
	Stake       decimal.Decimal
	Odds        decimal.Decimal
	Minute      int
	WindowIndex int
}

func (r PlaceRequest) Validate() error {
	if strings.TrimSpace(r.BettorID) == "" || strings.TrimSpace(r.MatchID) == "" {
		return fmt.Errorf("%w: bettor and match are required", domain.ErrValidation)
	}
	if !money.Cents(r.Stake).IsPositive() {
		return fmt.Errorf("%w: stake must be positive", domain.ErrValidation)
	}
	if err := domain.ValidateOdds(r.Odds); err != nil {
		return err
	}
	if r.Minute < 0 || r.WindowIndex < 0 {
		return fmt.Errorf("%w: minute and window index must be non-negative", domain.ErrValidation)
	}
	return domain.ValidateTarget(r.Kind, r.Target)
}

// ChangeRequest é a entrada de ChangeBet
type ChangeRequest struct {
	BetID     string
	NewTarget string
	NewOdds   decimal.Decimal
	Minute    int
}

// ChangeResult devolve a aposta atualizada e o custo aplicado
type ChangeResult struct {
	Bet     domain.Bet
	Penalty penalty.Result
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.OpTimeout)
}

func (s *Service) observe(op string, start time.Time, err error) {
	s.metrics.OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.Rejections.WithLabelValues(op, reason(err)).Inc()
	}
}

// reason é o rótulo curto de um erro de domínio
func reason(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, domain.ErrExistingActiveBet):
		return "existing_active_bet"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidStateTransition):
		return "invalid_state"
	case errors.Is(err, domain.ErrAlreadySettled):
		return "already_settled"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	return "internal"
}

// retryConflict repete fn enquanto o CAS perder a corrida
func (s *Service) retryConflict(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; i <= s.cfg.ConflictRetries; i++ {
		if err = fn(); !errors.Is(err, domain.ErrConflict) {
			return err
		}
		s.metrics.Conflicts.Inc()
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return err
}

// EnsureAccount cria a conta do apostador na primeira vez em que ele aparece,
// com a carteira inicial informada pela custódia
func (s *Service) EnsureAccount(ctx context.Context, bettorID string) error {
	if _, err := s.store.Balance(ctx, bettorID); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	seed := decimal.Zero
	if s.funds != nil {
		free, err := s.funds.FreeBalance(ctx, bettorID)
		if err != nil {
			return fmt.Errorf("custody free balance: %w", err)
		}
		seed = free
	}
	created, err := s.store.EnsureBalance(ctx, bettorID, domain.FundDelta(seed))
	if err != nil {
		return err
	}
	if created {
		s.log.Info("account opened", zap.String("bettorId", bettorID), zap.String("wallet", money.Cents(seed).StringFixed(2)))
	}
	return nil
}

// PlaceBet cria a aposta e debita a carteira na mesma transação
func (s *Service) PlaceBet(ctx context.Context, req PlaceRequest) (bet domain.Bet, err error) {
	defer func(start time.Time) { s.observe("place", start, err) }(time.Now())
	if err = req.Validate(); err != nil {
		return domain.Bet{}, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err = s.EnsureAccount(ctx, req.BettorID); err != nil {
		return domain.Bet{}, err
	}

	stake := money.Cents(req.Stake)
	target := strings.TrimSpace(req.Target)
	err = s.retryConflict(ctx, func() error {
		return s.store.InTx(ctx, req.MatchID, func(tx store.Tx) error {
			m, err := tx.Match(ctx)
			if err != nil {
				return fmt.Errorf("match %s: %w", req.MatchID, err)
			}
			if !m.AcceptsBets() {
				return domain.ErrAlreadySettled
			}
			if req.WindowIndex != m.GoalWindow {
				return fmt.Errorf("%w: window index %d is not the open window %d", domain.ErrValidation, req.WindowIndex, m.GoalWindow)
			}

			now := s.now()
			bet = domain.Bet{
				ID:             uuid.NewString(),
				BettorID:       req.BettorID,
				MatchID:        req.MatchID,
				Kind:           req.Kind,
				OriginalTarget: target,
				CurrentTarget:  target,
				OriginalAmount: stake,
				CurrentAmount:  stake,
				TotalPenalties: decimal.Zero,
				Odds:           req.Odds,
				Status:         domain.StatusActive,
				PlacedMinute:   req.Minute,
				WindowIndex:    m.GoalWindow,
				Payout:         decimal.Zero,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := tx.InsertBet(ctx, bet); err != nil {
				return err
			}
			if err := tx.ApplyBalance(ctx, req.BettorID, domain.PlaceDelta(stake)); err != nil {
				return err
			}
			return tx.Enqueue(ctx, domain.CustodyIntent{
				Key:      domain.IntentKey(domain.IntentLock, bet.ID, 0),
				Type:     domain.IntentLock,
				BettorID: bet.BettorID,
				BetID:    bet.ID,
				MatchID:  bet.MatchID,
				Amount:   stake,
			})
		})
	})
	if err != nil {
		return domain.Bet{}, err
	}

	s.metrics.BetsPlaced.WithLabelValues(string(bet.Kind)).Inc()
	s.log.Info("bet placed",
		zap.String("betId", bet.ID),
		zap.String("bettorId", bet.BettorID),
		zap.String("matchId", bet.MatchID),
		zap.String("kind", string(bet.Kind)),
		zap.String("stake", stake.StringFixed(2)),
		zap.Int("window", bet.WindowIndex),
	)
	return bet, nil
}

// ChangeBet troca a seleção de uma aposta ativa, retendo a penalidade do stake
func (s *Service) ChangeBet(ctx context.Context, req ChangeRequest) (out ChangeResult, err error) {
	defer func(start time.Time) { s.observe("change", start, err) }(time.Now())
	if req.Minute < 0 {
		return out, fmt.Errorf("%w: minute must be non-negative", domain.ErrValidation)
	}
	if err = domain.ValidateOdds(req.NewOdds); err != nil {
		return out, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	cur, err := s.store.Bet(ctx, req.BetID)
	if err != nil {
		return out, err
	}
	if err = domain.ValidateTarget(cur.Kind, req.NewTarget); err != nil {
		return out, err
	}
	target := strings.TrimSpace(req.NewTarget)

	err = s.retryConflict(ctx, func() error {
		return s.store.InTx(ctx, cur.MatchID, func(tx store.Tx) error {
			m, err := tx.Match(ctx)
			if err != nil {
				return err
			}
			if !m.AcceptsBets() {
				return domain.ErrAlreadySettled
			}
			b, err := tx.Bet(ctx, req.BetID)
			if err != nil {
				return err
			}
			if b.Status != domain.StatusActive {
				return fmt.Errorf("%w: bet %s is %s", domain.ErrInvalidStateTransition, b.ID, b.Status)
			}
			if b.CurrentTarget == target {
				return fmt.Errorf("%w: bet already on %q", domain.ErrValidation, target)
			}

			// o relógio da partida vem do feed; o cliente só pode adiantar o custo, nunca reduzi-lo
			minute := max(req.Minute, m.Minute)
			res := penalty.Calc(b.CurrentAmount, b.ChangeCount+1, minute)
			from := b.CurrentTarget
			b.CurrentTarget = target
			b.CurrentAmount = res.NewAmount
			b.TotalPenalties = money.Cents(b.TotalPenalties.Add(res.PenaltyAmount))
			b.ChangeCount = res.ChangeNumber
			b.Odds = req.NewOdds
			b.WindowIndex = m.GoalWindow
			b.UpdatedAt = s.now()

			if err := tx.UpdateBet(ctx, b, domain.StatusActive); err != nil {
				return err
			}
			if err := tx.ApplyBalance(ctx, b.BettorID, domain.ChangeDelta(res.PenaltyAmount)); err != nil {
				return err
			}
			if err := tx.AppendChange(ctx, domain.BetChange{
				BetID:         b.ID,
				Seq:           res.ChangeNumber,
				FromTarget:    from,
				ToTarget:      target,
				PenaltyAmount: res.PenaltyAmount,
				PenaltyPct:    res.PenaltyPct,
				Minute:        minute,
				CreatedAt:     b.UpdatedAt,
			}); err != nil {
				return err
			}
			if res.PenaltyAmount.IsPositive() {
				if err := tx.Enqueue(ctx, domain.CustodyIntent{
					Key:      domain.IntentKey(domain.IntentPenalty, b.ID, res.ChangeNumber),
					Type:     domain.IntentPenalty,
					BettorID: b.BettorID,
					BetID:    b.ID,
					MatchID:  b.MatchID,
					Amount:   res.PenaltyAmount,
				}); err != nil {
					return err
				}
			}
			out = ChangeResult{Bet: b, Penalty: res}
			return nil
		})
	})
	if err != nil {
		return ChangeResult{}, err
	}

	s.metrics.BetsChanged.Inc()
	s.metrics.PenaltyAmount.Add(out.Penalty.PenaltyAmount.InexactFloat64())
	s.log.Info("bet changed",
		zap.String("betId", out.Bet.ID),
		zap.Int("change", out.Penalty.ChangeNumber),
		zap.String("penalty", out.Penalty.PenaltyAmount.StringFixed(2)),
		zap.String("stake", out.Bet.CurrentAmount.StringFixed(2)),
	)
	return out, nil
}

// PreviewPenalty calcula o custo da próxima troca sem alterar nada
func (s *Service) PreviewPenalty(ctx context.Context, betID string, minute int) (penalty.Result, error) {
	if minute < 0 {
		return penalty.Result{}, fmt.Errorf("%w: minute must be non-negative", domain.ErrValidation)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	b, err := s.store.Bet(ctx, betID)
	if err != nil {
		return penalty.Result{}, err
	}
	if b.Status != domain.StatusActive {
		return penalty.Result{}, fmt.Errorf("%w: bet %s is %s", domain.ErrInvalidStateTransition, b.ID, b.Status)
	}
	m, err := s.store.Match(ctx, b.MatchID)
	if err != nil {
		return penalty.Result{}, err
	}
	return penalty.Calc(b.CurrentAmount, b.ChangeCount+1, max(minute, m.Minute)), nil
}

func (s *Service) GetBet(ctx context.Context, betID string) (domain.Bet, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.store.Bet(ctx, betID)
}

func (s *Service) GetBets(ctx context.Context, bettorID string) ([]domain.Bet, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.store.BetsByBettor(ctx, bettorID)
}

func (s *Service) GetChanges(ctx context.Context, betID string) ([]domain.BetChange, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.store.Bet(ctx, betID); err != nil {
		return nil, err
	}
	return s.store.Changes(ctx, betID)
}

// GetBalance devolve os buckets persistidos mais o potencial derivado das apostas abertas
func (s *Service) GetBalance(ctx context.Context, bettorID string) (domain.Balance, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	bal, err := s.store.Balance(ctx, bettorID)
	if err != nil {
		return domain.Balance{}, err
	}
	bets, err := s.store.BetsByBettor(ctx, bettorID)
	if err != nil {
		return domain.Balance{}, err
	}
	bal.PotentialPayout = domain.DeriveExposure(bets).PotentialPayout
	return bal, nil
}

// Drift compara locked/provisional mantidos incrementalmente com os derivados das apostas
type Drift struct {
	Stored  domain.Balance
	Derived domain.Exposure
}

func (d Drift) Consistent() bool {
	return d.Stored.Locked.Equal(d.Derived.Locked) && d.Stored.Provisional.Equal(d.Derived.Provisional)
}

// Reconcile recalcula a exposição de um apostador a partir das apostas
func (s *Service) Reconcile(ctx context.Context, bettorID string) (Drift, error) {
	bal, err := s.GetBalance(ctx, bettorID)
	if err != nil {
		return Drift{}, err
	}
	bets, err := s.store.BetsByBettor(ctx, bettorID)
	if err != nil {
		return Drift{}, err
	}
	d := Drift{Stored: bal, Derived: domain.DeriveExposure(bets)}
	if !d.Consistent() {
		s.log.Warn("balance drift",
			zap.String("bettorId", bettorID),
			zap.String("lockedStored", bal.Locked.StringFixed(2)),
			zap.String("lockedDerived", d.Derived.Locked.StringFixed(2)),
			zap.String("provisionalStored", bal.Provisional.StringFixed(2)),
			zap.String("provisionalDerived", d.Derived.Provisional.StringFixed(2)),
		)
	}
	return d, nil
}

// Fund credita a carteira a partir de um depósito confirmado pela custódia
func (s *Service) Fund(ctx context.Context, bettorID string, amount decimal.Decimal) (domain.Balance, error) {
	if strings.TrimSpace(bettorID) == "" {
		return domain.Balance{}, fmt.Errorf("%w: bettor required", domain.ErrValidation)
	}
	if !money.Cents(amount).IsPositive() {
		return domain.Balance{}, fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	bal, err := s.store.Fund(ctx, bettorID, domain.FundDelta(amount))
	if err != nil {
		return domain.Balance{}, err
	}
	s.log.Info("wallet funded", zap.String("bettorId", bettorID), zap.String("amount", money.Cents(amount).StringFixed(2)))
	return bal, nil
}

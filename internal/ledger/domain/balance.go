package domain

import (
	"github.com/shopspring/decimal"

	"github.com/radieske/live-bet-ledger/internal/shared/money"
)

// Balance é o estado de saldo de um apostador.
// Wallet: livre/sacável. Locked: stake em apostas abertas. Provisional: crédito especulativo
// de vitória ainda não sacável. PotentialPayout é apenas informativo (derivado das apostas).
type Balance struct {
	BettorID        string
	Wallet          decimal.Decimal
	Locked          decimal.Decimal
	Provisional     decimal.Decimal
	PotentialPayout decimal.Decimal
}

// BalanceDelta é uma mutação atômica sobre os três buckets persistidos
type BalanceDelta struct {
	Wallet      decimal.Decimal
	Locked      decimal.Decimal
	Provisional decimal.Decimal
}

// IsZero indica que o delta não altera nada
func (d BalanceDelta) IsZero() bool {
	return d.Wallet.IsZero() && d.Locked.IsZero() && d.Provisional.IsZero()
}

// Add soma dois deltas (usado para acumular mutações dentro de uma transação)
func (d BalanceDelta) Add(o BalanceDelta) BalanceDelta {
	return BalanceDelta{
		Wallet:      d.Wallet.Add(o.Wallet),
		Locked:      d.Locked.Add(o.Locked),
		Provisional: d.Provisional.Add(o.Provisional),
	}
}

// Apply devolve o saldo resultante, arredondado em centavos.
// Falha com ErrInsufficientBalance se qualquer bucket ficar negativo; nesse caso nada muda.
func (b Balance) Apply(d BalanceDelta) (Balance, error) {
	out := b
	out.Wallet = money.Cents(b.Wallet.Add(d.Wallet))
	out.Locked = money.Cents(b.Locked.Add(d.Locked))
	out.Provisional = money.Cents(b.Provisional.Add(d.Provisional))
	if out.Wallet.IsNegative() || out.Locked.IsNegative() || out.Provisional.IsNegative() {
		return b, ErrInsufficientBalance
	}
	return out, nil
}

// FundDelta credita a carteira (depósito notificado pela custódia)
func FundDelta(amount decimal.Decimal) BalanceDelta {
	return BalanceDelta{Wallet: money.Cents(amount)}
}

// PlaceDelta: wallet -= stake; locked += stake
func PlaceDelta(stake decimal.Decimal) BalanceDelta {
	s := money.Cents(stake)
	return BalanceDelta{Wallet: s.Neg(), Locked: s}
}

// ChangeDelta: o stake encolhe no lugar; a carteira não é tocada
func ChangeDelta(penalty decimal.Decimal) BalanceDelta {
	return BalanceDelta{Locked: money.Cents(penalty).Neg()}
}

// GoalWinDelta: provisional += stake × odds; o stake continua bloqueado
func GoalWinDelta(stake, odds decimal.Decimal) BalanceDelta {
	return BalanceDelta{Provisional: money.Payout(stake, odds)}
}

// GoalLossDelta: o stake é perdido imediatamente
func GoalLossDelta(stake decimal.Decimal) BalanceDelta {
	return BalanceDelta{Locked: money.Cents(stake).Neg()}
}

// SettleWonDelta move o pagamento para a carteira e libera o stake.
// Se a aposta tinha crédito provisório, ele é consumido.
func SettleWonDelta(stake, odds decimal.Decimal, fromProvisional bool) BalanceDelta {
	payout := money.Payout(stake, odds)
	d := BalanceDelta{
		Wallet: payout,
		Locked: money.Cents(stake).Neg(),
	}
	if fromProvisional {
		d.Provisional = payout.Neg()
	}
	return d
}

// SettleLostDelta libera o stake sem crédito. Apostas em provisional_loss já tiveram o stake
// liberado no gol e não geram efeito. Se havia crédito provisório (gol anulado), ele é estornado.
func SettleLostDelta(b Bet) BalanceDelta {
	var d BalanceDelta
	switch b.Status {
	case StatusActive:
		d.Locked = money.Cents(b.CurrentAmount).Neg()
	case StatusProvisionalWin:
		d.Locked = money.Cents(b.CurrentAmount).Neg()
		d.Provisional = money.Payout(b.CurrentAmount, b.Odds).Neg()
	}
	return d
}

// Exposure é a projeção de saldo derivada do conjunto de apostas
type Exposure struct {
	Locked          decimal.Decimal
	Provisional     decimal.Decimal
	PotentialPayout decimal.Decimal
}

// DeriveExposure recalcula locked/provisional/potential a partir das apostas.
// Deve coincidir com os valores mantidos incrementalmente no Balance.
func DeriveExposure(bets []Bet) Exposure {
	var e Exposure
	for _, b := range bets {
		switch b.Status {
		case StatusActive:
			e.Locked = e.Locked.Add(b.CurrentAmount)
			e.PotentialPayout = e.PotentialPayout.Add(b.PotentialPayout())
		case StatusProvisionalWin:
			p := b.PotentialPayout()
			e.Locked = e.Locked.Add(b.CurrentAmount)
			e.Provisional = e.Provisional.Add(p)
			e.PotentialPayout = e.PotentialPayout.Add(p)
		}
	}
	e.Locked = money.Cents(e.Locked)
	e.Provisional = money.Cents(e.Provisional)
	e.PotentialPayout = money.Cents(e.PotentialPayout)
	return e
}

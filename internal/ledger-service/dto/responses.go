package dto

import (
	"time"

	"github.com/radieske/live-bet-ledger/internal/ledger/domain"
	"github.com/radieske/live-bet-ledger/internal/ledger/penalty"
)

// Valores monetários saem como string com 2 casas, ex: "19.60"

type BetResponse struct {
	BetID          string     `json:"betId"`
	BettorID       string     `json:"bettorId"`
	MatchID        string     `json:"matchId"`
	Kind           string     `json:"kind"`
	OriginalTarget string     `json:"originalTarget"`
	CurrentTarget  string     `json:"currentTarget"`
	OriginalAmount string     `json:"originalAmount"`
	CurrentAmount  string     `json:"currentAmount"`
	TotalPenalties string     `json:"totalPenalties"`
	ChangeCount    int        `json:"changeCount"`
	Odds           string     `json:"odds"`
	Status         string     `json:"status"`
	PlacedMinute   int        `json:"placedMinute"`
	WindowIndex    int        `json:"windowIndex"`
	Payout         string     `json:"payout"`
	CreatedAt      time.Time  `json:"createdAt"`
	SettledAt      *time.Time `json:"settledAt,omitempty"`
}

func FromBet(b domain.Bet) BetResponse {
	return BetResponse{
		BetID:          b.ID,
		BettorID:       b.BettorID,
		MatchID:        b.MatchID,
		Kind:           string(b.Kind),
		OriginalTarget: b.OriginalTarget,
		CurrentTarget:  b.CurrentTarget,
		OriginalAmount: b.OriginalAmount.StringFixed(2),
		CurrentAmount:  b.CurrentAmount.StringFixed(2),
		TotalPenalties: b.TotalPenalties.StringFixed(2),
		ChangeCount:    b.ChangeCount,
		Odds:           b.Odds.String(),
		Status:         string(b.Status),
		PlacedMinute:   b.PlacedMinute,
		WindowIndex:    b.WindowIndex,
		Payout:         b.Payout.StringFixed(2),
		CreatedAt:      b.CreatedAt,
		SettledAt:      b.SettledAt,
	}
}

type BalanceResponse struct {
	BettorID        string `json:"bettorId"`
	Wallet          string `json:"wallet"`
	Locked          string `json:"locked"`
	Provisional     string `json:"provisional"`
	PotentialPayout string `json:"potentialPayout"`
}

func FromBalance(b domain.Balance) BalanceResponse {
	return BalanceResponse{
		BettorID:        b.BettorID,
		Wallet:          b.Wallet.StringFixed(2),
		Locked:          b.Locked.StringFixed(2),
		Provisional:     b.Provisional.StringFixed(2),
		PotentialPayout: b.PotentialPayout.StringFixed(2),
	}
}

type PenaltyResponse struct {
	ChangeNumber  int    `json:"changeNumber"`
	PenaltyPct    string `json:"penaltyPct"`
	PenaltyAmount string `json:"penaltyAmount"`
	NewAmount     string `json:"newAmount"`
}

func FromPenalty(p penalty.Result) PenaltyResponse {
	return PenaltyResponse{
		ChangeNumber:  p.ChangeNumber,
		PenaltyPct:    p.PenaltyPct.String(),
		PenaltyAmount: p.PenaltyAmount.StringFixed(2),
		NewAmount:     p.NewAmount.StringFixed(2),
	}
}

type ChangeBetResponse struct {
	Bet     BetResponse     `json:"bet"`
	Penalty PenaltyResponse `json:"penalty"`
}

type BetChangeResponse struct {
	Seq           int       `json:"seq"`
	FromTarget    string    `json:"fromTarget"`
	ToTarget      string    `json:"toTarget"`
	PenaltyAmount string    `json:"penaltyAmount"`
	PenaltyPct    string    `json:"penaltyPct"`
	Minute        int       `json:"minute"`
	CreatedAt     time.Time `json:"createdAt"`
}

func FromChange(c domain.BetChange) BetChangeResponse {
	return BetChangeResponse{
		Seq:           c.Seq,
		FromTarget:    c.FromTarget,
		ToTarget:      c.ToTarget,
		PenaltyAmount: c.PenaltyAmount.StringFixed(2),
		PenaltyPct:    c.PenaltyPct.String(),
		Minute:        c.Minute,
		CreatedAt:     c.CreatedAt,
	}
}

type ErrorResponse struct {
	Error       string `json:"error"`
	Code        string `json:"code"`
	CurrentOdds string `json:"currentOdds,omitempty"`
}

package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/live-bet-ledger/internal/shared/money"
)

type BetKind string

const (
	KindNextGoalScorer BetKind = "NEXT_GOAL_SCORER"
	KindMatchWinner    BetKind = "MATCH_WINNER"
	KindExactGoals     BetKind = "EXACT_GOALS"
)

type BetStatus string

const (
	StatusActive          BetStatus = "active"
	StatusProvisionalWin  BetStatus = "provisional_win"
	StatusProvisionalLoss BetStatus = "provisional_loss"
	StatusSettledWon      BetStatus = "settled_won"
	StatusSettledLost     BetStatus = "settled_lost"
)

// Outcomes aceitos em MATCH_WINNER
const (
	OutcomeHome = "home"
	OutcomeAway = "away"
	OutcomeDraw = "draw"
)

// Terminal indica que a aposta já foi liquidada e é imutável
func (s BetStatus) Terminal() bool {
	return s == StatusSettledWon || s == StatusSettledLost
}

// transitions lista as transições permitidas; nenhuma volta atrás
var transitions = map[BetStatus][]BetStatus{
	StatusActive:          {StatusProvisionalWin, StatusProvisionalLoss, StatusSettledWon, StatusSettledLost},
	StatusProvisionalWin:  {StatusSettledWon, StatusSettledLost},
	StatusProvisionalLoss: {StatusSettledLost},
}

// CanTransition informa se from -> to é uma transição válida
func CanTransition(from, to BetStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Bet é a aposta persistida. CurrentAmount nunca cresce:
// CurrentAmount = OriginalAmount - TotalPenalties.
type Bet struct {
	ID             string
	BettorID       string
	MatchID        string
	Kind           BetKind
	OriginalTarget string
	CurrentTarget  string
	OriginalAmount decimal.Decimal
	CurrentAmount  decimal.Decimal
	TotalPenalties decimal.Decimal
	ChangeCount    int
	Odds           decimal.Decimal
	Status         BetStatus
	PlacedMinute   int
	WindowIndex    int // janela de gol capturada no place ou na última troca
	Payout         decimal.Decimal
	CreatedAt      time.Time
	UpdatedAt      time.Time
	SettledAt      *time.Time
}

// PotentialPayout é o retorno caso a aposta vença com o stake atual
func (b Bet) PotentialPayout() decimal.Decimal {
	return money.Payout(b.CurrentAmount, b.Odds)
}

// BetChange é uma linha do log append-only de trocas de seleção
type BetChange struct {
	BetID         string
	Seq           int
	FromTarget    string
	ToTarget      string
	PenaltyAmount decimal.Decimal
	PenaltyPct    decimal.Decimal
	Minute        int
	CreatedAt     time.Time
}

// OddsPlaces é a precisão com que odds são gravadas
const OddsPlaces = 4

// ValidateOdds exige odd > 1 com no máximo OddsPlaces casas decimais
func ValidateOdds(odds decimal.Decimal) error {
	if !odds.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: odds must be greater than 1", ErrValidation)
	}
	if !odds.Equal(odds.Round(OddsPlaces)) {
		return fmt.Errorf("%w: odds accept at most %d decimal places, got %s", ErrValidation, OddsPlaces, odds)
	}
	return nil
}

// ValidateTarget verifica se o alvo tem o formato esperado para o tipo de aposta
func ValidateTarget(kind BetKind, target string) error {
	target = strings.TrimSpace(target)
	switch kind {
	case KindNextGoalScorer:
		if target == "" {
			return fmt.Errorf("%w: next goal scorer bet needs a player id", ErrValidation)
		}
		if strings.ContainsAny(target, ",; ") {
			return fmt.Errorf("%w: exactly one player id expected, got %q", ErrValidation, target)
		}
	case KindMatchWinner:
		switch target {
		case OutcomeHome, OutcomeAway, OutcomeDraw:
		default:
			return fmt.Errorf("%w: match winner target must be home, away or draw, got %q", ErrValidation, target)
		}
	case KindExactGoals:
		n, err := strconv.Atoi(target)
		if err != nil || n < 0 {
			return fmt.Errorf("%w: exact goals target must be a non-negative integer, got %q", ErrValidation, target)
		}
	default:
		return fmt.Errorf("%w: unknown bet kind %q", ErrValidation, kind)
	}
	return nil
}

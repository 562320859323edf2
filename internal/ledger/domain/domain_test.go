package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestBalance_PlaceThenGoalLoss(t *testing.T) {
	b := Balance{Wallet: dec("100")}
	b, err := b.Apply(PlaceDelta(dec("20")))
	require.NoError(t, err)
	assert.True(t, dec("80").Equal(b.Wallet))
	assert.True(t, dec("20").Equal(b.Locked))

	b, err = b.Apply(GoalLossDelta(dec("20")))
	require.NoError(t, err)
	assert.True(t, dec("80").Equal(b.Wallet))
	assert.True(t, b.Locked.IsZero())
}

func TestBalance_ApplyRejectsNegative(t *testing.T) {
	b := Balance{Wallet: dec("10")}
	out, err := b.Apply(PlaceDelta(dec("10.01")))
	assert.True(t, errors.Is(err, ErrInsufficientBalance))
	assert.True(t, dec("10").Equal(out.Wallet))
	assert.True(t, out.Locked.IsZero())
}

func TestBalance_ApplyRoundsHalfUp(t *testing.T) {
	b := Balance{}
	b, err := b.Apply(BalanceDelta{Wallet: dec("1.005")})
	require.NoError(t, err)
	assert.Equal(t, "1.01", b.Wallet.StringFixed(2))
}

func TestSettleWonDelta_FromProvisional(t *testing.T) {
	d := SettleWonDelta(dec("20"), dec("3"), true)
	assert.True(t, dec("60").Equal(d.Wallet))
	assert.True(t, dec("-20").Equal(d.Locked))
	assert.True(t, dec("-60").Equal(d.Provisional))

	d = SettleWonDelta(dec("20"), dec("3"), false)
	assert.True(t, d.Provisional.IsZero())
}

func TestSettleLostDelta_ByStatus(t *testing.T) {
	bet := Bet{CurrentAmount: dec("19.60"), Odds: dec("2.5")}

	bet.Status = StatusActive
	assert.True(t, dec("-19.60").Equal(SettleLostDelta(bet).Locked))

	bet.Status = StatusProvisionalLoss
	assert.True(t, SettleLostDelta(bet).IsZero())

	bet.Status = StatusProvisionalWin
	d := SettleLostDelta(bet)
	assert.True(t, dec("-19.60").Equal(d.Locked))
	assert.True(t, dec("-49.00").Equal(d.Provisional))
}

func TestDeriveExposure(t *testing.T) {
	bets := []Bet{
		{Status: StatusActive, CurrentAmount: dec("10"), Odds: dec("2")},
		{Status: StatusProvisionalWin, CurrentAmount: dec("20"), Odds: dec("3")},
		{Status: StatusProvisionalLoss, CurrentAmount: dec("5"), Odds: dec("4")},
		{Status: StatusSettledWon, CurrentAmount: dec("7"), Odds: dec("2")},
	}
	e := DeriveExposure(bets)
	assert.True(t, dec("30").Equal(e.Locked))
	assert.True(t, dec("60").Equal(e.Provisional))
	assert.True(t, dec("80").Equal(e.PotentialPayout))
}

func TestValidateTarget(t *testing.T) {
	assert.NoError(t, ValidateTarget(KindNextGoalScorer, "player-9"))
	assert.ErrorIs(t, ValidateTarget(KindNextGoalScorer, ""), ErrValidation)
	assert.ErrorIs(t, ValidateTarget(KindNextGoalScorer, "p1,p2"), ErrValidation)

	assert.NoError(t, ValidateTarget(KindMatchWinner, OutcomeDraw))
	assert.ErrorIs(t, ValidateTarget(KindMatchWinner, "player-9"), ErrValidation)

	assert.NoError(t, ValidateTarget(KindExactGoals, "3"))
	assert.ErrorIs(t, ValidateTarget(KindExactGoals, "-1"), ErrValidation)
	assert.ErrorIs(t, ValidateTarget(BetKind("PARLAY"), "x"), ErrValidation)
}

func TestValidateOdds(t *testing.T) {
	assert.NoError(t, ValidateOdds(decimal.RequireFromString("1.0001")))
	assert.NoError(t, ValidateOdds(decimal.RequireFromString("2.5000")))
	assert.ErrorIs(t, ValidateOdds(decimal.RequireFromString("1")), ErrValidation)
	assert.ErrorIs(t, ValidateOdds(decimal.RequireFromString("2.12345")), ErrValidation)
}

func TestCanTransition_OneDirectional(t *testing.T) {
	assert.True(t, CanTransition(StatusActive, StatusProvisionalWin))
	assert.True(t, CanTransition(StatusProvisionalWin, StatusSettledWon))
	assert.False(t, CanTransition(StatusProvisionalWin, StatusActive))
	assert.False(t, CanTransition(StatusProvisionalLoss, StatusSettledWon))
	assert.False(t, CanTransition(StatusSettledWon, StatusSettledLost))
	assert.True(t, StatusSettledLost.Terminal())
	assert.False(t, StatusProvisionalWin.Terminal())
}

func TestSettlement_Outcome(t *testing.T) {
	s := Settlement{
		MatchID:          "m1",
		ConfirmedScorers: []string{"p7"},
		FinalScore:       Score{Home: 2, Away: 1},
		WinnerOutcome:    OutcomeHome,
	}
	require.NoError(t, s.Validate())
	assert.True(t, s.Outcome(Bet{Kind: KindNextGoalScorer, CurrentTarget: "p7"}))
	assert.False(t, s.Outcome(Bet{Kind: KindNextGoalScorer, CurrentTarget: "p8"}))
	assert.True(t, s.Outcome(Bet{Kind: KindMatchWinner, CurrentTarget: OutcomeHome}))
	assert.False(t, s.Outcome(Bet{Kind: KindMatchWinner, CurrentTarget: OutcomeDraw}))
	assert.True(t, s.Outcome(Bet{Kind: KindExactGoals, CurrentTarget: "3"}))
	assert.False(t, s.Outcome(Bet{Kind: KindExactGoals, CurrentTarget: "2"}))

	s.WinnerOutcome = "nobody"
	assert.ErrorIs(t, s.Validate(), ErrValidation)
}

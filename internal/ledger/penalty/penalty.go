package penalty

import (
	"github.com/shopspring/decimal"

	"github.com/radieske/live-bet-ledger/internal/shared/money"
)

// FullTimeMinute é o minuto a partir do qual a troca não tem custo
const FullTimeMinute = 90

// baseRates por número da troca (1-indexado); a partir da 5ª fica em 15%
var baseRates = []decimal.Decimal{
	decimal.RequireFromString("0.03"),
	decimal.RequireFromString("0.05"),
	decimal.RequireFromString("0.08"),
	decimal.RequireFromString("0.12"),
	decimal.RequireFromString("0.15"),
}

// Result é o custo de uma troca de seleção
type Result struct {
	PenaltyPct    decimal.Decimal
	PenaltyAmount decimal.Decimal
	NewAmount     decimal.Decimal
	ChangeNumber  int
}

// BaseRate retorna a taxa base para a n-ésima troca
func BaseRate(changeNumber int) decimal.Decimal {
	if changeNumber <= 0 {
		return decimal.Zero
	}
	if changeNumber > len(baseRates) {
		return baseRates[len(baseRates)-1]
	}
	return baseRates[changeNumber-1]
}

func clampMinute(minute int) int {
	if minute < 0 {
		return 0
	}
	if minute > FullTimeMinute {
		return FullTimeMinute
	}
	return minute
}

// Calc calcula a penalidade de trocar uma aposta ativa.
// Função pura: penaltyPct = base × (1 − minuto/90); penaltyAmount = stake × penaltyPct.
func Calc(currentAmount decimal.Decimal, changeNumber, minute int) Result {
	remaining := decimal.NewFromInt(int64(FullTimeMinute - clampMinute(minute)))
	full := decimal.NewFromInt(FullTimeMinute)
	base := BaseRate(changeNumber)

	// multiplica antes de dividir para manter 20 × 0.03 × 60/90 exato
	amount := money.Cents(currentAmount.Mul(base).Mul(remaining).Div(full))
	pct := money.Micro(base.Mul(remaining).Div(full))

	return Result{
		PenaltyPct:    pct,
		PenaltyAmount: amount,
		NewAmount:     money.Cents(currentAmount.Sub(amount)),
		ChangeNumber:  changeNumber,
	}
}

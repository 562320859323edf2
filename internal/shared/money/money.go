package money

import "github.com/shopspring/decimal"

// Casas decimais usadas na persistência (centavos) e nos acumuladores de payout (micro-unidades)
const (
	CentPlaces  = 2
	MicroPlaces = 6
)

// Cents arredonda para centavos (half-up, afastando do zero)
func Cents(d decimal.Decimal) decimal.Decimal { return d.Round(CentPlaces) }

// Micro arredonda para micro-unidades; usado em somas intermediárias de settlement
func Micro(d decimal.Decimal) decimal.Decimal { return d.Round(MicroPlaces) }

// FromFloat converte valores vindos de JSON/DTO já arredondando para centavos
func FromFloat(f float64) decimal.Decimal { return Cents(decimal.NewFromFloat(f)) }

// Payout calcula stake × odds em micro-unidades e arredonda uma única vez para centavos
func Payout(stake, odds decimal.Decimal) decimal.Decimal {
	return Cents(Micro(stake.Mul(odds)))
}

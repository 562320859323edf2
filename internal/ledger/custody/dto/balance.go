package dto

import "github.com/shopspring/decimal"

// FreeBalanceResponse é a resposta do endpoint de saldo da custódia.
type FreeBalanceResponse struct {
	BettorID    string          `json:"bettor_id"`
	FreeBalance decimal.Decimal `json:"free_balance"`
}

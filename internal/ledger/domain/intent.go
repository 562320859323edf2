package domain

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

type IntentType string

// Intenções enviadas à custódia; o ledger só registra, quem move fundos é a custódia
const (
	IntentLock    IntentType = "lock"    // stake reservado no place
	IntentPenalty IntentType = "penalty" // penalidade retida na troca
	IntentForfeit IntentType = "forfeit" // stake perdido (gol errado ou settlement)
	IntentPayout  IntentType = "payout"  // pagamento creditado no settlement
)

// CustodyIntent é uma linha do outbox. Key é a chave de idempotência:
// o mesmo efeito monetário nunca gera duas linhas.
type CustodyIntent struct {
	Key       string
	Type      IntentType
	BettorID  string
	BetID     string
	MatchID   string
	Amount    decimal.Decimal
	Attempts  int
	LastError string
	Sent      bool
	CreatedAt time.Time
}

// IntentKey monta a chave de idempotência de uma intenção
func IntentKey(t IntentType, betID string, seq int) string {
	if seq > 0 {
		return string(t) + ":" + betID + ":" + strconv.Itoa(seq)
	}
	return string(t) + ":" + betID
}

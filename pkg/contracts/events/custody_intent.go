package events

import "time"

// CustodyIntent é publicado no tópico "custody_intents" (chave = bettor_id).
// IdempotencyKey permite à custódia descartar reentregas.
type CustodyIntent struct {
	IdempotencyKey string    `json:"idempotency_key"`
	Type           string    `json:"type"` // lock | penalty | forfeit | payout
	BettorID       string    `json:"bettor_id"`
	BetID          string    `json:"bet_id"`
	MatchID        string    `json:"match_id"`
	Amount         string    `json:"amount"`
	Attempts       int       `json:"attempts"`
	LastError      string    `json:"last_error,omitempty"`
	Ts             time.Time `json:"ts"`
}

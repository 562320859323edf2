package events

import "time"

// Evento emitido pelo ledger-service após uma troca de seleção.
type BetChanged struct {
	BetID         string    `json:"betId"`
	BettorID      string    `json:"bettorId"`
	MatchID       string    `json:"matchId"`
	FromTarget    string    `json:"fromTarget"`
	ToTarget      string    `json:"toTarget"`
	ChangeNumber  int       `json:"changeNumber"`
	PenaltyAmount string    `json:"penaltyAmount"`
	NewAmount     string    `json:"newAmount"`
	Minute        int       `json:"minute"`
	Ts            time.Time `json:"ts"`
}

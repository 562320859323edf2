package dto

// PlaceBetRequest é o payload de POST /v1/bets
type PlaceBetRequest struct {
	BettorID    string  `json:"bettorId" validate:"required"`
	MatchID     string  `json:"matchId" validate:"required"`
	Kind        string  `json:"kind" validate:"required,oneof=NEXT_GOAL_SCORER MATCH_WINNER EXACT_GOALS"`
	Target      string  `json:"target" validate:"required"` // player id | home | draw | away | nº de gols
	Stake       float64 `json:"stake" validate:"required,gt=0"`
	Odds        float64 `json:"odds" validate:"required,gt=1"` // odd que o cliente viu
	Minute      int     `json:"minute" validate:"gte=0"`
	WindowIndex int     `json:"windowIndex" validate:"gte=0"`
}

// ChangeBetRequest é o payload de POST /v1/bets/{id}/change
type ChangeBetRequest struct {
	NewTarget string  `json:"newTarget" validate:"required"`
	NewOdds   float64 `json:"newOdds" validate:"required,gt=1"`
	Minute    int     `json:"minute" validate:"gte=0"`
}

// FundRequest é o payload de POST /v1/bettors/{id}/fund (depósito confirmado pela custódia)
type FundRequest struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
}

package events

type BetPlaced struct {
	BetID       string `json:"bet_id"`
	BettorID    string `json:"bettor_id"`
	MatchID     string `json:"match_id"`
	Kind        string `json:"kind"`
	Target      string `json:"target"`
	Stake       string `json:"stake"` // decimal em centavos, ex: "20.00"
	Odds        string `json:"odds"`
	WindowIndex int    `json:"window_index"`
	TsUnixMs    int64  `json:"ts_unix_ms"`
}

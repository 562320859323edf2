package events

import "time"

// Tipos de evento publicados no tópico "match_events" (chave = match_id)
const (
	MatchEventClock      = "clock"
	MatchEventGoal       = "goal"
	MatchEventSettlement = "settlement"
)

type Score struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

// MatchEvent é o envelope único do feed de partida. Os campos usados dependem de Type.
type MatchEvent struct {
	EventID string `json:"event_id"` // id do feed, usado no dedup
	Type    string `json:"type"`
	MatchID string `json:"match_id"`
	Minute  int    `json:"minute"`

	// clock
	Phase string `json:"phase,omitempty"` // pre_match | live | halftime | finished

	// goal
	ScoringTarget string `json:"scoring_target,omitempty"`
	WindowIndex   int    `json:"window_index"`
	Confirmed     bool   `json:"confirmed"`

	// settlement
	ConfirmedScorers []string `json:"confirmed_scorers,omitempty"`
	FinalScore       *Score   `json:"final_score,omitempty"`
	WinnerOutcome    string   `json:"winner_outcome,omitempty"` // home | away | draw

	Ts time.Time `json:"ts"`
}

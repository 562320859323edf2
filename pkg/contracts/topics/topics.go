package topics

const (
	// Feed da partida (clock, goal, settlement)
	MatchEvents = "match_events"

	// Ledger
	BetPlaced      = "bet_placed"
	BetChanged     = "bet_changed"
	CustodyIntents = "custody_intents"

	// DLQs
	MatchEventsDLQ    = "match_events_dlq"
	CustodyIntentsDLQ = "custody_intents_dlq"
)

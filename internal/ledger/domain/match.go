package domain

import (
	"fmt"
	"strconv"
	"time"
)

type MatchPhase string

const (
	PhasePreMatch MatchPhase = "pre_match"
	PhaseLive     MatchPhase = "live"
	PhaseHalftime MatchPhase = "halftime"
	PhaseFinished MatchPhase = "finished"
)

// ParsePhase valida a fase recebida do feed
func ParsePhase(s string) (MatchPhase, error) {
	switch p := MatchPhase(s); p {
	case PhasePreMatch, PhaseLive, PhaseHalftime, PhaseFinished:
		return p, nil
	}
	return "", fmt.Errorf("%w: unknown match phase %q", ErrValidation, s)
}

type Score struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

// Total é a soma de gols, usada em EXACT_GOALS
func (s Score) Total() int { return s.Home + s.Away }

// Match guarda o relógio e a janela de gol corrente de uma partida.
// GoalWindow é o índice da janela aberta: começa em 0 e avança a cada gol confirmado.
type Match struct {
	ID         string
	Phase      MatchPhase
	Minute     int
	GoalWindow int
	Settled    bool

	// preenchidos no settlement
	FinalScore       Score
	WinnerOutcome    string
	ConfirmedScorers []string
	SettledAt        *time.Time

	UpdatedAt time.Time
}

// AcceptsBets indica se place/change ainda são permitidos
func (m Match) AcceptsBets() bool {
	return !m.Settled && m.Phase != PhaseFinished
}

// Settlement é o gatilho único de fim de jogo
type Settlement struct {
	MatchID          string
	ConfirmedScorers []string // sem gols anulados
	FinalScore       Score
	WinnerOutcome    string // home | away | draw
}

// Validate verifica o payload do gatilho de settlement
func (s Settlement) Validate() error {
	if s.MatchID == "" {
		return fmt.Errorf("%w: match id required", ErrValidation)
	}
	if s.FinalScore.Home < 0 || s.FinalScore.Away < 0 {
		return fmt.Errorf("%w: negative final score", ErrValidation)
	}
	if err := ValidateTarget(KindMatchWinner, s.WinnerOutcome); err != nil {
		return err
	}
	return nil
}

// Outcome diz se a seleção de uma aposta vence dado o resultado final
func (s Settlement) Outcome(b Bet) bool {
	switch b.Kind {
	case KindNextGoalScorer:
		for _, sc := range s.ConfirmedScorers {
			if sc == b.CurrentTarget {
				return true
			}
		}
		return false
	case KindMatchWinner:
		return b.CurrentTarget == s.WinnerOutcome
	case KindExactGoals:
		n, err := strconv.Atoi(b.CurrentTarget)
		return err == nil && n == s.FinalScore.Total()
	}
	return false
}

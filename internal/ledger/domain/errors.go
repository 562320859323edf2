package domain

import "errors"

// Erros de domínio do ledger. Use errors.Is nas bordas (HTTP, consumer).
var (
	ErrValidation             = errors.New("validation error")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrExistingActiveBet      = errors.New("bettor already has an active next-goal bet on this match")
	ErrNotFound               = errors.New("not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrAlreadySettled         = errors.New("match already settled")

	// ErrConflict indica que o status lido mudou antes do update (CAS perdido); a operação é refeita
	ErrConflict = errors.New("concurrent update conflict")
)

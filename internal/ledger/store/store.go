package store

import (
	"context"

	"github.com/radieske/live-bet-ledger/internal/ledger/domain"
)

// Tx é a unidade de trabalho de uma partida. Tudo que é escrito dentro dela
// fica visível de uma vez no commit, ou não fica visível.
type Tx interface {
	// Match retorna a partida da transação (bloqueada); ErrNotFound se não existir
	Match(ctx context.Context) (domain.Match, error)
	// SaveMatch insere ou atualiza a partida da transação
	SaveMatch(ctx context.Context, m domain.Match) error

	// Bet lê uma aposta da partida da transação
	Bet(ctx context.Context, id string) (domain.Bet, error)
	// MatchBets lista as apostas da partida em ordem de criação
	MatchBets(ctx context.Context) ([]domain.Bet, error)
	// InsertBet cria a aposta; ErrExistingActiveBet se violar o índice de NGS ativa
	InsertBet(ctx context.Context, b domain.Bet) error
	// UpdateBet grava a aposta somente se o status persistido ainda for expected (CAS)
	UpdateBet(ctx context.Context, b domain.Bet, expected domain.BetStatus) error
	AppendChange(ctx context.Context, c domain.BetChange) error

	// ApplyBalance aplica o delta; ErrInsufficientBalance se algum bucket ficar negativo
	ApplyBalance(ctx context.Context, bettorID string, d domain.BalanceDelta) error
	// Enqueue grava a intenção no outbox; chaves repetidas são ignoradas
	Enqueue(ctx context.Context, in domain.CustodyIntent) error
}

// Store é o backend do ledger. Há duas implementações intercambiáveis:
// Memory (testes/simulação) e Postgres (produção). As regras de negócio
// ficam no service e nunca são duplicadas aqui.
type Store interface {
	// InTx executa fn serializado com qualquer outra transação da mesma partida
	InTx(ctx context.Context, matchID string, fn func(Tx) error) error

	Match(ctx context.Context, id string) (domain.Match, error)
	Bet(ctx context.Context, id string) (domain.Bet, error)
	BetsByBettor(ctx context.Context, bettorID string) ([]domain.Bet, error)
	BetsByMatch(ctx context.Context, matchID string) ([]domain.Bet, error)
	Changes(ctx context.Context, betID string) ([]domain.BetChange, error)
	Balance(ctx context.Context, bettorID string) (domain.Balance, error)

	// EnsureBalance cria a conta com a carteira inicial se ainda não existir
	EnsureBalance(ctx context.Context, bettorID string, wallet domain.BalanceDelta) (created bool, err error)
	// Fund aplica um crédito/débito fora do contexto de uma partida
	Fund(ctx context.Context, bettorID string, d domain.BalanceDelta) (domain.Balance, error)

	// Outbox de custódia
	PendingIntents(ctx context.Context, limit int) ([]domain.CustodyIntent, error)
	MarkIntentSent(ctx context.Context, key string) error
	MarkIntentFailed(ctx context.Context, key string, cause error) error

	Ping(ctx context.Context) error
	Close() error
}

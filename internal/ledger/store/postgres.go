package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/radieske/live-bet-ledger/internal/ledger/domain"
)

// Postgres implementa Store com transações e lock pessimista na linha da partida
type Postgres struct{ db *sql.DB }

// NewPostgres retorna o backend transacional
func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

const betColumns = `id, bettor_id, match_id, kind, original_target, current_target,
	original_amount, current_amount, total_penalties, change_count, odds, status,
	placed_minute, window_index, payout, created_at, updated_at, settled_at`

const matchColumns = `id, phase, minute, goal_window, settled, final_home, final_away,
	winner_outcome, confirmed_scorers, settled_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanBet(row scanner) (domain.Bet, error) {
	var b domain.Bet
	var kind, status string
	var settledAt sql.NullTime
	err := row.Scan(&b.ID, &b.BettorID, &b.MatchID, &kind, &b.OriginalTarget, &b.CurrentTarget,
		&b.OriginalAmount, &b.CurrentAmount, &b.TotalPenalties, &b.ChangeCount, &b.Odds, &status,
		&b.PlacedMinute, &b.WindowIndex, &b.Payout, &b.CreatedAt, &b.UpdatedAt, &settledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return b, domain.ErrNotFound
	}
	if err != nil {
		return b, err
	}
	b.Kind = domain.BetKind(kind)
	b.Status = domain.BetStatus(status)
	if settledAt.Valid {
		t := settledAt.Time
		b.SettledAt = &t
	}
	return b, nil
}

func scanMatch(row scanner) (domain.Match, error) {
	var m domain.Match
	var phase string
	var scorers pq.StringArray
	var settledAt sql.NullTime
	err := row.Scan(&m.ID, &phase, &m.Minute, &m.GoalWindow, &m.Settled, &m.FinalScore.Home, &m.FinalScore.Away,
		&m.WinnerOutcome, &scorers, &settledAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return m, domain.ErrNotFound
	}
	if err != nil {
		return m, err
	}
	m.Phase = domain.MatchPhase(phase)
	m.ConfirmedScorers = []string(scorers)
	if settledAt.Valid {
		t := settledAt.Time
		m.SettledAt = &t
	}
	return m, nil
}

func queryBets(ctx context.Context, q interface {
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
}, query string, args ...any) ([]domain.Bet, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// mapPgErr traduz violações de constraint e falhas de serialização para erros de domínio
func mapPgErr(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case "23505":
		if pqErr.Constraint == "ux_bets_active_ngs" {
			return domain.ErrExistingActiveBet
		}
	case "23514":
		// só os CHECKs de saldo significam falta de saldo; os de bets são bug de quem grava
		if pqErr.Table == "balances" {
			return fmt.Errorf("%w: %s", domain.ErrInsufficientBalance, pqErr.Constraint)
		}
	case "40001", "40P01":
		return domain.ErrConflict
	}
	return err
}

// InTx abre a transação e bloqueia a linha da partida (FOR UPDATE) até o commit
func (p *Postgres) InTx(ctx context.Context, matchID string, fn func(Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx, `SELECT id FROM matches WHERE id=$1 FOR UPDATE`, matchID).Scan(&id)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return mapPgErr(err)
	}

	if err := fn(&pgTx{tx: tx, matchID: matchID}); err != nil {
		return mapPgErr(err)
	}
	return mapPgErr(tx.Commit())
}

type pgTx struct {
	tx      *sql.Tx
	matchID string
}

func (t *pgTx) Match(ctx context.Context) (domain.Match, error) {
	return scanMatch(t.tx.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM matches WHERE id=$1`, t.matchID))
}

// SaveMatch faz upsert; uma partida já liquidada nunca é reescrita
func (t *pgTx) SaveMatch(ctx context.Context, m domain.Match) error {
	// slice nil vira NULL no pq.Array e confirmed_scorers é NOT NULL
	scorers := m.ConfirmedScorers
	if scorers == nil {
		scorers = []string{}
	}
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO matches (id, phase, minute, goal_window, settled, final_home, final_away,
			winner_outcome, confirmed_scorers, settled_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW())
		ON CONFLICT (id) DO UPDATE SET
			phase = EXCLUDED.phase,
			minute = EXCLUDED.minute,
			goal_window = EXCLUDED.goal_window,
			settled = EXCLUDED.settled,
			final_home = EXCLUDED.final_home,
			final_away = EXCLUDED.final_away,
			winner_outcome = EXCLUDED.winner_outcome,
			confirmed_scorers = EXCLUDED.confirmed_scorers,
			settled_at = EXCLUDED.settled_at,
			updated_at = NOW()
		WHERE matches.settled = FALSE`,
		t.matchID, string(m.Phase), m.Minute, m.GoalWindow, m.Settled, m.FinalScore.Home, m.FinalScore.Away,
		m.WinnerOutcome, pq.Array(scorers), m.SettledAt)
	if err != nil {
		return mapPgErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrAlreadySettled
	}
	return nil
}

func (t *pgTx) Bet(ctx context.Context, id string) (domain.Bet, error) {
	return scanBet(t.tx.QueryRowContext(ctx,
		`SELECT `+betColumns+` FROM bets WHERE id=$1 AND match_id=$2 FOR UPDATE`, id, t.matchID))
}

func (t *pgTx) MatchBets(ctx context.Context) ([]domain.Bet, error) {
	return queryBets(ctx, t.tx,
		`SELECT `+betColumns+` FROM bets WHERE match_id=$1 ORDER BY created_at, id FOR UPDATE`, t.matchID)
}

func (t *pgTx) InsertBet(ctx context.Context, b domain.Bet) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO bets (id, bettor_id, match_id, kind, original_target, current_target,
			original_amount, current_amount, total_penalties, change_count, odds, status,
			placed_minute, window_index, payout, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$16)`,
		b.ID, b.BettorID, b.MatchID, string(b.Kind), b.OriginalTarget, b.CurrentTarget,
		b.OriginalAmount, b.CurrentAmount, b.TotalPenalties, b.ChangeCount, b.Odds, string(b.Status),
		b.PlacedMinute, b.WindowIndex, b.Payout, b.CreatedAt)
	return mapPgErr(err)
}

// UpdateBet só grava se o status ainda for o lido (compare-and-swap)
func (t *pgTx) UpdateBet(ctx context.Context, b domain.Bet, expected domain.BetStatus) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE bets SET current_target=$3, current_amount=$4, total_penalties=$5, change_count=$6,
			odds=$7, status=$8, window_index=$9, payout=$10, settled_at=$11, updated_at=NOW()
		WHERE id=$1 AND status=$2`,
		b.ID, string(expected), b.CurrentTarget, b.CurrentAmount, b.TotalPenalties, b.ChangeCount,
		b.Odds, string(b.Status), b.WindowIndex, b.Payout, b.SettledAt)
	if err != nil {
		return mapPgErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (t *pgTx) AppendChange(ctx context.Context, c domain.BetChange) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO bet_changes (bet_id, seq, from_target, to_target, penalty_amount, penalty_pct, minute, created_at)
		SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3, $4, $5, $6, $7 FROM bet_changes WHERE bet_id=$1`,
		c.BetID, c.FromTarget, c.ToTarget, c.PenaltyAmount, c.PenaltyPct, c.Minute, c.CreatedAt)
	return mapPgErr(err)
}

func (t *pgTx) ApplyBalance(ctx context.Context, bettorID string, d domain.BalanceDelta) error {
	return applyBalance(ctx, t.tx, bettorID, d)
}

func (t *pgTx) Enqueue(ctx context.Context, in domain.CustodyIntent) error {
	return enqueue(ctx, t.tx, in)
}

type execer interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}

// applyBalance aplica o delta de forma condicional: se algum bucket ficaria negativo
// nenhuma linha é afetada e a operação falha sem efeito
func applyBalance(ctx context.Context, ex execer, bettorID string, d domain.BalanceDelta) error {
	res, err := ex.ExecContext(ctx, `
		UPDATE balances SET
			wallet = ROUND(wallet + $2, 2),
			locked = ROUND(locked + $3, 2),
			provisional = ROUND(provisional + $4, 2),
			updated_at = NOW()
		WHERE bettor_id=$1
		  AND ROUND(wallet + $2, 2) >= 0
		  AND ROUND(locked + $3, 2) >= 0
		  AND ROUND(provisional + $4, 2) >= 0`,
		bettorID, d.Wallet, d.Locked, d.Provisional)
	if err != nil {
		return mapPgErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrInsufficientBalance
	}
	return nil
}

func enqueue(ctx context.Context, ex execer, in domain.CustodyIntent) error {
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	_, err := ex.ExecContext(ctx, `
		INSERT INTO custody_outbox (key, type, bettor_id, bet_id, match_id, amount, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (key) DO NOTHING`,
		in.Key, string(in.Type), in.BettorID, in.BetID, in.MatchID, in.Amount, in.CreatedAt)
	return err
}

func (p *Postgres) Match(ctx context.Context, id string) (domain.Match, error) {
	return scanMatch(p.db.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM matches WHERE id=$1`, id))
}

func (p *Postgres) Bet(ctx context.Context, id string) (domain.Bet, error) {
	return scanBet(p.db.QueryRowContext(ctx, `SELECT `+betColumns+` FROM bets WHERE id=$1`, id))
}

func (p *Postgres) BetsByBettor(ctx context.Context, bettorID string) ([]domain.Bet, error) {
	return queryBets(ctx, p.db, `SELECT `+betColumns+` FROM bets WHERE bettor_id=$1 ORDER BY created_at, id`, bettorID)
}

func (p *Postgres) BetsByMatch(ctx context.Context, matchID string) ([]domain.Bet, error) {
	return queryBets(ctx, p.db, `SELECT `+betColumns+` FROM bets WHERE match_id=$1 ORDER BY created_at, id`, matchID)
}

func (p *Postgres) Changes(ctx context.Context, betID string) ([]domain.BetChange, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT bet_id, seq, from_target, to_target, penalty_amount, penalty_pct, minute, created_at
		FROM bet_changes WHERE bet_id=$1 ORDER BY seq`, betID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.BetChange
	for rows.Next() {
		var c domain.BetChange
		if err := rows.Scan(&c.BetID, &c.Seq, &c.FromTarget, &c.ToTarget, &c.PenaltyAmount, &c.PenaltyPct, &c.Minute, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) Balance(ctx context.Context, bettorID string) (domain.Balance, error) {
	b := domain.Balance{BettorID: bettorID}
	err := p.db.QueryRowContext(ctx, `SELECT wallet, locked, provisional FROM balances WHERE bettor_id=$1`, bettorID).
		Scan(&b.Wallet, &b.Locked, &b.Provisional)
	if errors.Is(err, sql.ErrNoRows) {
		return b, domain.ErrNotFound
	}
	return b, err
}

func (p *Postgres) EnsureBalance(ctx context.Context, bettorID string, wallet domain.BalanceDelta) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		INSERT INTO balances (bettor_id, wallet) VALUES ($1, ROUND($2::numeric, 2))
		ON CONFLICT (bettor_id) DO NOTHING`, bettorID, wallet.Wallet)
	if err != nil {
		return false, mapPgErr(err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// Fund garante a conta e aplica o delta na mesma transação
func (p *Postgres) Fund(ctx context.Context, bettorID string, d domain.BalanceDelta) (domain.Balance, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Balance{}, err
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, `INSERT INTO balances (bettor_id) VALUES ($1) ON CONFLICT (bettor_id) DO NOTHING`, bettorID); err != nil {
		return domain.Balance{}, err
	}
	if err = applyBalance(ctx, tx, bettorID, d); err != nil {
		return domain.Balance{}, err
	}
	b := domain.Balance{BettorID: bettorID}
	if err = tx.QueryRowContext(ctx, `SELECT wallet, locked, provisional FROM balances WHERE bettor_id=$1`, bettorID).
		Scan(&b.Wallet, &b.Locked, &b.Provisional); err != nil {
		return domain.Balance{}, err
	}
	if err = tx.Commit(); err != nil {
		return domain.Balance{}, err
	}
	return b, nil
}

func (p *Postgres) PendingIntents(ctx context.Context, limit int) ([]domain.CustodyIntent, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT key, type, bettor_id, bet_id, match_id, amount, attempts, last_error, created_at
		FROM custody_outbox WHERE sent = FALSE ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.CustodyIntent
	for rows.Next() {
		var in domain.CustodyIntent
		var typ string
		if err := rows.Scan(&in.Key, &typ, &in.BettorID, &in.BetID, &in.MatchID, &in.Amount, &in.Attempts, &in.LastError, &in.CreatedAt); err != nil {
			return nil, err
		}
		in.Type = domain.IntentType(typ)
		out = append(out, in)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkIntentSent(ctx context.Context, key string) error {
	_, err := p.db.ExecContext(ctx, `UPDATE custody_outbox SET sent=TRUE, sent_at=NOW() WHERE key=$1`, key)
	return err
}

func (p *Postgres) MarkIntentFailed(ctx context.Context, key string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := p.db.ExecContext(ctx, `UPDATE custody_outbox SET attempts = attempts + 1, last_error=$2 WHERE key=$1`, key, msg)
	return err
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }
func (p *Postgres) Close() error                   { return p.db.Close() }

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations do schema do ledger. As invariantes críticas ficam no banco:
// índice único parcial para uma NGS ativa por (bettor, match), CHECKs de saldo
// não negativo e de current_amount = original_amount - total_penalties.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS matches (
		id                TEXT PRIMARY KEY,
		phase             TEXT        NOT NULL DEFAULT 'pre_match',
		minute            INT         NOT NULL DEFAULT 0,
		goal_window       INT         NOT NULL DEFAULT 0,
		settled           BOOLEAN     NOT NULL DEFAULT FALSE,
		final_home        INT         NOT NULL DEFAULT 0,
		final_away        INT         NOT NULL DEFAULT 0,
		winner_outcome    TEXT        NOT NULL DEFAULT '',
		confirmed_scorers TEXT[]      NOT NULL DEFAULT '{}',
		settled_at        TIMESTAMPTZ,
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS bets (
		id              TEXT PRIMARY KEY,
		bettor_id       TEXT          NOT NULL,
		match_id        TEXT          NOT NULL REFERENCES matches(id),
		kind            TEXT          NOT NULL,
		original_target TEXT          NOT NULL,
		current_target  TEXT          NOT NULL,
		original_amount NUMERIC(18,2) NOT NULL CHECK (original_amount > 0),
		current_amount  NUMERIC(18,2) NOT NULL CHECK (current_amount >= 0),
		total_penalties NUMERIC(18,2) NOT NULL DEFAULT 0,
		change_count    INT           NOT NULL DEFAULT 0,
		odds            NUMERIC(12,4) NOT NULL CHECK (odds > 1),
		status          TEXT          NOT NULL,
		placed_minute   INT           NOT NULL,
		window_index    INT           NOT NULL,
		payout          NUMERIC(18,2) NOT NULL DEFAULT 0,
		created_at      TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
		updated_at      TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
		settled_at      TIMESTAMPTZ,
		CHECK (current_amount = original_amount - total_penalties)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_bets_active_ngs
		ON bets (bettor_id, match_id)
		WHERE kind = 'NEXT_GOAL_SCORER' AND status = 'active'`,
	`CREATE INDEX IF NOT EXISTS idx_bets_match ON bets (match_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_bets_bettor ON bets (bettor_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS bet_changes (
		bet_id         TEXT          NOT NULL REFERENCES bets(id),
		seq            INT           NOT NULL,
		from_target    TEXT          NOT NULL,
		to_target      TEXT          NOT NULL,
		penalty_amount NUMERIC(18,2) NOT NULL,
		penalty_pct    NUMERIC(10,6) NOT NULL,
		minute         INT           NOT NULL,
		created_at     TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
		PRIMARY KEY (bet_id, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS balances (
		bettor_id   TEXT PRIMARY KEY,
		wallet      NUMERIC(18,2) NOT NULL DEFAULT 0 CHECK (wallet >= 0),
		locked      NUMERIC(18,2) NOT NULL DEFAULT 0 CHECK (locked >= 0),
		provisional NUMERIC(18,2) NOT NULL DEFAULT 0 CHECK (provisional >= 0),
		updated_at  TIMESTAMPTZ   NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS custody_outbox (
		key        TEXT PRIMARY KEY,
		type       TEXT          NOT NULL,
		bettor_id  TEXT          NOT NULL,
		bet_id     TEXT          NOT NULL,
		match_id   TEXT          NOT NULL,
		amount     NUMERIC(18,2) NOT NULL,
		attempts   INT           NOT NULL DEFAULT 0,
		last_error TEXT          NOT NULL DEFAULT '',
		sent       BOOLEAN       NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
		sent_at    TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_pending ON custody_outbox (created_at) WHERE sent = FALSE`,
}

// Migrate aplica o schema (idempotente)
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

package store

import (
	"context"
	"fmt"

	"github.com/radieske/live-bet-ledger/internal/shared/db"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Open escolhe o backend pela configuração. Postgres aplica as migrations na abertura.
func Open(ctx context.Context, backend, dsn string) (Store, error) {
	switch backend {
	case BackendMemory:
		return NewMemory(), nil
	case BackendPostgres, "":
		pg, err := db.ConnectPostgres(dsn)
		if err != nil {
			return nil, err
		}
		if err := Migrate(ctx, pg); err != nil {
			pg.Close()
			return nil, err
		}
		return NewPostgres(pg), nil
	}
	return nil, fmt.Errorf("unknown ledger backend %q", backend)
}

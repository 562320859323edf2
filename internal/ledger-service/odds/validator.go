package odds

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// ErrOddsChanged indica que a odd enviada não é mais a odd corrente
var ErrOddsChanged = errors.New("odds changed")

type Validator struct {
	Rdb *redis.Client
}

func NewValidator(r *redis.Client) *Validator { return &Validator{Rdb: r} }

// Key: "odds:{matchID}:{kind}:{target}" => valor string com odd, ex: "3.25"
func Key(matchID, kind, target string) string {
	return fmt.Sprintf("odds:%s:%s:%s", matchID, kind, target)
}

// CurrentOdd retorna a odd publicada; ok=false se não houver cotação no cache
func (v *Validator) CurrentOdd(ctx context.Context, matchID, kind, target string) (decimal.Decimal, bool, error) {
	val, err := v.Rdb.Get(ctx, Key(matchID, kind, target)).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	d, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("odds cache %s: %w", Key(matchID, kind, target), err)
	}
	return d, true, nil
}

// Check compara a odd que o cliente viu com a corrente. Sem cotação no cache
// a odd do cliente é aceita.
func (v *Validator) Check(ctx context.Context, matchID, kind, target string, seen decimal.Decimal) (decimal.Decimal, error) {
	cur, ok, err := v.CurrentOdd(ctx, matchID, kind, target)
	if err != nil || !ok {
		return seen, err
	}
	if !cur.Equal(seen) {
		return cur, ErrOddsChanged
	}
	return cur, nil
}

package custody

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/live-bet-ledger/internal/ledger/custody/dto"
)

// Client consulta o saldo livre na custódia externa
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(base string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Client{
		BaseURL: base,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// FreeBalance retorna o saldo disponível para stake
func (c *Client) FreeBalance(ctx context.Context, bettorID string) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/custody/balances/"+url.PathEscape(bettorID), nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Accept", "application/json")
	res, err := c.HTTP.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return decimal.Zero, fmt.Errorf("custody balance http %d", res.StatusCode)
	}
	var out dto.FreeBalanceResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return decimal.Zero, err
	}
	if out.FreeBalance.IsNegative() {
		return decimal.Zero, fmt.Errorf("custody returned negative balance for %s", bettorID)
	}
	return out.FreeBalance, nil
}

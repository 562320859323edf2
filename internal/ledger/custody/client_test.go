package custody

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_FreeBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/custody/balances/alice":
			_, _ = w.Write([]byte(`{"bettor_id":"alice","free_balance":"125.50"}`))
		case "/custody/balances/slow":
			time.Sleep(200 * time.Millisecond)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, 50*time.Millisecond)

	got, err := c.FreeBalance(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "125.50", got.StringFixed(2))

	_, err = c.FreeBalance(context.Background(), "bob")
	assert.ErrorContains(t, err, "404")

	_, err = c.FreeBalance(context.Background(), "slow")
	assert.Error(t, err)
}

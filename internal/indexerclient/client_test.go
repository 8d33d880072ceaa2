package indexerclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ccoin/shieldengine/internal/indexerclient"
	"github.com/ccoin/shieldengine/internal/retry"
)

func fastRetry() retry.Config {
	return retry.Config{MaxRetries: 2, BaseDelay: time.Millisecond, CapDelay: 5 * time.Millisecond, Jitter: 0}
}

func TestGetCompressedAccountsByOwnerParsesItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "get_compressed_accounts_by_owner", req.Method)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{
				"items": []map[string]any{
					{"hash": "h1", "owner": "prog", "data": "", "slot": 5, "leafIndex": 0},
				},
			},
		})
	}))
	defer srv.Close()

	c := indexerclient.New(srv.URL, "", fastRetry())
	accounts, err := c.GetCompressedAccountsByOwner(context.Background(), "prog", nil)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	require.Equal(t, "h1", accounts[0].Hash)
	require.Equal(t, int64(5), accounts[0].Slot)
}

func TestCallRetriesOn429ThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": nil})
	}))
	defer srv.Close()

	c := indexerclient.New(srv.URL, "", fastRetry())
	_, err := c.GetCompressedAccount(context.Background(), "addr")
	require.NoError(t, err)
	require.Equal(t, 2, attempts)
}

func TestCallDoesNotRetryOn404(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := indexerclient.New(srv.URL, "", fastRetry())
	_, err := c.GetCompressedAccount(context.Background(), "addr")
	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

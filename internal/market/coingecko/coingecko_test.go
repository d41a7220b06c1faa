package coingecko_test

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketgateway/internal/httpx"
	coingecko "marketgateway/internal/market/coingecko"
)

const marketsPayload = `[
	{"id":"bitcoin","symbol":"btc","name":"Bitcoin","current_price":65000.12,"market_cap":1280000000000,"market_cap_rank":1,"total_volume":32000000000,"price_change_percentage_24h":1.24},
	{"id":"ethereum","symbol":"eth","name":"Ethereum","current_price":3400.5,"market_cap":410000000000,"market_cap_rank":2,"total_volume":15000000000,"price_change_percentage_24h":-0.8}
]`

func TestMarkets(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/coins/markets", r.URL.Path)
		q := r.URL.Query()
		require.Equal(t, "usd", q.Get("vs_currency"))
		require.Equal(t, "market_cap_desc", q.Get("order"))
		require.Equal(t, "50", q.Get("per_page"))
		require.Equal(t, "1", q.Get("page"))
		require.Equal(t, "false", q.Get("sparkline"))
		require.Equal(t, "24h", q.Get("price_change_percentage"))
		w.Write([]byte(marketsPayload))
	}))
	defer srv.Close()

	client := coingecko.New(coingecko.Config{URL: srv.URL}, httpx.New(5*time.Second))

	// Empty parameters fall back to the defaults asserted above.
	coins, err := client.Markets(t.Context(), "", 0, 0, "")
	require.NoError(t, err)
	require.Len(t, coins, 2)
	require.Equal(t, "bitcoin", coins[0].ID)
	require.InEpsilon(t, 65000.12, coins[0].CurrentPrice, 0.0001)
	require.Equal(t, 1, coins[0].MarketCapRank)
	require.InEpsilon(t, -0.8, coins[1].PriceChange24h, 0.0001)
}

func TestMarkets_UpstreamError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status":{"error_code":429}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := coingecko.New(coingecko.Config{URL: srv.URL}, httpx.New(5*time.Second))

	_, err := client.Markets(t.Context(), "usd", 50, 1, "")
	require.Error(t, err)

	var statusErr *httpx.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusTooManyRequests, statusErr.Code)
}

func TestMarkets_CoalescesConcurrentIdenticalRequests(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		w.Write([]byte(marketsPayload))
	}))
	defer srv.Close()

	client := coingecko.New(coingecko.Config{URL: srv.URL}, httpx.New(5*time.Second))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			coins, err := client.Markets(t.Context(), "usd", 50, 1, "market_cap_desc")
			require.NoError(t, err)
			require.Len(t, coins, 2)
		}()
	}
	// Give the goroutines time to pile onto the in-flight call.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), calls.Load(), "identical concurrent requests should share one upstream call")
}

func TestMarkets_DistinctPagesAreSeparateCalls(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	client := coingecko.New(coingecko.Config{URL: srv.URL}, httpx.New(5*time.Second))

	_, err := client.Markets(t.Context(), "usd", 50, 1, "")
	require.NoError(t, err)
	_, err = client.Markets(t.Context(), "usd", 50, 2, "")
	require.NoError(t, err)
	require.Equal(t, int32(2), calls.Load())
}

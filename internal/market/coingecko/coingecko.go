package coingecko

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"marketgateway/internal/httpx"
	"marketgateway/internal/ratelimit"

	"golang.org/x/sync/singleflight"
)

// Config controls the CoinGecko client behavior.
type Config struct {
	Name string
	URL  string
	// MaxRequestsPerMinute gates outbound calls; the public CoinGecko
	// tier allows roughly 10-30 calls per minute.
	MaxRequestsPerMinute int
	Burst                int
}

// Coin is one row of the markets snapshot.
type Coin struct {
	ID             string  `json:"id"`
	Symbol         string  `json:"symbol"`
	Name           string  `json:"name"`
	Image          string  `json:"image,omitempty"`
	CurrentPrice   float64 `json:"current_price"`
	MarketCap      float64 `json:"market_cap"`
	MarketCapRank  int     `json:"market_cap_rank"`
	TotalVolume    float64 `json:"total_volume"`
	PriceChange24h float64 `json:"price_change_percentage_24h"`
}

// Client fetches market snapshots from CoinGecko. Results are not
// cached here; concurrent identical requests are coalesced so a burst
// of page loads costs one upstream call.
type Client struct {
	cfg Config
	hc  *httpx.Client
	tb  *ratelimit.TokenBucket
	sf  singleflight.Group
}

func New(cfg Config, hc *httpx.Client) *Client {
	if cfg.Name == "" {
		cfg.Name = "CoinGecko"
	}
	if cfg.URL == "" {
		cfg.URL = "https://api.coingecko.com/api/v3"
	}
	c := &Client{cfg: cfg, hc: hc}
	if cfg.MaxRequestsPerMinute > 0 {
		c.tb = ratelimit.PerMinute(cfg.MaxRequestsPerMinute, cfg.Burst)
	}
	return c
}

func (c *Client) Name() string { return c.cfg.Name }

// Markets returns one page of the coins/markets snapshot ordered per
// the order parameter. Empty parameters fall back to the upstream
// defaults (usd, 50 per page, page 1, market cap descending).
func (c *Client) Markets(ctx context.Context, vsCurrency string, perPage, page int, order string) ([]Coin, error) {
	if vsCurrency == "" {
		vsCurrency = "usd"
	}
	if perPage <= 0 {
		perPage = 50
	}
	if page <= 0 {
		page = 1
	}
	if order == "" {
		order = "market_cap_desc"
	}

	key := fmt.Sprintf("%s|%d|%d|%s", vsCurrency, perPage, page, order)
	v, err, _ := c.sf.Do(key, func() (any, error) {
		if c.tb != nil {
			if err := c.tb.Wait(ctx); err != nil {
				return nil, err
			}
		}
		query := url.Values{
			"vs_currency":             []string{vsCurrency},
			"order":                   []string{order},
			"per_page":                []string{strconv.Itoa(perPage)},
			"page":                    []string{strconv.Itoa(page)},
			"sparkline":               []string{"false"},
			"price_change_percentage": []string{"24h"},
		}
		reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		var coins []Coin
		if err := c.hc.GetJSON(reqCtx, c.cfg.URL+"/coins/markets", query, &coins); err != nil {
			return nil, fmt.Errorf("coingecko markets: %w", err)
		}
		return coins, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Coin), nil
}

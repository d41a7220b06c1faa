package alphavantage

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"marketgateway/internal/httpx"
)

// Config controls the Alpha Vantage client behavior.
type Config struct {
	Name   string
	URL    string
	APIKey string
}

type Client struct {
	cfg Config
	hc  *httpx.Client
}

func New(cfg Config, hc *httpx.Client) *Client {
	if cfg.Name == "" {
		cfg.Name = "AlphaVantage"
	}
	if cfg.URL == "" {
		cfg.URL = "https://www.alphavantage.co"
	}
	return &Client{cfg: cfg, hc: hc}
}

func (c *Client) Name() string { return c.cfg.Name }

// Alpha Vantage keys its payload with human-readable, numbered field
// names. Only the rate itself matters here.
type rateData struct {
	FromCode     string `json:"1. From_Currency Code"`
	ToCode       string `json:"3. To_Currency Code"`
	ExchangeRate string `json:"5. Exchange Rate"`
	LastRefresh  string `json:"6. Last Refreshed"`
}

type exchangeRateResponse struct {
	Rate         *rateData `json:"Realtime Currency Exchange Rate"`
	ErrorMessage string    `json:"Error Message"`
	// Note is set when the free-tier rate limit is exhausted; the
	// response then carries no rate data.
	Note string `json:"Note"`
}

// ExchangeRate fetches the realtime rate for a currency pair. It
// returns (nil, nil) when the response carries no parseable rate — for
// example an unknown pair or an exhausted quota — and an error only for
// transport failures or an explicit upstream error message.
func (c *Client) ExchangeRate(ctx context.Context, from, to string) (*float64, error) {
	query := url.Values{
		"function":      []string{"CURRENCY_EXCHANGE_RATE"},
		"from_currency": []string{from},
		"to_currency":   []string{to},
		"apikey":        []string{c.cfg.APIKey},
	}

	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	var resp exchangeRateResponse
	if err := c.hc.GetJSON(reqCtx, c.cfg.URL+"/query", query, &resp); err != nil {
		return nil, fmt.Errorf("alphavantage %s->%s: %w", from, to, err)
	}
	if resp.ErrorMessage != "" {
		return nil, fmt.Errorf("alphavantage error: %s", resp.ErrorMessage)
	}
	if resp.Rate == nil || resp.Rate.ExchangeRate == "" {
		return nil, nil
	}
	rate, err := strconv.ParseFloat(resp.Rate.ExchangeRate, 64)
	if err != nil {
		return nil, nil
	}
	return &rate, nil
}

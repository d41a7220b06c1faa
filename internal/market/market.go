package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"marketgateway/internal/cache"
	"marketgateway/internal/market/coingecko"
	"marketgateway/internal/market/polygon"
)

// TTLs per resource class. Reference data barely moves; previous close
// only changes during trading hours; a failed forex lookup is retried
// sooner than a successful one expires.
const (
	TTLPrevClose    = 15 * time.Minute
	TTLDetails      = 24 * time.Hour
	TTLAggregates   = time.Hour
	TTLExchangeRate = time.Hour
	TTLExchangeMiss = 15 * time.Minute
)

// Validation errors, returned before any cache or upstream access.
var (
	ErrMissingTicker   = errors.New("ticker symbol is required")
	ErrMissingCurrency = errors.New("currency codes are required")
	ErrMissingRange    = errors.New("from and to dates are required")
)

// StockClient is the Polygon surface the service consumes.
type StockClient interface {
	PreviousClose(ctx context.Context, ticker string) (*polygon.Bar, error)
	TickerDetails(ctx context.Context, ticker string) (*polygon.Details, error)
	Aggregates(ctx context.Context, ticker string, multiplier int, timespan, from, to string) ([]polygon.Bar, error)
}

// CryptoClient is the CoinGecko surface the service consumes.
type CryptoClient interface {
	Markets(ctx context.Context, vsCurrency string, perPage, page int, order string) ([]coingecko.Coin, error)
}

// RateClient is the Alpha Vantage surface the service consumes.
type RateClient interface {
	ExchangeRate(ctx context.Context, from, to string) (*float64, error)
}

// Rate is the caller-facing exchange-rate result. A nil Rate is a
// legitimate answer ("currently unavailable") and may itself come from
// the cache.
type Rate struct {
	Rate   *float64 `json:"rate"`
	Source string   `json:"source"` // "cache" or "api"
}

// Service is the read-through cache over the market providers.
type Service struct {
	cache  cache.Store
	stocks StockClient
	crypto CryptoClient
	rates  RateClient
	log    *slog.Logger
}

func NewService(store cache.Store, stocks StockClient, crypto CryptoClient, rates RateClient, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{cache: store, stocks: stocks, crypto: crypto, rates: rates, log: log}
}

// CryptoSnapshot passes through to CoinGecko. No fetch-layer cache:
// snapshot freshness matters and the client already coalesces
// concurrent identical requests.
func (s *Service) CryptoSnapshot(ctx context.Context, vsCurrency string, perPage, page int, order string) ([]coingecko.Coin, error) {
	coins, err := s.crypto.Markets(ctx, vsCurrency, perPage, page, order)
	if err != nil {
		return nil, fmt.Errorf("fetch crypto snapshot: %w", err)
	}
	return coins, nil
}

// PreviousClose returns the previous trading day's bar for a ticker,
// served from cache within 15 minutes of a fetch. Upstream failure
// degrades to nil; nothing is cached in that case.
func (s *Service) PreviousClose(ctx context.Context, ticker string) (*polygon.Bar, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, ErrMissingTicker
	}
	key := "stock_prev_close_" + ticker

	var bar *polygon.Bar
	if s.cacheGet(ctx, key, &bar) {
		return bar, nil
	}

	bar, err := s.stocks.PreviousClose(ctx, ticker)
	if err != nil {
		s.log.Error("previous close fetch failed", "ticker", ticker, "err", err)
		return nil, nil
	}
	if bar != nil {
		s.cacheSet(ctx, key, bar, TTLPrevClose)
	}
	return bar, nil
}

// TickerDetails returns reference data for a ticker, cached for a day.
func (s *Service) TickerDetails(ctx context.Context, ticker string) (*polygon.Details, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, ErrMissingTicker
	}
	key := "stock_details_" + ticker

	var details *polygon.Details
	if s.cacheGet(ctx, key, &details) {
		return details, nil
	}

	details, err := s.stocks.TickerDetails(ctx, ticker)
	if err != nil {
		s.log.Error("ticker details fetch failed", "ticker", ticker, "err", err)
		return nil, nil
	}
	if details != nil {
		s.cacheSet(ctx, key, details, TTLDetails)
	}
	return details, nil
}

// Aggregates returns OHLCV bars for a date range. Each distinct
// parameter tuple is its own cached artifact; there is no partial-range
// merging. An empty result is never cached: a range covering today may
// gain bars later.
func (s *Service) Aggregates(ctx context.Context, ticker string, multiplier int, timespan, from, to string) ([]polygon.Bar, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, ErrMissingTicker
	}
	if from == "" || to == "" {
		return nil, ErrMissingRange
	}
	if multiplier <= 0 {
		multiplier = 1
	}
	if timespan == "" {
		timespan = "day"
	}
	key := fmt.Sprintf("stock_aggs_%s_%d_%s_%s_%s", ticker, multiplier, timespan, from, to)

	var bars []polygon.Bar
	if s.cacheGet(ctx, key, &bars) {
		return bars, nil
	}

	bars, err := s.stocks.Aggregates(ctx, ticker, multiplier, timespan, from, to)
	if err != nil {
		s.log.Error("aggregates fetch failed", "ticker", ticker, "err", err)
		return []polygon.Bar{}, nil
	}
	if len(bars) > 0 {
		s.cacheSet(ctx, key, bars, TTLAggregates)
	} else {
		s.log.Warn("no aggregate data returned, not caching", "key", key)
	}
	return bars, nil
}

// ExchangeRate resolves a currency pair. Both outcomes are cached: a
// parsed rate for an hour, and a null result for 15 minutes so a
// failing upstream is retried soon without being hammered.
func (s *Service) ExchangeRate(ctx context.Context, from, to string) (Rate, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if from == "" || to == "" {
		return Rate{}, ErrMissingCurrency
	}
	key := fmt.Sprintf("forex_av_%s_%s", from, to)

	var cached *float64
	if s.cacheGet(ctx, key, &cached) {
		return Rate{Rate: cached, Source: "cache"}, nil
	}

	rate, err := s.rates.ExchangeRate(ctx, from, to)
	if err != nil {
		s.log.Error("exchange rate fetch failed", "from", from, "to", to, "err", err)
		rate = nil
	}
	if rate != nil {
		s.cacheSet(ctx, key, rate, TTLExchangeRate)
	} else {
		s.log.Warn("no exchange rate parsed, caching null", "key", key)
		s.cacheSet(ctx, key, nil, TTLExchangeMiss)
	}
	return Rate{Rate: rate, Source: "api"}, nil
}

// cacheGet reads and decodes a cached entry into dst. Store failures
// and corrupt entries are logged and treated as a miss so the request
// falls through to the upstream fetch.
func (s *Service) cacheGet(ctx context.Context, key string, dst any) bool {
	b, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Warn("cache get failed", "key", key, "err", err)
		return false
	}
	if !ok {
		s.log.Debug("cache MISS", "key", key)
		return false
	}
	if err := json.Unmarshal(b, dst); err != nil {
		s.log.Warn("cache entry corrupt", "key", key, "err", err)
		return false
	}
	s.log.Debug("cache HIT", "key", key)
	return true
}

// cacheSet encodes and stores a value. A write failure is logged but
// never masks a successfully fetched result.
func (s *Service) cacheSet(ctx context.Context, key string, v any, ttl time.Duration) {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Warn("cache encode failed", "key", key, "err", err)
		return
	}
	if err := s.cache.Set(ctx, key, b, ttl); err != nil {
		s.log.Warn("cache set failed", "key", key, "err", err)
		return
	}
	s.log.Debug("cache SET", "key", key, "ttl", ttl)
}

package polygon

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"strconv"
)

// Bar is one OHLCV aggregate. Field tags follow Polygon's terse wire
// names (o/c/h/l/v, t = millisecond epoch).
type Bar struct {
	Ticker    string   `json:"T,omitempty"`
	Open      float64  `json:"o"`
	Close     float64  `json:"c"`
	High      float64  `json:"h"`
	Low       float64  `json:"l"`
	Volume    float64  `json:"v"`
	VWAP      *float64 `json:"vw,omitempty"`
	Trades    *int64   `json:"n,omitempty"`
	Timestamp int64    `json:"t"`
}

// Branding holds ticker logo/icon asset URLs.
type Branding struct {
	LogoURL string `json:"logo_url,omitempty"`
	IconURL string `json:"icon_url,omitempty"`
}

// Details is the descriptive reference record for a ticker. It is
// near-static, which is why the service caches it for a day.
type Details struct {
	Ticker          string    `json:"ticker"`
	Name            string    `json:"name"`
	Market          string    `json:"market,omitempty"`
	Locale          string    `json:"locale,omitempty"`
	PrimaryExchange string    `json:"primary_exchange,omitempty"`
	Type            string    `json:"type,omitempty"`
	Active          bool      `json:"active,omitempty"`
	CurrencyName    string    `json:"currency_name,omitempty"`
	HomepageURL     string    `json:"homepage_url,omitempty"`
	Description     string    `json:"description,omitempty"`
	SICDescription  string    `json:"sic_description,omitempty"`
	TotalEmployees  *int64    `json:"total_employees,omitempty"`
	ListDate        string    `json:"list_date,omitempty"`
	MarketCap       *float64  `json:"market_cap,omitempty"`
	Branding        *Branding `json:"branding,omitempty"`
}

type aggsResponse struct {
	Ticker       string `json:"ticker"`
	QueryCount   int    `json:"queryCount"`
	ResultsCount int    `json:"resultsCount"`
	Results      []Bar  `json:"results"`
	Status       string `json:"status"`
}

type detailsResponse struct {
	Results *Details `json:"results"`
	Status  string   `json:"status"`
}

// PreviousClose retrieves the previous trading day's OHLCV bar for a
// ticker. It returns (nil, nil) when Polygon reports no data, e.g. for
// an unknown ticker.
func (c *Client) PreviousClose(ctx context.Context, ticker string) (*Bar, error) {
	query := url.Values{"adjusted": []string{"true"}}
	var resp aggsResponse
	if err := c.get(ctx, "/v2/aggs/ticker/"+url.PathEscape(ticker)+"/prev", query, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	return &resp.Results[0], nil
}

// TickerDetails retrieves reference data for a ticker. It returns
// (nil, nil) when no details exist.
func (c *Client) TickerDetails(ctx context.Context, ticker string) (*Details, error) {
	var resp detailsResponse
	if err := c.get(ctx, "/v3/reference/tickers/"+url.PathEscape(ticker), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Aggregates retrieves OHLCV bars for a date range and granularity,
// oldest first. A range with no trading data yields an empty slice and
// no error.
func (c *Client) Aggregates(ctx context.Context, ticker string, multiplier int, timespan, from, to string) ([]Bar, error) {
	path := fmt.Sprintf("/v2/aggs/ticker/%s/range/%d/%s/%s/%s",
		url.PathEscape(ticker), multiplier, timespan, url.PathEscape(from), url.PathEscape(to))
	query := url.Values{
		"adjusted": []string{"true"},
		"sort":     []string{"asc"},
		"limit":    []string{strconv.Itoa(5000)},
	}
	var resp aggsResponse
	if err := c.get(ctx, path, query, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (c *Client) get(ctx context.Context, path string, extra url.Values, dst any) error {
	query := maps.Clone(c.query)
	for k, vs := range extra {
		for _, v := range vs {
			query.Add(k, v)
		}
	}

	u := fmt.Sprintf("%s%s?%s", c.baseURL, path, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header = c.header.Clone()

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		break

	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("unauthorized")

	case http.StatusTooManyRequests:
		return fmt.Errorf("rate limited")

	default:
		return fmt.Errorf("unexpected status code: %d", res.StatusCode)
	}

	if err := json.NewDecoder(res.Body).Decode(dst); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

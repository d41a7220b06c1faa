package newsapi

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"marketgateway/internal/httpx"
)

// Config controls the NewsAPI client behavior.
type Config struct {
	Name     string
	URL      string
	APIKey   string
	Country  string
	Category string
}

// Source identifies the publisher as reported by the feed.
type Source struct {
	ID   *string `json:"id"`
	Name string  `json:"name"`
}

// Article is one upstream headline. PublishedAt is a pointer because
// the feed sometimes omits it; ingestion defaults it to the fetch time.
type Article struct {
	Source      Source     `json:"source"`
	Author      string     `json:"author,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	URL         string     `json:"url"`
	URLToImage  string     `json:"urlToImage,omitempty"`
	PublishedAt *time.Time `json:"publishedAt"`
	Content     string     `json:"content,omitempty"`
}

type headlinesResponse struct {
	Status       string    `json:"status"`
	TotalResults int       `json:"totalResults"`
	Articles     []Article `json:"articles"`
	Code         string    `json:"code,omitempty"`
	Message      string    `json:"message,omitempty"`
}

type Client struct {
	cfg Config
	hc  *httpx.Client
}

func New(cfg Config, hc *httpx.Client) *Client {
	if cfg.Name == "" {
		cfg.Name = "NewsAPI"
	}
	if cfg.URL == "" {
		cfg.URL = "https://newsapi.org/v2/top-headlines"
	}
	if cfg.Country == "" {
		cfg.Country = "us"
	}
	if cfg.Category == "" {
		cfg.Category = "business"
	}
	return &Client{cfg: cfg, hc: hc}
}

func (c *Client) Name() string { return c.cfg.Name }

// TopHeadlines fetches one page of the configured headline feed and
// returns the articles plus the feed's total result count. Upstream
// pagination is independent of the persistent store's pagination.
func (c *Client) TopHeadlines(ctx context.Context, page, pageSize int) ([]Article, int, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 12
	}
	query := url.Values{
		"apiKey":   []string{c.cfg.APIKey},
		"country":  []string{c.cfg.Country},
		"category": []string{c.cfg.Category},
		"page":     []string{strconv.Itoa(page)},
		"pageSize": []string{strconv.Itoa(pageSize)},
	}

	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	var resp headlinesResponse
	if err := c.hc.GetJSON(reqCtx, c.cfg.URL, query, &resp); err != nil {
		return nil, 0, fmt.Errorf("newsapi top-headlines: %w", err)
	}
	if resp.Status != "ok" {
		return nil, 0, fmt.Errorf("newsapi error: %s (%s)", resp.Message, resp.Code)
	}
	return resp.Articles, resp.TotalResults, nil
}

package polygon

import (
	"errors"
	"net/http"
	"net/url"
)

const defaultBaseURL = "https://api.polygon.io"

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=polygon_test -destination=mock_http_client_test.go -source=polygon.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a client for the Polygon.io stocks API.
type Client struct {
	// baseURL is the base URL for the API.
	baseURL string
	// httpClient is the HTTP client.
	httpClient HTTPClient
	// header contains additional headers to be sent with each request.
	header http.Header
	// query contains additional query parameters to be sent with each request.
	query url.Values
}

// ClientOption is a configuration option for the Polygon client.
type ClientOption func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) ClientOption {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// NewClient creates a new Polygon API client. The key is required:
// every Polygon endpoint this gateway uses is authenticated.
func NewClient(key string, options ...ClientOption) (*Client, error) {
	if key == "" {
		return nil, errors.New("polygon: api key is required")
	}
	var client = &Client{
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{},
		query:      url.Values{},
	}
	// Polygon authenticates via the apiKey query parameter.
	// https://polygon.io/docs/stocks/getting-started
	client.query.Add("apiKey", key)
	for _, option := range options {
		option(client)
	}
	return client, nil
}

// Package kline is a Go client for the kline chart server.
package kline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"kline/internal/util"
)

// StatusError is a non-2xx answer from the server.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("kline server: %d %s", e.Code, e.Message)
}

// Client talks to a kline-server.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	attempts   int
	backoff    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithToken sends token as a bearer token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithTimeout bounds each HTTP attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithRetry sets how many attempts a request gets and the first backoff.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(c *Client) {
		c.attempts = max(attempts, 1)
		c.backoff = backoff
	}
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		attempts:   3,
		backoff:    200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Chart fetches the last limit bars of symbol at period ("day", "week",
// "5m", ...) ending at end. An empty period asks for day bars, an empty end
// for the latest session and limit 0 for the server default.
func (c *Client) Chart(ctx context.Context, symbol, period, end string, limit int) (*Chart, error) {
	q := url.Values{}
	if period != "" {
		q.Set("period", period)
	}
	if end != "" {
		q.Set("end", end)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var chart Chart
	if err := c.get(ctx, "/api/chart/"+url.PathEscape(symbol)+"?"+q.Encode(), &chart); err != nil {
		return nil, err
	}
	return &chart, nil
}

// Latest returns the server's view of the latest session.
func (c *Client) Latest(ctx context.Context) (*DayResponse, error) {
	var day DayResponse
	if err := c.get(ctx, "/api/calendar/latest", &day); err != nil {
		return nil, err
	}
	return &day, nil
}

// Market reports whether the server's market is open now.
func (c *Client) Market(ctx context.Context) (*MarketResponse, error) {
	var m MarketResponse
	if err := c.get(ctx, "/api/calendar/market", &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Stocks lists stocks whose symbol or name contains q.
func (c *Client) Stocks(ctx context.Context, q string) ([]Stock, error) {
	var resp StocksResponse
	if err := c.get(ctx, "/api/stocks?q="+url.QueryEscape(q), &resp); err != nil {
		return nil, err
	}
	return resp.Stocks, nil
}

// get decodes the JSON body of path into out. Network errors and 5xx answers
// are retried; 4xx answers are not.
func (c *Client) get(ctx context.Context, path string, out any) error {
	return util.Retry(ctx, c.attempts, c.backoff, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return util.Permanent(err)
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("GET %s: %w", path, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			serr := &StatusError{Code: resp.StatusCode, Message: readError(resp.Body)}
			if resp.StatusCode < 500 {
				return util.Permanent(serr)
			}
			return serr
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return util.Permanent(fmt.Errorf("decoding %s: %w", path, err))
		}
		return nil
	})
}

func readError(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, 4096))
	var e ErrorResponse
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}

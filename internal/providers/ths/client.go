// Package ths fetches industry board (sector) index data from a
// THS-compatible gateway: a board listing that maps Chinese board names to
// codes, and the full daily K-line history per board.
package ths

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/quantfan/asharescan/internal/providers"
)

// Board is one industry board.
type Board struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Bar is one daily K-line of a board index.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

type barJSON struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// MetricsCallback is invoked per API call with request metrics.
type MetricsCallback func(api string, duration time.Duration, err error)

// Config holds client settings.
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
	RateLimitRPS   float64
	MaxRetries     int
	RetryBackoff   time.Duration
	UserAgent      string
}

// Client is a guarded, rate-limited board-index client.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	limiter      *rate.Limiter
	guard        *providers.Guard
	maxRetries   int
	retryBackoff time.Duration
	userAgent    string
	metrics      MetricsCallback
}

func NewClient(config Config) *Client {
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 10 * time.Second
	}
	if config.RateLimitRPS == 0 {
		config.RateLimitRPS = 2.0
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.RetryBackoff == 0 {
		config.RetryBackoff = time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = "asharescan/1.0"
	}
	return &Client{
		httpClient:   &http.Client{Timeout: config.RequestTimeout},
		baseURL:      config.BaseURL,
		limiter:      rate.NewLimiter(rate.Limit(config.RateLimitRPS), 1),
		guard:        providers.NewGuard("ths", providers.GuardConfig{}),
		maxRetries:   config.MaxRetries,
		retryBackoff: config.RetryBackoff,
		userAgent:    config.UserAgent,
	}
}

// SetMetricsCallback installs the per-call metrics hook.
func (c *Client) SetMetricsCallback(cb MetricsCallback) { c.metrics = cb }

// get fetches one path, honoring the rate limit and the breaker,
// retrying transport-level failures with linear backoff.
func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	start := time.Now()
	err := c.guard.Do(func() error {
		var lastErr error
		for attempt := 0; attempt <= c.maxRetries; attempt++ {
			if attempt > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(time.Duration(attempt) * c.retryBackoff):
				}
			}
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
			if err := c.getOnce(ctx, path, out); err != nil {
				lastErr = err
				continue
			}
			return nil
		}
		return fmt.Errorf("GET %s failed after %d retries: %w", path, c.maxRetries, lastErr)
	})
	if c.metrics != nil {
		c.metrics(path, time.Since(start), err)
	}
	return err
}

func (c *Client) getOnce(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("GET %s: decode: %w", path, err)
	}
	return nil
}

// BoardListing returns all industry boards.
func (c *Client) BoardListing(ctx context.Context) ([]Board, error) {
	var boards []Board
	if err := c.get(ctx, "/boards", &boards); err != nil {
		return nil, err
	}
	return boards, nil
}

// FindBoard resolves a board by its Chinese name.
func (c *Client) FindBoard(ctx context.Context, name string) (*Board, error) {
	boards, err := c.BoardListing(ctx)
	if err != nil {
		return nil, err
	}
	for _, b := range boards {
		if b.Name == name {
			return &b, nil
		}
	}
	return nil, fmt.Errorf("board %q not listed", name)
}

// IndexDaily returns the full daily K history of a board index.
func (c *Client) IndexDaily(ctx context.Context, code string) ([]Bar, error) {
	var raw []barJSON
	path := fmt.Sprintf("/boards/%s/daily", url.PathEscape(code))
	if err := c.get(ctx, path, &raw); err != nil {
		return nil, err
	}

	out := make([]Bar, 0, len(raw))
	for _, b := range raw {
		d, err := time.Parse("2006-01-02", b.Date)
		if err != nil {
			return nil, fmt.Errorf("board %s: bad date %q: %w", code, b.Date, err)
		}
		out = append(out, Bar{Date: d, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume})
	}
	return out, nil
}

// FilterDates keeps bars whose date is in the target set.
func FilterDates(bars []Bar, targets []time.Time) []Bar {
	set := make(map[time.Time]bool, len(targets))
	for _, t := range targets {
		set[time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)] = true
	}
	var out []Bar
	for _, b := range bars {
		if set[b.Date] {
			out = append(out, b)
		}
	}
	return out
}

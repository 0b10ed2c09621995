// Package tushare is the client for the Tushare Pro data API: one POST
// endpoint taking {api_name, token, params, fields} and answering a
// column-oriented {fields, items} envelope.
package tushare

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/quantfan/asharescan/internal/providers"
)

// MetricsCallback is invoked per API call with request metrics.
type MetricsCallback func(api string, duration time.Duration, err error)

// Config holds client settings.
type Config struct {
	BaseURL        string
	Token          string
	RequestTimeout time.Duration
	RateLimitRPS   float64
	MaxRetries     int
	RetryBackoff   time.Duration
	UserAgent      string
}

// Client is a guarded, rate-limited Tushare Pro client.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	token        string
	limiter      *rate.Limiter
	guard        *providers.Guard
	maxRetries   int
	retryBackoff time.Duration
	userAgent    string
	metrics      MetricsCallback
}

// NewClient applies defaults and builds the client.
func NewClient(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://api.tushare.pro"
	}
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
		httpClient: &http.Client{
			Timeout: config.RequestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		baseURL:      config.BaseURL,
		token:        config.Token,
		limiter:      rate.NewLimiter(rate.Limit(config.RateLimitRPS), 1),
		guard:        providers.NewGuard("tushare", providers.GuardConfig{}),
		maxRetries:   config.MaxRetries,
		retryBackoff: config.RetryBackoff,
		userAgent:    config.UserAgent,
	}
}

// SetMetricsCallback registers a per-call metrics hook.
func (c *Client) SetMetricsCallback(cb MetricsCallback) { c.metrics = cb }

// APIError is a non-zero code in the Tushare response envelope.
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tushare api error %d: %s", e.Code, e.Msg)
}

type apiRequest struct {
	APIName string            `json:"api_name"`
	Token   string            `json:"token"`
	Params  map[string]string `json:"params"`
	Fields  string            `json:"fields"`
}

type apiResponse struct {
	Code int      `json:"code"`
	Msg  string   `json:"msg"`
	Data *dataSet `json:"data"`
}

// dataSet is the column-oriented payload.
type dataSet struct {
	Fields []string        `json:"fields"`
	Items  [][]interface{} `json:"items"`
}

// col returns the index of a field or -1.
func (d *dataSet) col(name string) int {
	for i, f := range d.Fields {
		if f == name {
			return i
		}
	}
	return -1
}

func asString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return fmt.Sprintf("%.0f", x)
	default:
		return ""
	}
}

func asFloat(v interface{}) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		var f float64
		fmt.Sscanf(x, "%g", &f)
		return f
	default:
		return 0
	}
}

// call posts one API request, honoring the rate limit and the breaker,
// retrying transport-level failures with linear backoff. Envelope errors
// (code != 0) are terminal.
func (c *Client) call(ctx context.Context, api string, params map[string]string, fields string) (*dataSet, error) {
	start := time.Now()
	var data *dataSet
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
			d, err := c.post(ctx, api, params, fields)
			if err == nil {
				data = d
				return nil
			}
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return err
			}
			lastErr = err
		}
		return fmt.Errorf("%s failed after %d retries: %w", api, c.maxRetries, lastErr)
	})
	if c.metrics != nil {
		c.metrics(api, time.Since(start), err)
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (c *Client) post(ctx context.Context, api string, params map[string]string, fields string) (*dataSet, error) {
	body, err := json.Marshal(apiRequest{
		APIName: api,
		Token:   c.token,
		Params:  params,
		Fields:  fields,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", api, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%s: unexpected status %d", api, resp.StatusCode)
	}

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", api, err)
	}
	if envelope.Code != 0 {
		return nil, &APIError{Code: envelope.Code, Msg: envelope.Msg}
	}
	if envelope.Data == nil {
		return nil, fmt.Errorf("%s: empty data envelope", api)
	}
	return envelope.Data, nil
}

package tushare

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL:      srv.URL,
		Token:        "test-token",
		RateLimitRPS: 1000,
		MaxRetries:   1,
		RetryBackoff: time.Millisecond,
	})
}

func TestTradeCalFiltersClosedDays(t *testing.T) {
	var gotReq apiRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code": 0,
			"data": map[string]interface{}{
				"fields": []string{"cal_date", "is_open"},
				"items": [][]interface{}{
					{"20241230", 1},
					{"20241229", 0},
					{"20241227", 1},
				},
			},
		})
	})

	days, err := client.TradeCal(context.Background(), "SSE",
		time.Date(2024, 12, 27, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, "trade_cal", gotReq.APIName)
	assert.Equal(t, "test-token", gotReq.Token)
	assert.Equal(t, "20241227", gotReq.Params["start_date"])

	require.Len(t, days, 2)
	assert.Equal(t, time.Date(2024, 12, 30, 0, 0, 0, 0, time.UTC), days[0])
	assert.Equal(t, time.Date(2024, 12, 27, 0, 0, 0, 0, time.UTC), days[1])
}

func TestStockBasic(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code": 0,
			"data": map[string]interface{}{
				"fields": []string{"ts_code", "name"},
				"items": [][]interface{}{
					{"601398.SH", "工商银行"},
					{"600036.SH", "招商银行"},
				},
			},
		})
	})

	secs, err := client.StockBasic(context.Background())
	require.NoError(t, err)
	require.Len(t, secs, 2)
	assert.Equal(t, "601398.SH", secs[0].Code)
	assert.Equal(t, "工商银行", secs[0].Name)
}

func TestDaily(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code": 0,
			"data": map[string]interface{}{
				"fields": []string{"ts_code", "trade_date", "open", "high", "low", "close", "vol", "amount"},
				"items": [][]interface{}{
					{"601398.SH", "20241231", 5.0, 5.2, 4.9, 5.1, 1000.0, 5100.0},
				},
			},
		})
	})

	quotes, err := client.Daily(context.Background(), "601398.SH",
		time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, 5.1, quotes[0].Close)
	assert.Equal(t, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), quotes[0].Date)
}

func TestAPIErrorIsTerminal(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code": 40001,
			"msg":  "token invalid",
		})
	})

	_, err := client.StockBasic(context.Background())
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 40001, apiErr.Code)
	assert.Equal(t, 1, calls, "envelope errors must not be retried")
}

func TestTransportErrorsAreRetried(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code": 0,
			"data": map[string]interface{}{
				"fields": []string{"ts_code", "name"},
				"items":  [][]interface{}{{"601398.SH", "工商银行"}},
			},
		})
	})

	secs, err := client.StockBasic(context.Background())
	require.NoError(t, err)
	assert.Len(t, secs, 1)
	assert.Equal(t, 2, calls)
}

func TestMetricsCallback(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code": 0,
			"data": map[string]interface{}{
				"fields": []string{"ts_code", "name"},
				"items":  [][]interface{}{},
			},
		})
	})

	var seenAPI string
	client.SetMetricsCallback(func(api string, d time.Duration, err error) {
		seenAPI = api
		assert.NoError(t, err)
	})

	_, err := client.StockBasic(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "stock_basic", seenAPI)
}

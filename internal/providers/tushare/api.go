package tushare

import (
	"context"
	"fmt"
	"time"

	"github.com/quantfan/asharescan/internal/domain"
)

const dateLayout = "20060102"

// TradeCal returns the open trading days of an exchange in [start, end].
func (c *Client) TradeCal(ctx context.Context, exchange string, start, end time.Time) ([]time.Time, error) {
	data, err := c.call(ctx, "trade_cal", map[string]string{
		"exchange":   exchange,
		"start_date": start.Format(dateLayout),
		"end_date":   end.Format(dateLayout),
	}, "cal_date,is_open")
	if err != nil {
		return nil, err
	}

	dateCol, openCol := data.col("cal_date"), data.col("is_open")
	if dateCol < 0 || openCol < 0 {
		return nil, fmt.Errorf("trade_cal: missing fields in %v", data.Fields)
	}

	var days []time.Time
	for _, item := range data.Items {
		if asFloat(item[openCol]) != 1 {
			continue
		}
		d, err := time.Parse(dateLayout, asString(item[dateCol]))
		if err != nil {
			return nil, fmt.Errorf("trade_cal: bad cal_date %v: %w", item[dateCol], err)
		}
		days = append(days, d)
	}
	return days, nil
}

// StockBasic returns the listed A-share universe.
func (c *Client) StockBasic(ctx context.Context) ([]domain.Security, error) {
	data, err := c.call(ctx, "stock_basic", map[string]string{
		"exchange":    "",
		"list_status": "L",
	}, "ts_code,name")
	if err != nil {
		return nil, err
	}

	codeCol, nameCol := data.col("ts_code"), data.col("name")
	if codeCol < 0 || nameCol < 0 {
		return nil, fmt.Errorf("stock_basic: missing fields in %v", data.Fields)
	}

	out := make([]domain.Security, 0, len(data.Items))
	for _, item := range data.Items {
		out = append(out, domain.Security{
			Code: asString(item[codeCol]),
			Name: asString(item[nameCol]),
		})
	}
	return out, nil
}

// Daily returns the daily bars of one security on one trading day. The
// result is empty when the security did not trade.
func (c *Client) Daily(ctx context.Context, tsCode string, tradeDate time.Time) ([]domain.Quote, error) {
	data, err := c.call(ctx, "daily", map[string]string{
		"ts_code":    tsCode,
		"trade_date": tradeDate.Format(dateLayout),
	}, "ts_code,trade_date,open,high,low,close,vol,amount")
	if err != nil {
		return nil, err
	}

	idx := map[string]int{}
	for _, f := range []string{"ts_code", "trade_date", "open", "high", "low", "close", "vol", "amount"} {
		j := data.col(f)
		if j < 0 {
			return nil, fmt.Errorf("daily: missing field %s in %v", f, data.Fields)
		}
		idx[f] = j
	}

	out := make([]domain.Quote, 0, len(data.Items))
	for _, item := range data.Items {
		d, err := time.Parse(dateLayout, asString(item[idx["trade_date"]]))
		if err != nil {
			return nil, fmt.Errorf("daily: bad trade_date %v: %w", item[idx["trade_date"]], err)
		}
		out = append(out, domain.Quote{
			Code:   asString(item[idx["ts_code"]]),
			Date:   d,
			Open:   asFloat(item[idx["open"]]),
			High:   asFloat(item[idx["high"]]),
			Low:    asFloat(item[idx["low"]]),
			Close:  asFloat(item[idx["close"]]),
			Volume: asFloat(item[idx["vol"]]),
			Amount: asFloat(item[idx["amount"]]),
		})
	}
	return out, nil
}

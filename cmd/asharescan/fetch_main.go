package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quantfan/asharescan/internal/calendar"
	"github.com/quantfan/asharescan/internal/config"
	"github.com/quantfan/asharescan/internal/data/cache"
	"github.com/quantfan/asharescan/internal/dataset"
	"github.com/quantfan/asharescan/internal/domain"
	"github.com/quantfan/asharescan/internal/metrics"
	"github.com/quantfan/asharescan/internal/persistence/postgres"
	"github.com/quantfan/asharescan/internal/providers/ths"
	"github.com/quantfan/asharescan/internal/providers/tushare"
	"github.com/quantfan/asharescan/internal/universe"
)

// runFetchQuotes pulls the trade calendar, resolves each target date to
// its latest open day, and fetches daily bars for every industry list.
func runFetchQuotes(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	defer metrics.TimeStage("fetch_quotes")()

	targets, err := parseDates(cfg.Fetch.TargetDates)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return fmt.Errorf("fetch.target_dates is empty")
	}

	client := tushare.NewClient(tushare.Config{
		BaseURL:        cfg.Tushare.BaseURL,
		Token:          cfg.Tushare.ResolveToken(),
		RequestTimeout: cfg.Tushare.Timeout(),
		RateLimitRPS:   cfg.Tushare.RateLimitRPS,
		MaxRetries:     cfg.Tushare.MaxRetries,
	})
	client.SetMetricsCallback(func(api string, d time.Duration, err error) {
		metrics.ObserveProviderCall("tushare", api, d, err)
	})

	store, storeName := newCacheStore(cfg)
	ttl := cfg.Cache.DefaultTTL()

	calStart, calEnd := calRange(cfg.Fetch, targets)
	resolved, err := resolveTargets(ctx, client, store, storeName, ttl, calStart, calEnd, targets)
	if err != nil {
		return err
	}

	resolver, err := loadResolver(ctx, client, store, storeName, ttl)
	if err != nil {
		return err
	}

	var repo func(context.Context, []domain.Quote) error
	if storeDB {
		db, err := postgres.Connect(ctx, cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		defer db.Close()
		repo = postgres.NewQuotesRepo(db, cfg.Postgres.Timeout()).InsertBatch
	}

	if err := os.MkdirAll(cfg.Dirs.RawPrices, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", cfg.Dirs.RawPrices, err)
	}

	for _, industry := range cfg.Industries {
		names, err := readStockList(filepath.Join(cfg.Dirs.StockLists, industry+".txt"))
		if err != nil {
			return err
		}
		securities, missing := resolver.ResolveAll(names)
		if len(missing) > 0 {
			log.Warn().Str("industry", industry).Strs("missing", missing).
				Msg("names without listed codes skipped")
		}

		var quotes []domain.Quote
		for _, sec := range securities {
			for _, date := range resolved {
				bars, err := client.Daily(ctx, sec.Code, date)
				if err != nil {
					return fmt.Errorf("daily %s %s: %w", sec.Code, date.Format("2006-01-02"), err)
				}
				for i := range bars {
					bars[i].Name = sec.Name
					bars[i].Industry = industry
				}
				quotes = append(quotes, bars...)
			}
		}

		path := filepath.Join(cfg.Dirs.RawPrices, industry+".csv")
		if err := dataset.WriteQuotesCSV(quotes, path); err != nil {
			return err
		}
		metrics.QuotesFetched.WithLabelValues(industry).Add(float64(len(quotes)))

		if repo != nil {
			if err := repo(ctx, quotes); err != nil {
				return fmt.Errorf("store quotes for %s: %w", industry, err)
			}
		}
		log.Info().Str("industry", industry).Int("securities", len(securities)).
			Int("bars", len(quotes)).Str("path", path).Msg("quotes fetched")
	}
	return nil
}

// runFetchSectors pulls each industry's board index K-line and keeps the
// bars on the target dates.
func runFetchSectors(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	defer metrics.TimeStage("fetch_sectors")()

	targets, err := parseDates(cfg.Fetch.TargetDates)
	if err != nil {
		return err
	}

	client := ths.NewClient(ths.Config{
		BaseURL:        cfg.THS.BaseURL,
		RequestTimeout: cfg.THS.Timeout(),
		RateLimitRPS:   cfg.THS.RateLimitRPS,
		MaxRetries:     cfg.THS.MaxRetries,
	})
	client.SetMetricsCallback(func(api string, d time.Duration, err error) {
		metrics.ObserveProviderCall("ths", api, d, err)
	})

	if err := os.MkdirAll(cfg.Dirs.SectorPrices, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", cfg.Dirs.SectorPrices, err)
	}

	for _, industry := range cfg.Industries {
		board, err := client.FindBoard(ctx, industry)
		if err != nil {
			return fmt.Errorf("board for %s: %w", industry, err)
		}
		bars, err := client.IndexDaily(ctx, board.Code)
		if err != nil {
			return fmt.Errorf("index daily for %s: %w", industry, err)
		}
		if len(targets) > 0 {
			bars = ths.FilterDates(bars, targets)
		}

		path := filepath.Join(cfg.Dirs.SectorPrices, industry+".csv")
		if err := writeBarsCSV(bars, path); err != nil {
			return err
		}
		log.Info().Str("industry", industry).Str("board", board.Code).
			Int("bars", len(bars)).Str("path", path).Msg("sector index fetched")
	}
	return nil
}

// resolveTargets maps calendar-quarter dates to actual trade dates, with
// the calendar cached between runs.
func resolveTargets(ctx context.Context, client *tushare.Client, store cache.Store, storeName string, ttl time.Duration, calStart, calEnd time.Time, targets []time.Time) ([]time.Time, error) {
	key := fmt.Sprintf("tushare:trade_cal:%s:%s", calStart.Format("20060102"), calEnd.Format("20060102"))

	var days []time.Time
	hit, err := store.Get(ctx, key, &days)
	if err != nil {
		return nil, err
	}
	countCache(storeName, hit)
	if !hit {
		days, err = client.TradeCal(ctx, "SSE", calStart, calEnd)
		if err != nil {
			return nil, err
		}
		if err := store.Set(ctx, key, days, ttl); err != nil {
			return nil, err
		}
	}
	return calendar.New(days).ResolveAll(targets)
}

// loadResolver builds the name to code resolver from the listed
// universe, cached between runs.
func loadResolver(ctx context.Context, client *tushare.Client, store cache.Store, storeName string, ttl time.Duration) (*universe.Resolver, error) {
	const key = "tushare:stock_basic"

	var securities []domain.Security
	hit, err := store.Get(ctx, key, &securities)
	if err != nil {
		return nil, err
	}
	countCache(storeName, hit)
	if !hit {
		securities, err = client.StockBasic(ctx)
		if err != nil {
			return nil, err
		}
		if err := store.Set(ctx, key, securities, ttl); err != nil {
			return nil, err
		}
	}
	return universe.NewResolver(securities), nil
}

func newCacheStore(cfg *config.Config) (cache.Store, string) {
	if addr := cfg.Cache.Redis.Addr; addr != "" {
		return cache.NewRedis(addr, cfg.Cache.Redis.DB), "redis"
	}
	return cache.NewMemory(), "memory"
}

func countCache(store string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	metrics.CacheRequests.WithLabelValues(store, outcome).Inc()
}

func parseDates(dates []string) ([]time.Time, error) {
	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		t, err := time.Parse("2006-01-02", d)
		if err != nil {
			return nil, fmt.Errorf("target date %q: %w", d, err)
		}
		out = append(out, t)
	}
	return out, nil
}

// calRange picks the trade-calendar span: the configured range, or the
// target dates padded a month back.
func calRange(fc config.FetchConfig, targets []time.Time) (time.Time, time.Time) {
	if fc.CalStart != "" && fc.CalEnd != "" {
		start, err1 := time.Parse("2006-01-02", fc.CalStart)
		end, err2 := time.Parse("2006-01-02", fc.CalEnd)
		if err1 == nil && err2 == nil {
			return start, end
		}
	}
	start, end := targets[0], targets[0]
	for _, t := range targets[1:] {
		if t.Before(start) {
			start = t
		}
		if t.After(end) {
			end = t
		}
	}
	return start.AddDate(0, -1, 0), end
}

// readStockList loads one security name per line, blanks skipped.
func readStockList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open stock list: %w", err)
	}
	defer f.Close()

	var names []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		name := strings.TrimSpace(sc.Text())
		if name != "" {
			names = append(names, name)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read stock list %s: %w", path, err)
	}
	return names, nil
}

func writeBarsCSV(bars []ths.Bar, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"日期", "开盘", "最高", "最低", "收盘", "成交量"}); err != nil {
		return err
	}
	for _, b := range bars {
		rec := []string{
			b.Date.Format("2006-01-02"),
			strconv.FormatFloat(b.Open, 'f', -1, 64),
			strconv.FormatFloat(b.High, 'f', -1, 64),
			strconv.FormatFloat(b.Low, 'f', -1, 64),
			strconv.FormatFloat(b.Close, 'f', -1, 64),
			strconv.FormatFloat(b.Volume, 'f', -1, 64),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

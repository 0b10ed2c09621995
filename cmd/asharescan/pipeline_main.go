package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quantfan/asharescan/internal/clean"
	"github.com/quantfan/asharescan/internal/config"
	"github.com/quantfan/asharescan/internal/dataset"
	"github.com/quantfan/asharescan/internal/domain"
	"github.com/quantfan/asharescan/internal/metrics"
	"github.com/quantfan/asharescan/internal/persistence"
	"github.com/quantfan/asharescan/internal/persistence/postgres"
)

// runClean turns each industry's raw terminal export into an analysis
// table: ST stocks out, sparse indicator blocks out, sparse stocks out.
func runClean(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer metrics.TimeStage("clean")()

	if err := os.MkdirAll(cfg.Dirs.Cleaned, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", cfg.Dirs.Cleaned, err)
	}
	opts := clean.Options{
		IndicatorDropThreshold: cfg.Clean.IndicatorDropThreshold,
		StockDropThreshold:     cfg.Clean.StockDropThreshold,
	}

	for _, industry := range cfg.Industries {
		table, err := readRawFundamental(cfg.Dirs.RawFundamental, industry)
		if err != nil {
			return err
		}

		cleaned, report, err := clean.Run(table, opts)
		if err != nil {
			return fmt.Errorf("clean %s: %w", industry, err)
		}

		path := filepath.Join(cfg.Dirs.Cleaned, industry+".csv")
		if err := dataset.WriteFundamentalCSV(cleaned, path); err != nil {
			return err
		}
		log.Info().Str("industry", industry).
			Int("st_removed", report.STRemoved).
			Int("columns_dropped", report.ColumnsDropped).
			Int("stocks_dropped", report.StocksDropped).
			Int("rows_kept", report.RowsKept).
			Int("cols_kept", report.ColsKept).
			Str("path", path).Msg("industry cleaned")
	}
	return nil
}

// runFormat pivots each industry's long-form quotes into the wide date
// by stock close series the backtest reads. With --store the quotes
// come from PostgreSQL instead of the raw CSV dumps.
func runFormat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	defer metrics.TimeStage("format")()

	if err := os.MkdirAll(cfg.Dirs.FormattedPrices, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", cfg.Dirs.FormattedPrices, err)
	}

	var repo persistence.QuotesRepo
	if storeDB {
		db, err := postgres.Connect(ctx, cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		defer db.Close()
		repo = postgres.NewQuotesRepo(db, cfg.Postgres.Timeout())
	}

	for _, industry := range cfg.Industries {
		var quotes []domain.Quote
		if repo != nil {
			tr, err := quotesRange(cfg)
			if err != nil {
				return err
			}
			quotes, err = repo.ListByIndustry(ctx, industry, tr)
			if err != nil {
				return fmt.Errorf("list stored quotes for %s: %w", industry, err)
			}
		} else {
			quotes, err = dataset.ReadQuotesCSV(filepath.Join(cfg.Dirs.RawPrices, industry+".csv"))
			if err != nil {
				return fmt.Errorf("read quotes for %s: %w", industry, err)
			}
		}

		series := dataset.Pivot(quotes)
		path := filepath.Join(cfg.Dirs.FormattedPrices, industry+".csv")
		if err := dataset.WritePriceSeriesCSV(series, path); err != nil {
			return err
		}
		log.Info().Str("industry", industry).
			Int("dates", series.Len()).Int("stocks", len(series.Names)).
			Str("path", path).Msg("price series formatted")
	}
	return nil
}

// quotesRange spans the fetch target dates, falling back to the
// backtest window.
func quotesRange(cfg *config.Config) (persistence.TimeRange, error) {
	dates := cfg.Fetch.TargetDates
	if len(dates) == 0 {
		dates = []string{cfg.Backtest.StartDate, cfg.Backtest.EndDate}
	}
	var tr persistence.TimeRange
	for i, d := range dates {
		t, err := time.Parse("2006-01-02", d)
		if err != nil {
			return tr, fmt.Errorf("quote range date %q: %w", d, err)
		}
		if i == 0 || t.Before(tr.From) {
			tr.From = t
		}
		if i == 0 || t.After(tr.To) {
			tr.To = t
		}
	}
	return tr, tr.Validate()
}

// readRawFundamental prefers the XLSX export, falling back to CSV.
func readRawFundamental(dir, industry string) (*domain.IndicatorTable, error) {
	xlsx := filepath.Join(dir, industry+".xlsx")
	if _, err := os.Stat(xlsx); err == nil {
		return dataset.ReadFundamentalXLSX(xlsx, industry)
	}
	csvPath := filepath.Join(dir, industry+".csv")
	if _, err := os.Stat(csvPath); err == nil {
		return dataset.ReadFundamentalCSV(csvPath, industry)
	}
	return nil, fmt.Errorf("no fundamental export for %s under %s", industry, dir)
}

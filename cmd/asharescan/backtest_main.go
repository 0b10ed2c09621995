package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/quantfan/asharescan/internal/backtest"
	"github.com/quantfan/asharescan/internal/dataset"
	"github.com/quantfan/asharescan/internal/domain"
	"github.com/quantfan/asharescan/internal/factor"
	"github.com/quantfan/asharescan/internal/metrics"
	"github.com/quantfan/asharescan/internal/persistence"
	"github.com/quantfan/asharescan/internal/persistence/postgres"
	"github.com/quantfan/asharescan/internal/report"
	"github.com/quantfan/asharescan/internal/universe"
)

// runSelect ranks the configured industries at one rebalance date and
// prints the top picks.
func runSelect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dateStr, _ := cmd.Flags().GetString("date")
	rebalance := time.Now().UTC().Truncate(24 * time.Hour)
	if dateStr != "" {
		if rebalance, err = time.Parse("2006-01-02", dateStr); err != nil {
			return fmt.Errorf("--date: %w", err)
		}
	}

	opts := factor.Options{MinCumVar: cfg.Selection.MinCumVar, MaxFactors: cfg.Selection.MaxFactors}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

	for _, industry := range cfg.Industries {
		table, err := dataset.ReadFundamentalCSV(filepath.Join(cfg.Dirs.Cleaned, industry+".csv"), industry)
		if err != nil {
			return fmt.Errorf("read cleaned table for %s: %w", industry, err)
		}

		model, err := factor.Analyze(factor.BuildWindow(table, rebalance), opts)
		if err != nil {
			log.Warn().Err(err).Str("industry", industry).Msg("factor analysis failed")
			continue
		}

		picks := model.Rankings
		if len(picks) > cfg.Selection.TopN {
			picks = picks[:cfg.Selection.TopN]
		}
		fmt.Fprintf(w, "%s\t%s\t因子数 %d\n", industry, rebalance.Format("2006-01-02"), model.Factors)
		for i, pk := range picks {
			fmt.Fprintf(w, "  %d\t%s\t%s\t%.4f\n", i+1, pk.Security.Code, pk.Security.Name, pk.Score)
		}
	}
	return w.Flush()
}

// runBacktest simulates every configured industry, writes the per
// industry and cross-industry reports, and optionally stores the runs.
func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	defer metrics.TimeStage("backtest")()

	start, err := time.Parse("2006-01-02", cfg.Backtest.StartDate)
	if err != nil {
		return fmt.Errorf("backtest.start_date: %w", err)
	}
	end, err := time.Parse("2006-01-02", cfg.Backtest.EndDate)
	if err != nil {
		return fmt.Errorf("backtest.end_date: %w", err)
	}
	initial := decimal.NewFromFloat(cfg.Backtest.InitialCapital)

	engine, err := backtest.New(backtest.Config{
		Start:          start,
		End:            end,
		InitialCapital: initial,
		TopN:           cfg.Selection.TopN,
		Factor:         factor.Options{MinCumVar: cfg.Selection.MinCumVar, MaxFactors: cfg.Selection.MaxFactors},
	})
	if err != nil {
		return err
	}

	writer, err := report.NewWriter(cfg.Dirs.Output)
	if err != nil {
		return err
	}

	var storeRun func(context.Context, *backtest.Result) error
	if storeDB {
		db, err := postgres.Connect(ctx, cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		defer db.Close()
		picksRepo := postgres.NewPicksRepo(db, cfg.Postgres.Timeout())
		navRepo := postgres.NewNAVRepo(db, cfg.Postgres.Timeout())
		storeRun = func(ctx context.Context, res *backtest.Result) error {
			return persistRun(ctx, picksRepo, navRepo, res)
		}
	}

	var (
		results  []*backtest.Result
		allPicks []domain.Ranking
	)
	for _, industry := range cfg.Industries {
		table, err := dataset.ReadFundamentalCSV(filepath.Join(cfg.Dirs.Cleaned, industry+".csv"), industry)
		if err != nil {
			return fmt.Errorf("read cleaned table for %s: %w", industry, err)
		}
		prices, err := dataset.ReadPriceSeriesCSV(filepath.Join(cfg.Dirs.FormattedPrices, industry+".csv"))
		if err != nil {
			return fmt.Errorf("read price series for %s: %w", industry, err)
		}

		res, err := engine.Run(ctx, industry, table, prices)
		if err != nil {
			return fmt.Errorf("backtest %s: %w", industry, err)
		}
		metrics.BacktestRuns.WithLabelValues(industry).Inc()

		if err := writer.WriteIndustry(res, res.TotalReturnPct(initial)); err != nil {
			return err
		}
		if storeRun != nil {
			if err := storeRun(ctx, res); err != nil {
				return err
			}
		}

		var industryPicks []domain.Ranking
		for _, q := range res.Quarters {
			industryPicks = append(industryPicks, q.Picks...)
		}
		if err := writer.WriteIndustryFrequency(industry, universe.CountFrequencies(industryPicks)); err != nil {
			return err
		}

		results = append(results, res)
		allPicks = append(allPicks, industryPicks...)
	}

	return writer.WriteComparison(results, universe.CountFrequencies(allPicks))
}

// runReportFrequency rebuilds the frequency chart and workbook from the
// pick JSON files of an earlier backtest.
func runReportFrequency(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	writer, err := report.NewWriter(cfg.Dirs.Output)
	if err != nil {
		return err
	}

	var allPicks []domain.Ranking
	for _, industry := range cfg.Industries {
		quarters, err := readPicksJSON(filepath.Join(cfg.Dirs.Output, industry+"_picks.json"))
		if err != nil {
			return err
		}
		var industryPicks []domain.Ranking
		for _, q := range quarters {
			industryPicks = append(industryPicks, q.Picks...)
		}
		if err := writer.WriteIndustryFrequency(industry, universe.CountFrequencies(industryPicks)); err != nil {
			return err
		}
		allPicks = append(allPicks, industryPicks...)
	}
	if len(allPicks) == 0 {
		return fmt.Errorf("no stored picks under %s, run backtest first", cfg.Dirs.Output)
	}

	return writer.WriteComparison(nil, universe.CountFrequencies(allPicks))
}

// persistRun stores a run's picks and NAV ledger.
func persistRun(ctx context.Context, picksRepo persistence.PicksRepo, navRepo persistence.NAVRepo, res *backtest.Result) error {
	var picks []persistence.PickRecord
	run := persistence.NAVRun{
		RunID:       res.RunID,
		Industry:    res.Industry,
		FinalAssets: res.FinalAssets.StringFixed(2),
	}
	for _, q := range res.Quarters {
		rec := persistence.NAVRecord{
			Quarter:     q.Quarter,
			StartAssets: q.StartAssets.StringFixed(2),
			ReturnPct:   q.ReturnPct,
		}
		if !q.EndAssets.IsZero() {
			rec.EndAssets = q.EndAssets.StringFixed(2)
		}
		run.Records = append(run.Records, rec)

		for i, pk := range q.Picks {
			picks = append(picks, persistence.PickRecord{
				Industry: res.Industry,
				Quarter:  q.Quarter,
				Rank:     i + 1,
				Code:     pk.Security.Code,
				Name:     pk.Security.Name,
				Score:    pk.Score,
			})
		}
	}

	if err := picksRepo.UpsertBatch(ctx, picks); err != nil {
		return fmt.Errorf("store picks for %s: %w", res.Industry, err)
	}
	if err := navRepo.InsertRun(ctx, run); err != nil {
		return fmt.Errorf("store run for %s: %w", res.Industry, err)
	}
	return nil
}

func readPicksJSON(path string) ([]backtest.QuarterRecord, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read picks: %w", err)
	}
	var quarters []backtest.QuarterRecord
	if err := json.Unmarshal(b, &quarters); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return quarters, nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/quantfan/asharescan/internal/config"
)

var (
	configPath string
	industries []string
	topN       int
	outDir     string
	storeDB    bool
)

var rootCmd = &cobra.Command{
	Use:   "asharescan",
	Short: "A-share industry factor scanner",
	Long: `asharescan fetches A-share fundamentals and quotes, builds a rolling
factor model per industry, and backtests a quarterly top-N rotation.`,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch market data from upstream providers",
}

var fetchQuotesCmd = &cobra.Command{
	Use:   "quotes",
	Short: "Fetch daily bars for every industry list at the target dates",
	RunE:  runFetchQuotes,
}

var fetchSectorsCmd = &cobra.Command{
	Use:   "sectors",
	Short: "Fetch board index K-lines for every industry",
	RunE:  runFetchSectors,
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean raw fundamental exports into analysis tables",
	RunE:  runClean,
}

var formatCmd = &cobra.Command{
	Use:   "format",
	Short: "Pivot raw quote dumps into wide price series",
	RunE:  runFormat,
}

var selectCmd = &cobra.Command{
	Use:   "select",
	Short: "Rank one industry at a rebalance date",
	RunE:  runSelect,
}

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run the quarterly rotation backtest and write all reports",
	RunE:  runBacktest,
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Regenerate reports from stored artifacts",
}

var reportFrequencyCmd = &cobra.Command{
	Use:   "frequency",
	Short: "Rebuild the cross-industry pick frequency report",
	RunE:  runReportFrequency,
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Serve health, metrics and pick endpoints",
	RunE:  runMonitor,
}

func init() {
	// Accept snake_case spellings of every flag.
	rootCmd.SetGlobalNormalizationFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/pipeline.yaml", "Path to pipeline configuration")
	rootCmd.PersistentFlags().StringSliceVar(&industries, "industries", nil, "Override the configured industry list")

	fetchCmd.AddCommand(fetchQuotesCmd, fetchSectorsCmd)
	fetchQuotesCmd.Flags().BoolVar(&storeDB, "store", false, "Also store fetched bars in PostgreSQL")

	formatCmd.Flags().BoolVar(&storeDB, "store", false, "Read quotes from PostgreSQL instead of the raw CSV dumps")

	selectCmd.Flags().String("date", "", "Rebalance date, YYYY-MM-DD (default today)")
	selectCmd.Flags().IntVar(&topN, "top-n", 0, "Override the configured pick count")

	backtestCmd.Flags().IntVar(&topN, "top-n", 0, "Override the configured pick count")
	backtestCmd.Flags().StringVar(&outDir, "out", "", "Override the configured output directory")
	backtestCmd.Flags().BoolVar(&storeDB, "store", false, "Also store picks and NAV runs in PostgreSQL")

	reportCmd.AddCommand(reportFrequencyCmd)
	reportFrequencyCmd.Flags().StringVar(&outDir, "out", "", "Override the configured output directory")

	monitorCmd.Flags().String("port", "", "Override the configured monitor port")

	rootCmd.AddCommand(fetchCmd, cleanCmd, formatCmd, selectCmd, backtestCmd, reportCmd, monitorCmd)
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the pipeline config and applies the shared flag
// overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if len(industries) > 0 {
		cfg.Industries = industries
	}
	if topN > 0 {
		cfg.Selection.TopN = topN
	}
	if outDir != "" {
		cfg.Dirs.Output = outDir
	}
	return cfg, nil
}

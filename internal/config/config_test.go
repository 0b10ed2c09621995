package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
dirs:
  output: out
industries: ["银行", "通信设备"]
backtest:
  start_date: "2021-03-31"
  end_date: "2024-12-31"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.8, cfg.Clean.IndicatorDropThreshold)
	assert.Equal(t, 0.5, cfg.Clean.StockDropThreshold)
	assert.Equal(t, 5, cfg.Selection.TopN)
	assert.Equal(t, 0.8, cfg.Selection.MinCumVar)
	assert.Equal(t, 10, cfg.Selection.MaxFactors)
	assert.Equal(t, 1_000_000.0, cfg.Backtest.InitialCapital)
	assert.Equal(t, "8080", cfg.Monitor.Port)
	assert.Equal(t, 3, cfg.Tushare.MaxRetries)
}

func TestLoadRejectsBadThreshold(t *testing.T) {
	path := writeConfig(t, `
clean:
  indicator_drop_threshold: 1.5
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "indicator_drop_threshold")
}

func TestLoadRejectsEmptyBacktestWindow(t *testing.T) {
	path := writeConfig(t, `
backtest:
  start_date: "2024-12-31"
  end_date: "2021-03-31"
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsBadTargetDate(t *testing.T) {
	path := writeConfig(t, `
fetch:
  target_dates: ["2024-13-01"]
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestResolveTokenPrefersEnv(t *testing.T) {
	t.Setenv("TUSHARE_TOKEN", "from-env")
	p := ProviderConfig{Token: "inline", TokenEnv: "TUSHARE_TOKEN"}
	assert.Equal(t, "from-env", p.ResolveToken())

	p.TokenEnv = "UNSET_TOKEN_VAR"
	assert.Equal(t, "inline", p.ResolveToken())
}

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full pipeline configuration loaded from config/pipeline.yaml.
type Config struct {
	Dirs       DirsConfig     `yaml:"dirs"`
	Industries []string       `yaml:"industries"`
	Fetch      FetchConfig    `yaml:"fetch"`
	Clean      CleanConfig    `yaml:"clean"`
	Selection  SelectConfig   `yaml:"selection"`
	Backtest   BacktestConfig `yaml:"backtest"`
	Tushare    ProviderConfig `yaml:"tushare"`
	THS        ProviderConfig `yaml:"ths"`
	Cache      CacheConfig    `yaml:"cache"`
	Postgres   PostgresConfig `yaml:"postgres"`
	Monitor    MonitorConfig  `yaml:"monitor"`
}

type DirsConfig struct {
	StockLists      string `yaml:"stock_lists"`       // per-industry security name lists
	RawFundamental  string `yaml:"raw_fundamental"`   // terminal exports, pre-clean
	Cleaned         string `yaml:"cleaned"`           // post-clean fundamental tables
	RawPrices       string `yaml:"raw_prices"`        // long-form quote dumps
	FormattedPrices string `yaml:"formatted_prices"`  // wide date x stock series
	SectorPrices    string `yaml:"sector_prices"`     // board index K-lines
	Output          string `yaml:"output"`            // reports, charts, workbooks
}

type FetchConfig struct {
	TargetDates []string `yaml:"target_dates"` // quarter-end calendar dates, YYYY-MM-DD
	CalStart    string   `yaml:"cal_start"`    // trade calendar range
	CalEnd      string   `yaml:"cal_end"`
}

type CleanConfig struct {
	IndicatorDropThreshold float64 `yaml:"indicator_drop_threshold"`
	StockDropThreshold     float64 `yaml:"stock_drop_threshold"`
}

type SelectConfig struct {
	TopN       int     `yaml:"top_n"`
	MinCumVar  float64 `yaml:"min_cum_var"`
	MaxFactors int     `yaml:"max_factors"`
}

type BacktestConfig struct {
	StartDate      string  `yaml:"start_date"`
	EndDate        string  `yaml:"end_date"`
	InitialCapital float64 `yaml:"initial_capital"`
}

type ProviderConfig struct {
	BaseURL        string  `yaml:"base_url"`
	Token          string  `yaml:"token"`
	TokenEnv       string  `yaml:"token_env"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	MaxRetries     int     `yaml:"max_retries"`
}

type CacheConfig struct {
	Redis struct {
		Addr              string `yaml:"addr"`
		DB                int    `yaml:"db"`
		DefaultTTLSeconds int    `yaml:"default_ttl_seconds"`
	} `yaml:"redis"`
}

type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type MonitorConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
}

// Load reads and validates a pipeline config file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Clean.IndicatorDropThreshold == 0 {
		c.Clean.IndicatorDropThreshold = 0.8
	}
	if c.Clean.StockDropThreshold == 0 {
		c.Clean.StockDropThreshold = 0.5
	}
	if c.Selection.TopN == 0 {
		c.Selection.TopN = 5
	}
	if c.Selection.MinCumVar == 0 {
		c.Selection.MinCumVar = 0.8
	}
	if c.Selection.MaxFactors == 0 {
		c.Selection.MaxFactors = 10
	}
	if c.Backtest.InitialCapital == 0 {
		c.Backtest.InitialCapital = 1_000_000
	}
	if c.Monitor.Host == "" {
		c.Monitor.Host = "0.0.0.0"
	}
	if c.Monitor.Port == "" {
		c.Monitor.Port = "8080"
	}
	if c.Postgres.TimeoutSeconds == 0 {
		c.Postgres.TimeoutSeconds = 5
	}
	for _, p := range []*ProviderConfig{&c.Tushare, &c.THS} {
		if p.RateLimitRPS == 0 {
			p.RateLimitRPS = 2.0
		}
		if p.TimeoutSeconds == 0 {
			p.TimeoutSeconds = 10
		}
		if p.MaxRetries == 0 {
			p.MaxRetries = 3
		}
	}
}

// Validate checks threshold ranges and date formats.
func (c *Config) Validate() error {
	if t := c.Clean.IndicatorDropThreshold; t <= 0 || t > 1 {
		return fmt.Errorf("clean.indicator_drop_threshold %.2f out of (0,1]", t)
	}
	if t := c.Clean.StockDropThreshold; t <= 0 || t > 1 {
		return fmt.Errorf("clean.stock_drop_threshold %.2f out of (0,1]", t)
	}
	if c.Selection.TopN < 1 {
		return fmt.Errorf("selection.top_n must be >= 1, got %d", c.Selection.TopN)
	}
	if v := c.Selection.MinCumVar; v <= 0 || v > 1 {
		return fmt.Errorf("selection.min_cum_var %.2f out of (0,1]", v)
	}
	if c.Selection.MaxFactors < 1 {
		return fmt.Errorf("selection.max_factors must be >= 1")
	}
	if c.Backtest.StartDate != "" && c.Backtest.EndDate != "" {
		start, err := time.Parse("2006-01-02", c.Backtest.StartDate)
		if err != nil {
			return fmt.Errorf("backtest.start_date: %w", err)
		}
		end, err := time.Parse("2006-01-02", c.Backtest.EndDate)
		if err != nil {
			return fmt.Errorf("backtest.end_date: %w", err)
		}
		if !start.Before(end) {
			return fmt.Errorf("backtest window %s..%s is empty", c.Backtest.StartDate, c.Backtest.EndDate)
		}
	}
	for _, d := range c.Fetch.TargetDates {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return fmt.Errorf("fetch.target_dates entry %q: %w", d, err)
		}
	}
	return nil
}

// ResolveToken returns the provider token, preferring the environment
// variable named by token_env over the inline value.
func (p ProviderConfig) ResolveToken() string {
	if p.TokenEnv != "" {
		if v := os.Getenv(p.TokenEnv); v != "" {
			return v
		}
	}
	return p.Token
}

// Timeout returns the provider request timeout.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// DefaultTTL returns the cache TTL.
func (c CacheConfig) DefaultTTL() time.Duration {
	if c.Redis.DefaultTTLSeconds == 0 {
		return 12 * time.Hour
	}
	return time.Duration(c.Redis.DefaultTTLSeconds) * time.Second
}

// Timeout returns the per-call database timeout.
func (p PostgresConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

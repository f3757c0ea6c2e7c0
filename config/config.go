package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Environment string         `mapstructure:"environment"` // "dev" or "prod"
	Exchange    ExchangeConfig `mapstructure:"exchange"`
	Feed        FeedConfig     `mapstructure:"feed"`
	Charts      ChartsConfig   `mapstructure:"charts"`
	Backtest    BacktestConfig `mapstructure:"backtest"`
	HTTP        HTTPConfig     `mapstructure:"http"`
	Log         LogConfig      `mapstructure:"log"`
	Postgres    PostgresConfig `mapstructure:"postgres"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

type ExchangeConfig struct {
	REST RESTConfig `mapstructure:"rest"`
	WS   WSConfig   `mapstructure:"ws"`

	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	// Parameter Store names read in prod instead of the plain values.
	APIKeyParam    string `mapstructure:"api_key_param"`
	APISecretParam string `mapstructure:"api_secret_param"`
}

type RESTConfig struct {
	PublicURL  string        `mapstructure:"public_url"`
	TradingURL string        `mapstructure:"trading_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RateLimit  float64       `mapstructure:"rate_limit"` // requests per second
}

type WSConfig struct {
	URL string `mapstructure:"url"`
}

type FeedConfig struct {
	TickerInterval  time.Duration `mapstructure:"ticker_interval"`
	TickerMode      string        `mapstructure:"ticker_mode"` // "poll" or "stream"
	BalanceInterval time.Duration `mapstructure:"balance_interval"`
	ChartInterval   time.Duration `mapstructure:"chart_interval"`
}

type ChartsConfig struct {
	Symbols   []string      `mapstructure:"symbols"`
	Frequency time.Duration `mapstructure:"frequency"`
	History   time.Duration `mapstructure:"history"`
	Storage   string        `mapstructure:"storage"` // "csv", "sqlite", "postgres" or "memory"
	Path      string        `mapstructure:"path"`    // csv directory or sqlite file
}

type BacktestConfig struct {
	Strategy     string        `mapstructure:"strategy"`
	FastWindow   int           `mapstructure:"fast_window"`
	SlowWindow   int           `mapstructure:"slow_window"`
	TradePct     float64       `mapstructure:"trade_pct"`
	QuoteBalance float64       `mapstructure:"quote_balance"`
	BaseBalance  float64       `mapstructure:"base_balance"`
	BuyFee       float64       `mapstructure:"buy_fee"`  // percent
	SellFee      float64       `mapstructure:"sell_fee"` // percent
	CandleWidth  time.Duration `mapstructure:"candle_width"`
}

type HTTPConfig struct {
	Addr        string        `mapstructure:"addr"`
	WaitTimeout time.Duration `mapstructure:"wait_timeout"` // max wait for a chart that is still loading
}

// LogConfig defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"

	// rotation of OutputFile
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "dev")

	v.SetDefault("exchange.rest.public_url", "https://poloniex.com/public")
	v.SetDefault("exchange.rest.trading_url", "https://poloniex.com/tradingApi")
	v.SetDefault("exchange.rest.timeout", 10*time.Second)
	v.SetDefault("exchange.rest.rate_limit", 6)
	v.SetDefault("exchange.ws.url", "wss://api2.poloniex.com")
	v.SetDefault("exchange.api_key", "")
	v.SetDefault("exchange.api_secret", "")
	v.SetDefault("exchange.api_key_param", "")
	v.SetDefault("exchange.api_secret_param", "")

	v.SetDefault("feed.ticker_interval", time.Second)
	v.SetDefault("feed.ticker_mode", "poll")
	v.SetDefault("feed.balance_interval", 3*time.Second)
	v.SetDefault("feed.chart_interval", 60*time.Second)

	v.SetDefault("charts.symbols", []string{})
	v.SetDefault("charts.frequency", 5*time.Minute)
	v.SetDefault("charts.history", 90*24*time.Hour)
	v.SetDefault("charts.storage", "csv")
	v.SetDefault("charts.path", "data/charts")

	v.SetDefault("backtest.strategy", "sma_cross")
	v.SetDefault("backtest.fast_window", 10)
	v.SetDefault("backtest.slow_window", 40)
	v.SetDefault("backtest.trade_pct", 10)
	v.SetDefault("backtest.quote_balance", 0.01)
	v.SetDefault("backtest.base_balance", 0)
	v.SetDefault("backtest.buy_fee", 0.25)
	v.SetDefault("backtest.sell_fee", 0.15)
	v.SetDefault("backtest.candle_width", 5*time.Minute)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.wait_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output_file", "")
	v.SetDefault("log.environment", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 7)
	v.SetDefault("log.compress", true)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.dbname", "chartfeed")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.timezone", "UTC")
	v.SetDefault("postgres.host_param", "")
	v.SetDefault("postgres.user_param", "")
	v.SetDefault("postgres.password_param", "")
}

// newViper prepares a viper instance reading path, or config.yaml next to
// the executable when path is empty.
func newViper(path string) *viper.Viper {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config") // config.yaml
		v.SetConfigType("yaml")
		if ex, err := os.Executable(); err == nil && !strings.Contains(ex, "go-build") {
			v.AddConfigPath(filepath.Join(filepath.Dir(ex), "../config"))
		}
		v.AddConfigPath("config")
		v.AddConfigPath(".")
	}

	// Support environment variables with dot notation (e.g., EXCHANGE_API_KEY)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load loads application configuration using Viper.
// It reads a .env file if present, then config.yaml, and overrides both
// with environment variables. A missing config.yaml is only an error when
// path names it explicitly.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	cfg.File = v.ConfigFileUsed()
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Log.Environment == "" {
		cfg.Log.Environment = cfg.Environment
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the feed cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Charts.Frequency <= 0:
		return fmt.Errorf("charts.frequency must be positive")
	case c.Charts.History <= 0:
		return fmt.Errorf("charts.history must be positive")
	case c.Feed.TickerInterval <= 0 || c.Feed.BalanceInterval <= 0 || c.Feed.ChartInterval <= 0:
		return fmt.Errorf("feed intervals must be positive")
	}
	switch c.Feed.TickerMode {
	case "poll", "stream":
	default:
		return fmt.Errorf("feed.ticker_mode must be poll or stream, got %q", c.Feed.TickerMode)
	}
	switch c.Charts.Storage {
	case "csv", "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("unknown charts.storage %q", c.Charts.Storage)
	}
	return nil
}

// Watch reads path and calls onChange with the decoded config every time
// the file changes. Decoding errors are passed to onChange instead.
func Watch(path string, onChange func(*Config, error)) error {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	v.OnConfigChange(func(fsnotify.Event) {
		cfg, err := decode(v)
		if cfg != nil {
			cfg.File = v.ConfigFileUsed()
		}
		onChange(cfg, err)
	})
	v.WatchConfig()
	return nil
}

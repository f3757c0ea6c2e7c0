package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chartfeed/config"
	"chartfeed/internal/backtest"
	"chartfeed/internal/chartcache"
	"chartfeed/internal/feed"
	"chartfeed/internal/market"
	"chartfeed/pkg/poloniex"
	"chartfeed/pkg/storage/csvfile"
	"chartfeed/pkg/storage/memory"
	"chartfeed/pkg/storage/postgres"
	"chartfeed/pkg/storage/sqlite"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// App is the wired data pipeline: exchange client, chart storage, chart
// cache and the live market feed.
type App struct {
	Client *poloniex.RESTClient
	Store  chartcache.Store
	Cache  *chartcache.Cache
	Market *feed.Market

	cfg    *config.Config
	logger *zap.Logger
	closer func() error
}

// Build wires the pipeline from cfg. The active chart set is seeded with
// the configured symbols that the exchange lists.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	params, err := config.Parameters(ctx, cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("failed to init parameter store: %w", err)
	}
	key, secret, err := cfg.Exchange.Credentials(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve api credentials: %w", err)
	}

	// Create REST client
	client := poloniex.NewRESTClient(poloniex.Options{
		PublicURL:  cfg.Exchange.REST.PublicURL,
		TradingURL: cfg.Exchange.REST.TradingURL,
		Timeout:    cfg.Exchange.REST.Timeout,
		RateLimit:  cfg.Exchange.REST.RateLimit,
		APIKey:     key,
		APISecret:  secret,
	})

	store, closer, err := OpenStore(ctx, cfg, params)
	if err != nil {
		return nil, fmt.Errorf("failed to open chart storage: %w", err)
	}

	cache := chartcache.New(client, store, chartcache.Options{
		Freq:    cfg.Charts.Frequency,
		History: cfg.Charts.History,
	}, logger)

	opts := feed.Options{
		TickerInterval:  cfg.Feed.TickerInterval,
		BalanceInterval: cfg.Feed.BalanceInterval,
		ChartInterval:   cfg.Feed.ChartInterval,
	}
	if cfg.Feed.TickerMode == "stream" {
		opts.Stream = poloniex.NewWSClient(cfg.Exchange.WS.URL, logger, poloniex.TickerChannel)
	}
	var balances feed.BalanceSource
	if client.HasCredentials() {
		balances = client
	}

	app := &App{
		Client: client,
		Store:  store,
		Cache:  cache,
		Market: feed.New(client, balances, cache, opts, logger),
		cfg:    cfg,
		logger: logger,
		closer: closer,
	}

	for _, pair := range LoadSymbols(ctx, client, cfg.Charts.Symbols, cfg.Exchange.REST.Timeout, logger) {
		cache.AddSymbol(pair)
	}
	return app, nil
}

// OpenStore opens the chart storage selected by charts.storage. The returned
// function releases it.
func OpenStore(ctx context.Context, cfg *config.Config, params config.ParameterReader) (chartcache.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Charts.Storage {
	case "csv":
		s, err := csvfile.NewStore(cfg.Charts.Path)
		return s, noop, err
	case "sqlite":
		s, err := sqlite.Open(cfg.Charts.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "postgres":
		s, err := postgres.InitializeChartStore(ctx, cfg.Postgres, params, true)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "memory":
		return memory.NewStore(), noop, nil
	}
	return nil, nil, fmt.Errorf("unknown chart storage %q", cfg.Charts.Storage)
}

// Run starts the market feed and blocks until ctx is done.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting market feed",
		zap.Strings("symbols", a.Cache.Symbols()),
		zap.String("ticker_mode", a.cfg.Feed.TickerMode),
	)
	return a.Market.Run(ctx)
}

// Close stops the feed and releases storage.
func (a *App) Close() error {
	a.Market.Stop()
	return a.closer()
}

// Chart loads pair through the cache and catches it up to now. It does not
// add pair to the active set.
func (a *App) Chart(ctx context.Context, pair string, force bool) (market.Series, error) {
	end := time.Now()
	start := end.Add(-a.cfg.Charts.History)
	s, err := a.Cache.Load(ctx, pair, start, end, a.cfg.Charts.Frequency, force)
	if err != nil {
		return s, err
	}
	updated, err := a.Cache.Update(ctx, s)
	if err != nil {
		var fetchErr *chartcache.FetchError
		if errors.As(err, &fetchErr) {
			a.logger.Warn("using stored chart, catch-up failed", zap.String("pair", pair), zap.Error(err))
			return s, nil
		}
		return s, err
	}
	return updated, nil
}

// SyncSymbols makes the active chart set equal to want.
func SyncSymbols(cache *chartcache.Cache, want []string) (added, removed []string) {
	wanted := make(map[string]bool, len(want))
	for _, pair := range want {
		wanted[pair] = true
		if cache.AddSymbol(pair) {
			added = append(added, pair)
		}
	}
	for _, pair := range cache.Symbols() {
		if !wanted[pair] && cache.RemoveSymbol(pair) {
			removed = append(removed, pair)
		}
	}
	return added, removed
}

// BacktestParams converts the configured backtest settings.
func BacktestParams(cfg config.BacktestConfig) backtest.Params {
	return backtest.Params{
		TradePct:     decimal.NewFromFloat(cfg.TradePct),
		QuoteBalance: decimal.NewFromFloat(cfg.QuoteBalance),
		BaseBalance:  decimal.NewFromFloat(cfg.BaseBalance),
		BuyFee:       decimal.NewFromFloat(cfg.BuyFee),
		SellFee:      decimal.NewFromFloat(cfg.SellFee),
		CandleWidth:  cfg.CandleWidth,
	}
}

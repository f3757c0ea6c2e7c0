package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"chartfeed/config"
	"chartfeed/internal/collector"
	httpapi "chartfeed/internal/transport/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the market feed and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// run collector
			app, err := collector.Build(ctx, cfg, log)
			if err != nil {
				log.Error("collector failed", zap.Error(err))
				return err
			}
			defer func() {
				if err := app.Close(); err != nil {
					log.Warn("failed to close chart storage", zap.Error(err))
				}
			}()

			srvCfg := httpapi.Config{
				Addr:   cfg.HTTP.Addr,
				Market: app.Market,
				Charts: app.Cache,
				Backtest: httpapi.BacktestDefaults{
					Strategy: cfg.Backtest.Strategy,
					Fast:     cfg.Backtest.FastWindow,
					Slow:     cfg.Backtest.SlowWindow,
					Params:   collector.BacktestParams(cfg.Backtest),
				},
				WaitTimeout: cfg.HTTP.WaitTimeout,
				Logger:      log,
			}
			if h, ok := app.Store.(interface{ IsHealthy(context.Context) bool }); ok {
				srvCfg.Health = h.IsHealthy
			}
			srv, err := httpapi.NewServer(srvCfg)
			if err != nil {
				return err
			}

			if cfg.File != "" {
				err := config.Watch(cfg.File, func(next *config.Config, err error) {
					if err != nil {
						log.Warn("ignoring invalid config change", zap.Error(err))
						return
					}
					added, removed := collector.SyncSymbols(app.Cache, next.Charts.Symbols)
					log.Info("chart symbols reloaded", zap.Strings("added", added), zap.Strings("removed", removed))
				})
				if err != nil {
					log.Warn("config hot reload disabled", zap.Error(err))
				} else {
					log.Info("watching config", zap.String("file", cfg.File))
				}
			}

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return app.Run(ctx) })
			g.Go(func() error { return srv.Start(ctx) })
			return g.Wait()
		},
	}
}

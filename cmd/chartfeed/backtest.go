package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"chartfeed/internal/backtest"
	"chartfeed/internal/collector"
	"chartfeed/internal/market"
	"chartfeed/internal/strategy"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type runFlags struct {
	pairs    []string
	strategy string
	width    time.Duration
	force    bool
	trades   string
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&f.pairs, "pairs", "p", nil, "pairs to test, e.g. BTC_ETH,BTC_XMR (default: charts.symbols)")
	cmd.Flags().StringVarP(&f.strategy, "strategy", "s", "", fmt.Sprintf("strategy name, one of %v (default: backtest.strategy)", strategy.Names()))
	cmd.Flags().DurationVar(&f.width, "width", 0, "candle width to resample to (default: backtest.candle_width)")
	cmd.Flags().BoolVar(&f.force, "force", false, "refetch the full history instead of reading stored charts")
	cmd.Flags().StringVar(&f.trades, "trades", "", "write the trade log to this CSV file")
}

// loadCharts reads each pair through the chart cache, catching it up first.
func loadCharts(ctx context.Context, app *collector.App, pairs []string, force bool, log *zap.Logger) ([]market.Series, error) {
	out := make([]market.Series, 0, len(pairs))
	for _, pair := range pairs {
		s, err := app.Chart(ctx, pair, force)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", pair, err)
		}
		log.Info("chart loaded", zap.String("pair", pair), zap.Int("candles", s.Len()))
		out = append(out, s)
	}
	return out, nil
}

func backtestCmd() *cobra.Command {
	var (
		flags      runFlags
		fast, slow int
	)
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Backtest one strategy over stored charts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			app, err := collector.Build(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer app.Close()

			name := firstNonEmpty(flags.strategy, cfg.Backtest.Strategy)
			sp := strategy.Params{Fast: cfg.Backtest.FastWindow, Slow: cfg.Backtest.SlowWindow}
			if fast > 0 {
				sp.Fast = fast
			}
			if slow > 0 {
				sp.Slow = slow
			}
			params := collector.BacktestParams(cfg.Backtest)
			if flags.width > 0 {
				params.CandleWidth = flags.width
			}

			pairs := flags.pairs
			if len(pairs) == 0 {
				pairs = cfg.Charts.Symbols
			}
			series, err := loadCharts(ctx, app, pairs, flags.force, log)
			if err != nil {
				return err
			}

			results := make([]backtest.Result, 0, len(series))
			for _, s := range series {
				strat, err := strategy.New(name, sp)
				if err != nil {
					return err
				}
				res, err := backtest.Run(ctx, s, strat, params)
				if err != nil {
					return fmt.Errorf("backtest %s: %w", s.Pair, err)
				}
				if res.Insufficient {
					log.Warn("series shorter than the strategy warm-up, no trades taken", zap.String("pair", s.Pair))
				}
				results = append(results, res)
			}

			backtest.PrintResults(os.Stdout, results...)
			if flags.trades != "" {
				if err := backtest.WriteTradesCSV(flags.trades, results...); err != nil {
					return err
				}
				log.Info("trade log written", zap.String("path", flags.trades))
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&fast, "fast", 0, "fast window (default: backtest.fast_window)")
	cmd.Flags().IntVar(&slow, "slow", 0, "slow window (default: backtest.slow_window)")
	return cmd
}

func sweepCmd() *cobra.Command {
	var (
		flags                  runFlags
		from, to, step, factor int
		top                    int
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Backtest a grid of fast/slow windows and rank the results",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			app, err := collector.Build(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer app.Close()

			name := firstNonEmpty(flags.strategy, cfg.Backtest.Strategy)
			params := collector.BacktestParams(cfg.Backtest)
			if flags.width > 0 {
				params.CandleWidth = flags.width
			}
			pairs := flags.pairs
			if len(pairs) == 0 {
				pairs = cfg.Charts.Symbols
			}
			series, err := loadCharts(ctx, app, pairs, flags.force, log)
			if err != nil {
				return err
			}

			grid := backtest.WindowGrid(from, to, step, factor)
			results, err := backtest.Sweep(ctx, series, grid, strategy.Factory(name), params, os.Stderr)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stderr)

			if flags.trades != "" {
				if err := backtest.WriteTradesCSV(flags.trades, results...); err != nil {
					return err
				}
			}
			if top > 0 && len(results) > top {
				results = results[:top]
			}
			backtest.PrintResults(os.Stdout, results...)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&from, "from", 5, "first fast window")
	cmd.Flags().IntVar(&to, "to", 45, "last fast window")
	cmd.Flags().IntVar(&step, "step", 5, "fast window step")
	cmd.Flags().IntVar(&factor, "factor", 4, "slow window as a multiple of the fast one")
	cmd.Flags().IntVar(&top, "top", 10, "print only the best N results, 0 for all")
	return cmd
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

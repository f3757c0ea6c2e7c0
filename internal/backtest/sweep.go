package backtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"chartfeed/internal/market"

	"github.com/schollz/progressbar/v3"
)

// Window is one fast/slow parameter pair of a sweep.
type Window struct {
	Fast int
	Slow int
}

// WindowGrid returns fast windows from..to by step, each with slow = fast*slowFactor.
func WindowGrid(from, to, step, slowFactor int) []Window {
	if step <= 0 {
		return nil
	}
	var out []Window
	for f := from; f <= to; f += step {
		out = append(out, Window{Fast: f, Slow: f * slowFactor})
	}
	return out
}

// Factory builds the strategy for one window.
type Factory func(w Window) (Strategy, error)

// Sweep backtests every series against every window and returns the results
// ordered by profit, best first. Series too short or empty are skipped.
func Sweep(ctx context.Context, series []market.Series, grid []Window, factory Factory, p Params, progress io.Writer) ([]Result, error) {
	if progress == nil {
		progress = io.Discard
	}
	bar := initProgressBar(len(series)*len(grid), progress)
	defer bar.Finish()

	results := make([]Result, 0, len(series)*len(grid))
	for _, s := range series {
		for _, w := range grid {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			strat, err := factory(w)
			if err != nil {
				return nil, fmt.Errorf("strategy for %d/%d: %w", w.Fast, w.Slow, err)
			}
			res, err := Run(ctx, s, strat, p)
			_ = bar.Add(1)
			if errors.Is(err, ErrEmptySeries) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("%s %d/%d: %w", s.Pair, w.Fast, w.Slow, err)
			}
			if res.Insufficient {
				continue
			}
			results = append(results, res)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].ProfitPct.GreaterThan(results[j].ProfitPct)
	})
	return results, nil
}

func initProgressBar(max int, w io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetDescription("Sweeping parameters..."),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}

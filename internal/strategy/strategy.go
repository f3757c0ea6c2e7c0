package strategy

import (
	"fmt"
	"sort"

	"chartfeed/internal/backtest"
)

const (
	SMACross     = "sma_cross"
	EMACross     = "ema_cross"
	PriceCrossMA = "price_cross_ma"
)

// Params configure a strategy. PriceCrossMA only uses Slow, the window of
// the average the close price is compared against.
type Params struct {
	Fast int
	Slow int
}

// NewSMACross crosses a fast and a slow simple moving average.
func NewSMACross(fast, slow int) (backtest.Strategy, error) {
	if err := checkWindows(fast, slow); err != nil {
		return nil, err
	}
	return &crossStrategy{
		name:   SMACross,
		warmup: slow,
		lines: func(closes []float64) ([]float64, []float64) {
			return SMA(closes, fast), SMA(closes, slow)
		},
	}, nil
}

// NewEMACross crosses a fast and a slow exponential moving average.
func NewEMACross(fast, slow int) (backtest.Strategy, error) {
	if err := checkWindows(fast, slow); err != nil {
		return nil, err
	}
	return &crossStrategy{
		name:   EMACross,
		warmup: slow,
		lines: func(closes []float64) ([]float64, []float64) {
			return EMA(closes, fast), EMA(closes, slow)
		},
	}, nil
}

// NewPriceCrossMA crosses the close price and its simple moving average.
func NewPriceCrossMA(window int) (backtest.Strategy, error) {
	if window < 2 {
		return nil, fmt.Errorf("%w: moving average window %d < 2", backtest.ErrInvalidParams, window)
	}
	return &crossStrategy{
		name:   PriceCrossMA,
		warmup: window,
		lines: func(closes []float64) ([]float64, []float64) {
			return append([]float64(nil), closes...), SMA(closes, window)
		},
	}, nil
}

func checkWindows(fast, slow int) error {
	if fast < 1 || slow <= fast {
		return fmt.Errorf("%w: need 1 <= fast < slow, got %d/%d", backtest.ErrInvalidParams, fast, slow)
	}
	return nil
}

var registry = map[string]func(Params) (backtest.Strategy, error){
	SMACross:     func(p Params) (backtest.Strategy, error) { return NewSMACross(p.Fast, p.Slow) },
	EMACross:     func(p Params) (backtest.Strategy, error) { return NewEMACross(p.Fast, p.Slow) },
	PriceCrossMA: func(p Params) (backtest.Strategy, error) { return NewPriceCrossMA(p.Slow) },
}

// New builds the strategy registered under name.
func New(name string, p Params) (backtest.Strategy, error) {
	build, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown strategy %q", backtest.ErrInvalidParams, name)
	}
	return build(p)
}

// Names lists the registered strategies.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Factory adapts New to a parameter sweep.
func Factory(name string) backtest.Factory {
	return func(w backtest.Window) (backtest.Strategy, error) {
		return New(name, Params{Fast: w.Fast, Slow: w.Slow})
	}
}

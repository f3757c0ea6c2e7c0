package backtest

import "chartfeed/internal/market"

// AnnotatedSeries is a series plus the indicator columns a strategy derived
// from it. Every column has one value per candle.
type AnnotatedSeries struct {
	market.Series
	Indicators map[string][]float64
}

// Indicator returns column name, or nil when absent.
func (a AnnotatedSeries) Indicator(name string) []float64 {
	return a.Indicators[name]
}

// Trader is the view of a running engine handed to a strategy at each step.
type Trader interface {
	// Data is the annotated series being replayed.
	Data() AnnotatedSeries
	// Buy spends the current trade size at price. It reports whether it filled.
	Buy(price float64) bool
	// Sell liquidates the whole base balance at price. It reports whether it filled.
	Sell(price float64) bool
}

// Strategy decides, step by step, when to buy and sell.
type Strategy interface {
	Name() string
	// Warmup is the number of candles needed before the strategy can act.
	Warmup() int
	Prepare(s market.Series) (AnnotatedSeries, error)
	Step(t Trader, i int)
}

package strategy

import (
	"chartfeed/internal/backtest"
	"chartfeed/internal/market"
)

const (
	ColumnFast = "fast"
	ColumnSlow = "slow"
)

type crossing int

const (
	noCross crossing = iota
	crossUp
	crossDown
)

// cross compares the previous and current fast/slow pairs.
func cross(prevFast, prevSlow, fast, slow float64) crossing {
	switch {
	case prevFast <= prevSlow && fast > slow:
		return crossUp
	case prevFast >= prevSlow && fast < slow:
		return crossDown
	}
	return noCross
}

// crossStrategy buys when the fast line crosses above the slow line and
// sells on the opposite crossing.
type crossStrategy struct {
	name   string
	warmup int
	lines  func(closes []float64) (fast, slow []float64)
}

func (s *crossStrategy) Name() string { return s.name }

func (s *crossStrategy) Warmup() int { return s.warmup }

func (s *crossStrategy) Prepare(series market.Series) (backtest.AnnotatedSeries, error) {
	fast, slow := s.lines(series.Closes())
	return backtest.AnnotatedSeries{
		Series: series,
		Indicators: map[string][]float64{
			ColumnFast: fast,
			ColumnSlow: slow,
		},
	}, nil
}

func (s *crossStrategy) Step(t backtest.Trader, i int) {
	// act only once the slowest window is full and a previous step exists
	if i < 1 || i < s.warmup-1 {
		return
	}
	d := t.Data()
	fast, slow := d.Indicator(ColumnFast), d.Indicator(ColumnSlow)
	if i >= len(fast) || i >= len(slow) {
		return
	}

	price := d.Candles[i].Close
	switch cross(fast[i-1], slow[i-1], fast[i], slow[i]) {
	case crossUp:
		t.Buy(price)
	case crossDown:
		t.Sell(price)
	}
}

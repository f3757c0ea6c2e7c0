package backtest

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"chartfeed/internal/market"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scripted buys and sells at fixed steps.
type scripted struct {
	buys, sells map[int]bool
	warmup      int
	seen        []int
	onStep      func(i int)
}

func (s *scripted) Name() string { return "scripted" }
func (s *scripted) Warmup() int  { return s.warmup }
func (s *scripted) Prepare(series market.Series) (AnnotatedSeries, error) {
	return AnnotatedSeries{Series: series}, nil
}
func (s *scripted) Step(t Trader, i int) {
	s.seen = append(s.seen, i)
	if s.onStep != nil {
		s.onStep(i)
	}
	price := t.Data().Candles[i].Close
	if s.buys[i] {
		t.Buy(price)
	}
	if s.sells[i] {
		t.Sell(price)
	}
}

func series(closes ...float64) market.Series {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := market.Series{Pair: "BTC_ETH", Freq: 5 * time.Minute}
	for i, c := range closes {
		s.Candles = append(s.Candles, market.Candle{Time: t0.Add(time.Duration(i) * 5 * time.Minute), Close: c})
	}
	return s
}

func params(quote, pct, buyFee, sellFee string) Params {
	return Params{
		TradePct:     decimal.RequireFromString(pct),
		QuoteBalance: decimal.RequireFromString(quote),
		BaseBalance:  decimal.Zero,
		BuyFee:       decimal.RequireFromString(buyFee),
		SellFee:      decimal.RequireFromString(sellFee),
	}
}

// go test -v --run TestFeeCorrectness
func TestFeeCorrectness(t *testing.T) {
	strat := &scripted{buys: map[int]bool{0: true}, sells: map[int]bool{1: true}}
	e, err := New(series(50, 80), strat, params("2", "50", "0.25", "0.15"))
	require.NoError(t, err)
	assert.Equal(t, Initialized, e.State())

	res, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Finished, e.State())
	require.Len(t, res.Trades, 2)

	q := decimal.NewFromInt(1) // 50% of 2
	wantBase := q.Div(decimal.NewFromInt(50)).Mul(decimal.RequireFromString("0.9975"))
	assert.True(t, res.Trades[0].Base.Equal(wantBase), "base credit %s, want %s", res.Trades[0].Base, wantBase)

	wantQuote := wantBase.Mul(decimal.NewFromInt(80)).Mul(decimal.RequireFromString("0.9985"))
	assert.True(t, res.Trades[1].Quote.Equal(wantQuote), "quote credit %s, want %s", res.Trades[1].Quote, wantQuote)
	assert.True(t, e.BaseBalance().IsZero())
	assert.True(t, e.QuoteBalance().Equal(decimal.NewFromInt(1).Add(wantQuote)))

	assert.True(t, res.FinalValue.Equal(e.QuoteBalance()))
	wantProfit := res.FinalValue.Sub(decimal.NewFromInt(2)).Div(decimal.NewFromInt(2)).Mul(decimal.NewFromInt(100))
	assert.True(t, res.ProfitPct.Equal(wantProfit))
}

func TestTradeSizeFollowsQuoteBalance(t *testing.T) {
	var sizes []decimal.Decimal
	strat := &scripted{buys: map[int]bool{0: true, 1: true}}
	e, err := New(series(1, 1, 1), strat, params("1", "50", "0", "0"))
	require.NoError(t, err)
	strat.onStep = func(int) { sizes = append(sizes, e.TradeSize()) }

	res, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Buys)
	require.Len(t, sizes, 3)
	assert.True(t, sizes[0].Equal(decimal.RequireFromString("0.5")))
	assert.True(t, sizes[1].Equal(decimal.RequireFromString("0.25")))
	assert.True(t, sizes[2].Equal(decimal.RequireFromString("0.125")))
}

func TestBuyNeedsQuoteAndSellNeedsBase(t *testing.T) {
	strat := &scripted{sells: map[int]bool{0: true}, buys: map[int]bool{1: true}}
	res, err := Run(context.Background(), series(1, 1), strat, params("1", "0", "0", "0"))
	require.NoError(t, err)
	assert.Empty(t, res.Trades, "zero trade size and zero base never fill")
}

// go test -v --run TestDeterminism
func TestDeterminism(t *testing.T) {
	run := func() Result {
		strat := &scripted{buys: map[int]bool{1: true, 4: true}, sells: map[int]bool{3: true}}
		res, err := Run(context.Background(), series(10, 11, 9, 14, 12, 13), strat, DefaultParams())
		require.NoError(t, err)
		return res
	}
	a, b := run(), run()
	assert.True(t, a.InitialValue.Equal(b.InitialValue))
	assert.True(t, a.FinalValue.Equal(b.FinalValue))
	assert.True(t, a.ProfitPct.Equal(b.ProfitPct))
	assert.Equal(t, a.Stats, b.Stats)
	assert.NotEqual(t, a.RunID, b.RunID)
}

func TestResamplesToCandleWidth(t *testing.T) {
	strat := &scripted{}
	p := params("1", "10", "0", "0")
	p.CandleWidth = 10 * time.Minute

	res, err := Run(context.Background(), series(1, 2, 3, 4, 5), strat, p)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Steps)
	assert.Equal(t, 10*time.Minute, res.Freq)
	assert.Equal(t, []int{0, 1, 2}, strat.seen)
}

func TestCancelDiscardsPartialRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	strat := &scripted{buys: map[int]bool{0: true}}
	strat.onStep = func(i int) {
		if i == 1 {
			cancel()
		}
	}
	e, err := New(series(1, 2, 3, 4), strat, params("1", "10", "0", "0"))
	require.NoError(t, err)

	res, err := e.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Trades)
	assert.Equal(t, []int{0, 1}, strat.seen)

	_, err = e.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRun)
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New(market.Series{Pair: "BTC_ETH"}, &scripted{}, DefaultParams())
	assert.ErrorIs(t, err, ErrEmptySeries)

	_, err = New(series(1), &scripted{}, params("1", "150", "0", "0"))
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = New(series(1), &scripted{}, params("0", "10", "0", "0"))
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = New(series(1), nil, DefaultParams())
	assert.ErrorIs(t, err, ErrInvalidParams)
}

// go test -v --run TestNewRejectsUnpricedCloses
func TestNewRejectsUnpricedCloses(t *testing.T) {
	p := params("0", "50", "0", "0")
	p.BaseBalance = decimal.NewFromInt(1)

	for name, s := range map[string]market.Series{
		"zero first close": series(0, 1, 2, 3, 4, 5),
		"nan":              series(1, 2, math.NaN(), 3, 4, 5),
		"inf":              series(1, 2, 3, math.Inf(1), 4, 5),
		"negative":         series(1, -2, 3),
	} {
		t.Run(name, func(t *testing.T) {
			require.NotPanics(t, func() {
				_, err := Run(context.Background(), s, &scripted{warmup: 4}, p)
				assert.ErrorIs(t, err, ErrInvalidSeries)
			})
		})
	}
}

func TestProfitPctOnZeroInitialValue(t *testing.T) {
	assert.True(t, profitPct(decimal.Zero, decimal.NewFromInt(3)).IsZero())
	assert.True(t, profitPct(decimal.NewFromInt(2), decimal.NewFromInt(3)).Equal(decimal.NewFromInt(50)))
}

func TestShortSeriesSkipsSteps(t *testing.T) {
	strat := &scripted{warmup: 5, buys: map[int]bool{0: true}}
	res, err := Run(context.Background(), series(1, 2), strat, params("1", "100", "0", "0"))
	require.NoError(t, err)
	assert.True(t, res.Insufficient)
	assert.Empty(t, strat.seen)
	assert.True(t, res.ProfitPct.IsZero())
}

// go test -v --run TestComputeStats
func TestComputeStats(t *testing.T) {
	s := computeStats([]float64{100, 110, 88, 99})
	assert.InDelta(t, 20.0, s.MaxDrawdownPct, 1e-9)
	assert.InDelta(t, (10.0-20.0+12.5)/3, s.MeanReturnPct, 1e-9)
	assert.Greater(t, s.StdDevReturnPct, 0.0)

	assert.Equal(t, Stats{}, computeStats([]float64{1}))
}

func TestPrintAndExport(t *testing.T) {
	strat := &scripted{buys: map[int]bool{0: true}, sells: map[int]bool{2: true}}
	res, err := Run(context.Background(), series(10, 11, 12), strat, params("1", "100", "0", "0"))
	require.NoError(t, err)

	var buf bytes.Buffer
	PrintResults(&buf, res)
	out := buf.String()
	assert.Contains(t, out, "BTC_ETH")
	assert.Contains(t, strings.ToUpper(out), "PROFIT %")

	path := filepath.Join(t.TempDir(), "trades.csv")
	require.NoError(t, WriteTradesCSV(path, res))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var rows []*TradeRow
	require.NoError(t, gocsv.UnmarshalFile(f, &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "buy", rows[0].Side)
	assert.Equal(t, "sell", rows[1].Side)
	assert.Equal(t, res.RunID, rows[1].RunID)
	assert.Equal(t, "12", rows[1].Price)
}

// go test -v --run TestSweep
func TestSweep(t *testing.T) {
	grid := WindowGrid(5, 45, 5, 4)
	require.Len(t, grid, 9)
	assert.Equal(t, Window{Fast: 5, Slow: 20}, grid[0])
	assert.Equal(t, Window{Fast: 45, Slow: 180}, grid[8])

	// buys at the first step only when the window is small
	factory := func(w Window) (Strategy, error) {
		return &scripted{warmup: 2, buys: map[int]bool{0: w.Fast == 1}}, nil
	}
	up := series(1, 2, 4)
	var progress bytes.Buffer
	results, err := Sweep(context.Background(), []market.Series{up, {Pair: "EMPTY"}},
		[]Window{{Fast: 2, Slow: 8}, {Fast: 1, Slow: 4}}, factory, params("1", "100", "0", "0"), &progress)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].ProfitPct.GreaterThan(results[1].ProfitPct))
	assert.Equal(t, 1, results[0].Buys)
}

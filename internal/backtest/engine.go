package backtest

import (
	"context"
	"fmt"
	"math"
	"time"

	"chartfeed/internal/market"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type State int

const (
	Initialized State = iota
	Stepping
	Finished
)

func (s State) String() string {
	switch s {
	case Initialized:
		return "initialized"
	case Stepping:
		return "stepping"
	case Finished:
		return "finished"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type Params struct {
	TradePct     decimal.Decimal // share of the quote balance spent per buy, in percent
	QuoteBalance decimal.Decimal
	BaseBalance  decimal.Decimal
	BuyFee       decimal.Decimal // percent
	SellFee      decimal.Decimal // percent
	CandleWidth  time.Duration   // zero keeps the series frequency
}

// DefaultParams are the settings used when none are configured.
func DefaultParams() Params {
	return Params{
		TradePct:     decimal.NewFromInt(10),
		QuoteBalance: decimal.RequireFromString("0.01"),
		BaseBalance:  decimal.Zero,
		BuyFee:       decimal.RequireFromString("0.25"),
		SellFee:      decimal.RequireFromString("0.15"),
		CandleWidth:  5 * time.Minute,
	}
}

func (p Params) Validate() error {
	switch {
	case p.TradePct.IsNegative() || p.TradePct.GreaterThan(hundred):
		return fmt.Errorf("%w: trade pct %s outside [0,100]", ErrInvalidParams, p.TradePct)
	case p.QuoteBalance.IsNegative() || p.BaseBalance.IsNegative():
		return fmt.Errorf("%w: negative starting balance", ErrInvalidParams)
	case p.BuyFee.IsNegative() || p.BuyFee.GreaterThanOrEqual(hundred):
		return fmt.Errorf("%w: buy fee %s outside [0,100)", ErrInvalidParams, p.BuyFee)
	case p.SellFee.IsNegative() || p.SellFee.GreaterThanOrEqual(hundred):
		return fmt.Errorf("%w: sell fee %s outside [0,100)", ErrInvalidParams, p.SellFee)
	case p.CandleWidth < 0:
		return fmt.Errorf("%w: negative candle width", ErrInvalidParams)
	}
	return nil
}

// Trade is one filled simulated order.
type Trade struct {
	Step       int
	Time       time.Time
	Side       market.Side
	Price      float64
	Quote      decimal.Decimal // quote spent on a buy, received on a sell
	Base       decimal.Decimal // base received on a buy, sold on a sell
	QuoteAfter decimal.Decimal
	BaseAfter  decimal.Decimal
}

// Engine replays one series through one strategy. It is not safe for
// concurrent use and runs once.
type Engine struct {
	params   Params
	strategy Strategy
	data     AnnotatedSeries

	state     State
	step      int
	quote     decimal.Decimal
	base      decimal.Decimal
	tradeSize decimal.Decimal
	buyMult   decimal.Decimal
	sellMult  decimal.Decimal

	trades []Trade
	equity []float64
}

// New resamples series to the candle width, fixes balances and fee
// multipliers, and lets the strategy annotate the data.
func New(series market.Series, strat Strategy, p Params) (*Engine, error) {
	if series.Empty() {
		return nil, ErrEmptySeries
	}
	if strat == nil {
		return nil, fmt.Errorf("%w: no strategy", ErrInvalidParams)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.QuoteBalance.IsZero() && p.BaseBalance.IsZero() {
		return nil, fmt.Errorf("%w: both starting balances are zero", ErrInvalidParams)
	}

	resampled := market.Resample(series, p.CandleWidth)
	if err := checkCloses(resampled); err != nil {
		return nil, err
	}
	data, err := strat.Prepare(resampled)
	if err != nil {
		return nil, fmt.Errorf("prepare %s: %w", strat.Name(), err)
	}

	one := decimal.NewFromInt(1)
	return &Engine{
		params:   p,
		strategy: strat,
		data:     data,
		state:    Initialized,
		quote:    p.QuoteBalance,
		base:     p.BaseBalance,
		buyMult:  one.Sub(p.BuyFee.Div(hundred)),
		sellMult: one.Sub(p.SellFee.Div(hundred)),
	}, nil
}

// Run steps through every candle and values the final portfolio. A
// cancelled context stops it between steps and the partial run is discarded.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	if e.state != Initialized {
		return Result{}, ErrAlreadyRun
	}
	started := time.Now()
	e.state = Stepping

	n := e.data.Len()
	insufficient := n < e.strategy.Warmup()
	if !insufficient {
		pct := e.params.TradePct.Div(hundred)
		e.equity = make([]float64, 0, n)
		for e.step = 0; e.step < n; e.step++ {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			e.tradeSize = e.quote.Mul(pct)
			e.strategy.Step(e, e.step)
			e.equity = append(e.equity, e.value(e.data.Candles[e.step].Close).InexactFloat64())
		}
	}
	e.state = Finished

	first := decimal.NewFromFloat(e.data.First().Close)
	initial := e.params.QuoteBalance.Add(e.params.BaseBalance.Mul(first))
	final := e.value(e.data.Last().Close)

	res := Result{
		RunID:        uuid.NewString(),
		Pair:         e.data.Pair,
		Strategy:     e.strategy.Name(),
		Freq:         e.data.Freq,
		Steps:        n,
		Trades:       e.trades,
		InitialValue: initial,
		FinalValue:   final,
		ProfitPct:    profitPct(initial, final),
		Insufficient: insufficient,
		StartedAt:    started,
		FinishedAt:   time.Now(),
	}
	for _, t := range e.trades {
		if t.Side == market.Buy {
			res.Buys++
		} else {
			res.Sells++
		}
	}
	res.Stats = computeStats(e.equity)
	return res, nil
}

// Buy spends the current trade size at price, crediting base net of the buy fee.
func (e *Engine) Buy(price float64) bool {
	if price <= 0 || !e.tradeSize.IsPositive() || e.quote.LessThan(e.tradeSize) {
		return false
	}
	p := decimal.NewFromFloat(price)
	spent := e.tradeSize
	got := spent.Div(p).Mul(e.buyMult)

	e.quote = e.quote.Sub(spent)
	e.base = e.base.Add(got)
	e.record(market.Buy, price, spent, got)
	return true
}

// Sell liquidates the whole base balance at price, net of the sell fee.
func (e *Engine) Sell(price float64) bool {
	if price <= 0 || !e.base.IsPositive() {
		return false
	}
	sold := e.base
	got := sold.Mul(decimal.NewFromFloat(price)).Mul(e.sellMult)

	e.quote = e.quote.Add(got)
	e.base = decimal.Zero
	e.record(market.Sell, price, got, sold)
	return true
}

func (e *Engine) record(side market.Side, price float64, quote, base decimal.Decimal) {
	e.trades = append(e.trades, Trade{
		Step:       e.step,
		Time:       e.data.Candles[e.step].Time,
		Side:       side,
		Price:      price,
		Quote:      quote,
		Base:       base,
		QuoteAfter: e.quote,
		BaseAfter:  e.base,
	})
}

// checkCloses rejects closes the engine cannot price trades or value the
// portfolio with.
func checkCloses(s market.Series) error {
	for i, c := range s.Candles {
		if math.IsNaN(c.Close) || math.IsInf(c.Close, 0) || c.Close <= 0 {
			return fmt.Errorf("%w: close %v at %s (candle %d)", ErrInvalidSeries, c.Close, c.Time.UTC().Format(time.RFC3339), i)
		}
	}
	return nil
}

func profitPct(initial, final decimal.Decimal) decimal.Decimal {
	if initial.IsZero() {
		return decimal.Zero
	}
	return final.Sub(initial).Div(initial).Mul(hundred)
}

func (e *Engine) value(close float64) decimal.Decimal {
	return e.quote.Add(e.base.Mul(decimal.NewFromFloat(close)))
}

func (e *Engine) Data() AnnotatedSeries { return e.data }

func (e *Engine) State() State { return e.state }

func (e *Engine) Step() int { return e.step }

func (e *Engine) QuoteBalance() decimal.Decimal { return e.quote }

func (e *Engine) BaseBalance() decimal.Decimal { return e.base }

func (e *Engine) TradeSize() decimal.Decimal { return e.tradeSize }

// Run is New followed by Engine.Run.
func Run(ctx context.Context, series market.Series, strat Strategy, p Params) (Result, error) {
	e, err := New(series, strat, p)
	if err != nil {
		return Result{}, err
	}
	return e.Run(ctx)
}

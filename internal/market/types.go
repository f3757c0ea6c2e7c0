package market

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrSeriesNotFound is returned by chart stores that hold nothing for a pair.
var ErrSeriesNotFound = errors.New("series not found")

// Candle is one OHLCV row of a chart series.
type Candle struct {
	Time            time.Time `json:"time"`
	Open            float64   `json:"open"`
	High            float64   `json:"high"`
	Low             float64   `json:"low"`
	Close           float64   `json:"close"`
	Volume          float64   `json:"volume"`
	WeightedAverage float64   `json:"weightedAverage"`
}

// Series is the chart of one pair at a fixed frequency, ascending by time.
type Series struct {
	Pair    string        `json:"pair"`
	Freq    time.Duration `json:"freq"`
	Candles []Candle      `json:"candles"`
}

// Len returns the number of candles.
func (s Series) Len() int { return len(s.Candles) }

// Empty reports whether the series holds no candles.
func (s Series) Empty() bool { return len(s.Candles) == 0 }

// First returns the oldest candle. The series must not be empty.
func (s Series) First() Candle { return s.Candles[0] }

// Last returns the newest candle. The series must not be empty.
func (s Series) Last() Candle { return s.Candles[len(s.Candles)-1] }

// Closes returns the close prices in series order.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Close
	}
	return out
}

// Clone returns a copy that shares no memory with s.
func (s Series) Clone() Series {
	cp := make([]Candle, len(s.Candles))
	copy(cp, s.Candles)
	return Series{Pair: s.Pair, Freq: s.Freq, Candles: cp}
}

// Ticker is the 24h ticker line of one pair.
type Ticker struct {
	ID            int     `json:"id"`
	Last          float64 `json:"last"`
	LowestAsk     float64 `json:"lowestAsk"`
	HighestBid    float64 `json:"highestBid"`
	PercentChange float64 `json:"percentChange"`
	BaseVolume    float64 `json:"baseVolume"`
	QuoteVolume   float64 `json:"quoteVolume"`
	High24h       float64 `json:"high24hr"`
	Low24h        float64 `json:"low24hr"`
	IsFrozen      bool    `json:"isFrozen"`
}

// TickerSnapshot is an immutable view of the whole ticker.
type TickerSnapshot struct {
	Pairs     map[string]Ticker `json:"pairs"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// Markets groups the snapshot's pairs by primary currency.
func (t *TickerSnapshot) Markets() map[string][]string {
	if t == nil {
		return map[string][]string{}
	}
	pairs := make([]string, 0, len(t.Pairs))
	for p := range t.Pairs {
		pairs = append(pairs, p)
	}
	return GroupMarkets(pairs)
}

// Balance is the holding of one currency.
type Balance struct {
	Available decimal.Decimal `json:"available"`
	OnOrders  decimal.Decimal `json:"onOrders"`
	BTCValue  decimal.Decimal `json:"btcValue"`
}

// BalanceSnapshot is an immutable view of all account balances.
type BalanceSnapshot struct {
	Currencies map[string]Balance `json:"currencies"`
	UpdatedAt  time.Time          `json:"updatedAt"`
}

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// ParseSide accepts "buy" or "sell".
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case Buy, Sell:
		return Side(s), nil
	}
	return "", errors.New("side must be buy or sell")
}

// Fill is one trade produced by an order.
type Fill struct {
	TradeID string          `json:"tradeID"`
	Rate    decimal.Decimal `json:"rate"`
	Amount  decimal.Decimal `json:"amount"`
	Total   decimal.Decimal `json:"total"`
	Date    time.Time       `json:"date"`
}

// OrderResult is what the exchange reports for a placed order.
type OrderResult struct {
	OrderNumber string `json:"orderNumber"`
	Pair        string `json:"pair"`
	Side        Side   `json:"side"`
	Fills       []Fill `json:"fills"`
}

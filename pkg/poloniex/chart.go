package poloniex

import (
	"fmt"
	"strconv"
	"time"

	"chartfeed/internal/market"

	"github.com/shopspring/decimal"
)

// ParseChartRows converts returnChartData rows into candles.
// The exchange answers an empty range with a single all-zero row, which is dropped.
func ParseChartRows(rows []ChartRow) []market.Candle {
	out := make([]market.Candle, 0, len(rows))
	for _, r := range rows {
		if r.Date == 0 {
			continue
		}
		out = append(out, market.Candle{
			Time:            time.Unix(r.Date, 0).UTC(),
			Open:            r.Open,
			High:            r.High,
			Low:             r.Low,
			Close:           r.Close,
			Volume:          r.Volume,
			WeightedAverage: r.WeightedAverage,
		})
	}
	return out
}

// ParseTickerRows converts the string-typed ticker map. Rows that fail to
// parse are skipped.
func ParseTickerRows(raw map[string]TickerRow) map[string]market.Ticker {
	out := make(map[string]market.Ticker, len(raw))
	for pair, r := range raw {
		t, err := r.toTicker()
		if err != nil {
			continue
		}
		out[pair] = t
	}
	return out
}

func (r TickerRow) toTicker() (market.Ticker, error) {
	fields := []string{r.Last, r.LowestAsk, r.HighestBid, r.PercentChange, r.BaseVolume, r.QuoteVolume, r.High24h, r.Low24h}
	vals := make([]float64, len(fields))
	for i, f := range fields {
		if f == "" {
			continue
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return market.Ticker{}, fmt.Errorf("ticker field %q: %w", f, err)
		}
		vals[i] = v
	}
	return market.Ticker{
		ID:            r.ID,
		Last:          vals[0],
		LowestAsk:     vals[1],
		HighestBid:    vals[2],
		PercentChange: vals[3],
		BaseVolume:    vals[4],
		QuoteVolume:   vals[5],
		High24h:       vals[6],
		Low24h:        vals[7],
		IsFrozen:      r.IsFrozen == "1",
	}, nil
}

// ParseBalanceRows converts the balance map into decimals.
func ParseBalanceRows(raw map[string]BalanceRow) (map[string]market.Balance, error) {
	out := make(map[string]market.Balance, len(raw))
	for cur, r := range raw {
		available, err := decimalOrZero(r.Available)
		if err != nil {
			return nil, fmt.Errorf("%s available: %w", cur, err)
		}
		onOrders, err := decimalOrZero(r.OnOrders)
		if err != nil {
			return nil, fmt.Errorf("%s onOrders: %w", cur, err)
		}
		btcValue, err := decimalOrZero(r.BTCValue)
		if err != nil {
			return nil, fmt.Errorf("%s btcValue: %w", cur, err)
		}
		out[cur] = market.Balance{Available: available, OnOrders: onOrders, BTCValue: btcValue}
	}
	return out, nil
}

func decimalOrZero(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

const tradeDateLayout = "2006-01-02 15:04:05"

func (o OrderResponse) toResult(pair string, side market.Side) (market.OrderResult, error) {
	res := market.OrderResult{OrderNumber: string(o.OrderNumber), Pair: pair, Side: side}
	for _, t := range o.ResultingTrades {
		rate, err := decimalOrZero(t.Rate)
		if err != nil {
			return res, fmt.Errorf("trade rate: %w", err)
		}
		amount, err := decimalOrZero(t.Amount)
		if err != nil {
			return res, fmt.Errorf("trade amount: %w", err)
		}
		total, err := decimalOrZero(t.Total)
		if err != nil {
			return res, fmt.Errorf("trade total: %w", err)
		}
		var date time.Time
		if t.Date != "" {
			if date, err = time.ParseInLocation(tradeDateLayout, t.Date, time.UTC); err != nil {
				return res, fmt.Errorf("trade date: %w", err)
			}
		}
		res.Fills = append(res.Fills, market.Fill{
			TradeID: string(t.TradeID),
			Rate:    rate,
			Amount:  amount,
			Total:   total,
			Date:    date,
		})
	}
	return res, nil
}

package poloniex

import (
	"fmt"
	"time"
)

const (
	DefaultPublicURL  = "https://poloniex.com/public"
	DefaultTradingURL = "https://poloniex.com/tradingApi"
	DefaultWSURL      = "wss://api2.poloniex.com"

	// TickerChannel is the push channel carrying ticker updates.
	TickerChannel = 1002
	// HeartbeatChannel frames carry no data.
	HeartbeatChannel = 1010
)

// Period is a candle width accepted by returnChartData, in seconds.
type Period int64

// PeriodMeta holds the API value and a short label for a Period.
type PeriodMeta struct {
	APIValue int64
	Label    string
	Duration time.Duration
}

const (
	Period5Min  Period = 300
	Period15Min Period = 900
	Period30Min Period = 1800
	Period2H    Period = 7200
	Period4H    Period = 14400
	PeriodDaily Period = 86400
)

var validPeriods = map[Period]PeriodMeta{
	Period5Min:  {APIValue: 300, Label: "5m", Duration: 5 * time.Minute},
	Period15Min: {APIValue: 900, Label: "15m", Duration: 15 * time.Minute},
	Period30Min: {APIValue: 1800, Label: "30m", Duration: 30 * time.Minute},
	Period2H:    {APIValue: 7200, Label: "2h", Duration: 2 * time.Hour},
	Period4H:    {APIValue: 14400, Label: "4h", Duration: 4 * time.Hour},
	PeriodDaily: {APIValue: 86400, Label: "1d", Duration: 24 * time.Hour},
}

// IsValid checks if the Period is accepted by the exchange.
func (p Period) IsValid() bool {
	_, ok := validPeriods[p]
	return ok
}

// ParsePeriod maps a candle width onto a valid Period.
func ParsePeriod(d time.Duration) (PeriodMeta, error) {
	meta, ok := validPeriods[Period(d/time.Second)]
	if !ok || d%time.Second != 0 {
		return PeriodMeta{}, fmt.Errorf("invalid chart period: %s", d)
	}
	return meta, nil
}

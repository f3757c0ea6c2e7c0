package backtest

import "errors"

var (
	ErrEmptySeries   = errors.New("backtest: series has no candles")
	ErrInvalidParams = errors.New("backtest: invalid parameters")
	ErrAlreadyRun    = errors.New("backtest: engine already ran")
	ErrInvalidSeries = errors.New("backtest: series has unusable prices")
)

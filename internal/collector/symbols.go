package collector

import (
	"context"
	"time"

	"chartfeed/internal/feed"

	"go.uber.org/zap"
)

// LoadSymbols returns the pairs of want that the exchange currently lists.
// If the ticker cannot be fetched within timeout, want is returned as is and
// unknown pairs surface later as chart refresh failures.
func LoadSymbols(ctx context.Context, src feed.TickerSource, want []string, timeout time.Duration, logger *zap.Logger) []string {
	if len(want) == 0 {
		return nil
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	listed, err := src.Ticker(ctx)
	if err != nil {
		logger.Warn("failed to check symbols against the ticker", zap.Error(err))
		return append([]string(nil), want...)
	}

	out := make([]string, 0, len(want))
	for _, pair := range want {
		if _, ok := listed[pair]; !ok {
			logger.Warn("symbol not listed on the exchange, skipped", zap.String("pair", pair))
			continue
		}
		out = append(out, pair)
	}
	logger.Info("loaded symbols", zap.Int("count", len(out)))
	return out
}

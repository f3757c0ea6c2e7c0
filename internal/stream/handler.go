package stream

import (
	"time"

	"chartfeed/internal/market"
	"chartfeed/internal/memorystore"
	"chartfeed/pkg/poloniex"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// MakeTickerHandler returns a function that handles push API frames by
// applying ticker updates to store. Pair ids are resolved against the
// snapshot already in store, so it must be seeded from the REST ticker.
func MakeTickerHandler(logger *zap.Logger, store *memorystore.TickerStore, now func() time.Time) func(msg []byte) {
	return func(msg []byte) {
		if !gjson.ValidBytes(msg) {
			logger.Warn("invalid push frame", zap.ByteString("frame", msg))
			return
		}
		frame := gjson.ParseBytes(msg)

		// Step 1: early filtering on the channel id
		channel := frame.Get("0").Int()
		if channel != poloniex.TickerChannel {
			return // heartbeats and subscription acks
		}

		// Step 2: pick the update payload
		data := frame.Get("2")
		if !data.IsArray() {
			return
		}
		fields := data.Array()
		if len(fields) < tickerFieldCount {
			logger.Warn("short ticker frame", zap.Int("fields", len(fields)))
			return
		}

		id := int(fields[fieldPairID].Int())
		pair, ok := store.PairByID(id)
		if !ok {
			logger.Debug("ticker update for unknown pair id", zap.Int("id", id))
			return
		}

		// Step 3: publish a new snapshot with the updated pair
		store.Apply(pair, market.Ticker{
			ID:            id,
			Last:          fields[fieldLast].Float(),
			LowestAsk:     fields[fieldLowestAsk].Float(),
			HighestBid:    fields[fieldHighestBid].Float(),
			PercentChange: fields[fieldPercentChange].Float(),
			BaseVolume:    fields[fieldBaseVolume].Float(),
			QuoteVolume:   fields[fieldQuoteVolume].Float(),
			IsFrozen:      fields[fieldIsFrozen].Int() == 1,
			High24h:       fields[fieldHigh24h].Float(),
			Low24h:        fields[fieldLow24h].Float(),
		}, now())
	}
}

package stream

import (
	"testing"
	"time"

	"chartfeed/internal/market"
	"chartfeed/internal/memorystore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// go test -v --run TestTickerHandler
func TestTickerHandler(t *testing.T) {
	store := memorystore.NewTickerStore()
	t0 := time.Unix(1000, 0)
	store.Replace(map[string]market.Ticker{
		"BTC_ETH": {ID: 148, Last: 0.04},
		"BTC_XMR": {ID: 114, Last: 0.01},
	}, t0)

	at := t0.Add(time.Second)
	handle := MakeTickerHandler(zap.NewNop(), store, func() time.Time { return at })

	handle([]byte(`[1002,null,[148,"0.05","0.051","0.049","0.02","100","2000",0,"0.06","0.04"]]`))

	snap := store.Snapshot()
	require.NotNil(t, snap)
	eth := snap.Pairs["BTC_ETH"]
	assert.Equal(t, 0.05, eth.Last)
	assert.Equal(t, 0.051, eth.LowestAsk)
	assert.Equal(t, 2000.0, eth.QuoteVolume)
	assert.False(t, eth.IsFrozen)
	assert.Equal(t, at, snap.UpdatedAt)
	assert.Equal(t, 0.01, snap.Pairs["BTC_XMR"].Last)
}

func TestTickerHandlerIgnoresOtherFrames(t *testing.T) {
	store := memorystore.NewTickerStore()
	store.Replace(map[string]market.Ticker{"BTC_ETH": {ID: 148, Last: 0.04}}, time.Unix(1, 0))
	before := store.Snapshot()
	handle := MakeTickerHandler(zap.NewNop(), store, time.Now)

	for _, frame := range []string{
		`[1010]`,
		`[1002,1]`,
		`[1002,null,[148,"0.05"]]`,
		`[1002,null,[999,"0.05","0.051","0.049","0.02","100","2000",0,"0.06","0.04"]]`,
		`not json`,
	} {
		handle([]byte(frame))
	}
	assert.Same(t, before, store.Snapshot())
}

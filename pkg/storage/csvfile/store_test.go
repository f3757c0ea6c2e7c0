package csvfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"chartfeed/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSeries() market.Series {
	t0 := time.Unix(1700000100, 0).UTC()
	return market.Series{
		Pair: "BTC_ETH",
		Freq: 5 * time.Minute,
		Candles: []market.Candle{
			{Time: t0, Open: 0.051, High: 0.0523, Low: 0.05, Close: 0.0519, Volume: 12.5, WeightedAverage: 0.05111},
			{Time: t0.Add(5 * time.Minute), Open: 0.0519, High: 0.053, Low: 0.0515, Close: 0.1 + 0.2, Volume: 0, WeightedAverage: 0.0519},
		},
	}
}

// go test -v --run TestRoundTrip
func TestRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	in := sampleSeries()
	require.NoError(t, store.Save(ctx, in))

	out, err := store.Load(ctx, in.Pair, in.Freq)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestSaveReplacesFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	in := sampleSeries()
	require.NoError(t, store.Save(ctx, in))
	in.Candles = in.Candles[:1]
	require.NoError(t, store.Save(ctx, in))

	out, err := store.Load(ctx, in.Pair, in.Freq)
	require.NoError(t, err)
	assert.Len(t, out.Candles, 1)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
	assert.Equal(t, "BTC_ETH_300.csv", entries[0].Name())
}

func TestLoadMissing(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "nested"))
	require.NoError(t, err)

	_, err = store.Load(context.Background(), "BTC_ETH", 5*time.Minute)
	assert.ErrorIs(t, err, market.ErrSeriesNotFound)
}

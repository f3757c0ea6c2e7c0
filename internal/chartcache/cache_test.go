package chartcache

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"chartfeed/internal/market"
	"chartfeed/pkg/storage/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

const freq = 5 * time.Minute

func at(slot int, close float64) market.Candle {
	return market.Candle{
		Time:  base.Add(time.Duration(slot) * freq),
		Open:  close,
		High:  close + 1,
		Low:   close - 1,
		Close: close,
	}
}

type fakeSource struct {
	mu    sync.Mutex
	rows  map[string][]market.Candle
	errs  map[string]error
	calls int
}

func newFakeSource() *fakeSource {
	return &fakeSource{rows: map[string][]market.Candle{}, errs: map[string]error{}}
}

func (f *fakeSource) set(pair string, rows ...market.Candle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[pair] = rows
}

func (f *fakeSource) ChartData(_ context.Context, pair string, _ time.Duration, start, end time.Time) ([]market.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.errs[pair]; err != nil {
		return nil, err
	}
	var out []market.Candle
	for _, r := range f.rows[pair] {
		if !r.Time.Before(start) && !r.Time.After(end) {
			out = append(out, r)
		}
	}
	return out, nil
}

type failingStore struct{ err error }

func (f failingStore) Load(context.Context, string, time.Duration) (market.Series, error) {
	return market.Series{}, f.err
}
func (f failingStore) Save(context.Context, market.Series) error { return f.err }

func newCache(src Source, store Store, now time.Time) *Cache {
	return New(src, store, Options{
		Freq:    freq,
		History: 24 * time.Hour,
		Now:     func() time.Time { return now },
	}, zap.NewNop())
}

// go test -v --run TestNormalize
func TestNormalize(t *testing.T) {
	in := []market.Candle{at(4, 40), at(0, 1), at(1, 10), at(0, 2), at(1, 11)}

	out, err := Normalize("BTC_ETH", in, freq)
	require.NoError(t, err)
	require.Len(t, out, 5)

	for i, c := range out {
		assert.Equal(t, base.Add(time.Duration(i)*freq), c.Time, "slot %d", i)
	}
	// duplicates keep the later row
	assert.Equal(t, 2.0, out[0].Close)
	assert.Equal(t, 11.0, out[1].Close)
	// gaps carry the preceding row forward, every field included
	assert.Equal(t, at(1, 11).High, out[2].High)
	assert.Equal(t, 11.0, out[3].Close)
	assert.Equal(t, 40.0, out[4].Close)

	assert.Equal(t, base.Add(4*freq), in[0].Time, "input must not be reordered")
}

func TestNormalizeRejectsOffGridRows(t *testing.T) {
	off := at(1, 1)
	off.Time = off.Time.Add(time.Minute)

	_, err := Normalize("BTC_ETH", []market.Candle{at(0, 1), off}, freq)
	var integrity *DataIntegrityError
	require.ErrorAs(t, err, &integrity)
	assert.Equal(t, "BTC_ETH", integrity.Pair)
}

func TestNormalizeEmpty(t *testing.T) {
	out, err := Normalize("BTC_ETH", nil, freq)
	assert.NoError(t, err)
	assert.Empty(t, out)
}

// go test -v --run TestLoadBootstrapsThenReadsStore
func TestLoadBootstrapsThenReadsStore(t *testing.T) {
	src := newFakeSource()
	src.set("BTC_ETH", at(0, 1), at(2, 3))
	store := memory.NewStore()
	c := newCache(src, store, base.Add(time.Hour))
	ctx := context.Background()

	s, err := c.Load(ctx, "BTC_ETH", base, base.Add(time.Hour), freq, false)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 3}, s.Closes())
	assert.Equal(t, 1, src.calls)
	assert.Equal(t, 1, store.Saves())

	again, err := c.Load(ctx, "BTC_ETH", base, base.Add(time.Hour), freq, false)
	require.NoError(t, err)
	assert.Equal(t, s, again)
	assert.Equal(t, 1, src.calls, "stored series must be used")

	src.set("BTC_ETH", at(0, 5), at(1, 6))
	forced, err := c.Load(ctx, "BTC_ETH", base, base.Add(time.Hour), freq, true)
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 6}, forced.Closes())
	assert.Equal(t, 2, src.calls)
}

// go test -v --run TestLoadRefetchesCorruptStoredSeries
func TestLoadRefetchesCorruptStoredSeries(t *testing.T) {
	ctx := context.Background()
	off := at(1, 2)
	off.Time = base.Add(time.Minute)
	nan := at(2, math.NaN())

	for name, stored := range map[string][]market.Candle{
		"off grid":  {at(0, 1), off, at(2, 3)},
		"nan close": {at(0, 1), at(1, 2), nan},
	} {
		t.Run(name, func(t *testing.T) {
			src := newFakeSource()
			src.set("BTC_ETH", at(0, 5), at(1, 6), at(2, 7))
			store := memory.NewStore()
			require.NoError(t, store.Save(ctx, market.Series{Pair: "BTC_ETH", Freq: freq, Candles: stored}))
			c := newCache(src, store, base.Add(time.Hour))

			s, err := c.Load(ctx, "BTC_ETH", base, base.Add(time.Hour), freq, false)
			require.NoError(t, err)
			assert.Equal(t, []float64{5, 6, 7}, s.Closes())
			assert.Equal(t, 1, src.calls)

			persisted, err := store.Load(ctx, "BTC_ETH", freq)
			require.NoError(t, err)
			assert.Equal(t, s, persisted, "the refetched series replaces the corrupt one")
		})
	}
}

func TestLoadNormalizesStoredSeries(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.Save(ctx, market.Series{Pair: "BTC_ETH", Freq: freq, Candles: []market.Candle{at(2, 3), at(0, 1)}}))
	src := newFakeSource()
	c := newCache(src, store, base.Add(time.Hour))

	s, err := c.Load(ctx, "BTC_ETH", base, base.Add(time.Hour), freq, false)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 3}, s.Closes())
	assert.Equal(t, 0, src.calls)
}

func TestLoadErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	src := newFakeSource()
	src.errs["BTC_ETH"] = boom
	c := newCache(src, memory.NewStore(), base)
	_, err := c.Load(ctx, "BTC_ETH", base, base.Add(time.Hour), freq, false)
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.ErrorIs(t, err, boom)

	src = newFakeSource()
	src.set("BTC_ETH", at(0, 1))
	c = newCache(src, failingStore{err: boom}, base)
	_, err = c.Load(ctx, "BTC_ETH", base, base.Add(time.Hour), freq, false)
	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "load", storageErr.Op)

	c = newCache(src, failingStore{err: market.ErrSeriesNotFound}, base)
	_, err = c.Load(ctx, "BTC_ETH", base, base.Add(time.Hour), freq, false)
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "save", storageErr.Op)

	c = newCache(newFakeSource(), memory.NewStore(), base)
	_, err = c.Load(ctx, "BTC_ETH", base, base.Add(time.Hour), freq, false)
	var integrity *DataIntegrityError
	assert.ErrorAs(t, err, &integrity)
}

// go test -v --run TestUpdateMergesAndPads
func TestUpdateMergesAndPads(t *testing.T) {
	src := newFakeSource()
	src.set("BTC_ETH", at(0, 1), at(1, 2), at(2, 3), at(3, 4), at(5, 6), at(6, 7))
	store := memory.NewStore()
	c := newCache(src, store, base.Add(6*freq))

	s := market.Series{Pair: "BTC_ETH", Freq: freq, Candles: []market.Candle{at(0, 1), at(1, 2), at(2, 3)}}
	out, err := c.Update(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4, 4, 6, 7}, out.Closes())
	assert.Equal(t, 1, store.Saves())

	persisted, err := store.Load(context.Background(), "BTC_ETH", freq)
	require.NoError(t, err)
	assert.Equal(t, out, persisted)
	assert.Len(t, s.Candles, 3, "input series must not grow")
}

// go test -v --run TestUpdateIsIdempotentWithoutNewCandles
func TestUpdateIsIdempotentWithoutNewCandles(t *testing.T) {
	src := newFakeSource()
	// only the still-open candle is newer than the series
	src.set("BTC_ETH", at(0, 1), at(1, 2), at(2, 3))
	store := memory.NewStore()
	c := newCache(src, store, base.Add(2*freq))

	s := market.Series{Pair: "BTC_ETH", Freq: freq, Candles: []market.Candle{at(0, 1), at(1, 2)}}
	first, err := c.Update(context.Background(), s)
	require.NoError(t, err)
	second, err := c.Update(context.Background(), first)
	require.NoError(t, err)

	assert.Equal(t, s, first)
	assert.Equal(t, s, second)
	assert.Equal(t, 0, store.Saves())
}

func TestUpdateFetchError(t *testing.T) {
	src := newFakeSource()
	src.errs["BTC_ETH"] = errors.New("rate limited")
	c := newCache(src, memory.NewStore(), base.Add(time.Hour))

	s := market.Series{Pair: "BTC_ETH", Freq: freq, Candles: []market.Candle{at(0, 1)}}
	out, err := c.Update(context.Background(), s)
	var fetchErr *FetchError
	assert.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, s, out)
}

// go test -v --run TestRefreshLifecycle
func TestRefreshLifecycle(t *testing.T) {
	src := newFakeSource()
	src.set("BTC_ETH", at(0, 1), at(1, 2))
	src.set("BTC_XMR", at(0, 9))
	src.errs["BTC_BAD"] = errors.New("unknown pair")
	c := newCache(src, memory.NewStore(), base.Add(freq))
	ctx := context.Background()

	assert.True(t, c.AddSymbol("BTC_ETH"))
	assert.False(t, c.AddSymbol("BTC_ETH"))
	c.AddSymbol("BTC_BAD")
	c.AddSymbol("BTC_XMR")

	select {
	case <-c.Wake():
	default:
		t.Fatal("AddSymbol must wake the refresh loop")
	}

	require.NoError(t, c.Refresh(ctx))

	eth, ok := c.Series("BTC_ETH")
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2}, eth.Closes())
	_, ok = c.Series("BTC_XMR")
	assert.True(t, ok, "a failing pair must not block the others")
	_, ok = c.Series("BTC_BAD")
	assert.False(t, ok)

	c.RemoveSymbol("BTC_XMR")
	require.NoError(t, c.Refresh(ctx))
	_, ok = c.Series("BTC_XMR")
	assert.False(t, ok)
	assert.Len(t, c.All(), 1)
	assert.Equal(t, []string{"BTC_ETH", "BTC_BAD"}, c.Symbols())
}

// go test -v --run TestWaitReady
func TestWaitReady(t *testing.T) {
	src := newFakeSource()
	src.set("BTC_ETH", at(0, 1))
	c := newCache(src, memory.NewStore(), base)
	c.AddSymbol("BTC_ETH")

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.WaitReady(short, "BTC_ETH")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	done := make(chan market.Series, 1)
	go func() {
		s, err := c.WaitReady(context.Background(), "BTC_ETH")
		if err == nil {
			done <- s
		}
	}()

	require.NoError(t, c.Refresh(context.Background()))
	select {
	case s := <-done:
		assert.Equal(t, "BTC_ETH", s.Pair)
	case <-time.After(time.Second):
		t.Fatal("WaitReady did not return after refresh")
	}
}

func TestWaitReadyReleasedOnRemove(t *testing.T) {
	src := newFakeSource()
	src.errs["BTC_ETH"] = errors.New("unavailable")
	c := newCache(src, memory.NewStore(), base)
	c.AddSymbol("BTC_ETH")
	require.NoError(t, c.Refresh(context.Background()))

	ch := c.readyChan("BTC_ETH")
	errc := make(chan error, 1)
	go func() {
		_, err := c.WaitReady(context.Background(), "BTC_ETH")
		errc <- err
	}()

	c.RemoveSymbol("BTC_ETH")
	require.NoError(t, c.Refresh(context.Background()))
	select {
	case <-ch:
	default:
		t.Fatal("ready channel of a removed pair must be closed")
	}

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrNotActive)
	case <-time.After(time.Second):
		t.Fatal("waiter on a removed pair was not released")
	}

	// re-adding starts a fresh wait
	c.AddSymbol("BTC_ETH")
	delete(src.errs, "BTC_ETH")
	src.set("BTC_ETH", at(0, 1))
	require.NoError(t, c.Refresh(context.Background()))
	s, err := c.WaitReady(context.Background(), "BTC_ETH")
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, s.Closes())
}

func TestRefreshStopsOnCancelledContext(t *testing.T) {
	c := newCache(newFakeSource(), memory.NewStore(), base)
	c.AddSymbol("BTC_ETH")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Refresh(ctx), context.Canceled)
}

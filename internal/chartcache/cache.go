package chartcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"chartfeed/internal/market"
	"chartfeed/internal/memorystore"

	"go.uber.org/zap"
)

// Source fetches raw candles for a pair over [start, end].
type Source interface {
	ChartData(ctx context.Context, pair string, freq time.Duration, start, end time.Time) ([]market.Candle, error)
}

// Store persists whole series. Load returns market.ErrSeriesNotFound when
// nothing has been saved for the pair.
type Store interface {
	Load(ctx context.Context, pair string, freq time.Duration) (market.Series, error)
	Save(ctx context.Context, s market.Series) error
}

type Options struct {
	Freq    time.Duration // candle width of every cached series
	History time.Duration // bootstrap window for a pair with no stored data
	Now     func() time.Time
}

// Cache owns one normalized series per active pair. The pair->series map is
// published copy-on-write by Refresh, which is its only writer.
type Cache struct {
	source  Source
	store   Store
	logger  *zap.Logger
	opts    Options
	symbols *memorystore.SymbolStore

	series atomic.Pointer[map[string]market.Series]

	readyMu sync.Mutex
	ready   map[string]chan struct{}

	wake chan struct{}
}

func New(source Source, store Store, opts Options, logger *zap.Logger) *Cache {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Cache{
		source:  source,
		store:   store,
		logger:  logger,
		opts:    opts,
		symbols: memorystore.NewSymbolStore(),
		ready:   make(map[string]chan struct{}),
		wake:    make(chan struct{}, 1),
	}
	empty := map[string]market.Series{}
	c.series.Store(&empty)
	return c
}

// Freq is the candle width of the cached series.
func (c *Cache) Freq() time.Duration { return c.opts.Freq }

// Load returns the stored series for pair, or bootstraps it from the remote
// source over [start, end] when nothing usable is stored or force is set.
func (c *Cache) Load(ctx context.Context, pair string, start, end time.Time, freq time.Duration, force bool) (market.Series, error) {
	if !force {
		s, err := c.store.Load(ctx, pair, freq)
		switch {
		case err == nil && !s.Empty():
			candles, err := Normalize(pair, s.Candles, freq)
			if err == nil {
				return market.Series{Pair: pair, Freq: freq, Candles: candles}, nil
			}
			c.logger.Warn("stored chart is corrupt, refetching", zap.String("pair", pair), zap.Error(err))
		case err != nil && !errors.Is(err, market.ErrSeriesNotFound):
			return market.Series{}, &StorageError{Pair: pair, Op: "load", Err: err}
		}
	}

	rows, err := c.source.ChartData(ctx, pair, freq, start, end)
	if err != nil {
		return market.Series{}, &FetchError{Pair: pair, Err: err}
	}
	candles, err := Normalize(pair, rows, freq)
	if err != nil {
		return market.Series{}, err
	}
	if len(candles) == 0 {
		return market.Series{}, &DataIntegrityError{Pair: pair, Reason: "no candles in bootstrap window"}
	}

	s := market.Series{Pair: pair, Freq: freq, Candles: candles}
	if err := c.store.Save(ctx, s); err != nil {
		return market.Series{}, &StorageError{Pair: pair, Op: "save", Err: err}
	}
	c.logger.Info("chart bootstrapped",
		zap.String("pair", pair),
		zap.Int("candles", len(candles)),
		zap.Time("from", s.First().Time),
		zap.Time("to", s.Last().Time),
	)
	return s, nil
}

// Update fetches candles newer than the last one in s and merges them.
// A fetch that yields fewer than two rows carries no closed candle and
// leaves s untouched.
func (c *Cache) Update(ctx context.Context, s market.Series) (market.Series, error) {
	if s.Empty() {
		return s, &DataIntegrityError{Pair: s.Pair, Reason: "cannot update an empty series"}
	}
	next := s.Last().Time.Add(s.Freq)
	now := c.opts.Now()
	if next.After(now) {
		return s, nil
	}

	rows, err := c.source.ChartData(ctx, s.Pair, s.Freq, next, now)
	if err != nil {
		return s, &FetchError{Pair: s.Pair, Err: err}
	}
	if len(rows) <= 1 {
		return s, nil
	}

	merged := make([]market.Candle, 0, len(s.Candles)+len(rows))
	merged = append(merged, s.Candles...)
	merged = append(merged, rows...)
	candles, err := Normalize(s.Pair, merged, s.Freq)
	if err != nil {
		return s, err
	}

	out := market.Series{Pair: s.Pair, Freq: s.Freq, Candles: candles}
	if err := c.store.Save(ctx, out); err != nil {
		return s, &StorageError{Pair: s.Pair, Op: "save", Err: err}
	}
	c.logger.Debug("chart updated",
		zap.String("pair", s.Pair),
		zap.Int("added", len(candles)-len(s.Candles)),
	)
	return out, nil
}

// AddSymbol registers pair for background refresh and wakes the refresh loop.
func (c *Cache) AddSymbol(pair string) bool {
	if !c.symbols.Add(pair) {
		return false
	}
	select {
	case c.wake <- struct{}{}:
	default:
	}
	return true
}

// RemoveSymbol unregisters pair. Its series is evicted by the next Refresh.
func (c *Cache) RemoveSymbol(pair string) bool {
	return c.symbols.Remove(pair)
}

// Symbols lists the active pairs.
func (c *Cache) Symbols() []string {
	return c.symbols.GetAll()
}

// Wake fires after AddSymbol so a waiting refresh loop can run early.
func (c *Cache) Wake() <-chan struct{} {
	return c.wake
}

// Series returns the published series for pair.
func (c *Cache) Series(pair string) (market.Series, bool) {
	s, ok := (*c.series.Load())[pair]
	return s, ok
}

// All returns the published pair->series map. It must not be modified.
func (c *Cache) All() map[string]market.Series {
	return *c.series.Load()
}

// WaitReady blocks until pair has been loaded at least once or ctx is done.
// It returns ErrNotActive for a pair that is not registered or is removed
// while waiting.
func (c *Cache) WaitReady(ctx context.Context, pair string) (market.Series, error) {
	c.readyMu.Lock()
	if !c.symbols.Has(pair) {
		c.readyMu.Unlock()
		return market.Series{}, ErrNotActive
	}
	ch := c.readyChanLocked(pair)
	c.readyMu.Unlock()

	select {
	case <-ch:
		if s, ok := c.Series(pair); ok {
			return s, nil
		}
		return market.Series{}, ErrNotActive
	case <-ctx.Done():
		return market.Series{}, ctx.Err()
	}
}

// Refresh runs one pass over the active pairs: removed pairs are evicted,
// new pairs are loaded and caught up, known pairs are updated. A failure on
// one pair is logged and leaves its previous series in place.
func (c *Cache) Refresh(ctx context.Context) error {
	active := c.symbols.GetAll()
	current := *c.series.Load()

	keep := make(map[string]market.Series, len(active))
	for _, pair := range active {
		if s, ok := current[pair]; ok {
			keep[pair] = s
		}
	}
	if len(keep) != len(current) {
		for pair := range current {
			if _, ok := keep[pair]; !ok {
				c.logger.Info("chart evicted", zap.String("pair", pair))
			}
		}
		c.series.Store(&keep)
	}
	c.releaseReady()

	for _, pair := range active {
		if err := ctx.Err(); err != nil {
			return err
		}
		prev, known := keep[pair]

		var (
			s   market.Series
			err error
		)
		if known {
			s, err = c.Update(ctx, prev)
		} else {
			s, err = c.bootstrap(ctx, pair)
		}
		if err != nil {
			c.logger.Warn("chart refresh failed", zap.String("pair", pair), zap.Error(err))
			continue
		}
		if !c.symbols.Has(pair) {
			continue
		}

		next := make(map[string]market.Series, len(keep)+1)
		for k, v := range keep {
			next[k] = v
		}
		next[pair] = s
		c.series.Store(&next)
		keep = next

		if !known {
			c.markReady(pair)
		}
	}
	return nil
}

func (c *Cache) bootstrap(ctx context.Context, pair string) (market.Series, error) {
	end := c.opts.Now()
	start := end.Add(-c.opts.History)
	s, err := c.Load(ctx, pair, start, end, c.opts.Freq, false)
	if err != nil {
		return s, err
	}
	updated, err := c.Update(ctx, s)
	if err != nil {
		c.logger.Warn("catch-up after load failed", zap.String("pair", pair), zap.Error(err))
		return s, nil
	}
	return updated, nil
}

func (c *Cache) readyChan(pair string) chan struct{} {
	c.readyMu.Lock()
	defer c.readyMu.Unlock()
	return c.readyChanLocked(pair)
}

func (c *Cache) readyChanLocked(pair string) chan struct{} {
	ch, ok := c.ready[pair]
	if !ok {
		ch = make(chan struct{})
		c.ready[pair] = ch
	}
	return ch
}

func (c *Cache) markReady(pair string) {
	c.readyMu.Lock()
	defer c.readyMu.Unlock()
	ch := c.readyChanLocked(pair)
	select {
	case <-ch:
	default:
		close(ch)
	}
}

// releaseReady drops the ready channels of pairs no longer active. Pending
// channels are closed first so their waiters see ErrNotActive.
func (c *Cache) releaseReady() {
	c.readyMu.Lock()
	defer c.readyMu.Unlock()
	for pair, ch := range c.ready {
		if c.symbols.Has(pair) {
			continue
		}
		select {
		case <-ch:
		default:
			close(ch)
		}
		delete(c.ready, pair)
	}
}

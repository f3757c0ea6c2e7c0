package feed

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"chartfeed/internal/chartcache"
	"chartfeed/internal/market"
	"chartfeed/internal/memorystore"
	"chartfeed/internal/stream"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type TickerSource interface {
	Ticker(ctx context.Context) (map[string]market.Ticker, error)
}

type BalanceSource interface {
	Balances(ctx context.Context) (map[string]market.Balance, error)
}

// Stream is a push connection delivering raw ticker frames.
type Stream interface {
	SetMessageHandler(h func([]byte))
	Connect(ctx context.Context) error
	Listen(ctx context.Context) error
}

type Options struct {
	TickerInterval  time.Duration
	BalanceInterval time.Duration
	ChartInterval   time.Duration
	// Stream replaces ticker polling when set. The ticker source still
	// seeds the snapshot so push updates can be matched to pairs.
	Stream Stream
	Now    func() time.Time
}

// Market owns the live ticker and balance snapshots and the chart cache,
// and keeps them fresh from background loops started by Run.
type Market struct {
	tickerSrc  TickerSource
	balanceSrc BalanceSource
	cache      *chartcache.Cache
	opts       Options
	logger     *zap.Logger

	tickers  *memorystore.TickerStore
	balances atomic.Pointer[market.BalanceSnapshot]

	stopped  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New builds a Market. A nil balances source disables the balance loop.
func New(tickers TickerSource, balances BalanceSource, cache *chartcache.Cache, opts Options, logger *zap.Logger) *Market {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TickerInterval <= 0 {
		opts.TickerInterval = time.Second
	}
	if opts.BalanceInterval <= 0 {
		opts.BalanceInterval = 3 * time.Second
	}
	if opts.ChartInterval <= 0 {
		opts.ChartInterval = time.Minute
	}
	return &Market{
		tickerSrc:  tickers,
		balanceSrc: balances,
		cache:      cache,
		opts:       opts,
		logger:     logger,
		tickers:    memorystore.NewTickerStore(),
		stopCh:     make(chan struct{}),
	}
}

// Ticker returns the latest ticker snapshot, nil before the first fetch.
func (m *Market) Ticker() *market.TickerSnapshot {
	return m.tickers.Snapshot()
}

// Balances returns the latest balance snapshot, nil before the first fetch.
func (m *Market) Balances() *market.BalanceSnapshot {
	return m.balances.Load()
}

// Markets groups the current ticker pairs by primary currency.
func (m *Market) Markets() map[string][]string {
	return m.tickers.Snapshot().Markets()
}

func (m *Market) Cache() *chartcache.Cache {
	return m.cache
}

// BalancesEnabled reports whether the balance loop runs.
func (m *Market) BalancesEnabled() bool {
	return m.balanceSrc != nil
}

// Run starts the ticker, balance and chart loops and blocks until ctx is
// done or Stop is called.
func (m *Market) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if m.opts.Stream != nil {
		g.Go(func() error { return m.streamTicker(ctx) })
	} else {
		g.Go(func() error {
			return m.loop(ctx, "ticker", m.opts.TickerInterval, nil, m.refreshTicker)
		})
	}

	if m.balanceSrc != nil {
		g.Go(func() error {
			return m.loop(ctx, "balances", m.opts.BalanceInterval, nil, m.refreshBalances)
		})
	} else {
		m.logger.Info("no api credentials, balance feed disabled")
	}

	if m.cache != nil {
		g.Go(func() error {
			return m.loop(ctx, "charts", m.opts.ChartInterval, m.cache.Wake(), m.cache.Refresh)
		})
	}

	return g.Wait()
}

// Stop asks every loop to exit. Fetches already in flight complete first.
func (m *Market) Stop() {
	m.stopOnce.Do(func() {
		m.stopped.Store(true)
		close(m.stopCh)
	})
}

// loop runs fn every interval until stopped. A wake signal runs it early.
// Errors are logged and retried on the next tick.
func (m *Market) loop(ctx context.Context, name string, interval time.Duration, wake <-chan struct{}, fn func(context.Context) error) error {
	for {
		if m.stopped.Load() || ctx.Err() != nil {
			return nil
		}
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			m.logger.Warn("feed refresh failed", zap.String("loop", name), zap.Error(err))
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-m.stopCh:
			timer.Stop()
			return nil
		case <-wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (m *Market) refreshTicker(ctx context.Context) error {
	pairs, err := m.tickerSrc.Ticker(ctx)
	if err != nil {
		return err
	}
	m.tickers.Replace(pairs, m.opts.Now())
	return nil
}

func (m *Market) refreshBalances(ctx context.Context) error {
	currencies, err := m.balanceSrc.Balances(ctx)
	if err != nil {
		return err
	}
	m.balances.Store(&market.BalanceSnapshot{Currencies: currencies, UpdatedAt: m.opts.Now()})
	return nil
}

// streamTicker seeds the snapshot over REST, then applies push updates
// until stopped.
func (m *Market) streamTicker(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-m.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	for m.tickers.Snapshot() == nil {
		if err := m.refreshTicker(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			m.logger.Warn("ticker seed failed", zap.Error(err))
			if !m.sleep(ctx, m.opts.TickerInterval) {
				return nil
			}
		}
	}
	m.logger.Info("ticker seeded", zap.Int("pairs", m.tickers.CountAll()))

	m.opts.Stream.SetMessageHandler(stream.MakeTickerHandler(m.logger, m.tickers, m.opts.Now))
	for {
		err := m.opts.Stream.Connect(ctx)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil
		}
		m.logger.Warn("ticker stream connect failed", zap.Error(err))
		if !m.sleep(ctx, m.opts.TickerInterval) {
			return nil
		}
	}

	if err := m.opts.Stream.Listen(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func (m *Market) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

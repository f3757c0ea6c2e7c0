package memorystore

import (
	"sync"
	"sync/atomic"
	"time"

	"chartfeed/internal/market"
)

// TickerStore holds the current ticker snapshot. Readers never lock; every
// write publishes a fresh snapshot and leaves the old one untouched.
type TickerStore struct {
	writeMu sync.Mutex
	current atomic.Pointer[market.TickerSnapshot]
}

func NewTickerStore() *TickerStore {
	return &TickerStore{}
}

// Snapshot returns the latest published snapshot, or nil before the first write.
func (s *TickerStore) Snapshot() *market.TickerSnapshot {
	return s.current.Load()
}

// Replace publishes pairs as the whole ticker.
func (s *TickerStore) Replace(pairs map[string]market.Ticker, at time.Time) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.current.Store(&market.TickerSnapshot{Pairs: pairs, UpdatedAt: at})
}

// Apply publishes a snapshot in which pair is set to t.
func (s *TickerStore) Apply(pair string, t market.Ticker, at time.Time) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	prev := s.current.Load()
	size := 1
	if prev != nil {
		size += len(prev.Pairs)
	}
	next := make(map[string]market.Ticker, size)
	if prev != nil {
		for k, v := range prev.Pairs {
			next[k] = v
		}
	}
	next[pair] = t
	s.current.Store(&market.TickerSnapshot{Pairs: next, UpdatedAt: at})
}

// PairByID resolves a numeric pair id as used by the push API.
func (s *TickerStore) PairByID(id int) (string, bool) {
	snap := s.current.Load()
	if snap == nil {
		return "", false
	}
	for pair, t := range snap.Pairs {
		if t.ID == id {
			return pair, true
		}
	}
	return "", false
}

// CountAll returns the number of pairs in the current snapshot.
func (s *TickerStore) CountAll() int {
	snap := s.current.Load()
	if snap == nil {
		return 0
	}
	return len(snap.Pairs)
}

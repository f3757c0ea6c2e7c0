package memory

import (
	"context"
	"sync"
	"time"

	"chartfeed/internal/market"
)

// Store keeps series in process memory. Used by tests and dry runs.
type Store struct {
	mu     sync.Mutex
	series map[string]market.Series
	saves  int
}

func NewStore() *Store {
	return &Store{
		series: make(map[string]market.Series),
	}
}

func key(pair string, freq time.Duration) string {
	return pair + "@" + freq.String()
}

func (m *Store) Load(_ context.Context, pair string, freq time.Duration) (market.Series, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.series[key(pair, freq)]
	if !ok {
		return market.Series{}, market.ErrSeriesNotFound
	}
	// Copy to avoid race
	return s.Clone(), nil
}

func (m *Store) Save(_ context.Context, s market.Series) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.series[key(s.Pair, s.Freq)] = s.Clone()
	m.saves++
	return nil
}

// Saves counts successful Save calls.
func (m *Store) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

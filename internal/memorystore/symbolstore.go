package memorystore

import "sync"

// SymbolStore is the mutable set of active chart pairs, kept in insertion order.
type SymbolStore struct {
	mu      sync.Mutex
	symbols []string
	index   map[string]struct{}
}

func NewSymbolStore(initial ...string) *SymbolStore {
	s := &SymbolStore{
		symbols: make([]string, 0, len(initial)),
		index:   make(map[string]struct{}, len(initial)),
	}
	for _, sym := range initial {
		s.Add(sym)
	}
	return s
}

// Add registers symbol and reports whether it was new.
func (s *SymbolStore) Add(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[symbol]; ok {
		return false
	}
	s.index[symbol] = struct{}{}
	s.symbols = append(s.symbols, symbol)
	return true
}

// Remove unregisters symbol and reports whether it was present.
func (s *SymbolStore) Remove(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[symbol]; !ok {
		return false
	}
	delete(s.index, symbol)
	for i, sym := range s.symbols {
		if sym == symbol {
			s.symbols = append(s.symbols[:i], s.symbols[i+1:]...)
			break
		}
	}
	return true
}

func (s *SymbolStore) Has(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[symbol]
	return ok
}

// GetAll returns a copy of the active symbols.
func (s *SymbolStore) GetAll() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.symbols))
	copy(out, s.symbols)
	return out
}

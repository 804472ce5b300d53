package solver

import (
	"sync"

	"github.com/onlyswaps/solver/pkg/solver/evaluate"
	"github.com/onlyswaps/solver/pkg/swap"
)

// Store holds the latest state snapshot per chain. Writers replace a chain's
// snapshot wholesale; readers get a clone the evaluator may debit freely.
type Store struct {
	mu     sync.RWMutex
	states map[uint64]*swap.ChainState
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{states: make(map[uint64]*swap.ChainState)}
}

// Update replaces the snapshot for the given chain.
func (s *Store) Update(chainID uint64, state *swap.ChainState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[chainID] = state
}

// Snapshot returns a cloned view of every chain's state.
func (s *Store) Snapshot() evaluate.States {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(evaluate.States, len(s.states))
	for id, st := range s.states {
		out[id] = st.Clone()
	}
	return out
}

// Len reports how many chains have delivered a snapshot.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}

package policyload

import (
	"sync/atomic"

	"github.com/davidahmann/execgate/core/policy"
)

// Store holds the current compiled policy behind an atomic pointer. Readers
// never block; a reload builds a complete new policy and swaps the pointer,
// so every evaluation sees either the old rule set or the new one, never a
// mixture.
type Store struct {
	current atomic.Pointer[policy.Policy]
}

func NewStore(initial *policy.Policy) *Store {
	store := &Store{}
	if initial != nil {
		store.current.Store(initial)
	}
	return store
}

// Current returns the active policy, or nil when none has loaded yet.
func (s *Store) Current() *policy.Policy {
	return s.current.Load()
}

func (s *Store) Swap(next *policy.Policy) {
	if next == nil {
		return
	}
	s.current.Store(next)
}

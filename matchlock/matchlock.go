// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package matchlock

import "sync"

// Arena hands out one mutex per match ID so allocation and ballot writes for
// the same match are serialized while different matches proceed in parallel.
// Mutexes are never evicted; the per-match footprint is a few words and the
// match count per deployment is bounded.
type Arena struct {
	locks sync.Map // match ID -> *sync.Mutex
}

// New returns an empty arena.
func New() *Arena {
	return &Arena{}
}

// Lock acquires the mutex for a match, creating it on first use. The returned
// function releases it:
//
//	unlock := arena.Lock(matchID)
//	defer unlock()
func (a *Arena) Lock(matchID string) func() {
	v, _ := a.locks.LoadOrStore(matchID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

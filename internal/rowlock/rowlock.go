// Package rowlock gives the in-memory stores SELECT ... FOR UPDATE
// semantics: a row read or written inside a transaction stays locked until
// that transaction commits or rolls back.
package rowlock

import (
	"sync"

	"github.com/google/uuid"
)

// Set hands out one mutex per row id. The zero value is ready to use.
type Set struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*sync.Mutex
}

func (s *Set) row(id uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rows == nil {
		s.rows = make(map[uuid.UUID]*sync.Mutex)
	}

	m, ok := s.rows[id]
	if !ok {
		m = &sync.Mutex{}
		s.rows[id] = m
	}

	return m
}

// Holder returns an empty lock holder for one transaction.
func (s *Set) Holder() *Holder {
	return &Holder{set: s, held: make(map[uuid.UUID]*sync.Mutex)}
}

// Holder tracks the rows locked by a single transaction. It is not safe
// for concurrent use, like the transaction that owns it.
type Holder struct {
	set  *Set
	held map[uuid.UUID]*sync.Mutex
}

// Lock blocks until id is free. Locking a row the holder already owns is a
// no-op.
func (h *Holder) Lock(id uuid.UUID) {
	if _, ok := h.held[id]; ok {
		return
	}

	m := h.set.row(id)
	m.Lock()
	h.held[id] = m
}

// Release unlocks every row the holder owns.
func (h *Holder) Release() {
	for id, m := range h.held {
		m.Unlock()
		delete(h.held, id)
	}
}

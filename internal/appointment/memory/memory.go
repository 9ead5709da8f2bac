// Package memory is an in-process appointment store for tests and tools
// that run without Postgres. Rows touched by a transaction stay locked until
// it ends.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/clinicx/internal/appointment"
	"github.com/MrJamesThe3rd/clinicx/internal/lifecycle"
	"github.com/MrJamesThe3rd/clinicx/internal/rowlock"
)

type Store struct {
	mu    sync.Mutex
	items map[uuid.UUID]appointment.Appointment
	rows  rowlock.Set
}

func New() *Store {
	return &Store{items: make(map[uuid.UUID]appointment.Appointment)}
}

func (s *Store) GetAppointment(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.items[id]
	if !ok {
		return nil, lifecycle.ErrNotFound
	}

	return &a, nil
}

func (s *Store) FindOverlapping(_ context.Context, start, end time.Time) ([]*appointment.Appointment, error) {
	return s.scan(func(a *appointment.Appointment) bool {
		return a.Status.IsActive() && appointment.Overlaps(a.Start, a.End(), start, end)
	}, 0), nil
}

func (s *Store) ListAppointments(_ context.Context, filter appointment.ListFilter) ([]*appointment.Appointment, error) {
	return s.scan(func(a *appointment.Appointment) bool {
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, a.Status) {
			return false
		}

		if filter.From != nil && a.Start.Before(*filter.From) {
			return false
		}

		if filter.To != nil && !a.Start.Before(*filter.To) {
			return false
		}

		return true
	}, filter.Limit), nil
}

func (s *Store) scan(keep func(*appointment.Appointment) bool, limit int) []*appointment.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*appointment.Appointment

	for _, a := range s.items {
		if keep(&a) {
			out = append(out, &a)
		}
	}

	slices.SortFunc(out, func(a, b *appointment.Appointment) int {
		return a.Start.Compare(b.Start)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out
}

func (s *Store) Begin(_ context.Context) (appointment.Tx, error) {
	return &tx{store: s, locks: s.rows.Holder()}, nil
}

// tx writes through immediately and keeps an undo log for Rollback. Rows it
// reads or writes stay locked until Commit or Rollback.
type tx struct {
	store *Store
	locks *rowlock.Holder
	undo  []func()
	done  bool
}

func (t *tx) GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	t.locks.Lock(id)

	return t.store.GetAppointment(ctx, id)
}

func (t *tx) FindOverlapping(ctx context.Context, start, end time.Time) ([]*appointment.Appointment, error) {
	return t.store.FindOverlapping(ctx, start, end)
}

func (t *tx) CreateAppointment(_ context.Context, a *appointment.Appointment) error {
	s := t.store

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[a.ID]; exists {
		return fmt.Errorf("creating appointment: duplicate id %s", a.ID)
	}

	s.items[a.ID] = *a
	t.undo = append(t.undo, func() { delete(s.items, a.ID) })

	return nil
}

func (t *tx) UpdateAppointment(_ context.Context, a *appointment.Appointment) error {
	t.locks.Lock(a.ID)

	s := t.store

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.items[a.ID]
	if !ok {
		return lifecycle.ErrNotFound
	}

	// Reminder bookkeeping belongs to the dispatcher, as in the Postgres store.
	next := *a
	next.ReminderSent = prev.ReminderSent
	next.ReminderSentAt = prev.ReminderSentAt

	s.items[a.ID] = next
	t.undo = append(t.undo, func() { s.items[prev.ID] = prev })

	return nil
}

func (t *tx) Commit() error {
	if t.done {
		return nil
	}

	t.done = true
	t.undo = nil
	t.locks.Release()

	return nil
}

func (t *tx) Rollback() error {
	if t.done {
		return nil
	}

	t.done = true

	t.store.mu.Lock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.store.mu.Unlock()

	t.undo = nil
	t.locks.Release()

	return nil
}

// Package memory is an in-process ledger store. It enforces invoice number
// uniqueness at insert time the same way the Postgres constraint does, and
// locks rows touched by a transaction until it ends.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/clinicx/internal/lifecycle"
	"github.com/MrJamesThe3rd/clinicx/internal/rowlock"
	"github.com/MrJamesThe3rd/clinicx/internal/transaction"
)

type Store struct {
	mu       sync.Mutex
	items    map[uuid.UUID]transaction.Transaction
	invoices map[string]uuid.UUID
	rows     rowlock.Set
}

func New() *Store {
	return &Store{
		items:    make(map[uuid.UUID]transaction.Transaction),
		invoices: make(map[string]uuid.UUID),
	}
}

func (s *Store) GetTransaction(_ context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.items[id]
	if !ok {
		return nil, lifecycle.ErrNotFound
	}

	return &t, nil
}

func (s *Store) ListTransactions(_ context.Context, filter transaction.ListFilter) ([]*transaction.Transaction, error) {
	out := s.match(filter)

	slices.SortFunc(out, func(a, b *transaction.Transaction) int {
		if filter.Newest {
			return b.Date.Compare(a.Date)
		}

		return a.Date.Compare(b.Date)
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}

	return out, nil
}

func (s *Store) SumAmounts(_ context.Context, filter transaction.ListFilter) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, t := range s.match(filter) {
		total = total.Add(t.Amount)
	}

	return total, nil
}

func (s *Store) match(filter transaction.ListFilter) []*transaction.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*transaction.Transaction

	for _, t := range s.items {
		if filter.Type != nil && t.Type != *filter.Type {
			continue
		}

		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}

		if !filter.Window.Contains(t.Date) {
			continue
		}

		out = append(out, &t)
	}

	return out
}

// InvoiceNumbers returns every issued invoice number in ascending order.
func (s *Store) InvoiceNumbers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.invoices))
	for n := range s.invoices {
		out = append(out, n)
	}

	slices.Sort(out)

	return out
}

func (s *Store) Begin(_ context.Context) (transaction.Tx, error) {
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

func (t *tx) GetTransaction(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	t.locks.Lock(id)

	return t.store.GetTransaction(ctx, id)
}

func (t *tx) LastInvoiceNumber(_ context.Context, prefix string) (string, error) {
	s := t.store

	s.mu.Lock()
	defer s.mu.Unlock()

	var last string

	for n := range s.invoices {
		if strings.HasPrefix(n, prefix+"-") && n > last {
			last = n
		}
	}

	return last, nil
}

func (t *tx) CreateTransaction(_ context.Context, tr *transaction.Transaction) error {
	s := t.store

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[tr.ID]; exists {
		return fmt.Errorf("inserting transaction: duplicate id %s", tr.ID)
	}

	if tr.InvoiceNumber != "" {
		if _, taken := s.invoices[tr.InvoiceNumber]; taken {
			return fmt.Errorf("inserting transaction: %w", transaction.ErrDuplicateInvoice)
		}

		s.invoices[tr.InvoiceNumber] = tr.ID
	}

	s.items[tr.ID] = *tr

	id, invoice := tr.ID, tr.InvoiceNumber
	t.undo = append(t.undo, func() {
		delete(s.items, id)

		if invoice != "" {
			delete(s.invoices, invoice)
		}
	})

	return nil
}

func (t *tx) UpdateTransaction(_ context.Context, tr *transaction.Transaction) error {
	t.locks.Lock(tr.ID)

	s := t.store

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.items[tr.ID]
	if !ok {
		return lifecycle.ErrNotFound
	}

	// Type, currency, invoice and creation data are immutable, as in the
	// Postgres store.
	next := prev
	next.Category = tr.Category
	next.Amount = tr.Amount
	next.Description = tr.Description
	next.Notes = tr.Notes
	next.PaymentMethod = tr.PaymentMethod
	next.PaymentReference = tr.PaymentReference
	next.Date = tr.Date
	next.PatientID = tr.PatientID
	next.Status = tr.Status
	next.UpdatedAt = tr.UpdatedAt
	next.CompletedAt = tr.CompletedAt
	next.CancelledAt = tr.CancelledAt

	s.items[tr.ID] = next
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

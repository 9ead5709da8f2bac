package transaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/MrJamesThe3rd/clinicx/internal/lifecycle"
	"github.com/MrJamesThe3rd/clinicx/internal/reference"
)

// DefaultInvoiceAttempts bounds the retry loop around invoice collisions.
const DefaultInvoiceAttempts = 5

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=transaction
type Repository interface {
	GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error)
	ListTransactions(ctx context.Context, filter ListFilter) ([]*Transaction, error)
	// SumAmounts totals Amount over the rows matching filter, zero when none
	// match. Limit and Newest are ignored.
	SumAmounts(ctx context.Context, filter ListFilter) (decimal.Decimal, error)
	Begin(ctx context.Context) (Tx, error)
}

// Tx scopes a read-then-write. Rollback after Commit is a no-op.
type Tx interface {
	// GetTransaction locks the row until the Tx ends.
	GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error)
	// LastInvoiceNumber returns the greatest invoice number starting with
	// prefix, or "" if there is none.
	LastInvoiceNumber(ctx context.Context, prefix string) (string, error)
	// CreateTransaction returns ErrDuplicateInvoice on an invoice collision.
	CreateTransaction(ctx context.Context, tx *Transaction) error
	UpdateTransaction(ctx context.Context, tx *Transaction) error
	Commit() error
	Rollback() error
}

type Service struct {
	repo            Repository
	refs            reference.Checker
	now             func() time.Time
	logger          *slog.Logger
	currency        string
	invoiceAttempts int
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithCurrency sets the currency used when CreateParams leaves it empty.
func WithCurrency(code string) Option {
	return func(s *Service) { s.currency = code }
}

func WithInvoiceAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.invoiceAttempts = n
		}
	}
}

func NewService(repo Repository, refs reference.Checker, opts ...Option) *Service {
	s := &Service{
		repo:            repo,
		refs:            refs,
		now:             func() time.Time { return time.Now().UTC() },
		logger:          slog.Default(),
		currency:        DefaultCurrency,
		invoiceAttempts: DefaultInvoiceAttempts,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

type CreateParams struct {
	Type             Type
	Category         string
	Amount           decimal.Decimal
	Currency         string
	Status           Status // pending or completed; empty means completed
	Description      string
	Notes            string
	PaymentMethod    string
	PaymentReference string
	Date             time.Time
	PatientID        *uuid.UUID
	AppointmentID    *uuid.UUID
	CreatedByID      uuid.UUID
}

type ListFilter struct {
	Type   *Type
	Status *Status
	Window Window
	Limit  int
	// Newest orders by date descending instead of ascending.
	Newest bool
}

// UpdateParams edits the descriptive fields of a transaction. Nil fields
// are left unchanged. Type, currency and invoice number are immutable and
// status only moves through Transition.
type UpdateParams struct {
	Category         *string
	Amount           *decimal.Decimal
	Description      *string
	Notes            *string
	PaymentMethod    *string
	PaymentReference *string
	Date             *time.Time
	PatientID        *uuid.UUID
}

// Create validates and stores a transaction. Income gets the next invoice
// number of the day; collisions with concurrent writers are retried up to
// the configured number of attempts, then lifecycle.ErrSequenceExhausted is
// returned.
func (s *Service) Create(ctx context.Context, params CreateParams) (*Transaction, error) {
	if params.Currency == "" {
		params.Currency = s.currency
	}

	if params.Status == "" {
		params.Status = StatusCompleted
	}

	code, err := validateCreate(params)
	if err != nil {
		return nil, err
	}

	if err := s.checkReferences(ctx, params); err != nil {
		return nil, err
	}

	now := s.now()
	tx := &Transaction{
		ID:               uuid.New(),
		Type:             params.Type,
		Category:         params.Category,
		Amount:           params.Amount,
		Currency:         code,
		Status:           params.Status,
		Description:      params.Description,
		Notes:            params.Notes,
		PaymentMethod:    params.PaymentMethod,
		PaymentReference: params.PaymentReference,
		Date:             params.Date,
		PatientID:        params.PatientID,
		AppointmentID:    params.AppointmentID,
		CreatedByID:      params.CreatedByID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if tx.Date.IsZero() {
		tx.Date = now
	}

	if tx.Status == StatusCompleted {
		tx.CompletedAt = &now
	}

	if !tx.IsIncome() {
		if err := s.insert(ctx, tx, now, false); err != nil {
			return nil, err
		}

		return tx, nil
	}

	for attempt := 1; attempt <= s.invoiceAttempts; attempt++ {
		err := s.insert(ctx, tx, now, true)
		if err == nil {
			return tx, nil
		}

		if !errors.Is(err, ErrDuplicateInvoice) {
			return nil, err
		}

		s.logger.Warn("invoice number collision, retrying",
			"invoice_number", tx.InvoiceNumber,
			"attempt", attempt,
		)
	}

	s.logger.Error("invoice sequence exhausted",
		"prefix", InvoicePrefix(now),
		"attempts", s.invoiceAttempts,
	)

	return nil, fmt.Errorf("%w: gave up after %d attempts", lifecycle.ErrSequenceExhausted, s.invoiceAttempts)
}

// insert stores t in its own tx. The invoice prefix and candidate are both
// derived from now so a retry never straddles two days.
func (s *Service) insert(ctx context.Context, t *Transaction, now time.Time, withInvoice bool) error {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create: %w", err)
	}
	defer tx.Rollback()

	if withInvoice {
		last, err := tx.LastInvoiceNumber(ctx, InvoicePrefix(now))
		if err != nil {
			return fmt.Errorf("reading last invoice: %w", err)
		}

		number, err := NextInvoiceNumber(now, last)
		if err != nil {
			return err
		}

		t.InvoiceNumber = number
	}

	if err := tx.CreateTransaction(ctx, t); err != nil {
		return fmt.Errorf("creating transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create: %w", err)
	}

	return nil
}

// Transition applies event. A guard failure is returned as
// lifecycle.ErrInvalidTransition and nothing is written.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, event Event) (*Transaction, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback()

	current, err := tx.GetTransaction(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting transaction: %w", err)
	}

	next, err := Apply(current, event, s.now())
	if err != nil {
		return nil, err
	}

	if err := tx.UpdateTransaction(ctx, next); err != nil {
		return nil, fmt.Errorf("updating transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}

	return next, nil
}

// Update edits a transaction that is not yet cancelled or refunded.
func (s *Service) Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*Transaction, error) {
	if err := validateUpdate(params); err != nil {
		return nil, err
	}

	if params.PatientID != nil {
		if err := s.checkPatient(ctx, *params.PatientID); err != nil {
			return nil, err
		}
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	current, err := tx.GetTransaction(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting transaction: %w", err)
	}

	if IsTerminal(current.Status) {
		return nil, &lifecycle.TransitionError{From: string(current.Status), Event: "update"}
	}

	next := *current
	applyUpdate(&next, params)
	next.UpdatedAt = s.now()

	if err := tx.UpdateTransaction(ctx, &next); err != nil {
		return nil, fmt.Errorf("updating transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}

	return &next, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	return s.repo.GetTransaction(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Transaction, error) {
	return s.repo.ListTransactions(ctx, filter)
}

// Recent returns the latest transactions, newest first, optionally of one
// type.
func (s *Service) Recent(ctx context.Context, typ *Type, limit int) ([]*Transaction, error) {
	return s.repo.ListTransactions(ctx, ListFilter{Type: typ, Limit: limit, Newest: true})
}

// Aggregate totals income and expenses with the given status (empty means
// completed) inside w. The balance always uses completed transactions. No
// matching rows yields zeros.
func (s *Service) Aggregate(ctx context.Context, w Window, status Status) (Summary, error) {
	if status == "" {
		status = StatusCompleted
	}

	income, expenses, err := s.totals(ctx, w, status)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{Income: income, Expenses: expenses, Balance: income.Sub(expenses)}

	if status != StatusCompleted {
		income, expenses, err = s.totals(ctx, w, StatusCompleted)
		if err != nil {
			return Summary{}, err
		}

		sum.Balance = income.Sub(expenses)
	}

	return sum, nil
}

func (s *Service) totals(ctx context.Context, w Window, status Status) (income, expenses decimal.Decimal, err error) {
	income, err = s.repo.SumAmounts(ctx, ListFilter{Type: new(TypeIncome), Status: &status, Window: w})
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("summing income: %w", err)
	}

	expenses, err = s.repo.SumAmounts(ctx, ListFilter{Type: new(TypeExpense), Status: &status, Window: w})
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("summing expenses: %w", err)
	}

	return income, expenses, nil
}

func (s *Service) checkReferences(ctx context.Context, params CreateParams) error {
	ok, err := s.refs.UserExists(ctx, params.CreatedByID)
	if err != nil {
		return fmt.Errorf("checking user: %w", err)
	}

	if !ok {
		return lifecycle.Invalid("created_by_id", "unknown user")
	}

	if params.PatientID != nil {
		if err := s.checkPatient(ctx, *params.PatientID); err != nil {
			return err
		}
	}

	if params.AppointmentID != nil {
		ok, err := s.refs.AppointmentExists(ctx, *params.AppointmentID)
		if err != nil {
			return fmt.Errorf("checking appointment: %w", err)
		}

		if !ok {
			return lifecycle.Invalid("appointment_id", "unknown appointment")
		}
	}

	return nil
}

func (s *Service) checkPatient(ctx context.Context, id uuid.UUID) error {
	ok, err := s.refs.PatientExists(ctx, id)
	if err != nil {
		return fmt.Errorf("checking patient: %w", err)
	}

	if !ok {
		return lifecycle.Invalid("patient_id", "unknown patient")
	}

	return nil
}

// validateCreate returns the normalised ISO currency code.
func validateCreate(p CreateParams) (string, error) {
	if p.Type != TypeIncome && p.Type != TypeExpense {
		return "", lifecycle.Invalid("type", "must be income or expense")
	}

	if p.Category == "" {
		return "", lifecycle.Invalid("category", "required")
	}

	if !p.Amount.IsPositive() {
		return "", lifecycle.Invalid("amount", "must be positive")
	}

	if p.Description == "" {
		return "", lifecycle.Invalid("description", "required")
	}

	if p.CreatedByID == uuid.Nil {
		return "", lifecycle.Invalid("created_by_id", "required")
	}

	if p.Status != StatusPending && p.Status != StatusCompleted {
		return "", lifecycle.Invalid("status", "must be pending or completed")
	}

	unit, err := currency.ParseISO(p.Currency)
	if err != nil {
		return "", lifecycle.Invalid("currency", err.Error())
	}

	return unit.String(), nil
}

func validateUpdate(p UpdateParams) error {
	if p.Category != nil && *p.Category == "" {
		return lifecycle.Invalid("category", "required")
	}

	if p.Amount != nil && !p.Amount.IsPositive() {
		return lifecycle.Invalid("amount", "must be positive")
	}

	if p.Description != nil && *p.Description == "" {
		return lifecycle.Invalid("description", "required")
	}

	if p.Date != nil && p.Date.IsZero() {
		return lifecycle.Invalid("date", "required")
	}

	return nil
}

func applyUpdate(t *Transaction, p UpdateParams) {
	if p.Category != nil {
		t.Category = *p.Category
	}

	if p.Amount != nil {
		t.Amount = *p.Amount
	}

	if p.Description != nil {
		t.Description = *p.Description
	}

	if p.Notes != nil {
		t.Notes = *p.Notes
	}

	if p.PaymentMethod != nil {
		t.PaymentMethod = *p.PaymentMethod
	}

	if p.PaymentReference != nil {
		t.PaymentReference = *p.PaymentReference
	}

	if p.Date != nil {
		t.Date = *p.Date
	}

	if p.PatientID != nil {
		t.PatientID = p.PatientID
	}
}

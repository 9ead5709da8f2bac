package transaction

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type represents the type of transaction (income or expense).
type Type string

const (
	TypeIncome  Type = "income"
	TypeExpense Type = "expense"
)

// Status represents the lifecycle state of a transaction.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

const DefaultCurrency = "USD"

// Transaction represents a financial transaction.
type Transaction struct {
	ID               uuid.UUID
	Type             Type
	Category         string
	Amount           decimal.Decimal
	Currency         string
	Status           Status
	Description      string
	Notes            string
	PaymentMethod    string
	PaymentReference string
	Date             time.Time
	PatientID        *uuid.UUID
	AppointmentID    *uuid.UUID
	CreatedByID      uuid.UUID
	InvoiceNumber    string // Income only
	CreatedAt        time.Time
	UpdatedAt        time.Time
	CompletedAt      *time.Time
	CancelledAt      *time.Time
}

func (t *Transaction) IsIncome() bool {
	return t.Type == TypeIncome
}

func (t *Transaction) IsExpense() bool {
	return t.Type == TypeExpense
}

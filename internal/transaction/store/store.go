package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/clinicx/internal/lifecycle"
	"github.com/MrJamesThe3rd/clinicx/internal/transaction"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
	invoiceConstraint   = "transactions_invoice_number_key"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanTransaction reads a transaction row from the scanner and returns a populated Transaction.
// Expected column order matches selectTransactionColumns.
func scanTransaction(s scanner) (*transaction.Transaction, error) {
	var tx transaction.Transaction

	var typeStr, statusStr string

	var notes, method, reference, invoice sql.NullString

	if err := s.Scan(
		&tx.ID, &typeStr, &tx.Category, &tx.Amount, &tx.Currency, &statusStr, &tx.Description,
		&notes, &method, &reference, &tx.Date, &tx.PatientID, &tx.AppointmentID, &tx.CreatedByID,
		&invoice, &tx.CreatedAt, &tx.UpdatedAt, &tx.CompletedAt, &tx.CancelledAt,
	); err != nil {
		return nil, err
	}

	tx.Type = transaction.Type(typeStr)
	tx.Status = transaction.Status(statusStr)
	tx.Notes = notes.String
	tx.PaymentMethod = method.String
	tx.PaymentReference = reference.String
	tx.InvoiceNumber = invoice.String

	return &tx, nil
}

const selectTransactionColumns = `
	id, type, category, amount, currency, status, description,
	notes, payment_method, payment_reference, date, patient_id, appointment_id, created_by_id,
	invoice_number, created_at, updated_at, completed_at, cancelled_at
`

func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	query := `SELECT ` + selectTransactionColumns + ` FROM transactions WHERE id = $1`

	tx, err := scanTransaction(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, lifecycle.ErrNotFound
		}

		return nil, fmt.Errorf("getting transaction: %w", err)
	}

	return tx, nil
}

// whereClause renders filter as SQL conditions with positional args.
func whereClause(filter transaction.ListFilter) (string, []any) {
	where := " WHERE TRUE"

	var args []any

	argIdx := 1

	if filter.Type != nil {
		where += fmt.Sprintf(" AND type = $%d", argIdx)

		args = append(args, string(*filter.Type))
		argIdx++
	}

	if filter.Status != nil {
		where += fmt.Sprintf(" AND status = $%d", argIdx)

		args = append(args, string(*filter.Status))
		argIdx++
	}

	if filter.Window.Start != nil {
		where += fmt.Sprintf(" AND date >= $%d", argIdx)

		args = append(args, *filter.Window.Start)
		argIdx++
	}

	if filter.Window.End != nil {
		where += fmt.Sprintf(" AND date < $%d", argIdx)

		args = append(args, *filter.Window.End)
	}

	return where, args
}

func (s *Store) ListTransactions(ctx context.Context, filter transaction.ListFilter) ([]*transaction.Transaction, error) {
	where, args := whereClause(filter)
	query := `SELECT ` + selectTransactionColumns + ` FROM transactions` + where

	if filter.Newest {
		query += " ORDER BY date DESC"
	} else {
		query += " ORDER BY date ASC"
	}

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)

		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	var txs []*transaction.Transaction

	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}

		txs = append(txs, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transactions: %w", err)
	}

	return txs, nil
}

func (s *Store) SumAmounts(ctx context.Context, filter transaction.ListFilter) (decimal.Decimal, error) {
	where, args := whereClause(filter)
	query := `SELECT COALESCE(SUM(amount), 0) FROM transactions` + where

	var total decimal.Decimal
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("summing transactions: %w", err)
	}

	return total, nil
}

type ledgerTx struct {
	tx *sql.Tx
}

func (s *Store) Begin(ctx context.Context) (transaction.Tx, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning tx: %w", err)
	}

	return &ledgerTx{tx: dbTx}, nil
}

func (ltx *ledgerTx) Commit() error {
	if err := ltx.tx.Commit(); err != nil {
		return translate(err)
	}

	return nil
}

func (ltx *ledgerTx) Rollback() error {
	if err := ltx.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}

	return nil
}

func (ltx *ledgerTx) GetTransaction(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	query := `SELECT ` + selectTransactionColumns + ` FROM transactions WHERE id = $1 FOR UPDATE`

	tx, err := scanTransaction(ltx.tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, lifecycle.ErrNotFound
		}

		return nil, fmt.Errorf("getting transaction: %w", err)
	}

	return tx, nil
}

func (ltx *ledgerTx) LastInvoiceNumber(ctx context.Context, prefix string) (string, error) {
	query := `
		SELECT invoice_number
		FROM transactions
		WHERE invoice_number LIKE $1
		ORDER BY invoice_number DESC
		LIMIT 1
	`

	var last string

	err := ltx.tx.QueryRowContext(ctx, query, prefix+"-%").Scan(&last)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}

		return "", fmt.Errorf("finding last invoice: %w", err)
	}

	return last, nil
}

func (ltx *ledgerTx) CreateTransaction(ctx context.Context, tx *transaction.Transaction) error {
	query := `
		INSERT INTO transactions (
			id, type, category, amount, currency, status, description, notes,
			payment_method, payment_reference, date, patient_id, appointment_id, created_by_id,
			invoice_number, created_at, updated_at, completed_at, cancelled_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	_, err := ltx.tx.ExecContext(ctx, query,
		tx.ID,
		tx.Type,
		tx.Category,
		tx.Amount,
		tx.Currency,
		tx.Status,
		tx.Description,
		tx.Notes,
		tx.PaymentMethod,
		tx.PaymentReference,
		tx.Date,
		tx.PatientID,
		tx.AppointmentID,
		tx.CreatedByID,
		nullString(tx.InvoiceNumber),
		tx.CreatedAt,
		tx.UpdatedAt,
		tx.CompletedAt,
		tx.CancelledAt,
	)
	if err != nil {
		return fmt.Errorf("inserting transaction: %w", translate(err))
	}

	return nil
}

// UpdateTransaction persists the editable and lifecycle fields. Type,
// currency, invoice number and creation data are immutable once written.
func (ltx *ledgerTx) UpdateTransaction(ctx context.Context, tx *transaction.Transaction) error {
	query := `
		UPDATE transactions
		SET category = $1, amount = $2, description = $3, notes = $4, payment_method = $5,
		    payment_reference = $6, date = $7, patient_id = $8, status = $9, updated_at = $10,
		    completed_at = $11, cancelled_at = $12
		WHERE id = $13
	`

	res, err := ltx.tx.ExecContext(ctx, query,
		tx.Category,
		tx.Amount,
		tx.Description,
		tx.Notes,
		tx.PaymentMethod,
		tx.PaymentReference,
		tx.Date,
		tx.PatientID,
		tx.Status,
		tx.UpdatedAt,
		tx.CompletedAt,
		tx.CancelledAt,
		tx.ID,
	)
	if err != nil {
		return fmt.Errorf("updating transaction: %w", translate(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating transaction: %w", err)
	}

	if n == 0 {
		return lifecycle.ErrNotFound
	}

	return nil
}

// translate maps an invoice uniqueness violation to ErrDuplicateInvoice and
// a dangling foreign key to a validation error on the offending column.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch {
	case pgErr.Code == uniqueViolation && pgErr.ConstraintName == invoiceConstraint:
		return transaction.ErrDuplicateInvoice
	case pgErr.Code == foreignKeyViolation:
		return lifecycle.Invalid(referenceColumn(pgErr.ConstraintName), "unknown reference")
	}

	return err
}

// referenceColumn recovers the column from a default Postgres foreign key
// name such as transactions_appointment_id_fkey.
func referenceColumn(constraint string) string {
	column := strings.TrimSuffix(strings.TrimPrefix(constraint, "transactions_"), "_fkey")
	if column == "" {
		return "reference"
	}

	return column
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

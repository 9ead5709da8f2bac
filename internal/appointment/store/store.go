package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrJamesThe3rd/clinicx/internal/appointment"
	"github.com/MrJamesThe3rd/clinicx/internal/lifecycle"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const selectColumns = `
	id, patient_id, created_by_id, start_time, duration_minutes, appointment_type, reason,
	status, cost, paid, notes, cancellation_reason, reminder_sent, reminder_sent_at,
	created_at, updated_at, completed_at, cancelled_at
`

const foreignKeyViolation = "23503"

// activeFilter matches appointment.ActiveStatuses.
const activeFilter = `status IN ('scheduled', 'confirmed', 'in_progress')`

func scanAppointment(s scanner) (*appointment.Appointment, error) {
	var a appointment.Appointment

	var status string

	var apptType, notes, cancelReason sql.NullString

	if err := s.Scan(
		&a.ID, &a.PatientID, &a.CreatedByID, &a.Start, &a.DurationMinutes, &apptType, &a.Reason,
		&status, &a.Cost, &a.Paid, &notes, &cancelReason, &a.ReminderSent, &a.ReminderSentAt,
		&a.CreatedAt, &a.UpdatedAt, &a.CompletedAt, &a.CancelledAt,
	); err != nil {
		return nil, err
	}

	a.Status = appointment.Status(status)
	a.Type = apptType.String
	a.Notes = notes.String
	a.CancellationReason = cancelReason.String

	return &a, nil
}

func getAppointment(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (*appointment.Appointment, error) {
	query := `SELECT ` + selectColumns + ` FROM appointments WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	a, err := scanAppointment(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, lifecycle.ErrNotFound
		}

		return nil, fmt.Errorf("getting appointment: %w", err)
	}

	return a, nil
}

func findOverlapping(ctx context.Context, q querier, start, end time.Time) ([]*appointment.Appointment, error) {
	query := `SELECT ` + selectColumns + `
		FROM appointments
		WHERE ` + activeFilter + `
		  AND start_time < $2
		  AND start_time + make_interval(mins => duration_minutes) > $1
		ORDER BY start_time ASC`

	return queryAppointments(ctx, q, query, start, end)
}

func queryAppointments(ctx context.Context, q querier, query string, args ...any) ([]*appointment.Appointment, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying appointments: %w", err)
	}
	defer rows.Close()

	var out []*appointment.Appointment

	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning appointment: %w", err)
		}

		out = append(out, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating appointments: %w", err)
	}

	return out, nil
}

func (s *Store) GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return getAppointment(ctx, s.db, id, false)
}

func (s *Store) FindOverlapping(ctx context.Context, start, end time.Time) ([]*appointment.Appointment, error) {
	return findOverlapping(ctx, s.db, start, end)
}

func (s *Store) ListAppointments(ctx context.Context, filter appointment.ListFilter) ([]*appointment.Appointment, error) {
	query := `SELECT ` + selectColumns + ` FROM appointments WHERE TRUE`

	var args []any

	argIdx := 1

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			placeholders[i] = fmt.Sprintf("$%d", argIdx)

			args = append(args, string(st))
			argIdx++
		}

		query += " AND status IN (" + strings.Join(placeholders, ", ") + ")"
	}

	if filter.From != nil {
		query += fmt.Sprintf(" AND start_time >= $%d", argIdx)

		args = append(args, *filter.From)
		argIdx++
	}

	if filter.To != nil {
		query += fmt.Sprintf(" AND start_time < $%d", argIdx)

		args = append(args, *filter.To)
		argIdx++
	}

	query += " ORDER BY start_time ASC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)

		args = append(args, filter.Limit)
	}

	return queryAppointments(ctx, s.db, query, args...)
}

type tx struct {
	tx *sql.Tx
}

func (s *Store) Begin(ctx context.Context) (appointment.Tx, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning tx: %w", err)
	}

	return &tx{tx: dbTx}, nil
}

func (t *tx) Commit() error { return t.tx.Commit() }

func (t *tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}

	return nil
}

func (t *tx) GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return getAppointment(ctx, t.tx, id, true)
}

func (t *tx) FindOverlapping(ctx context.Context, start, end time.Time) ([]*appointment.Appointment, error) {
	return findOverlapping(ctx, t.tx, start, end)
}

func (t *tx) CreateAppointment(ctx context.Context, a *appointment.Appointment) error {
	query := `
		INSERT INTO appointments (
			id, patient_id, created_by_id, start_time, duration_minutes, appointment_type, reason,
			status, cost, paid, notes, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := t.tx.ExecContext(ctx, query,
		a.ID,
		a.PatientID,
		a.CreatedByID,
		a.Start,
		a.DurationMinutes,
		a.Type,
		a.Reason,
		a.Status,
		a.Cost,
		a.Paid,
		a.Notes,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating appointment: %w", translate(err))
	}

	return nil
}

// UpdateAppointment writes the mutable fields. Reminder columns belong to
// the reminder dispatcher and are left alone.
func (t *tx) UpdateAppointment(ctx context.Context, a *appointment.Appointment) error {
	query := `
		UPDATE appointments
		SET start_time = $1, duration_minutes = $2, appointment_type = $3, reason = $4, status = $5,
		    cost = $6, paid = $7, notes = $8, cancellation_reason = $9, updated_at = $10,
		    completed_at = $11, cancelled_at = $12
		WHERE id = $13
	`

	res, err := t.tx.ExecContext(ctx, query,
		a.Start,
		a.DurationMinutes,
		a.Type,
		a.Reason,
		a.Status,
		a.Cost,
		a.Paid,
		a.Notes,
		a.CancellationReason,
		a.UpdatedAt,
		a.CompletedAt,
		a.CancelledAt,
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("updating appointment: %w", translate(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating appointment: %w", err)
	}

	if n == 0 {
		return lifecycle.ErrNotFound
	}

	return nil
}

// translate turns a foreign key violation into a validation error naming the
// offending column.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != foreignKeyViolation {
		return err
	}

	column := strings.TrimSuffix(strings.TrimPrefix(pgErr.ConstraintName, "appointments_"), "_fkey")
	if column == "" {
		column = "reference"
	}

	return lifecycle.Invalid(column, "unknown reference")
}

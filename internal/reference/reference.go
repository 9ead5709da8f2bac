package reference

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Checker validates foreign references: patients and users are owned
// outside this module, appointments by the scheduling side.
//
//go:generate mockgen -source=reference.go -destination=checker_mock.go -package=reference
type Checker interface {
	PatientExists(ctx context.Context, id uuid.UUID) (bool, error)
	UserExists(ctx context.Context, id uuid.UUID) (bool, error)
	AppointmentExists(ctx context.Context, id uuid.UUID) (bool, error)
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) PatientExists(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM patients WHERE id = $1 AND is_active)`

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking patient: %w", err)
	}

	return exists, nil
}

func (s *Store) UserExists(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking user: %w", err)
	}

	return exists, nil
}

func (s *Store) AppointmentExists(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM appointments WHERE id = $1)`

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking appointment: %w", err)
	}

	return exists, nil
}

package appointment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/clinicx/internal/lifecycle"
	"github.com/MrJamesThe3rd/clinicx/internal/reference"
)

// Reader is implemented by both the repository and its transactions.
type Reader interface {
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// FindOverlapping returns active appointments intersecting [start, end).
	FindOverlapping(ctx context.Context, start, end time.Time) ([]*Appointment, error)
}

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=appointment
type Repository interface {
	Reader
	ListAppointments(ctx context.Context, filter ListFilter) ([]*Appointment, error)
	Begin(ctx context.Context) (Tx, error)
}

// Tx scopes a read-then-write. Rollback after Commit is a no-op.
type Tx interface {
	Reader
	CreateAppointment(ctx context.Context, a *Appointment) error
	UpdateAppointment(ctx context.Context, a *Appointment) error
	Commit() error
	Rollback() error
}

type ListFilter struct {
	Statuses []Status
	From     *time.Time
	To       *time.Time
	Limit    int
}

type CreateParams struct {
	PatientID       uuid.UUID
	CreatedByID     uuid.UUID
	Start           time.Time
	DurationMinutes int
	Type            string
	Reason          string
	Cost            decimal.Decimal
	Notes           string
}

type TransitionParams struct {
	Event Event
	// Reason is recorded only on cancel.
	Reason string
}

// RescheduleParams moves an appointment. A zero DurationMinutes keeps the
// current duration.
type RescheduleParams struct {
	Start           time.Time
	DurationMinutes int
}

// UpdateParams edits descriptive fields. Nil fields are left unchanged.
// Time and status have their own operations.
type UpdateParams struct {
	Type   *string
	Reason *string
	Cost   *decimal.Decimal
	Paid   *bool
	Notes  *string
}

// Booking is a persisted appointment together with the active appointments
// it overlaps. Conflicts are advisory: the booking is stored regardless.
type Booking struct {
	Appointment *Appointment
	Conflicts   []*Appointment
}

type Service struct {
	repo            Repository
	refs            reference.Checker
	now             func() time.Time
	logger          *slog.Logger
	defaultDuration int
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithDefaultDuration(minutes int) Option {
	return func(s *Service) {
		if minutes > 0 {
			s.defaultDuration = minutes
		}
	}
}

func NewService(repo Repository, refs reference.Checker, opts ...Option) *Service {
	s := &Service{
		repo:            repo,
		refs:            refs,
		now:             func() time.Time { return time.Now().UTC() },
		logger:          slog.Default(),
		defaultDuration: DefaultDurationMinutes,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Service) Create(ctx context.Context, params CreateParams) (*Booking, error) {
	if params.DurationMinutes == 0 {
		params.DurationMinutes = s.defaultDuration
	}

	if err := validateCreate(params); err != nil {
		return nil, err
	}

	if err := s.checkReferences(ctx, params.PatientID, params.CreatedByID); err != nil {
		return nil, err
	}

	now := s.now()
	a := &Appointment{
		ID:              uuid.New(),
		PatientID:       params.PatientID,
		CreatedByID:     params.CreatedByID,
		Start:           params.Start,
		DurationMinutes: params.DurationMinutes,
		Type:            params.Type,
		Reason:          params.Reason,
		Status:          StatusScheduled,
		Cost:            params.Cost,
		Notes:           params.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin booking: %w", err)
	}
	defer tx.Rollback()

	overlapping, err := tx.FindOverlapping(ctx, a.Start, a.End())
	if err != nil {
		return nil, fmt.Errorf("finding conflicts: %w", err)
	}

	conflicts := Conflicts(overlapping, a.Start, a.DurationMinutes, uuid.Nil)

	if err := tx.CreateAppointment(ctx, a); err != nil {
		return nil, fmt.Errorf("creating appointment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit booking: %w", err)
	}

	s.warnConflicts(a, conflicts)

	return &Booking{Appointment: a, Conflicts: conflicts}, nil
}

// Transition applies params.Event to the appointment. A guard failure is
// returned as lifecycle.ErrInvalidTransition and nothing is written.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, params TransitionParams) (*Appointment, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback()

	current, err := tx.GetAppointment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting appointment: %w", err)
	}

	next, err := Apply(current, params.Event, params.Reason, s.now())
	if err != nil {
		return nil, err
	}

	if err := tx.UpdateAppointment(ctx, next); err != nil {
		return nil, fmt.Errorf("updating appointment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}

	return next, nil
}

// Reschedule moves an active appointment. The end time follows from the
// new start and duration, and overlaps are reported like on Create.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, params RescheduleParams) (*Booking, error) {
	if params.Start.IsZero() {
		return nil, lifecycle.Invalid("start", "required")
	}

	if params.DurationMinutes < 0 {
		return nil, lifecycle.Invalid("duration_minutes", "must be positive")
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin reschedule: %w", err)
	}
	defer tx.Rollback()

	current, err := tx.GetAppointment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting appointment: %w", err)
	}

	if params.DurationMinutes == 0 {
		params.DurationMinutes = current.DurationMinutes
	}

	if err := validateSlot(params.Start, params.DurationMinutes); err != nil {
		return nil, err
	}

	if !current.Status.IsActive() {
		return nil, &lifecycle.TransitionError{From: string(current.Status), Event: "reschedule"}
	}

	next := *current
	next.Start = params.Start
	next.DurationMinutes = params.DurationMinutes
	next.UpdatedAt = s.now()

	overlapping, err := tx.FindOverlapping(ctx, next.Start, next.End())
	if err != nil {
		return nil, fmt.Errorf("finding conflicts: %w", err)
	}

	conflicts := Conflicts(overlapping, next.Start, next.DurationMinutes, next.ID)

	if err := tx.UpdateAppointment(ctx, &next); err != nil {
		return nil, fmt.Errorf("updating appointment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reschedule: %w", err)
	}

	s.warnConflicts(&next, conflicts)

	return &Booking{Appointment: &next, Conflicts: conflicts}, nil
}

// Update edits an appointment's descriptive fields in any status, so payment
// can still be recorded after completion.
func (s *Service) Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*Appointment, error) {
	if err := validateUpdate(params); err != nil {
		return nil, err
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	current, err := tx.GetAppointment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting appointment: %w", err)
	}

	next := *current
	if params.Type != nil {
		next.Type = *params.Type
	}

	if params.Reason != nil {
		next.Reason = *params.Reason
	}

	if params.Cost != nil {
		next.Cost = *params.Cost
	}

	if params.Paid != nil {
		next.Paid = *params.Paid
	}

	if params.Notes != nil {
		next.Notes = *params.Notes
	}

	next.UpdatedAt = s.now()

	if err := tx.UpdateAppointment(ctx, &next); err != nil {
		return nil, fmt.Errorf("updating appointment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}

	return &next, nil
}

// FindConflicts lists active appointments overlapping the slot. Pass
// uuid.Nil as excludeID to check a slot for a new booking.
func (s *Service) FindConflicts(ctx context.Context, start time.Time, durationMinutes int, excludeID uuid.UUID) ([]*Appointment, error) {
	if err := validateSlot(start, durationMinutes); err != nil {
		return nil, err
	}

	end := start.Add(time.Duration(durationMinutes) * time.Minute)

	overlapping, err := s.repo.FindOverlapping(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("finding conflicts: %w", err)
	}

	return Conflicts(overlapping, start, durationMinutes, excludeID), nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointment(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Appointment, error) {
	return s.repo.ListAppointments(ctx, filter)
}

// Upcoming returns active appointments starting from now, soonest first.
func (s *Service) Upcoming(ctx context.Context, limit int) ([]*Appointment, error) {
	return s.repo.ListAppointments(ctx, ListFilter{
		Statuses: ActiveStatuses,
		From:     new(s.now()),
		Limit:    limit,
	})
}

func (s *Service) checkReferences(ctx context.Context, patientID, userID uuid.UUID) error {
	ok, err := s.refs.PatientExists(ctx, patientID)
	if err != nil {
		return fmt.Errorf("checking patient: %w", err)
	}

	if !ok {
		return lifecycle.Invalid("patient_id", "unknown patient")
	}

	ok, err = s.refs.UserExists(ctx, userID)
	if err != nil {
		return fmt.Errorf("checking user: %w", err)
	}

	if !ok {
		return lifecycle.Invalid("created_by_id", "unknown user")
	}

	return nil
}

func (s *Service) warnConflicts(a *Appointment, conflicts []*Appointment) {
	if len(conflicts) == 0 {
		return
	}

	ids := make([]string, len(conflicts))
	for i, c := range conflicts {
		ids[i] = c.ID.String()
	}

	s.logger.Warn("schedule conflict detected",
		"appointment_id", a.ID,
		"start", a.Start,
		"end", a.End(),
		"conflicts", ids,
	)
}

func validateCreate(p CreateParams) error {
	if p.PatientID == uuid.Nil {
		return lifecycle.Invalid("patient_id", "required")
	}

	if p.CreatedByID == uuid.Nil {
		return lifecycle.Invalid("created_by_id", "required")
	}

	if p.Reason == "" {
		return lifecycle.Invalid("reason", "required")
	}

	if p.Cost.IsNegative() {
		return lifecycle.Invalid("cost", "must not be negative")
	}

	return validateSlot(p.Start, p.DurationMinutes)
}

func validateUpdate(p UpdateParams) error {
	if p.Reason != nil && *p.Reason == "" {
		return lifecycle.Invalid("reason", "required")
	}

	if p.Cost != nil && p.Cost.IsNegative() {
		return lifecycle.Invalid("cost", "must not be negative")
	}

	return nil
}

func validateSlot(start time.Time, durationMinutes int) error {
	if start.IsZero() {
		return lifecycle.Invalid("start", "required")
	}

	if durationMinutes <= 0 {
		return lifecycle.Invalid("duration_minutes", "must be positive")
	}

	return nil
}

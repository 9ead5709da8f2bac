package appointment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status represents the lifecycle state of an appointment.
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"
)

// ActiveStatuses occupy calendar time and take part in conflict detection.
var ActiveStatuses = []Status{StatusScheduled, StatusConfirmed, StatusInProgress}

func (s Status) IsActive() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress:
		return true
	default:
		return false
	}
}

const DefaultDurationMinutes = 30

// Appointment is a booking on the shared clinic calendar.
type Appointment struct {
	ID                 uuid.UUID
	PatientID          uuid.UUID
	CreatedByID        uuid.UUID
	Start              time.Time
	DurationMinutes    int
	Type               string
	Reason             string
	Status             Status
	Cost               decimal.Decimal
	Paid               bool
	Notes              string
	CancellationReason string
	// Owned by the reminder dispatcher; never written here.
	ReminderSent   bool
	ReminderSentAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
	CancelledAt    *time.Time
}

// End is always derived from Start and DurationMinutes.
func (a *Appointment) End() time.Time {
	return a.Start.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

func (a *Appointment) IsPast(now time.Time) bool {
	return a.Start.Before(now)
}

func (a *Appointment) IsToday(now time.Time) bool {
	y1, m1, d1 := a.Start.UTC().Date()
	y2, m2, d2 := now.UTC().Date()

	return y1 == y2 && m1 == m2 && d1 == d2
}

func (a *Appointment) IsUpcoming(now time.Time) bool {
	return a.Start.After(now) && a.Status != StatusCancelled && a.Status != StatusCompleted
}

// TimeUntil returns how long until the appointment starts, or false once
// it has started.
func (a *Appointment) TimeUntil(now time.Time) (time.Duration, bool) {
	if a.IsPast(now) {
		return 0, false
	}

	return a.Start.Sub(now), true
}

func (a *Appointment) CanCancel(now time.Time) bool {
	return (a.Status == StatusScheduled || a.Status == StatusConfirmed) && a.Start.After(now)
}

func (a *Appointment) CanComplete() bool {
	return a.Status.IsActive()
}

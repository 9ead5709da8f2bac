package appointment

import (
	"time"

	"github.com/MrJamesThe3rd/clinicx/internal/lifecycle"
)

// Event drives an appointment between statuses.
type Event string

const (
	EventConfirm    Event = "confirm"
	EventStart      Event = "start"
	EventComplete   Event = "complete"
	EventCancel     Event = "cancel"
	EventMarkNoShow Event = "mark_no_show"
)

var machine = lifecycle.NewMachine(
	[]Status{StatusCompleted, StatusCancelled, StatusNoShow},
	lifecycle.Rule[Status, Event]{Event: EventConfirm, From: []Status{StatusScheduled}, To: StatusConfirmed},
	lifecycle.Rule[Status, Event]{Event: EventStart, From: []Status{StatusScheduled, StatusConfirmed}, To: StatusInProgress},
	lifecycle.Rule[Status, Event]{Event: EventComplete, From: ActiveStatuses, To: StatusCompleted},
	lifecycle.Rule[Status, Event]{Event: EventCancel, From: []Status{StatusScheduled, StatusConfirmed}, To: StatusCancelled},
	lifecycle.Rule[Status, Event]{Event: EventMarkNoShow, From: []Status{StatusScheduled, StatusConfirmed}, To: StatusNoShow},
)

func IsTerminal(s Status) bool {
	return machine.IsTerminal(s)
}

// Apply returns a copy of a with event applied at now. The input is never
// modified; on error the returned appointment is nil.
func Apply(a *Appointment, event Event, reason string, now time.Time) (*Appointment, error) {
	to, err := machine.Next(a.Status, event)
	if err != nil {
		return nil, err
	}

	switch event {
	case EventCancel:
		if !a.Start.After(now) {
			return nil, &lifecycle.TransitionError{From: string(a.Status), Event: string(event)}
		}
	case EventMarkNoShow:
		if !a.Start.Before(now) {
			return nil, &lifecycle.TransitionError{From: string(a.Status), Event: string(event)}
		}
	}

	next := *a
	next.Status = to
	next.UpdatedAt = now

	switch to {
	case StatusCompleted:
		next.CompletedAt = &now
	case StatusCancelled:
		next.CancelledAt = &now
		next.CancellationReason = reason
	}

	return &next, nil
}

package transaction

import (
	"time"

	"github.com/MrJamesThe3rd/clinicx/internal/lifecycle"
)

type Event string

const (
	EventComplete Event = "complete"
	EventCancel   Event = "cancel"
	EventRefund   Event = "refund"
)

var machine = lifecycle.NewMachine(
	[]Status{StatusCancelled, StatusRefunded},
	lifecycle.Rule[Status, Event]{Event: EventComplete, From: []Status{StatusPending}, To: StatusCompleted},
	lifecycle.Rule[Status, Event]{Event: EventCancel, From: []Status{StatusPending, StatusCompleted}, To: StatusCancelled},
	lifecycle.Rule[Status, Event]{Event: EventRefund, From: []Status{StatusCompleted}, To: StatusRefunded},
)

func IsTerminal(s Status) bool {
	return machine.IsTerminal(s)
}

// Apply returns a copy of t with event applied at now. Only income can be
// refunded.
func Apply(t *Transaction, event Event, now time.Time) (*Transaction, error) {
	to, err := machine.Next(t.Status, event)
	if err != nil {
		return nil, err
	}

	if event == EventRefund && !t.IsIncome() {
		return nil, &lifecycle.TransitionError{From: string(t.Status), Event: string(event)}
	}

	next := *t
	next.Status = to
	next.UpdatedAt = now

	switch to {
	case StatusCompleted:
		next.CompletedAt = &now
	case StatusCancelled:
		next.CancelledAt = &now
	}

	return &next, nil
}

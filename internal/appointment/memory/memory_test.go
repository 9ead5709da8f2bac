package memory_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/MrJamesThe3rd/clinicx/internal/appointment"
	"github.com/MrJamesThe3rd/clinicx/internal/appointment/memory"
	"github.com/MrJamesThe3rd/clinicx/internal/lifecycle"
)

type allowAll struct{}

func (allowAll) PatientExists(context.Context, uuid.UUID) (bool, error) { return true, nil }
func (allowAll) UserExists(context.Context, uuid.UUID) (bool, error) { return true, nil }
func (allowAll) AppointmentExists(context.Context, uuid.UUID) (bool, error) { return true, nil }

var now = time.Date(2024, 2, 28, 12, 0, 0, 0, time.UTC)

func setup() (*memory.Store, *appointment.Service) {
	store := memory.New()
	svc := appointment.NewService(store, allowAll{},
		appointment.WithClock(func() time.Time { return now }),
		appointment.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	return store, svc
}

func book(t *testing.T, svc *appointment.Service, start time.Time, minutes int) *appointment.Booking {
	t.Helper()

	b, err := svc.Create(context.Background(), appointment.CreateParams{
		PatientID:       uuid.New(),
		CreatedByID:     uuid.New(),
		Start:           start,
		DurationMinutes: minutes,
		Reason:          "consultation",
	})
	require.NoError(t, err)

	return b
}

func TestBooking_OverlapIsAdvisory(t *testing.T) {
	ctx := context.Background()
	_, svc := setup()

	first := book(t, svc, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), 30)
	assert.Empty(t, first.Conflicts)

	second := book(t, svc, time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC), 30)
	require.Len(t, second.Conflicts, 1)
	assert.Equal(t, first.Appointment.ID, second.Conflicts[0].ID)

	// Both bookings are stored.
	all, err := svc.List(ctx, appointment.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	got, err := svc.FindConflicts(ctx, first.Appointment.Start, 30, first.Appointment.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, second.Appointment.ID, got[0].ID)
}

func TestBooking_CancelledSlotIsFree(t *testing.T) {
	ctx := context.Background()
	_, svc := setup()

	first := book(t, svc, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), 30)

	_, err := svc.Transition(ctx, first.Appointment.ID, appointment.TransitionParams{
		Event:  appointment.EventCancel,
		Reason: "sick",
	})
	require.NoError(t, err)

	second := book(t, svc, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), 30)
	assert.Empty(t, second.Conflicts)
}

func TestTransition_InvalidLeavesStoreUntouched(t *testing.T) {
	ctx := context.Background()
	_, svc := setup()

	b := book(t, svc, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), 30)

	completed, err := svc.Transition(ctx, b.Appointment.ID, appointment.TransitionParams{Event: appointment.EventComplete})
	require.NoError(t, err)
	require.NotNil(t, completed.CompletedAt)

	before, err := svc.Get(ctx, b.Appointment.ID)
	require.NoError(t, err)

	_, err = svc.Transition(ctx, b.Appointment.ID, appointment.TransitionParams{Event: appointment.EventCancel})
	require.ErrorIs(t, err, lifecycle.ErrInvalidTransition)

	after, err := svc.Get(ctx, b.Appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, appointment.StatusCompleted, after.Status)
}

func TestTransition_NotFound(t *testing.T) {
	_, svc := setup()

	_, err := svc.Transition(context.Background(), uuid.New(), appointment.TransitionParams{Event: appointment.EventConfirm})
	assert.ErrorIs(t, err, lifecycle.ErrNotFound)
}

func TestTx_RollbackRestores(t *testing.T) {
	ctx := context.Background()
	store, svc := setup()

	b := book(t, svc, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), 30)

	tx, err := store.Begin(ctx)
	require.NoError(t, err)

	changed := *b.Appointment
	changed.Status = appointment.StatusConfirmed
	require.NoError(t, tx.UpdateAppointment(ctx, &changed))

	extra := appointment.Appointment{ID: uuid.New(), Start: changed.Start, DurationMinutes: 30, Status: appointment.StatusScheduled}
	require.NoError(t, tx.CreateAppointment(ctx, &extra))
	require.NoError(t, tx.Rollback())

	got, err := store.GetAppointment(ctx, b.Appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusScheduled, got.Status)

	_, err = store.GetAppointment(ctx, extra.ID)
	assert.ErrorIs(t, err, lifecycle.ErrNotFound)
}

func TestUpcoming(t *testing.T) {
	ctx := context.Background()
	_, svc := setup()

	past := book(t, svc, now.Add(-time.Hour), 30)
	later := book(t, svc, now.Add(48*time.Hour), 30)
	soon := book(t, svc, now.Add(2*time.Hour), 30)
	gone := book(t, svc, now.Add(3*time.Hour), 30)

	_, err := svc.Transition(ctx, gone.Appointment.ID, appointment.TransitionParams{Event: appointment.EventCancel})
	require.NoError(t, err)

	got, err := svc.Upcoming(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, soon.Appointment.ID, got[0].ID)
	assert.Equal(t, later.Appointment.ID, got[1].ID)
	assert.NotEqual(t, past.Appointment.ID, got[0].ID)

	limited, err := svc.Upcoming(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

// slowStore widens the gap between a transaction's read and its write.
type slowStore struct {
	*memory.Store
}

func (s slowStore) Begin(ctx context.Context) (appointment.Tx, error) {
	tx, err := s.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}

	return slowTx{tx}, nil
}

type slowTx struct {
	appointment.Tx
}

func (t slowTx) GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	a, err := t.Tx.GetAppointment(ctx, id)
	time.Sleep(5 * time.Millisecond)

	return a, err
}

func TestTransition_ConcurrentEventsSerialise(t *testing.T) {
	ctx := context.Background()
	store, svc := setup()

	b := book(t, svc, now.Add(24*time.Hour), 30)

	racing := appointment.NewService(slowStore{store}, allowAll{},
		appointment.WithClock(func() time.Time { return now }),
		appointment.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	events := []appointment.Event{appointment.EventCancel, appointment.EventComplete}
	errs := make([]error, len(events))

	var g errgroup.Group

	for i, event := range events {
		g.Go(func() error {
			_, errs[i] = racing.Transition(ctx, b.Appointment.ID, appointment.TransitionParams{Event: event})

			return nil
		})
	}

	require.NoError(t, g.Wait())

	var failed int

	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)
			failed++
		}
	}

	assert.Equal(t, 1, failed)

	got, err := store.GetAppointment(ctx, b.Appointment.ID)
	require.NoError(t, err)

	switch got.Status {
	case appointment.StatusCancelled:
		assert.NotNil(t, got.CancelledAt)
		assert.Nil(t, got.CompletedAt)
	case appointment.StatusCompleted:
		assert.NotNil(t, got.CompletedAt)
		assert.Nil(t, got.CancelledAt)
	default:
		t.Fatalf("unexpected status %s", got.Status)
	}
}

func TestReschedule_KeepsDuration(t *testing.T) {
	ctx := context.Background()
	_, svc := setup()

	b := book(t, svc, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), 60)

	moved, err := svc.Reschedule(ctx, b.Appointment.ID, appointment.RescheduleParams{
		Start: time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, 60, moved.Appointment.DurationMinutes)

	got, err := svc.Get(ctx, b.Appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC), got.End())
}

func TestUpdate_PersistsFields(t *testing.T) {
	ctx := context.Background()
	_, svc := setup()

	b := book(t, svc, now.Add(-2*time.Hour), 30)

	_, err := svc.Transition(ctx, b.Appointment.ID, appointment.TransitionParams{Event: appointment.EventComplete})
	require.NoError(t, err)

	_, err = svc.Update(ctx, b.Appointment.ID, appointment.UpdateParams{
		Type: new("follow-up"),
		Cost: new(decimal.NewFromInt(80)),
		Paid: new(true),
	})
	require.NoError(t, err)

	got, err := svc.Get(ctx, b.Appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, "follow-up", got.Type)
	assert.True(t, decimal.NewFromInt(80).Equal(got.Cost))
	assert.True(t, got.Paid)
	assert.Equal(t, appointment.StatusCompleted, got.Status)
	assert.Equal(t, "consultation", got.Reason)

	_, err = svc.Update(ctx, uuid.New(), appointment.UpdateParams{Paid: new(true)})
	assert.ErrorIs(t, err, lifecycle.ErrNotFound)
}

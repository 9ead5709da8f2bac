package transaction_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/clinicx/internal/lifecycle"
	"github.com/MrJamesThe3rd/clinicx/internal/transaction"
)

func TestApply_TransitionTable(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	statuses := []transaction.Status{
		transaction.StatusPending,
		transaction.StatusCompleted,
		transaction.StatusCancelled,
		transaction.StatusRefunded,
	}
	events := []transaction.Event{transaction.EventComplete, transaction.EventCancel, transaction.EventRefund}

	legal := func(from transaction.Status, ev transaction.Event, typ transaction.Type) (transaction.Status, bool) {
		switch ev {
		case transaction.EventComplete:
			return transaction.StatusCompleted, from == transaction.StatusPending
		case transaction.EventCancel:
			return transaction.StatusCancelled, from == transaction.StatusPending || from == transaction.StatusCompleted
		case transaction.EventRefund:
			return transaction.StatusRefunded, from == transaction.StatusCompleted && typ == transaction.TypeIncome
		}

		return from, false
	}

	for _, typ := range []transaction.Type{transaction.TypeIncome, transaction.TypeExpense} {
		for _, from := range statuses {
			for _, ev := range events {
				t.Run(fmt.Sprintf("%s/%s/%s", typ, from, ev), func(t *testing.T) {
					orig := &transaction.Transaction{
						Type:   typ,
						Status: from,
						Amount: decimal.NewFromInt(100),
					}
					snapshot := *orig

					got, err := transaction.Apply(orig, ev, now)
					assert.Equal(t, snapshot, *orig)

					want, ok := legal(from, ev, typ)
					if !ok {
						require.ErrorIs(t, err, lifecycle.ErrInvalidTransition)
						assert.Nil(t, got)

						return
					}

					require.NoError(t, err)
					assert.Equal(t, want, got.Status)
					assert.Equal(t, now, got.UpdatedAt)
				})
			}
		}
	}
}

func TestApply_StampsOnce(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	later := created.Add(time.Hour)

	pending := &transaction.Transaction{Type: transaction.TypeIncome, Status: transaction.StatusPending}

	completed, err := transaction.Apply(pending, transaction.EventComplete, created)
	require.NoError(t, err)
	require.NotNil(t, completed.CompletedAt)

	cancelled, err := transaction.Apply(completed, transaction.EventCancel, later)
	require.NoError(t, err)
	assert.Equal(t, created, *cancelled.CompletedAt)
	assert.Equal(t, later, *cancelled.CancelledAt)

	_, err = transaction.Apply(cancelled, transaction.EventCancel, later.Add(time.Hour))
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)
	assert.True(t, transaction.IsTerminal(cancelled.Status))
}

func TestApply_RefundKeepsTimestamps(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	done := now.Add(-time.Hour)

	income := &transaction.Transaction{Type: transaction.TypeIncome, Status: transaction.StatusCompleted, CompletedAt: &done}

	refunded, err := transaction.Apply(income, transaction.EventRefund, now)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusRefunded, refunded.Status)
	assert.Equal(t, &done, refunded.CompletedAt)
	assert.Nil(t, refunded.CancelledAt)
	assert.True(t, transaction.IsTerminal(refunded.Status))
}

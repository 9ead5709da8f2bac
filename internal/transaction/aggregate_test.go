package transaction_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/MrJamesThe3rd/clinicx/internal/transaction"
)

func entry(typ transaction.Type, status transaction.Status, amount string, date time.Time) *transaction.Transaction {
	return &transaction.Transaction{
		Type:   typ,
		Status: status,
		Amount: decimal.RequireFromString(amount),
		Date:   date,
	}
}

func day(d int) time.Time {
	return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC)
}

func TestAggregates_Empty(t *testing.T) {
	w := transaction.Window{Start: new(day(1)), End: new(day(2))}

	assert.True(t, transaction.TotalIncome(nil, w, transaction.StatusCompleted).IsZero())
	assert.True(t, transaction.TotalExpenses(nil, w, transaction.StatusCompleted).IsZero())
	assert.True(t, transaction.Balance(nil, w).IsZero())

	s := transaction.Summarize(nil, transaction.Window{}, "")
	assert.True(t, s.Income.IsZero())
	assert.True(t, s.Expenses.IsZero())
	assert.True(t, s.Balance.IsZero())
}

func TestAggregates(t *testing.T) {
	txs := []*transaction.Transaction{
		entry(transaction.TypeIncome, transaction.StatusCompleted, "150.25", day(1)),
		entry(transaction.TypeIncome, transaction.StatusCompleted, "49.75", day(2)),
		entry(transaction.TypeIncome, transaction.StatusPending, "80", day(2)),
		entry(transaction.TypeIncome, transaction.StatusRefunded, "30", day(2)),
		entry(transaction.TypeExpense, transaction.StatusCompleted, "60.10", day(2)),
		entry(transaction.TypeExpense, transaction.StatusCancelled, "999", day(2)),
		entry(transaction.TypeIncome, transaction.StatusCompleted, "500", day(3)),
	}

	type testCase struct {
		name         string
		window       transaction.Window
		status       transaction.Status
		wantIncome   string
		wantExpenses string
		wantBalance  string
	}

	tests := []testCase{
		{
			name:         "Unbounded",
			status:       transaction.StatusCompleted,
			wantIncome:   "700",
			wantExpenses: "60.10",
			wantBalance:  "639.90",
		},
		{
			name:         "HalfOpenWindowExcludesEnd",
			window:       transaction.Window{Start: new(day(1)), End: new(day(3))},
			status:       transaction.StatusCompleted,
			wantIncome:   "200",
			wantExpenses: "60.10",
			wantBalance:  "139.90",
		},
		{
			name:         "PendingStatusBalanceStaysCompleted",
			window:       transaction.Window{Start: new(day(2))},
			status:       transaction.StatusPending,
			wantIncome:   "80",
			wantExpenses: "0",
			wantBalance:  "489.65",
		},
		{
			name:         "NoMatches",
			window:       transaction.Window{Start: new(day(10)), End: new(day(11))},
			status:       transaction.StatusCompleted,
			wantIncome:   "0",
			wantExpenses: "0",
			wantBalance:  "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := transaction.Summarize(txs, tt.window, tt.status)

			assert.True(t, decimal.RequireFromString(tt.wantIncome).Equal(got.Income), "income %s", got.Income)
			assert.True(t, decimal.RequireFromString(tt.wantExpenses).Equal(got.Expenses), "expenses %s", got.Expenses)
			assert.True(t, decimal.RequireFromString(tt.wantBalance).Equal(got.Balance), "balance %s", got.Balance)
		})
	}
}

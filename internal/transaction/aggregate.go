package transaction

import (
	"time"

	"github.com/shopspring/decimal"
)

// Window is a half-open [Start, End) range over transaction dates. A nil
// bound is unbounded.
type Window struct {
	Start *time.Time
	End   *time.Time
}

func (w Window) Contains(t time.Time) bool {
	if w.Start != nil && t.Before(*w.Start) {
		return false
	}

	if w.End != nil && !t.Before(*w.End) {
		return false
	}

	return true
}

// Summary is the ledger aggregate for a window.
type Summary struct {
	Income   decimal.Decimal
	Expenses decimal.Decimal
	// Balance always uses completed transactions.
	Balance decimal.Decimal
}

func total(txs []*Transaction, typ Type, w Window, status Status) decimal.Decimal {
	sum := decimal.Zero

	for _, t := range txs {
		if t.Type == typ && t.Status == status && w.Contains(t.Date) {
			sum = sum.Add(t.Amount)
		}
	}

	return sum
}

func TotalIncome(txs []*Transaction, w Window, status Status) decimal.Decimal {
	return total(txs, TypeIncome, w, status)
}

func TotalExpenses(txs []*Transaction, w Window, status Status) decimal.Decimal {
	return total(txs, TypeExpense, w, status)
}

func Balance(txs []*Transaction, w Window) decimal.Decimal {
	return TotalIncome(txs, w, StatusCompleted).Sub(TotalExpenses(txs, w, StatusCompleted))
}

// Summarize totals txs for w. An empty status means completed.
func Summarize(txs []*Transaction, w Window, status Status) Summary {
	if status == "" {
		status = StatusCompleted
	}

	return Summary{
		Income:   TotalIncome(txs, w, status),
		Expenses: TotalExpenses(txs, w, status),
		Balance:  Balance(txs, w),
	}
}

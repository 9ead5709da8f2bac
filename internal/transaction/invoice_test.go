package transaction_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/clinicx/internal/lifecycle"
	"github.com/MrJamesThe3rd/clinicx/internal/transaction"
)

func TestInvoicePrefix(t *testing.T) {
	// 23:30 in UTC-5 is already the next UTC day.
	est := time.FixedZone("EST", -5*60*60)
	assert.Equal(t, "INV-20240302", transaction.InvoicePrefix(time.Date(2024, 3, 1, 23, 30, 0, 0, est)))
	assert.Equal(t, "INV-20240301", transaction.InvoicePrefix(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
}

func TestNextInvoiceNumber(t *testing.T) {
	day := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	type testCase struct {
		name    string
		last    string
		want    string
		wantErr error
	}

	tests := []testCase{
		{name: "FirstOfDay", last: "", want: "INV-20240301-0001"},
		{name: "Increment", last: "INV-20240301-0001", want: "INV-20240301-0002"},
		{name: "CarryDigits", last: "INV-20240301-0099", want: "INV-20240301-0100"},
		{name: "LastSlot", last: "INV-20240301-9998", want: "INV-20240301-9999"},
		{name: "Exhausted", last: "INV-20240301-9999", wantErr: lifecycle.ErrSequenceExhausted},
		{name: "OtherDay", last: "INV-20240229-0007"},
		{name: "Malformed", last: "INV-20240301-00x1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := transaction.NextInvoiceNumber(day, tt.last)

			if tt.want == "" {
				require.Error(t, err)

				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
				}

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

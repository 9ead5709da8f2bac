package transaction

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MrJamesThe3rd/clinicx/internal/lifecycle"
)

// ErrDuplicateInvoice is returned by stores when an insert collides with an
// existing invoice number.
var ErrDuplicateInvoice = errors.New("invoice number already taken")

// maxDailyInvoices keeps suffixes at four digits so lexicographic order
// matches numeric order within a day.
const maxDailyInvoices = 9999

// InvoicePrefix returns INV-YYYYMMDD for the UTC day of t.
func InvoicePrefix(t time.Time) string {
	return "INV-" + t.UTC().Format("20060102")
}

// NextInvoiceNumber computes the candidate following last for the day of
// now. last is the greatest invoice number already issued with the same
// prefix, or empty. The result is not reserved: the store's uniqueness
// constraint decides which concurrent caller gets it.
func NextInvoiceNumber(now time.Time, last string) (string, error) {
	prefix := InvoicePrefix(now)
	next := 1

	if last != "" {
		suffix, ok := strings.CutPrefix(last, prefix+"-")
		if !ok {
			return "", fmt.Errorf("invoice %q does not match prefix %s", last, prefix)
		}

		n, err := strconv.Atoi(suffix)
		if err != nil {
			return "", fmt.Errorf("parsing invoice %q: %w", last, err)
		}

		next = n + 1
	}

	if next > maxDailyInvoices {
		return "", fmt.Errorf("%w: %s has reached %d", lifecycle.ErrSequenceExhausted, prefix, maxDailyInvoices)
	}

	return fmt.Sprintf("%s-%04d", prefix, next), nil
}

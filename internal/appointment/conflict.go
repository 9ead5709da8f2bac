package appointment

import (
	"time"

	"github.com/google/uuid"
)

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
// Back-to-back intervals do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// Conflicts returns the active appointments in existing that overlap the
// candidate slot, skipping excludeID. The result never blocks a booking.
func Conflicts(existing []*Appointment, start time.Time, durationMinutes int, excludeID uuid.UUID) []*Appointment {
	end := start.Add(time.Duration(durationMinutes) * time.Minute)

	var out []*Appointment

	for _, a := range existing {
		if !a.Status.IsActive() {
			continue
		}

		if excludeID != uuid.Nil && a.ID == excludeID {
			continue
		}

		if Overlaps(a.Start, a.End(), start, end) {
			out = append(out, a)
		}
	}

	return out
}

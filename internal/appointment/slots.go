package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultSlotStep is the spacing between candidate slot starts.
const DefaultSlotStep = 15 * time.Minute

// Enumerator lists free slots of a given length inside working hours.
type Enumerator struct {
	store AppointmentStore
	step  time.Duration
}

func NewEnumerator(store AppointmentStore, step time.Duration) *Enumerator {
	if step < time.Minute {
		step = DefaultSlotStep
	}
	return &Enumerator{store: store, step: step}
}

// FreeSlots returns every free [start, start+duration) on date, in order.
// A duration longer than the working window yields no slots and no error.
func (e *Enumerator) FreeSlots(ctx context.Context, practitionerID uuid.UUID, date Date, duration time.Duration, hours WorkingHours) ([]TimeInterval, error) {
	active, err := e.store.ActiveAppointments(ctx, practitionerID, date)
	if err != nil {
		return nil, fmt.Errorf("load active appointments: %w", err)
	}
	return enumerateFree(active, date, duration, hours, e.step, hours.Open, 0), nil
}

// enumerateFree walks candidate starts from open in step increments. Only
// starts at or after notBefore are kept; limit <= 0 means no limit.
func enumerateFree(active []Appointment, date Date, duration time.Duration, hours WorkingHours, step time.Duration, notBefore TimeOfDay, limit int) []TimeInterval {
	length := TimeOfDay(duration / time.Minute)
	stride := TimeOfDay(step / time.Minute)
	if length <= 0 || stride <= 0 || int(length) > hours.Minutes() {
		return nil
	}

	var out []TimeInterval
	for start := hours.Open; start <= hours.Close-length; start += stride {
		if start < notBefore {
			continue
		}
		candidate := TimeInterval{Date: date, Start: start, End: start + length}
		if !candidate.Within(hours.Open, hours.Close) {
			continue
		}
		if firstOverlap(active, candidate) != nil {
			continue
		}
		out = append(out, candidate)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

package appointment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Detector finds the appointment that blocks a candidate interval.
type Detector struct {
	store AppointmentStore
}

func NewDetector(store AppointmentStore) *Detector {
	return &Detector{store: store}
}

// Detect re-reads the practitioner's active appointments for the candidate's
// day and returns the earliest-starting one that overlaps, or nil.
func (d *Detector) Detect(ctx context.Context, candidate TimeInterval, practitionerID uuid.UUID) (*Appointment, error) {
	active, err := d.store.ActiveAppointments(ctx, practitionerID, candidate.Date)
	if err != nil {
		return nil, fmt.Errorf("load active appointments: %w", err)
	}
	return firstOverlap(active, candidate), nil
}

// firstOverlap expects active sorted by start time, so the first hit is the
// earliest-starting blocker. Day-bounded sets are small; a linear scan is enough.
func firstOverlap(active []Appointment, candidate TimeInterval) *Appointment {
	for i := range active {
		if active[i].Interval.Overlaps(candidate) {
			a := active[i]
			return &a
		}
	}
	return nil
}

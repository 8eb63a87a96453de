package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound      = errors.New("patient not found")
	ErrPractitionerNotFound = errors.New("practitioner not found")
	ErrAppointmentNotFound  = errors.New("appointment not found")

	// ErrStoreUnavailable marks failures to reach the persistence layer.
	// The core never retries them.
	ErrStoreUnavailable = errors.New("appointment store unavailable")
)

// ConflictError is returned by InsertIfFree when an active appointment
// already overlaps the one being inserted.
type ConflictError struct {
	Blocking Appointment
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("interval %s overlaps appointment %s", e.Blocking.Interval, e.Blocking.ID)
}

// AppointmentStore owns persisted appointments. Implementations must not
// cache across calls: every read reflects the latest committed status.
type AppointmentStore interface {
	// ActiveAppointments returns confirmed and completed appointments for the
	// practitioner on date, ordered by start time.
	ActiveAppointments(ctx context.Context, practitionerID uuid.UUID, date Date) ([]Appointment, error)

	// InsertIfFree checks for overlap and inserts as one atomic unit.
	// A lost race yields *ConflictError.
	InsertIfFree(ctx context.Context, appt Appointment) (*Appointment, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)
}

// PractitionerRegistry is the read-only view of practitioners.
type PractitionerRegistry interface {
	GetPractitionerByID(ctx context.Context, id uuid.UUID) (*Practitioner, error)
	// ListActivePractitioners returns practitioners in stable registry order.
	ListActivePractitioners(ctx context.Context) ([]Practitioner, error)
}

type PatientDirectory interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
}

// Repository contains all storage interactions needed by the service.
type Repository interface {
	AppointmentStore
	PractitionerRegistry
	PatientDirectory

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}

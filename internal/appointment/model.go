package appointment

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusConfirmed   AppointmentStatus = "confirmed"
	StatusCompleted   AppointmentStatus = "completed"
	StatusCancelled   AppointmentStatus = "cancelled"
	StatusNoShow      AppointmentStatus = "no_show"
	StatusRescheduled AppointmentStatus = "rescheduled"
)

// IsActive reports whether an appointment in this status blocks its slot.
func (s AppointmentStatus) IsActive() bool {
	return s == StatusConfirmed || s == StatusCompleted
}

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow, StatusRescheduled:
		return true
	}
	return false
}

// activeStatuses is the set the store filters on.
var activeStatuses = []AppointmentStatus{StatusConfirmed, StatusCompleted}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// WorkingHours is the daily open/close window, applied uniformly to every day.
type WorkingHours struct {
	Open  TimeOfDay
	Close TimeOfDay
}

func (w WorkingHours) IsZero() bool {
	return w.Open == 0 && w.Close == 0
}

func (w WorkingHours) Valid() bool {
	return w.Open.Valid() && w.Close.Valid() && w.Open < w.Close
}

// Minutes is the length of the window.
func (w WorkingHours) Minutes() int {
	return int(w.Close - w.Open)
}

type Practitioner struct {
	ID           uuid.UUID
	Name         string
	Specialty    *string
	Active       bool
	WorkingHours WorkingHours
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Appointment struct {
	ID             uuid.UUID
	PatientID      uuid.UUID
	PractitionerID uuid.UUID
	Interval       TimeInterval
	Status         AppointmentStatus
	Type           string
	Metadata       map[string]string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// BlockingAppointment is the part of a conflicting appointment shown to the caller.
type BlockingAppointment struct {
	AppointmentID      uuid.UUID
	PatientDisplayName string
	Interval           TimeInterval
}

type AlternativePractitioner struct {
	PractitionerID uuid.UUID
	Name           string
	IsFree         bool
}

// ConflictReport is a query result built when a booking collides. It is never persisted.
type ConflictReport struct {
	Blocking                 BlockingAppointment
	AlternativePractitioners []AlternativePractitioner
	AlternativeSlots         []TimeInterval
	NextAvailable            *TimeInterval
}

package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

type CreateAppointmentRequest struct {
	PatientID      string            `json:"patient_id"`
	PractitionerID string            `json:"practitioner_id"`
	Date           string            `json:"date"`
	Start          string            `json:"start"`
	End            string            `json:"end"`
	Type           string            `json:"type,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type ChangeStatusRequest struct {
	Status string `json:"status"`
}

type IntervalResponse struct {
	Date  string `json:"date"`
	Start string `json:"start"`
	End   string `json:"end"`
}

type AppointmentResponse struct {
	ID             uuid.UUID         `json:"id"`
	PatientID      uuid.UUID         `json:"patient_id"`
	PractitionerID uuid.UUID         `json:"practitioner_id"`
	Interval       IntervalResponse  `json:"interval"`
	Status         string            `json:"status"`
	Type           string            `json:"type"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

type AvailabilityResponse struct {
	PractitionerID uuid.UUID        `json:"practitioner_id"`
	Interval       IntervalResponse `json:"interval"`
	Available      bool             `json:"available"`
}

type BlockingAppointmentResponse struct {
	AppointmentID      uuid.UUID        `json:"appointment_id"`
	PatientDisplayName string           `json:"patient_display_name"`
	Interval           IntervalResponse `json:"interval"`
}

type AlternativePractitionerResponse struct {
	PractitionerID uuid.UUID `json:"practitioner_id"`
	Name           string    `json:"name"`
	IsFree         bool      `json:"is_free"`
}

type ConflictReportResponse struct {
	BlockingAppointment      BlockingAppointmentResponse       `json:"blocking_appointment"`
	AlternativePractitioners []AlternativePractitionerResponse `json:"alternative_practitioners"`
	AlternativeSlots         []IntervalResponse                `json:"alternative_slots_same_practitioner"`
	NextAvailableSlot        *IntervalResponse                 `json:"next_available_slot"`
}

type ConflictResponse struct {
	Message string                 `json:"message"`
	Report  ConflictReportResponse `json:"report"`
}

type PractitionerResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Specialty    *string   `json:"specialty,omitempty"`
	WorkingHours struct {
		Open  string `json:"open"`
		Close string `json:"close"`
	} `json:"working_hours"`
}

type SlotsResponse struct {
	PractitionerID  uuid.UUID          `json:"practitioner_id"`
	Date            string             `json:"date"`
	DurationMinutes int                `json:"duration_minutes"`
	Slots           []IntervalResponse `json:"slots"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toInterval(i appointment.TimeInterval) IntervalResponse {
	return IntervalResponse{
		Date:  i.Date.String(),
		Start: i.Start.String(),
		End:   i.End.String(),
	}
}

func toIntervals(in []appointment.TimeInterval) []IntervalResponse {
	out := make([]IntervalResponse, len(in))
	for i, iv := range in {
		out[i] = toInterval(iv)
	}
	return out
}

func toAppointment(a appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:             a.ID,
		PatientID:      a.PatientID,
		PractitionerID: a.PractitionerID,
		Interval:       toInterval(a.Interval),
		Status:         string(a.Status),
		Type:           a.Type,
		Metadata:       a.Metadata,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func toConflict(c appointment.Conflicted) ConflictResponse {
	alts := make([]AlternativePractitionerResponse, len(c.Report.AlternativePractitioners))
	for i, p := range c.Report.AlternativePractitioners {
		alts[i] = AlternativePractitionerResponse{
			PractitionerID: p.PractitionerID,
			Name:           p.Name,
			IsFree:         p.IsFree,
		}
	}

	resp := ConflictResponse{
		Message: c.Message,
		Report: ConflictReportResponse{
			BlockingAppointment: BlockingAppointmentResponse{
				AppointmentID:      c.Report.Blocking.AppointmentID,
				PatientDisplayName: c.Report.Blocking.PatientDisplayName,
				Interval:           toInterval(c.Report.Blocking.Interval),
			},
			AlternativePractitioners: alts,
			AlternativeSlots:         toIntervals(c.Report.AlternativeSlots),
		},
	}
	if c.Report.NextAvailable != nil {
		next := toInterval(*c.Report.NextAvailable)
		resp.Report.NextAvailableSlot = &next
	}
	return resp
}

func toPractitioner(p appointment.Practitioner) PractitionerResponse {
	resp := PractitionerResponse{
		ID:        p.ID,
		Name:      p.Name,
		Specialty: p.Specialty,
	}
	resp.WorkingHours.Open = p.WorkingHours.Open.String()
	resp.WorkingHours.Close = p.WorkingHours.Close.String()
	return resp
}

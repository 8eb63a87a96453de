package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

const maxRequestBody = 1 << 20

func availabilityHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		practitionerID, err := uuid.Parse(q.Get("practitioner_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "practitioner_id must be a valid UUID")
			return
		}

		date, start, end, err := parseIntervalParts(q.Get("date"), q.Get("start"), q.Get("end"))
		if err != nil {
			writeServiceError(w, err)
			return
		}

		free, err := svc.CheckAvailability(r.Context(), practitionerID, date, start, end)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, AvailabilityResponse{
			PractitionerID: practitionerID,
			Interval:       IntervalResponse{Date: date.String(), Start: start.String(), End: end.String()},
			Available:      free,
		})
	}
}

func createAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		practitionerID, err := uuid.Parse(req.PractitionerID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "practitioner_id must be a valid UUID")
			return
		}

		date, start, end, err := parseIntervalParts(req.Date, req.Start, req.End)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		result, err := svc.CreateAppointment(r.Context(), appointment.CreateAppointmentInput{
			PatientID:      patientID,
			PractitionerID: practitionerID,
			Date:           date,
			Start:          start,
			End:            end,
			Type:           req.Type,
			Metadata:       req.Metadata,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		switch res := result.(type) {
		case *appointment.Booked:
			writeJSON(w, http.StatusCreated, toAppointment(res.Appointment))
		case *appointment.Conflicted:
			writeJSON(w, http.StatusConflict, toConflict(*res))
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected booking result")
		}
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointment(*appt))
	}
}

func changeStatusHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req ChangeStatusRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.ChangeStatus(r.Context(), id, appointment.AppointmentStatus(req.Status))
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointment(*appt))
	}
}

func listPractitionersHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		practitioners, err := svc.ListPractitioners(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}

		out := make([]PractitionerResponse, len(practitioners))
		for i, p := range practitioners {
			out[i] = toPractitioner(p)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func freeSlotsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		practitionerID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "id must be a valid UUID")
			return
		}

		q := r.URL.Query()
		date, err := appointment.ParseDate(q.Get("date"))
		if err != nil {
			writeServiceError(w, err)
			return
		}

		duration, err := parseMinutes(q.Get("duration"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_duration", "duration must be whole minutes, as a number or a Go duration such as 30m")
			return
		}

		slots, err := svc.FreeSlots(r.Context(), practitionerID, date, duration)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, SlotsResponse{
			PractitionerID:  practitionerID,
			Date:            date.String(),
			DurationMinutes: int(duration / time.Minute),
			Slots:           toIntervals(slots),
		})
	}
}

func parseIntervalParts(date, start, end string) (appointment.Date, appointment.TimeOfDay, appointment.TimeOfDay, error) {
	d, err := appointment.ParseDate(date)
	if err != nil {
		return appointment.Date{}, 0, 0, err
	}
	s, err := appointment.ParseTimeOfDay(start)
	if err != nil {
		return appointment.Date{}, 0, 0, err
	}
	e, err := appointment.ParseTimeOfDay(end)
	if err != nil {
		return appointment.Date{}, 0, 0, err
	}
	return d, s, e, nil
}

// parseMinutes accepts a bare number of minutes or a duration string that is
// a whole number of minutes.
func parseMinutes(raw string) (time.Duration, error) {
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Minute, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d%time.Minute != 0 {
		return 0, fmt.Errorf("duration %s is not a whole number of minutes", d)
	}
	return d, nil
}

func writeServiceError(w http.ResponseWriter, err error) {
	var validation *appointment.ValidationError

	switch {
	case errors.Is(err, appointment.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, appointment.ErrPractitionerNotFound):
		writeError(w, http.StatusNotFound, "practitioner_not_found", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, appointment.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, appointment.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "appointment store is unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

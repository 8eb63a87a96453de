package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

const (
	EventAppointmentCreated       = "APPOINTMENT_CREATED"
	EventAppointmentConflict      = "APPOINTMENT_CONFLICT"
	EventAppointmentStatusChanged = "APPOINTMENT_STATUS_CHANGED"
)

// ConflictMessage is the single sentence returned with every conflict report.
const ConflictMessage = "This time slot is not available."

const defaultAppointmentType = "consultation"

var ErrInvalidStatusTransition = errors.New("invalid status transition")

// BookingState names the steps a booking attempt goes through.
type BookingState string

const (
	StateValidating BookingState = "validating"
	StateChecking   BookingState = "checking"
	StateCommitting BookingState = "committing"
	StateCommitted  BookingState = "committed"
	StateBlocked    BookingState = "blocked"
	StateReporting  BookingState = "reporting"
)

// BookingResult is either *Booked or *Conflicted.
type BookingResult interface {
	bookingResult()
}

type Booked struct {
	Appointment Appointment
}

type Conflicted struct {
	Report  ConflictReport
	Message string
}

func (*Booked) bookingResult()     {}
func (*Conflicted) bookingResult() {}

type CreateAppointmentInput struct {
	PatientID      uuid.UUID
	PractitionerID uuid.UUID
	Date           Date
	Start          TimeOfDay
	End            TimeOfDay
	Type           string
	Metadata       map[string]string
}

type Service struct {
	repo        Repository
	locker      redisclient.Locker
	settings    Settings
	detector    *Detector
	enumerator  *Enumerator
	suggestions *SuggestionBuilder
	log         zerolog.Logger
	now         func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, settings Settings, log zerolog.Logger) *Service {
	settings = settings.withDefaults()
	return &Service{
		repo:        repo,
		locker:      locker,
		settings:    settings,
		detector:    NewDetector(repo),
		enumerator:  NewEnumerator(repo, settings.SlotStep),
		suggestions: NewSuggestionBuilder(repo, settings),
		log:         log.With().Str("component", "booking").Logger(),
		now:         time.Now,
	}
}

// CheckAvailability is a non-committing probe: true when no active
// appointment overlaps the interval.
func (s *Service) CheckAvailability(ctx context.Context, practitionerID uuid.UUID, date Date, start, end TimeOfDay) (bool, error) {
	interval, err := NewTimeInterval(date, start, end)
	if err != nil {
		return false, err
	}
	if _, err := s.loadPractitioner(ctx, practitionerID); err != nil {
		return false, err
	}
	blocking, err := s.detector.Detect(ctx, interval, practitionerID)
	if err != nil {
		return false, err
	}
	return blocking == nil, nil
}

// CreateAppointment validates, pre-checks and commits a booking. A collision,
// whether seen by the pre-check or by the store at commit, is returned as
// *Conflicted with a full report rather than as an error.
func (s *Service) CreateAppointment(ctx context.Context, in CreateAppointmentInput) (BookingResult, error) {
	log := s.log.With().
		Str("practitioner_id", in.PractitionerID.String()).
		Str("patient_id", in.PatientID.String()).
		Logger()

	log.Debug().Str("state", string(StateValidating)).Msg("booking attempt")
	interval, err := s.validate(ctx, in)
	if err != nil {
		return nil, err
	}
	log = log.With().Str("interval", interval.String()).Logger()

	log.Debug().Str("state", string(StateChecking)).Msg("booking attempt")
	blocking, err := s.detector.Detect(ctx, interval, in.PractitionerID)
	if err != nil {
		return nil, err
	}
	if blocking != nil {
		return s.reportConflict(ctx, log, in, interval, *blocking, "pre_check")
	}

	log.Debug().Str("state", string(StateCommitting)).Msg("booking attempt")
	appt := Appointment{
		ID:             uuid.New(),
		PatientID:      in.PatientID,
		PractitionerID: in.PractitionerID,
		Interval:       interval,
		Status:         StatusConfirmed,
		Type:           in.Type,
		Metadata:       in.Metadata,
	}
	if appt.Type == "" {
		appt.Type = defaultAppointmentType
	}

	created, err := s.commit(ctx, log, appt)

	var conflict *ConflictError
	switch {
	case err == nil:
	case errors.As(err, &conflict):
		return s.reportConflict(ctx, log, in, interval, conflict.Blocking, "commit")
	default:
		log.Error().Err(err).Msg("commit appointment failed")
		return nil, fmt.Errorf("commit appointment: %w", err)
	}

	log.Info().
		Str("state", string(StateCommitted)).
		Str("appointment_id", created.ID.String()).
		Msg("appointment booked")

	s.logEvent(ctx, created.ID, EventAppointmentCreated, map[string]any{
		"practitioner_id": created.PractitionerID.String(),
		"patient_id":      created.PatientID.String(),
		"date":            created.Interval.Date.String(),
		"start":           created.Interval.Start.String(),
		"end":             created.Interval.End.String(),
	})

	return &Booked{Appointment: *created}, nil
}

// commit inserts under the practitioner-day calendar lock. InsertIfFree is
// atomic on its own, so a lock that cannot be taken (contention or an
// unreachable Redis) falls through to the store instead of failing the booking.
func (s *Service) commit(ctx context.Context, log zerolog.Logger, appt Appointment) (*Appointment, error) {
	var (
		created *Appointment
		entered bool
	)
	err := s.locker.WithLock(ctx, calendarLockKey(appt.PractitionerID, appt.Interval.Date), func(lockCtx context.Context) error {
		entered = true
		a, err := s.repo.InsertIfFree(lockCtx, appt)
		if err != nil {
			return err
		}
		created = a
		return nil
	})
	if entered || ctx.Err() != nil {
		return created, err
	}

	log.Warn().Err(err).Msg("calendar lock unavailable, committing through the store")
	return s.repo.InsertIfFree(ctx, appt)
}

func (s *Service) validate(ctx context.Context, in CreateAppointmentInput) (TimeInterval, error) {
	if in.PatientID == uuid.Nil {
		return TimeInterval{}, validationErrorf("patient_id is required")
	}
	if in.PractitionerID == uuid.Nil {
		return TimeInterval{}, validationErrorf("practitioner_id is required")
	}
	interval, err := NewTimeInterval(in.Date, in.Start, in.End)
	if err != nil {
		return TimeInterval{}, err
	}
	today := DateOf(s.now().In(s.settings.Location))
	if interval.Date.Before(today) {
		return TimeInterval{}, validationErrorf("date %s is in the past", interval.Date)
	}
	if len(strings.TrimSpace(in.Type)) > 64 {
		return TimeInterval{}, validationErrorf("type too long")
	}

	if _, err := s.loadPractitioner(ctx, in.PractitionerID); err != nil {
		return TimeInterval{}, err
	}
	if _, err := s.repo.GetPatientByID(ctx, in.PatientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return TimeInterval{}, invalidReference(err)
		}
		return TimeInterval{}, fmt.Errorf("load patient: %w", err)
	}
	return interval, nil
}

func (s *Service) loadPractitioner(ctx context.Context, id uuid.UUID) (*Practitioner, error) {
	p, err := s.repo.GetPractitionerByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrPractitionerNotFound) {
			return nil, invalidReference(err)
		}
		return nil, fmt.Errorf("load practitioner: %w", err)
	}
	if !p.Active {
		return nil, validationErrorf("practitioner %s is not active", id)
	}
	return p, nil
}

func (s *Service) reportConflict(ctx context.Context, log zerolog.Logger, in CreateAppointmentInput, interval TimeInterval, blocking Appointment, stage string) (BookingResult, error) {
	log.Debug().Str("state", string(StateBlocked)).Str("stage", stage).Msg("booking attempt")

	report, err := s.suggestions.BuildReport(ctx, BookingRequest{PractitionerID: in.PractitionerID, Interval: interval}, blocking)
	if err != nil {
		return nil, fmt.Errorf("build conflict report: %w", err)
	}

	log.Info().
		Str("state", string(StateReporting)).
		Str("stage", stage).
		Str("blocking_id", blocking.ID.String()).
		Int("alternative_slots", len(report.AlternativeSlots)).
		Bool("next_available", report.NextAvailable != nil).
		Msg("booking conflict")

	s.logEvent(ctx, blocking.ID, EventAppointmentConflict, map[string]any{
		"practitioner_id": in.PractitionerID.String(),
		"patient_id":      in.PatientID.String(),
		"requested":       interval.String(),
		"stage":           stage,
	})

	return &Conflicted{Report: *report, Message: ConflictMessage}, nil
}

// FreeSlots lists free slots for a practitioner using their working hours.
func (s *Service) FreeSlots(ctx context.Context, practitionerID uuid.UUID, date Date, duration time.Duration) ([]TimeInterval, error) {
	if duration < time.Minute {
		return nil, validationErrorf("duration must be at least one minute")
	}
	if date.IsZero() {
		return nil, validationErrorf("date is required")
	}
	p, err := s.loadPractitioner(ctx, practitionerID)
	if err != nil {
		return nil, err
	}
	return s.enumerator.FreeSlots(ctx, practitionerID, date, duration, s.settings.HoursFor(*p))
}

func (s *Service) ListPractitioners(ctx context.Context) ([]Practitioner, error) {
	practitioners, err := s.repo.ListActivePractitioners(ctx)
	if err != nil {
		return nil, fmt.Errorf("list practitioners: %w", err)
	}
	for i := range practitioners {
		practitioners[i].WorkingHours = s.settings.HoursFor(practitioners[i])
	}
	return practitioners, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

// allowedTransitions covers the workflow moves this service accepts.
var allowedTransitions = map[AppointmentStatus][]AppointmentStatus{
	StatusConfirmed: {StatusCompleted, StatusCancelled, StatusNoShow, StatusRescheduled},
}

// ChangeStatus moves an appointment to a new status with compare-and-set
// semantics. Freed slots are visible to the very next conflict check.
func (s *Service) ChangeStatus(ctx context.Context, id uuid.UUID, to AppointmentStatus) (*Appointment, error) {
	if !to.Valid() {
		return nil, validationErrorf("invalid status %q", to)
	}
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if !transitionAllowed(appt.Status, to) {
		return nil, ErrInvalidStatusTransition
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, appt.Status, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// status changed underneath us
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	s.logEvent(ctx, id, EventAppointmentStatusChanged, map[string]any{
		"from": string(appt.Status),
		"to":   string(to),
	})
	return updated, nil
}

func transitionAllowed(from, to AppointmentStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Warn().Err(err).
			Str("event_type", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to insert event log")
	}
}

func calendarLockKey(practitionerID uuid.UUID, date Date) string {
	return fmt.Sprintf("calendar:%s:%s", practitionerID, date)
}

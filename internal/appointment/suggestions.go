package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const unknownPatientName = "Unknown patient"

// BookingRequest is the practitioner and interval a caller asked for.
type BookingRequest struct {
	PractitionerID uuid.UUID
	Interval       TimeInterval
}

// SuggestionBuilder assembles a ConflictReport from three read-only searches.
type SuggestionBuilder struct {
	repo     Repository
	detector *Detector
	settings Settings
}

func NewSuggestionBuilder(repo Repository, settings Settings) *SuggestionBuilder {
	return &SuggestionBuilder{
		repo:     repo,
		detector: NewDetector(repo),
		settings: settings.withDefaults(),
	}
}

// BuildReport runs the alternative-practitioner, same-day and next-available
// searches concurrently. The requested day's active set is read once and
// shared by the same-day and day-0 searches.
func (b *SuggestionBuilder) BuildReport(ctx context.Context, requested BookingRequest, blocking Appointment) (*ConflictReport, error) {
	practitioner, err := b.repo.GetPractitionerByID(ctx, requested.PractitionerID)
	if err != nil {
		return nil, fmt.Errorf("load practitioner: %w", err)
	}
	hours := b.settings.HoursFor(*practitioner)
	duration := time.Duration(requested.Interval.Duration()) * time.Minute

	dayActive, err := b.repo.ActiveAppointments(ctx, requested.PractitionerID, requested.Interval.Date)
	if err != nil {
		return nil, fmt.Errorf("load active appointments: %w", err)
	}

	report := &ConflictReport{
		AlternativeSlots: enumerateFree(dayActive, requested.Interval.Date, duration, hours, b.settings.SlotStep, hours.Open, b.settings.SuggestionLimit),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		view, err := b.blockingView(gctx, blocking)
		if err != nil {
			return err
		}
		report.Blocking = view
		return nil
	})

	g.Go(func() error {
		alts, err := b.alternativePractitioners(gctx, requested)
		if err != nil {
			return err
		}
		report.AlternativePractitioners = alts
		return nil
	})

	g.Go(func() error {
		next, err := b.nextAvailable(gctx, requested, dayActive, duration, hours)
		if err != nil {
			return err
		}
		report.NextAvailable = next
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return report, nil
}

func (b *SuggestionBuilder) blockingView(ctx context.Context, blocking Appointment) (BlockingAppointment, error) {
	view := BlockingAppointment{
		AppointmentID:      blocking.ID,
		PatientDisplayName: unknownPatientName,
		Interval:           blocking.Interval,
	}
	patient, err := b.repo.GetPatientByID(ctx, blocking.PatientID)
	switch {
	case err == nil:
		view.PatientDisplayName = patient.Name
	case errors.Is(err, ErrPatientNotFound):
	default:
		return BlockingAppointment{}, fmt.Errorf("load blocking patient: %w", err)
	}
	return view, nil
}

// alternativePractitioners checks every other active practitioner for the
// same interval. A practitioner whose hours do not cover it is never free. Output keeps registry order regardless of completion order.
func (b *SuggestionBuilder) alternativePractitioners(ctx context.Context, requested BookingRequest) ([]AlternativePractitioner, error) {
	practitioners, err := b.repo.ListActivePractitioners(ctx)
	if err != nil {
		return nil, fmt.Errorf("list practitioners: %w", err)
	}

	others := make([]Practitioner, 0, len(practitioners))
	for _, p := range practitioners {
		if p.ID != requested.PractitionerID {
			others = append(others, p)
		}
	}

	out := make([]AlternativePractitioner, len(others))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.settings.PractitionerFanout)
	for i, p := range others {
		g.Go(func() error {
			out[i] = AlternativePractitioner{PractitionerID: p.ID, Name: p.Name}

			hours := b.settings.HoursFor(p)
			if !requested.Interval.Within(hours.Open, hours.Close) {
				return nil
			}
			blocker, err := b.detector.Detect(gctx, requested.Interval, p.ID)
			if err != nil {
				return fmt.Errorf("check practitioner %s: %w", p.ID, err)
			}
			out[i].IsFree = blocker == nil
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// nextAvailable searches day 0 from the requested start (inclusive), then each
// following day's full window up to the horizon.
func (b *SuggestionBuilder) nextAvailable(ctx context.Context, requested BookingRequest, dayActive []Appointment, duration time.Duration, hours WorkingHours) (*TimeInterval, error) {
	day := requested.Interval.Date
	if found := enumerateFree(dayActive, day, duration, hours, b.settings.SlotStep, requested.Interval.Start, 1); len(found) > 0 {
		return &found[0], nil
	}

	for offset := 1; offset < b.settings.SearchHorizonDays; offset++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		date := day.AddDays(offset)
		active, err := b.repo.ActiveAppointments(ctx, requested.PractitionerID, date)
		if err != nil {
			return nil, fmt.Errorf("load active appointments for %s: %w", date, err)
		}
		if found := enumerateFree(active, date, duration, hours, b.settings.SlotStep, hours.Open, 1); len(found) > 0 {
			return &found[0], nil
		}
	}
	return nil, nil
}

package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

type scenario struct {
	repo     *MemoryRepository
	p, q, r  Practitioner
	patient  Patient
	blocking Appointment
}

// newScenario: P works 09:00-17:00 with one booking 10:00-10:30 on
// 2024-06-01. Q is free, R is busy at the same time, S is inactive.
func newScenario(t *testing.T) scenario {
	t.Helper()
	repo := NewMemoryRepository()
	s := scenario{repo: repo}
	s.p = addPractitioner(repo, "Dr. Primary", true)
	s.q = addPractitioner(repo, "Dr. Quiet", true)
	s.r = addPractitioner(repo, "Dr. Rushed", true)
	addPractitioner(repo, "Dr. Sabbatical", false)
	s.patient = addPatient(repo, "Ada Lovelace")

	s.blocking = putConfirmed(repo, s.p.ID, s.patient.ID, mustInterval(t, "2024-06-01", "10:00", "10:30"))
	putConfirmed(repo, s.r.ID, s.patient.ID, mustInterval(t, "2024-06-01", "09:45", "10:15"))
	return s
}

func (s scenario) request(t *testing.T, start, end string) BookingRequest {
	return BookingRequest{PractitionerID: s.p.ID, Interval: mustInterval(t, "2024-06-01", start, end)}
}

func TestBuildReportBlockedMorningScenario(t *testing.T) {
	s := newScenario(t)
	builder := NewSuggestionBuilder(s.repo, testSettings(30*time.Minute))

	report, err := builder.BuildReport(context.Background(), s.request(t, "10:00", "10:30"), s.blocking)
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}

	if report.Blocking.AppointmentID != s.blocking.ID || report.Blocking.Interval != mustInterval(t, "2024-06-01", "10:00", "10:30") {
		t.Fatalf("unexpected blocking view %+v", report.Blocking)
	}
	if report.Blocking.PatientDisplayName != "Ada Lovelace" {
		t.Fatalf("unexpected patient name %q", report.Blocking.PatientDisplayName)
	}

	wantSlots := []TimeInterval{
		mustInterval(t, "2024-06-01", "09:00", "09:30"),
		mustInterval(t, "2024-06-01", "09:30", "10:00"),
		mustInterval(t, "2024-06-01", "10:30", "11:00"),
		mustInterval(t, "2024-06-01", "11:00", "11:30"),
		mustInterval(t, "2024-06-01", "11:30", "12:00"),
	}
	if !sameIntervals(report.AlternativeSlots, wantSlots) {
		t.Fatalf("alternative slots:\n got %v\nwant %v", report.AlternativeSlots, wantSlots)
	}

	if report.NextAvailable == nil || *report.NextAvailable != mustInterval(t, "2024-06-01", "10:30", "11:00") {
		t.Fatalf("unexpected next available %v", report.NextAvailable)
	}
}

func TestBuildReportAlternativePractitionersInRegistryOrder(t *testing.T) {
	s := newScenario(t)
	builder := NewSuggestionBuilder(s.repo, testSettings(DefaultSlotStep))

	report, err := builder.BuildReport(context.Background(), s.request(t, "10:00", "10:30"), s.blocking)
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}

	want := []AlternativePractitioner{
		{PractitionerID: s.q.ID, Name: s.q.Name, IsFree: true},
		{PractitionerID: s.r.ID, Name: s.r.Name, IsFree: false},
	}
	if len(report.AlternativePractitioners) != len(want) {
		t.Fatalf("expected %d alternatives, got %+v", len(want), report.AlternativePractitioners)
	}
	for i := range want {
		if report.AlternativePractitioners[i] != want[i] {
			t.Fatalf("alternative %d: got %+v want %+v", i, report.AlternativePractitioners[i], want[i])
		}
	}
}

func TestBuildReportAlternativeOutsideWorkingHoursIsNotFree(t *testing.T) {
	s := newScenario(t)
	late := Practitioner{
		ID:           uuid.New(),
		Name:         "Dr. Afternoon",
		Active:       true,
		WorkingHours: WorkingHours{Open: NewTimeOfDay(13, 0), Close: NewTimeOfDay(18, 0)},
	}
	s.repo.AddPractitioner(late)
	builder := NewSuggestionBuilder(s.repo, testSettings(DefaultSlotStep))

	report, err := builder.BuildReport(context.Background(), s.request(t, "10:00", "10:30"), s.blocking)
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}

	if len(report.AlternativePractitioners) != 3 {
		t.Fatalf("expected 3 alternatives, got %+v", report.AlternativePractitioners)
	}
	got := report.AlternativePractitioners[2]
	if got.PractitionerID != late.ID || got.IsFree {
		t.Fatalf("practitioner off shift reported as %+v", got)
	}
	if !report.AlternativePractitioners[0].IsFree {
		t.Fatalf("on-shift practitioner should stay free: %+v", report.AlternativePractitioners[0])
	}
}

func TestBuildReportTruncatesSameDaySlots(t *testing.T) {
	s := newScenario(t)
	builder := NewSuggestionBuilder(s.repo, testSettings(DefaultSlotStep))

	report, err := builder.BuildReport(context.Background(), s.request(t, "10:00", "10:30"), s.blocking)
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}

	want := []TimeInterval{
		mustInterval(t, "2024-06-01", "09:00", "09:30"),
		mustInterval(t, "2024-06-01", "09:15", "09:45"),
		mustInterval(t, "2024-06-01", "09:30", "10:00"),
		mustInterval(t, "2024-06-01", "10:30", "11:00"),
		mustInterval(t, "2024-06-01", "10:45", "11:15"),
	}
	if !sameIntervals(report.AlternativeSlots, want) {
		t.Fatalf("alternative slots:\n got %v\nwant %v", report.AlternativeSlots, want)
	}
}

func TestBuildReportNextAvailableRollsToNextDay(t *testing.T) {
	repo := NewMemoryRepository()
	p := addPractitioner(repo, "Dr. Full", true)
	patient := addPatient(repo, "Pat")
	blocking := putConfirmed(repo, p.ID, patient.ID, mustInterval(t, "2024-06-01", "10:00", "17:00"))
	putConfirmed(repo, p.ID, patient.ID, mustInterval(t, "2024-06-02", "09:00", "09:45"))

	builder := NewSuggestionBuilder(repo, testSettings(DefaultSlotStep))
	report, err := builder.BuildReport(context.Background(), BookingRequest{
		PractitionerID: p.ID,
		Interval:       mustInterval(t, "2024-06-01", "14:00", "14:30"),
	}, blocking)
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}

	// 09:00-10:00 is free on day 0 but precedes the requested start.
	if report.NextAvailable == nil || *report.NextAvailable != mustInterval(t, "2024-06-02", "09:45", "10:15") {
		t.Fatalf("unexpected next available %v", report.NextAvailable)
	}
	if len(report.AlternativeSlots) == 0 || report.AlternativeSlots[0] != mustInterval(t, "2024-06-01", "09:00", "09:30") {
		t.Fatalf("same-day slots should still list the morning, got %v", report.AlternativeSlots)
	}
}

func TestBuildReportNoNextAvailableWithinHorizon(t *testing.T) {
	repo := NewMemoryRepository()
	p := addPractitioner(repo, "Dr. Booked", true)
	patient := addPatient(repo, "Pat")
	start := mustDate(t, "2024-06-01")

	var blocking Appointment
	for offset := 0; offset < 14; offset++ {
		a := putConfirmed(repo, p.ID, patient.ID, TimeInterval{Date: start.AddDays(offset), Start: NewTimeOfDay(9, 0), End: NewTimeOfDay(17, 0)})
		if offset == 0 {
			blocking = a
		}
	}

	builder := NewSuggestionBuilder(repo, testSettings(DefaultSlotStep))
	report, err := builder.BuildReport(context.Background(), BookingRequest{
		PractitionerID: p.ID,
		Interval:       mustInterval(t, "2024-06-01", "09:00", "09:30"),
	}, blocking)
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}
	if report.NextAvailable != nil {
		t.Fatalf("day 14 is outside the horizon, got %s", report.NextAvailable)
	}
	if len(report.AlternativeSlots) != 0 {
		t.Fatalf("expected no same-day slots, got %v", report.AlternativeSlots)
	}
}

// bruteForceNext scans every minute of every day in the horizon.
func bruteForceNext(t *testing.T, repo *MemoryRepository, req BookingRequest, hours WorkingHours, step time.Duration, horizon int) *TimeInterval {
	t.Helper()
	length := TimeOfDay(req.Interval.Duration())
	for offset := 0; offset < horizon; offset++ {
		date := req.Interval.Date.AddDays(offset)
		active, err := repo.ActiveAppointments(context.Background(), req.PractitionerID, date)
		if err != nil {
			t.Fatalf("ActiveAppointments: %v", err)
		}
		for start := hours.Open; start+length <= hours.Close; start += TimeOfDay(step / time.Minute) {
			if offset == 0 && start < req.Interval.Start {
				continue
			}
			c := TimeInterval{Date: date, Start: start, End: start + length}
			free := true
			for _, a := range active {
				if a.Interval.Overlaps(c) {
					free = false
					break
				}
			}
			if free {
				return &c
			}
		}
	}
	return nil
}

func TestNextAvailableIsEarliestAcrossHorizon(t *testing.T) {
	repo := NewMemoryRepository()
	p := addPractitioner(repo, "Dr. Patchy", true)
	patient := addPatient(repo, "Pat")
	day0 := mustDate(t, "2024-06-01")

	// Fill day 0 from 11:00, leave scattered gaps on following days.
	blocking := putConfirmed(repo, p.ID, patient.ID, TimeInterval{Date: day0, Start: NewTimeOfDay(11, 0), End: NewTimeOfDay(17, 0)})
	putConfirmed(repo, p.ID, patient.ID, TimeInterval{Date: day0.AddDays(1), Start: NewTimeOfDay(9, 0), End: NewTimeOfDay(13, 20)})
	putConfirmed(repo, p.ID, patient.ID, TimeInterval{Date: day0.AddDays(1), Start: NewTimeOfDay(13, 50), End: NewTimeOfDay(17, 0)})
	putConfirmed(repo, p.ID, patient.ID, TimeInterval{Date: day0.AddDays(2), Start: NewTimeOfDay(12, 0), End: NewTimeOfDay(12, 30)})

	for _, tc := range []struct{ start, end string }{
		{"11:00", "11:30"},
		{"11:00", "11:45"},
		{"12:00", "13:00"},
		{"16:00", "17:00"},
	} {
		req := BookingRequest{PractitionerID: p.ID, Interval: mustInterval(t, "2024-06-01", tc.start, tc.end)}
		for _, step := range []time.Duration{5 * time.Minute, 15 * time.Minute, 30 * time.Minute} {
			builder := NewSuggestionBuilder(repo, testSettings(step))
			report, err := builder.BuildReport(context.Background(), req, blocking)
			if err != nil {
				t.Fatalf("BuildReport: %v", err)
			}
			want := bruteForceNext(t, repo, req, clinicHours(), step, 14)
			switch {
			case want == nil && report.NextAvailable != nil:
				t.Fatalf("%s step %s: expected none, got %s", req.Interval, step, report.NextAvailable)
			case want != nil && (report.NextAvailable == nil || *report.NextAvailable != *want):
				t.Fatalf("%s step %s: expected %s, got %v", req.Interval, step, want, report.NextAvailable)
			}
		}
	}
}

func TestBuildReportUnknownBlockingPatient(t *testing.T) {
	repo := NewMemoryRepository()
	p := addPractitioner(repo, "Dr. Ghost", true)
	blocking := putConfirmed(repo, p.ID, uuid.New(), mustInterval(t, "2024-06-01", "10:00", "10:30"))

	report, err := NewSuggestionBuilder(repo, testSettings(DefaultSlotStep)).BuildReport(context.Background(), BookingRequest{
		PractitionerID: p.ID,
		Interval:       mustInterval(t, "2024-06-01", "10:00", "10:30"),
	}, blocking)
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}
	if report.Blocking.PatientDisplayName != unknownPatientName {
		t.Fatalf("expected placeholder name, got %q", report.Blocking.PatientDisplayName)
	}
	if len(report.AlternativePractitioners) != 0 {
		t.Fatalf("sole practitioner should have no alternatives, got %+v", report.AlternativePractitioners)
	}
}

func TestBuildReportUsesPractitionerHours(t *testing.T) {
	repo := NewMemoryRepository()
	p := Practitioner{
		ID:           uuid.New(),
		Name:         "Dr. Early",
		Active:       true,
		WorkingHours: WorkingHours{Open: NewTimeOfDay(7, 0), Close: NewTimeOfDay(9, 0)},
	}
	repo.AddPractitioner(p)
	patient := addPatient(repo, "Pat")
	blocking := putConfirmed(repo, p.ID, patient.ID, mustInterval(t, "2024-06-01", "07:00", "08:00"))

	report, err := NewSuggestionBuilder(repo, testSettings(time.Hour)).BuildReport(context.Background(), BookingRequest{
		PractitionerID: p.ID,
		Interval:       mustInterval(t, "2024-06-01", "07:00", "08:00"),
	}, blocking)
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}

	want := []TimeInterval{mustInterval(t, "2024-06-01", "08:00", "09:00")}
	if !sameIntervals(report.AlternativeSlots, want) {
		t.Fatalf("expected %v, got %v", want, report.AlternativeSlots)
	}
}

package appointment

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func mustDate(t *testing.T, s string) Date {
	t.Helper()
	d, err := ParseDate(s)
	if err != nil {
		t.Fatalf("parse date %q: %v", s, err)
	}
	return d
}

func mustTime(t *testing.T, s string) TimeOfDay {
	t.Helper()
	tod, err := ParseTimeOfDay(s)
	if err != nil {
		t.Fatalf("parse time %q: %v", s, err)
	}
	return tod
}

func mustInterval(t *testing.T, date, start, end string) TimeInterval {
	t.Helper()
	i, err := NewTimeInterval(mustDate(t, date), mustTime(t, start), mustTime(t, end))
	if err != nil {
		t.Fatalf("interval %s %s-%s: %v", date, start, end, err)
	}
	return i
}

func clinicHours() WorkingHours {
	return WorkingHours{Open: NewTimeOfDay(9, 0), Close: NewTimeOfDay(17, 0)}
}

func addPractitioner(repo *MemoryRepository, name string, active bool) Practitioner {
	p := Practitioner{
		ID:           uuid.New(),
		Name:         name,
		Active:       active,
		WorkingHours: clinicHours(),
	}
	repo.AddPractitioner(p)
	return p
}

func addPatient(repo *MemoryRepository, name string) Patient {
	p := Patient{ID: uuid.New(), Name: name}
	repo.AddPatient(p)
	return p
}

func putConfirmed(repo *MemoryRepository, practitionerID, patientID uuid.UUID, interval TimeInterval) Appointment {
	a := Appointment{
		ID:             uuid.New(),
		PatientID:      patientID,
		PractitionerID: practitionerID,
		Interval:       interval,
		Status:         StatusConfirmed,
		Type:           defaultAppointmentType,
	}
	repo.PutAppointment(a)
	return a
}

func testSettings(step time.Duration) Settings {
	s := DefaultSettings()
	s.SlotStep = step
	s.Location = time.UTC
	return s
}

func sameIntervals(a, b []TimeInterval) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

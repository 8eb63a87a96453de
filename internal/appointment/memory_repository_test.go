package appointment

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestMemoryInsertIfFreeRejectsOverlap(t *testing.T) {
	repo := NewMemoryRepository()
	p := addPractitioner(repo, "Dr. Mem", true)
	patient := addPatient(repo, "Pat")
	existing := putConfirmed(repo, p.ID, patient.ID, mustInterval(t, "2024-06-01", "10:00", "10:30"))

	_, err := repo.InsertIfFree(context.Background(), Appointment{
		PatientID:      patient.ID,
		PractitionerID: p.ID,
		Interval:       mustInterval(t, "2024-06-01", "10:15", "10:45"),
		Status:         StatusConfirmed,
	})
	var conflict *ConflictError
	if !errors.As(err, &conflict) || conflict.Blocking.ID != existing.ID {
		t.Fatalf("expected conflict with %s, got %v", existing.ID, err)
	}

	created, err := repo.InsertIfFree(context.Background(), Appointment{
		PatientID:      patient.ID,
		PractitionerID: p.ID,
		Interval:       mustInterval(t, "2024-06-01", "10:30", "11:00"),
		Status:         StatusConfirmed,
	})
	if err != nil {
		t.Fatalf("back-to-back insert: %v", err)
	}
	if created.ID == uuid.Nil || created.CreatedAt.IsZero() {
		t.Fatalf("insert should assign id and timestamps: %+v", created)
	}
}

func TestMemoryActiveAppointmentsSortedAndFiltered(t *testing.T) {
	repo := NewMemoryRepository()
	p := addPractitioner(repo, "Dr. Mem", true)
	patient := addPatient(repo, "Pat")

	putConfirmed(repo, p.ID, patient.ID, mustInterval(t, "2024-06-01", "14:00", "14:30"))
	putConfirmed(repo, p.ID, patient.ID, mustInterval(t, "2024-06-01", "09:00", "09:30"))
	repo.PutAppointment(Appointment{
		ID:             uuid.New(),
		PatientID:      patient.ID,
		PractitionerID: p.ID,
		Interval:       mustInterval(t, "2024-06-01", "11:00", "11:30"),
		Status:         StatusNoShow,
	})
	repo.PutAppointment(Appointment{
		ID:             uuid.New(),
		PatientID:      patient.ID,
		PractitionerID: p.ID,
		Interval:       mustInterval(t, "2024-06-01", "12:00", "12:30"),
		Status:         StatusCompleted,
	})

	active, err := repo.ActiveAppointments(context.Background(), p.ID, mustDate(t, "2024-06-01"))
	if err != nil {
		t.Fatalf("ActiveAppointments: %v", err)
	}
	if len(active) != 3 {
		t.Fatalf("expected 3 active, got %d", len(active))
	}
	for i := 1; i < len(active); i++ {
		if active[i].Interval.Start < active[i-1].Interval.Start {
			t.Fatalf("not sorted by start: %s before %s", active[i-1].Interval, active[i].Interval)
		}
	}
}

func TestMemoryUpdateStatusCompareAndSet(t *testing.T) {
	repo := NewMemoryRepository()
	p := addPractitioner(repo, "Dr. Mem", true)
	patient := addPatient(repo, "Pat")
	a := putConfirmed(repo, p.ID, patient.ID, mustInterval(t, "2024-06-01", "10:00", "10:30"))

	if _, err := repo.UpdateAppointmentStatus(context.Background(), a.ID, StatusCompleted, StatusCancelled); !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("stale from-status must not apply, got %v", err)
	}

	updated, err := repo.UpdateAppointmentStatus(context.Background(), a.ID, StatusConfirmed, StatusCancelled)
	if err != nil || updated.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %+v %v", updated, err)
	}

	// the freed slot is taken, so reactivating must conflict
	other := putConfirmed(repo, p.ID, patient.ID, mustInterval(t, "2024-06-01", "10:00", "10:30"))
	_, err = repo.UpdateAppointmentStatus(context.Background(), a.ID, StatusCancelled, StatusConfirmed)
	var conflict *ConflictError
	if !errors.As(err, &conflict) || conflict.Blocking.ID != other.ID {
		t.Fatalf("expected conflict with %s, got %v", other.ID, err)
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	repo := NewMemoryRepository()
	p := addPractitioner(repo, "Dr. Mem", true)
	patient := addPatient(repo, "Pat")

	created, err := repo.InsertIfFree(context.Background(), Appointment{
		PatientID:      patient.ID,
		PractitionerID: p.ID,
		Interval:       mustInterval(t, "2024-06-01", "10:00", "10:30"),
		Status:         StatusConfirmed,
		Metadata:       map[string]string{"room": "1"},
	})
	if err != nil {
		t.Fatalf("InsertIfFree: %v", err)
	}
	created.Metadata["room"] = "2"

	stored, err := repo.GetAppointmentByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetAppointmentByID: %v", err)
	}
	if stored.Metadata["room"] != "1" {
		t.Fatalf("caller mutation leaked into the store")
	}
}

func TestMemoryLookupsNotFound(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	if _, err := repo.GetPatientByID(ctx, uuid.New()); !errors.Is(err, ErrPatientNotFound) {
		t.Fatalf("expected ErrPatientNotFound, got %v", err)
	}
	if _, err := repo.GetPractitionerByID(ctx, uuid.New()); !errors.Is(err, ErrPractitionerNotFound) {
		t.Fatalf("expected ErrPractitionerNotFound, got %v", err)
	}
	if _, err := repo.GetAppointmentByID(ctx, uuid.New()); !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("expected ErrAppointmentNotFound, got %v", err)
	}
}

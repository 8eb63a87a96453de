package appointment

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps everything in process. InsertIfFree holds the write
// lock across its overlap check and insert.
type MemoryRepository struct {
	mu            sync.RWMutex
	patients      map[uuid.UUID]Patient
	practitioners []Practitioner
	appointments  map[uuid.UUID]Appointment
	events        []EventLog
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		patients:     make(map[uuid.UUID]Patient),
		appointments: make(map[uuid.UUID]Appointment),
	}
}

// AddPatient registers a patient for setup and demo seeding.
func (r *MemoryRepository) AddPatient(p Patient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patients[p.ID] = p
}

// AddPractitioner appends to the registry; registry order is insertion order.
func (r *MemoryRepository) AddPractitioner(p Practitioner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.practitioners {
		if r.practitioners[i].ID == p.ID {
			r.practitioners[i] = p
			return
		}
	}
	r.practitioners = append(r.practitioners, p)
}

// PutAppointment stores a without any conflict check.
func (r *MemoryRepository) PutAppointment(a Appointment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a.Metadata = maps.Clone(a.Metadata)
	r.appointments[a.ID] = a
}

func (r *MemoryRepository) Events() []EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]EventLog(nil), r.events...)
}

func (r *MemoryRepository) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) GetPractitionerByID(_ context.Context, id uuid.UUID) (*Practitioner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.practitioners {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, ErrPractitionerNotFound
}

func (r *MemoryRepository) ListActivePractitioners(_ context.Context) ([]Practitioner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Practitioner, 0, len(r.practitioners))
	for _, p := range r.practitioners {
		if p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *MemoryRepository) ActiveAppointments(_ context.Context, practitionerID uuid.UUID, date Date) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeLocked(practitionerID, date), nil
}

func (r *MemoryRepository) activeLocked(practitionerID uuid.UUID, date Date) []Appointment {
	var out []Appointment
	for _, a := range r.appointments {
		if a.PractitionerID == practitionerID && a.Interval.Date == date && a.Status.IsActive() {
			a.Metadata = maps.Clone(a.Metadata)
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Interval.Start != out[j].Interval.Start {
			return out[i].Interval.Start < out[j].Interval.Start
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (r *MemoryRepository) InsertIfFree(_ context.Context, appt Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if appt.Status.IsActive() {
		if blocking := firstOverlap(r.activeLocked(appt.PractitionerID, appt.Interval.Date), appt.Interval); blocking != nil {
			return nil, &ConflictError{Blocking: *blocking}
		}
	}

	now := time.Now()
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	appt.Metadata = maps.Clone(appt.Metadata)
	appt.CreatedAt = now
	appt.UpdatedAt = now
	r.appointments[appt.ID] = appt

	out := appt
	out.Metadata = maps.Clone(appt.Metadata)
	return &out, nil
}

func (r *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	a.Metadata = maps.Clone(a.Metadata)
	return &a, nil
}

// UpdateAppointmentStatus only applies when the current status equals from.
// Reactivating a status re-checks overlap.
func (r *MemoryRepository) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	if !from.IsActive() && to.IsActive() {
		for _, other := range r.activeLocked(a.PractitionerID, a.Interval.Date) {
			if other.ID != a.ID && other.Interval.Overlaps(a.Interval) {
				return nil, &ConflictError{Blocking: other}
			}
		}
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	r.appointments[id] = a
	a.Metadata = maps.Clone(a.Metadata)
	return &a, nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.ID = int64(len(r.events) + 1)
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	r.events = append(r.events, ev)
	return nil
}

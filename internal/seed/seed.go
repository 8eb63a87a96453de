package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

// Fixtures is a generated registry of practitioners and patients.
type Fixtures struct {
	Practitioners []appointment.Practitioner
	Patients      []appointment.Patient
}

// Generate builds fake practitioners and patients. Roughly a third of the
// practitioners keep the clinic hours (zero WorkingHours), the rest get a
// shifted window of the same length.
func Generate(faker *gofakeit.Faker, practitioners, patients int, clinic appointment.WorkingHours) Fixtures {
	now := time.Now().UTC()
	f := Fixtures{
		Practitioners: make([]appointment.Practitioner, 0, practitioners),
		Patients:      make([]appointment.Patient, 0, patients),
	}

	for i := 0; i < practitioners; i++ {
		spec := specialties[faker.Number(0, len(specialties)-1)]
		p := appointment.Practitioner{
			ID:        uuid.New(),
			Name:      "Dr. " + faker.Name(),
			Specialty: &spec,
			Active:    true,
			// distinct timestamps keep registry order stable in postgres
			CreatedAt: now.Add(time.Duration(i) * time.Microsecond),
			UpdatedAt: now,
		}
		if shift := faker.Number(-1, 1); shift != 0 {
			p.WorkingHours = shiftHours(clinic, time.Duration(shift)*time.Hour)
		}
		f.Practitioners = append(f.Practitioners, p)
	}

	for i := 0; i < patients; i++ {
		email := faker.Email()
		f.Patients = append(f.Patients, appointment.Patient{
			ID:        uuid.New(),
			Name:      faker.Name(),
			Email:     &email,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	return f
}

// shiftHours moves the window by d, falling back to the unshifted window if
// the result would leave the day.
func shiftHours(h appointment.WorkingHours, d time.Duration) appointment.WorkingHours {
	shifted := appointment.WorkingHours{Open: h.Open.Add(d), Close: h.Close.Add(d)}
	if !shifted.Valid() {
		return appointment.WorkingHours{}
	}
	return shifted
}

// LoadMemory registers fixtures with an in-memory repository.
func LoadMemory(repo *appointment.MemoryRepository, f Fixtures) {
	for _, p := range f.Practitioners {
		repo.AddPractitioner(p)
	}
	for _, p := range f.Patients {
		repo.AddPatient(p)
	}
}

// InsertPostgres writes fixtures in batched transactions.
func InsertPostgres(ctx context.Context, pool *pgxpool.Pool, f Fixtures, log zerolog.Logger) error {
	if err := insertPractitioners(ctx, pool, f.Practitioners); err != nil {
		return fmt.Errorf("seed practitioners: %w", err)
	}
	log.Info().Int("count", len(f.Practitioners)).Msg("practitioners seeded")

	if err := insertPatients(ctx, pool, f.Patients, log); err != nil {
		return fmt.Errorf("seed patients: %w", err)
	}
	log.Info().Int("count", len(f.Patients)).Msg("patients seeded")
	return nil
}

func insertPractitioners(ctx context.Context, pool *pgxpool.Pool, practitioners []appointment.Practitioner) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, p := range practitioners {
		var openMin, closeMin *int
		if !p.WorkingHours.IsZero() {
			o, c := int(p.WorkingHours.Open), int(p.WorkingHours.Close)
			openMin, closeMin = &o, &c
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO practitioners (id, name, specialty, active, open_minute, close_minute, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, p.ID, p.Name, p.Specialty, p.Active, openMin, closeMin, p.CreatedAt, p.UpdatedAt)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func insertPatients(ctx context.Context, pool *pgxpool.Pool, patients []appointment.Patient, log zerolog.Logger) error {
	const batchSize = 500

	for offset := 0; offset < len(patients); offset += batchSize {
		end := min(offset+batchSize, len(patients))

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for _, p := range patients[offset:end] {
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5)
			`, p.ID, p.Name, p.Email, p.CreatedAt, p.UpdatedAt)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Debug().Int("done", end).Int("total", len(patients)).Msg("patients batch committed")
	}

	return nil
}

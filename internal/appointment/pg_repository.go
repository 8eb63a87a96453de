package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgExclusionViolation = "23P01"
	noOverlapConstraint  = "appointments_no_overlap"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

const appointmentColumns = `id, patient_id, practitioner_id, appointment_date, start_minute, end_minute,
		status, type, metadata, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, storeError("scan patient", err)
	}

	p.Email = email
	return &p, nil
}

func scanPractitioner(row pgx.Row) (*Practitioner, error) {
	var p Practitioner
	var specialty *string
	var openMin, closeMin *int

	err := row.Scan(
		&p.ID,
		&p.Name,
		&specialty,
		&p.Active,
		&openMin,
		&closeMin,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPractitionerNotFound
		}
		return nil, storeError("scan practitioner", err)
	}

	p.Specialty = specialty
	if openMin != nil && closeMin != nil {
		p.WorkingHours = WorkingHours{Open: TimeOfDay(*openMin), Close: TimeOfDay(*closeMin)}
	}
	return &p, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var date time.Time
	var start, end int
	var metadata map[string]string

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.PractitionerID,
		&date,
		&start,
		&end,
		&a.Status,
		&a.Type,
		&metadata,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, storeError("scan appointment", err)
	}

	a.Interval = TimeInterval{Date: DateOf(date), Start: TimeOfDay(start), End: TimeOfDay(end)}
	a.Metadata = metadata
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, storeError("iterate appointments", err)
	}

	return result, nil
}

// storeError separates server-side failures from an unreachable database.
func storeError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return unavailable(op, err)
}

func activeStatusStrings() []string {
	out := make([]string, len(activeStatuses))
	for i, s := range activeStatuses {
		out[i] = string(s)
	}
	return out
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func firstOverlapping(ctx context.Context, q querier, practitionerID uuid.UUID, interval TimeInterval, excludeID uuid.UUID) (*Appointment, error) {
	rows, err := q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE practitioner_id = $1
		  AND appointment_date = $2
		  AND status = ANY($3)
		  AND start_minute < $5
		  AND $4 < end_minute
		  AND id <> $6
		ORDER BY start_minute ASC, id ASC
		LIMIT 1
	`, practitionerID, interval.Date.In(time.UTC), activeStatusStrings(), int(interval.Start), int(interval.End), excludeID)
	if err != nil {
		return nil, storeError("query overlapping appointment", err)
	}
	found, err := collectAppointments(rows)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetPractitionerByID(ctx context.Context, id uuid.UUID) (*Practitioner, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, active, open_minute, close_minute, created_at, updated_at
		FROM practitioners
		WHERE id = $1
	`, id)
	return scanPractitioner(row)
}

func (r *PgRepository) ListActivePractitioners(ctx context.Context) ([]Practitioner, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, specialty, active, open_minute, close_minute, created_at, updated_at
		FROM practitioners
		WHERE active
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, storeError("list practitioners", err)
	}
	defer rows.Close()

	var result []Practitioner
	for rows.Next() {
		p, err := scanPractitioner(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, storeError("iterate practitioners", err)
	}

	return result, nil
}

func (r *PgRepository) ActiveAppointments(ctx context.Context, practitionerID uuid.UUID, date Date) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE practitioner_id = $1
		  AND appointment_date = $2
		  AND status = ANY($3)
		ORDER BY start_minute ASC, id ASC
	`, practitionerID, date.In(time.UTC), activeStatusStrings())
	if err != nil {
		return nil, storeError("query active appointments", err)
	}
	return collectAppointments(rows)
}

// InsertIfFree serializes writers per practitioner and day with a
// transaction-scoped advisory lock, re-checks overlap, then inserts. The
// appointments_no_overlap exclusion constraint backs this up for writers
// that bypass the lock.
func (r *PgRepository) InsertIfFree(ctx context.Context, appt Appointment) (*Appointment, error) {
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	if appt.Metadata == nil {
		appt.Metadata = map[string]string{}
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, storeError("begin insert", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	lockKey := fmt.Sprintf("%s:%s", appt.PractitionerID, appt.Interval.Date)
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey); err != nil {
		return nil, storeError("lock practitioner calendar", err)
	}

	if appt.Status.IsActive() {
		blocking, err := firstOverlapping(ctx, tx, appt.PractitionerID, appt.Interval, uuid.Nil)
		if err != nil {
			return nil, err
		}
		if blocking != nil {
			return nil, &ConflictError{Blocking: *blocking}
		}
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, practitioner_id, appointment_date, start_minute, end_minute,
		                          status, type, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING `+appointmentColumns+`
	`, appt.ID, appt.PatientID, appt.PractitionerID, appt.Interval.Date.In(time.UTC),
		int(appt.Interval.Start), int(appt.Interval.End), string(appt.Status), appt.Type, appt.Metadata)

	created, err := scanAppointment(row)
	if err != nil {
		if isExclusionViolation(err) {
			return nil, r.lateConflict(ctx, appt)
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		if isExclusionViolation(err) {
			return nil, r.lateConflict(ctx, appt)
		}
		return nil, storeError("commit insert", err)
	}

	return created, nil
}

// lateConflict loads the winner after the exclusion constraint fired.
func (r *PgRepository) lateConflict(ctx context.Context, appt Appointment) error {
	blocking, err := firstOverlapping(ctx, r.pool, appt.PractitionerID, appt.Interval, appt.ID)
	if err != nil {
		return err
	}
	if blocking == nil {
		return fmt.Errorf("insert appointment: %s violated without a visible blocker", noOverlapConstraint)
	}
	return &ConflictError{Blocking: *blocking}
}

func isExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgExclusionViolation && pgErr.ConstraintName == noOverlapConstraint
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

// UpdateAppointmentStatus applies only when the row is still in status from.
func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, string(to), string(from))

	updated, err := scanAppointment(row)
	if err != nil && isExclusionViolation(err) {
		appt, getErr := r.GetAppointmentByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, r.lateConflict(ctx, *appt)
	}
	return updated, err
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	var appID *uuid.UUID
	if ev.AppointmentID != nil {
		appID = ev.AppointmentID
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, appID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return storeError("insert event log", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

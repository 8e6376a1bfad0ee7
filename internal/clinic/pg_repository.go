package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

const doctorColumns = `id, name, email, specialty, fees, available, day_off, slots_booked, archived, archived_at, created_at, updated_at`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var specialty *string
	var slotsRaw []byte

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Email,
		&specialty,
		&d.Fees,
		&d.Available,
		&d.DayOff,
		&slotsRaw,
		&d.Archived,
		&d.ArchivedAt,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	d.Specialty = specialty
	d.SlotsBooked = map[SlotDate][]string{}
	if len(slotsRaw) > 0 {
		if err := json.Unmarshal(slotsRaw, &d.SlotsBooked); err != nil {
			return nil, fmt.Errorf("decode slots_booked for doctor %s: %w", d.ID, err)
		}
	}

	return &d, nil
}

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
		return nil, err
	}

	p.Email = email
	return &p, nil
}

const appointmentColumns = `id, patient_id, doctor_id, slot_date, slot_time, reason, amount,
	patient_snapshot, doctor_snapshot, status, cancellation_reason, cancelled_by,
	paid, is_read, consultation_summary, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.SlotDate,
		&a.SlotTime,
		&a.Reason,
		&a.Amount,
		&a.PatientSnapshot,
		&a.DoctorSnapshot,
		&a.Status,
		&a.CancellationReason,
		&a.CancelledBy,
		&a.Paid,
		&a.Read,
		&a.ConsultationSummary,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

// Doctors

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) ListDoctorsWithDayOff(ctx context.Context) ([]Doctor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE day_off <> '' AND NOT archived
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) SetDoctorAvailability(ctx context.Context, id uuid.UUID, available bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE doctors
		SET available = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, available)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

func (r *PgRepository) SetDoctorDayOff(ctx context.Context, id uuid.UUID, dayOff string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE doctors
		SET day_off = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, dayOff)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

func (r *PgRepository) ArchiveDoctor(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE doctors
		SET archived = true,
		    archived_at = now(),
		    available = false,
		    updated_at = now()
		WHERE id = $1 AND NOT archived
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

// Patients

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

// Slot ledger
//
// slots_booked is a JSONB object mapping date key to an array of time
// labels. Both mutations are single conditional statements so the
// check-then-act happens inside one atomic update.

func (r *PgRepository) ReserveSlot(ctx context.Context, docID uuid.UUID, date SlotDate, timeLabel string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE doctors
		SET slots_booked = jsonb_set(
		        COALESCE(slots_booked, '{}'::jsonb),
		        ARRAY[$2],
		        COALESCE(slots_booked->$2, '[]'::jsonb) || to_jsonb($3::text)
		    ),
		    updated_at = now()
		WHERE id = $1
		  AND NOT COALESCE(slots_booked->$2, '[]'::jsonb) ? $3
	`, docID, string(date), timeLabel)
	if err != nil {
		return fmt.Errorf("reserve slot: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// Either the doctor is gone or the label was already present.
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM doctors WHERE id = $1)`, docID).Scan(&exists); err != nil {
			return fmt.Errorf("reserve slot: %w", err)
		}
		if !exists {
			return ErrDoctorNotFound
		}
		return ErrSlotUnavailable
	}

	return nil
}

func (r *PgRepository) ReleaseSlot(ctx context.Context, docID uuid.UUID, date SlotDate, timeLabel string) error {
	// Matching nothing (unknown doctor or absent date entry) is a no-op.
	_, err := r.pool.Exec(ctx, `
		UPDATE doctors
		SET slots_booked = jsonb_set(
		        slots_booked,
		        ARRAY[$2],
		        COALESCE(
		            (SELECT jsonb_agg(t) FROM jsonb_array_elements_text(slots_booked->$2) AS t WHERE t <> $3),
		            '[]'::jsonb
		        )
		    ),
		    updated_at = now()
		WHERE id = $1 AND slots_booked ? $2
	`, docID, string(date), timeLabel)
	if err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	return nil
}

func (r *PgRepository) BookedSlots(ctx context.Context, docID uuid.UUID, date SlotDate) ([]string, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(slots_booked->$2, '[]'::jsonb)
		FROM doctors
		WHERE id = $1
	`, docID, string(date)).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	var slots []string
	if err := json.Unmarshal(raw, &slots); err != nil {
		return nil, fmt.Errorf("decode booked slots: %w", err)
	}
	return slots, nil
}

// Appointments

func (r *PgRepository) CreateAppointment(ctx context.Context, appt Appointment) (*Appointment, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (
			id, patient_id, doctor_id, slot_date, slot_time, reason, amount,
			patient_snapshot, doctor_snapshot, status, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'pending', now(), now())
		RETURNING `+appointmentColumns+`
	`, id, appt.PatientID, appt.DoctorID, string(appt.SlotDate), appt.SlotTime,
		appt.Reason, appt.Amount, appt.PatientSnapshot, appt.DoctorSnapshot)

	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) HasActiveBooking(ctx context.Context, patientID uuid.UUID, date SlotDate, timeLabel string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE patient_id = $1
			  AND slot_date = $2
			  AND slot_time = $3
			  AND status <> 'cancelled'
		)
	`, patientID, string(date), timeLabel).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PgRepository) CancelAppointment(ctx context.Context, id uuid.UUID, reason string, by CancelActor) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
		    cancellation_reason = $2,
		    cancelled_by = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'pending'
		RETURNING `+appointmentColumns+`
	`, id, reason, string(by))

	return scanAppointment(row)
}

func (r *PgRepository) CompleteAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'completed',
		    updated_at = now()
		WHERE id = $1
		  AND status = 'pending'
		RETURNING `+appointmentColumns+`
	`, id)

	return scanAppointment(row)
}

func (r *PgRepository) SetConsultationSummary(ctx context.Context, id uuid.UUID, summary string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET consultation_summary = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'completed'
		RETURNING `+appointmentColumns+`
	`, id, summary)

	return scanAppointment(row)
}

func (r *PgRepository) MarkAppointmentPaid(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET paid = true,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id)

	return scanAppointment(row)
}

func (r *PgRepository) MarkAppointmentRead(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET is_read = true,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id)

	return scanAppointment(row)
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) ListAppointmentsByDoctor(ctx context.Context, docID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, docID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// PatientBookedSlots returns the patient's active bookings as a date-key map.
// The optional range filter compares the literal keys, matching how they are
// stored; it is not a calendar comparison.
func (r *PgRepository) PatientBookedSlots(ctx context.Context, patientID uuid.UUID, from, to SlotDate) (map[SlotDate][]string, error) {
	query := `
		SELECT slot_date, slot_time
		FROM appointments
		WHERE patient_id = $1 AND status <> 'cancelled'
	`
	args := []any{patientID}
	if from != "" && to != "" {
		query += ` AND slot_date >= $2 AND slot_date <= $3`
		args = append(args, string(from), string(to))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	booked := map[SlotDate][]string{}
	for rows.Next() {
		var date SlotDate
		var label string
		if err := rows.Scan(&date, &label); err != nil {
			return nil, err
		}
		booked[date] = append(booked[date], label)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return booked, nil
}

func (r *PgRepository) PatientBookedDates(ctx context.Context, patientID, docID uuid.UUID) ([]SlotDate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT slot_date
		FROM appointments
		WHERE patient_id = $1 AND doctor_id = $2 AND status <> 'cancelled'
	`, patientID, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dates []SlotDate
	for rows.Next() {
		var d SlotDate
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return dates, nil
}

// Events

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, doctor_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.AppointmentID, ev.DoctorID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

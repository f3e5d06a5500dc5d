package appointment

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

const apptColumns = `
	id, patient_id, doctor_id, scheduled_at, duration_minutes, type, urgency, status,
	reason_for_visit, symptoms, consultation_notes, cancel_reason,
	call_type, call_room_id, call_start_time, call_end_time, call_duration_minutes,
	created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var callType *string

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.ScheduledAt,
		&a.Duration,
		&a.Type,
		&a.Urgency,
		&a.Status,
		&a.ReasonForVisit,
		&a.Symptoms,
		&a.ConsultationNotes,
		&a.CancelReason,
		&callType,
		&a.CallRoomID,
		&a.CallStartTime,
		&a.CallEndTime,
		&a.CallDuration,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if callType != nil {
		ct := CallType(*callType)
		a.CallType = &ct
	}
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
	return result, rows.Err()
}

func (r *PgRepository) Create(ctx context.Context, a *Appointment) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointments (
			id, patient_id, doctor_id, scheduled_at, duration_minutes, type, urgency, status,
			reason_for_visit, symptoms, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, a.ID, a.PatientID, a.DoctorID, a.ScheduledAt, a.Duration, a.Type, a.Urgency, a.Status,
		a.ReasonForVisit, a.Symptoms, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListByDoctorBetween(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND scheduled_at >= $2
		  AND scheduled_at <= $3
		ORDER BY scheduled_at
	`, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE doctor_id = $1
		ORDER BY scheduled_at
	`, doctorID)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY scheduled_at DESC
	`, patientID)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) UpdateTiming(ctx context.Context, id uuid.UUID, scheduledAt time.Time, duration int) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET scheduled_at = $2,
		    duration_minutes = $3,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+apptColumns+`
	`, id, scheduledAt, duration)
	return scanAppointment(row)
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, consultationNotes *string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    consultation_notes = COALESCE($3, consultation_notes),
		    updated_at = now()
		WHERE id = $1
		RETURNING `+apptColumns+`
	`, id, status, consultationNotes)
	return scanAppointment(row)
}

func (r *PgRepository) MarkCancelled(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
		    cancel_reason = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+apptColumns+`
	`, id, reason)
	return scanAppointment(row)
}

func (r *PgRepository) SetCallStarted(ctx context.Context, id uuid.UUID, callType CallType, roomID string, startedAt time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'in-progress',
		    call_type = $2,
		    call_room_id = $3,
		    call_start_time = $4,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+apptColumns+`
	`, id, callType, roomID, startedAt)
	return scanAppointment(row)
}

func (r *PgRepository) SetCallEnded(ctx context.Context, id uuid.UUID, endedAt time.Time, durationMinutes int) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'completed',
		    call_end_time = $2,
		    call_duration_minutes = $3,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+apptColumns+`
	`, id, endedAt, durationMinutes)
	return scanAppointment(row)
}

func (r *PgRepository) FindOverdue(ctx context.Context, before time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE status IN ('scheduled', 'confirmed')
		  AND scheduled_at + duration_minutes * interval '1 minute' < $1
		ORDER BY scheduled_at
	`, before)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) InsertAudit(ctx context.Context, rec AuditRecord) error {
	details, err := marshalAuditField(rec.Details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}
	previous, err := marshalAuditField(rec.Previous)
	if err != nil {
		return fmt.Errorf("marshal audit previous: %w", err)
	}
	next, err := marshalAuditField(rec.Next)
	if err != nil {
		return fmt.Errorf("marshal audit next: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO appointment_audits (appointment_id, actor_id, action, occurred_at, details, previous, next)
		VALUES ($1, $2, $3, COALESCE($4, now()), $5, $6, $7)
	`, rec.AppointmentID, rec.ActorID, rec.Action, nullableTime(rec.Timestamp), details, previous, next)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

func (r *PgRepository) ListAuditByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]AuditRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, appointment_id, actor_id, action, occurred_at, details, previous, next
		FROM appointment_audits
		WHERE appointment_id = $1
		ORDER BY id
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AuditRecord
	for rows.Next() {
		var rec AuditRecord
		var details, previous, next []byte
		err := rows.Scan(&rec.ID, &rec.AppointmentID, &rec.ActorID, &rec.Action, &rec.Timestamp, &details, &previous, &next)
		if err != nil {
			return nil, err
		}
		if rec.Details, err = unmarshalAuditField(details); err != nil {
			return nil, err
		}
		if rec.Previous, err = unmarshalAuditField(previous); err != nil {
			return nil, err
		}
		if rec.Next, err = unmarshalAuditField(next); err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func marshalAuditField(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func unmarshalAuditField(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

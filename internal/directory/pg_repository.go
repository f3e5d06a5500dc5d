package directory

import (
	"context"
	"errors"
	"fmt"

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

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*DoctorProfile, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, full_name, specialty, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)

	var p DoctorProfile
	err := row.Scan(&p.ID, &p.FullName, &p.Specialty, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	segments, err := r.loadSegments(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load availability segments: %w", err)
	}
	p.Segments = segments

	return &p, nil
}

func (r *PgRepository) loadSegments(ctx context.Context, doctorID uuid.UUID) ([]WeeklySegment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT day_of_week, start_time, end_time, slot_duration_minutes
		FROM availability_segments
		WHERE doctor_id = $1
		ORDER BY position
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var segments []WeeklySegment
	for rows.Next() {
		var seg WeeklySegment
		if err := rows.Scan(&seg.DayOfWeek, &seg.StartTime, &seg.EndTime, &seg.SlotDuration); err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}

	return segments, rows.Err()
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, full_name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)

	var p Patient
	err := row.Scan(&p.ID, &p.FullName, &p.Email, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	return &p, nil
}

func (r *PgRepository) ListDoctors(ctx context.Context, limit, offset int) ([]DoctorProfile, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, full_name, specialty, created_at, updated_at
		FROM doctors
		ORDER BY full_name
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var doctors []DoctorProfile
	for rows.Next() {
		var p DoctorProfile
		if err := rows.Scan(&p.ID, &p.FullName, &p.Specialty, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		doctors = append(doctors, p)
	}

	return doctors, rows.Err()
}

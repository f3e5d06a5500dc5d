package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("appointment not found")

	// ErrSlotTaken signals that the requested interval overlaps an existing
	// non-cancelled appointment for the doctor. Callers must pick another
	// slot; the service never retries on its own.
	ErrSlotTaken = errors.New("time slot not available")

	// ErrValidation marks malformed input or an invalid status transition.
	// It is always wrapped with a description of what failed.
	ErrValidation = errors.New("validation failed")
)

// Repository contains all appointment store interactions needed by the
// service. Only the service writes appointments and audit records.
type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// ListByDoctorBetween returns a doctor's appointments whose scheduled
	// start falls in [from, to], ordered by scheduled start. Cancelled
	// appointments are included; conflict filtering happens in the service.
	ListByDoctorBetween(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error)

	UpdateTiming(ctx context.Context, id uuid.UUID, scheduledAt time.Time, duration int) (*Appointment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, consultationNotes *string) (*Appointment, error)
	MarkCancelled(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error)
	SetCallStarted(ctx context.Context, id uuid.UUID, callType CallType, roomID string, startedAt time.Time) (*Appointment, error)
	SetCallEnded(ctx context.Context, id uuid.UUID, endedAt time.Time, durationMinutes int) (*Appointment, error)

	// FindOverdue returns non-terminal appointments whose interval ended
	// before the given instant. Used by the no-show sweep.
	FindOverdue(ctx context.Context, before time.Time) ([]Appointment, error)

	// Audit trail: append-only.
	InsertAudit(ctx context.Context, rec AuditRecord) error
	ListAuditByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]AuditRecord, error)
}

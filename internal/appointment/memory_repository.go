package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is a thread-safe in-memory Repository. It backs the
// demo mode of the api-server when no Postgres DSN is configured, and the
// service tests.
type MemoryRepository struct {
	mu           sync.Mutex
	appointments map[uuid.UUID]*Appointment
	audits       []AuditRecord
	nextAuditID  int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{appointments: make(map[uuid.UUID]*Appointment)}
}

func cloneAppointment(a *Appointment) *Appointment {
	c := *a
	if a.Symptoms != nil {
		c.Symptoms = append([]string(nil), a.Symptoms...)
	}
	return &c
}

func (r *MemoryRepository) Create(_ context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appointments[a.ID] = cloneAppointment(a)
	return nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAppointment(a), nil
}

func (r *MemoryRepository) ListByDoctorBetween(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appointments {
		if a.DoctorID != doctorID {
			continue
		}
		if a.ScheduledAt.Before(from) || a.ScheduledAt.After(to) {
			continue
		}
		out = append(out, *cloneAppointment(a))
	}
	sortByStart(out)
	return out, nil
}

func (r *MemoryRepository) ListByDoctor(_ context.Context, doctorID uuid.UUID) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appointments {
		if a.DoctorID == doctorID {
			out = append(out, *cloneAppointment(a))
		}
	}
	sortByStart(out)
	return out, nil
}

func (r *MemoryRepository) ListByPatient(_ context.Context, patientID uuid.UUID) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appointments {
		if a.PatientID == patientID {
			out = append(out, *cloneAppointment(a))
		}
	}
	// Most recent first, matching the patient dashboard ordering.
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.After(out[j].ScheduledAt) })
	return out, nil
}

func (r *MemoryRepository) UpdateTiming(_ context.Context, id uuid.UUID, scheduledAt time.Time, duration int) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}
	a.ScheduledAt = scheduledAt
	a.Duration = duration
	a.UpdatedAt = time.Now()
	return cloneAppointment(a), nil
}

func (r *MemoryRepository) UpdateStatus(_ context.Context, id uuid.UUID, status Status, notes *string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}
	a.Status = status
	if notes != nil {
		a.ConsultationNotes = notes
	}
	a.UpdatedAt = time.Now()
	return cloneAppointment(a), nil
}

func (r *MemoryRepository) MarkCancelled(_ context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}
	a.Status = StatusCancelled
	a.CancelReason = &reason
	a.UpdatedAt = time.Now()
	return cloneAppointment(a), nil
}

func (r *MemoryRepository) SetCallStarted(_ context.Context, id uuid.UUID, callType CallType, roomID string, startedAt time.Time) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}
	a.Status = StatusInProgress
	a.CallType = &callType
	a.CallRoomID = &roomID
	a.CallStartTime = &startedAt
	a.UpdatedAt = time.Now()
	return cloneAppointment(a), nil
}

func (r *MemoryRepository) SetCallEnded(_ context.Context, id uuid.UUID, endedAt time.Time, durationMinutes int) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}
	a.Status = StatusCompleted
	a.CallEndTime = &endedAt
	a.CallDuration = &durationMinutes
	a.UpdatedAt = time.Now()
	return cloneAppointment(a), nil
}

func (r *MemoryRepository) FindOverdue(_ context.Context, before time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appointments {
		if a.Status != StatusScheduled && a.Status != StatusConfirmed {
			continue
		}
		if a.EndsAt().Before(before) {
			out = append(out, *cloneAppointment(a))
		}
	}
	sortByStart(out)
	return out, nil
}

func (r *MemoryRepository) InsertAudit(_ context.Context, rec AuditRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextAuditID++
	rec.ID = r.nextAuditID
	r.audits = append(r.audits, rec)
	return nil
}

func (r *MemoryRepository) ListAuditByAppointment(_ context.Context, appointmentID uuid.UUID) ([]AuditRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []AuditRecord
	for _, rec := range r.audits {
		if rec.AppointmentID == appointmentID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func sortByStart(appts []Appointment) {
	sort.Slice(appts, func(i, j int) bool { return appts[i].ScheduledAt.Before(appts[j].ScheduledAt) })
}

package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carewell/telemed-scheduling/internal/directory"
	redisclient "github.com/carewell/telemed-scheduling/internal/redis"
	"github.com/carewell/telemed-scheduling/internal/timerange"
)

// Fallback schedule applied when a doctor has no configured segments for the
// requested weekday, so incomplete profiles stay bookable.
const (
	DefaultScheduleStart = "10:00"
	DefaultScheduleEnd   = "17:00"
	DefaultSlotMinutes   = 30
)

// ErrScheduleBusy is returned when the doctor's schedule lock could not be
// acquired; the caller should retry the booking shortly.
var ErrScheduleBusy = errors.New("schedule is currently being modified, please retry")

// Service owns every appointment state mutation and its paired audit write.
// Nothing else in the process writes appointments or audit records.
type Service struct {
	repo   Repository
	dir    directory.Repository
	locker redisclient.Locker
	log    zerolog.Logger
}

func NewService(repo Repository, dir directory.Repository, locker redisclient.Locker, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		dir:    dir,
		locker: locker,
		log:    log.With().Str("component", "appointment").Logger(),
	}
}

// GenerateSlots computes the ordered bookable slots for a doctor on the
// calendar day of date. An unknown doctor yields an empty result, not an
// error. The result excludes every interval overlapping a non-cancelled
// appointment, and preserves segment declaration order without a global
// re-sort. Pure read; no side effects.
func (s *Service) GenerateSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Slot, error) {
	profile, err := s.dir.GetDoctorByID(ctx, doctorID)
	if err != nil {
		if errors.Is(err, directory.ErrDoctorNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load doctor profile: %w", err)
	}

	dayOfWeek := int(date.Weekday())
	segments := profile.SegmentsForDay(dayOfWeek)
	if len(segments) == 0 {
		segments = []directory.WeeklySegment{{
			DayOfWeek:    dayOfWeek,
			StartTime:    DefaultScheduleStart,
			EndTime:      DefaultScheduleEnd,
			SlotDuration: DefaultSlotMinutes,
		}}
	}

	dayStart, dayEnd := timerange.DayBounds(date)
	existing, err := s.repo.ListByDoctorBetween(ctx, doctorID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("load same-day appointments: %w", err)
	}

	var slots []Slot
	for _, seg := range segments {
		segSlots, err := s.segmentSlots(seg, date, existing)
		if err != nil {
			// A malformed segment is a profile configuration error. Fail
			// closed: contribute no slots from it, keep the rest usable.
			s.log.Warn().
				Str("doctor_id", doctorID.String()).
				Int("day_of_week", seg.DayOfWeek).
				Err(err).
				Msg("skipping malformed availability segment")
			continue
		}
		slots = append(slots, segSlots...)
	}

	return slots, nil
}

func (s *Service) segmentSlots(seg directory.WeeklySegment, date time.Time, existing []Appointment) ([]Slot, error) {
	startClock, err := timerange.ParseClock(seg.StartTime)
	if err != nil {
		return nil, err
	}
	endClock, err := timerange.ParseClock(seg.EndTime)
	if err != nil {
		return nil, err
	}
	if !startClock.Before(endClock) {
		return nil, fmt.Errorf("segment start %s not before end %s", seg.StartTime, seg.EndTime)
	}

	duration := seg.SlotDuration
	if duration <= 0 {
		duration = DefaultSlotMinutes
	}
	step := time.Duration(duration) * time.Minute

	segStart := startClock.At(date)
	segEnd := endClock.At(date)

	var slots []Slot
	for cursor := segStart; cursor.Before(segEnd); cursor = cursor.Add(step) {
		slotEnd := cursor.Add(step)
		if slotEnd.After(segEnd) {
			break
		}
		if overlapsAny(cursor, slotEnd, existing, nil) {
			continue
		}
		slots = append(slots, Slot{Start: cursor, End: slotEnd})
	}

	return slots, nil
}

func overlapsAny(start, end time.Time, appointments []Appointment, exclude *uuid.UUID) bool {
	for i := range appointments {
		apt := &appointments[i]
		if exclude != nil && apt.ID == *exclude {
			continue
		}
		if !apt.Blocking() {
			continue
		}
		if timerange.Overlaps(start, end, apt.ScheduledAt, apt.EndsAt()) {
			return true
		}
	}
	return false
}

// hasConflict is the single source of truth for "is this doctor free".
// Both booking and rescheduling must pass through it before writing.
func (s *Service) hasConflict(ctx context.Context, doctorID uuid.UUID, start time.Time, duration int, exclude *uuid.UUID) (bool, error) {
	dayStart, dayEnd := timerange.DayBounds(start)
	sameDay, err := s.repo.ListByDoctorBetween(ctx, doctorID, dayStart, dayEnd)
	if err != nil {
		return false, fmt.Errorf("load same-day appointments: %w", err)
	}
	end := start.Add(time.Duration(duration) * time.Minute)
	return overlapsAny(start, end, sameDay, exclude), nil
}

// BookRequest carries everything needed to create an appointment.
type BookRequest struct {
	PatientID      uuid.UUID
	DoctorID       uuid.UUID
	ScheduledAt    time.Time
	Duration       int
	Type           Type
	Urgency        Urgency
	ReasonForVisit string
	Symptoms       []string
}

// Book creates an appointment with status scheduled after verifying the
// requested interval is free. The conflict check and the insert run inside
// the per-doctor schedule lock; on conflict nothing is written and no audit
// record appears.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	if err := validateBooking(req); err != nil {
		return nil, err
	}

	if _, err := s.dir.GetDoctorByID(ctx, req.DoctorID); err != nil {
		if errors.Is(err, directory.ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	var created *Appointment
	err := s.locker.WithScheduleLock(ctx, req.DoctorID, req.ScheduledAt, func(lockCtx context.Context) error {
		conflict, err := s.hasConflict(lockCtx, req.DoctorID, req.ScheduledAt, req.Duration, nil)
		if err != nil {
			return err
		}
		if conflict {
			return ErrSlotTaken
		}

		now := time.Now()
		appt := &Appointment{
			ID:             uuid.New(),
			PatientID:      req.PatientID,
			DoctorID:       req.DoctorID,
			ScheduledAt:    req.ScheduledAt,
			Duration:       req.Duration,
			Type:           req.Type,
			Urgency:        req.Urgency,
			Status:         StatusScheduled,
			ReasonForVisit: req.ReasonForVisit,
			Symptoms:       req.Symptoms,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.repo.Create(lockCtx, appt); err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}
		created = appt

		s.recordAudit(lockCtx, AuditRecord{
			AppointmentID: appt.ID,
			ActorID:       req.PatientID.String(),
			Action:        ActionBook,
			Details: map[string]any{
				"doctorId":    req.DoctorID.String(),
				"scheduledAt": req.ScheduledAt,
				"duration":    req.Duration,
			},
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrScheduleBusy
		}
		return nil, err
	}

	return created, nil
}

func validateBooking(req BookRequest) error {
	if req.PatientID == uuid.Nil {
		return fmt.Errorf("%w: patientId is required", ErrValidation)
	}
	if req.DoctorID == uuid.Nil {
		return fmt.Errorf("%w: doctorId is required", ErrValidation)
	}
	if req.ScheduledAt.IsZero() {
		return fmt.Errorf("%w: scheduledAt is required", ErrValidation)
	}
	if req.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrValidation)
	}
	if req.Type != TypeVideo && req.Type != TypeInPerson {
		return fmt.Errorf("%w: unknown appointment type %q", ErrValidation, req.Type)
	}
	switch req.Urgency {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyEmergency:
	default:
		return fmt.Errorf("%w: unknown urgency %q", ErrValidation, req.Urgency)
	}
	return nil
}

// Reschedule moves an appointment to a new interval. A conflicting target
// leaves the appointment completely unchanged and writes no audit record.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newStart time.Time, newDuration int, actorID string) (*Appointment, error) {
	if newStart.IsZero() {
		return nil, fmt.Errorf("%w: newScheduledAt is required", ErrValidation)
	}
	if newDuration <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", ErrValidation)
	}

	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Status.Terminal() {
		return nil, fmt.Errorf("%w: cannot reschedule appointment in status %q", ErrValidation, existing.Status)
	}

	var updated *Appointment
	err = s.locker.WithScheduleLock(ctx, existing.DoctorID, newStart, func(lockCtx context.Context) error {
		conflict, err := s.hasConflict(lockCtx, existing.DoctorID, newStart, newDuration, &id)
		if err != nil {
			return err
		}
		if conflict {
			return ErrSlotTaken
		}

		updated, err = s.repo.UpdateTiming(lockCtx, id, newStart, newDuration)
		if err != nil {
			return fmt.Errorf("update timing: %w", err)
		}

		s.recordAudit(lockCtx, AuditRecord{
			AppointmentID: id,
			ActorID:       actorID,
			Action:        ActionReschedule,
			Details: map[string]any{
				"newStart": newStart,
				"duration": newDuration,
			},
			Previous: map[string]any{
				"scheduledAt": existing.ScheduledAt,
				"duration":    existing.Duration,
			},
			Next: map[string]any{
				"scheduledAt": newStart,
				"duration":    newDuration,
			},
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrScheduleBusy
		}
		return nil, err
	}

	return updated, nil
}

// Cancel sets the appointment to cancelled with a reason. Cancellation is
// never blocked by conflicts, only by an already-terminal status.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason, actorID string) error {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !ValidTransition(existing.Status, StatusCancelled) {
		return fmt.Errorf("%w: cannot cancel appointment in status %q", ErrValidation, existing.Status)
	}

	if _, err := s.repo.MarkCancelled(ctx, id, reason); err != nil {
		return fmt.Errorf("cancel appointment: %w", err)
	}

	s.recordAudit(ctx, AuditRecord{
		AppointmentID: id,
		ActorID:       actorID,
		Action:        ActionCancel,
		Details:       map[string]any{"reason": reason},
		Previous:      map[string]any{"status": existing.Status},
		Next:          map[string]any{"status": StatusCancelled},
	})
	return nil
}

// UpdateStatus performs a validated lifecycle transition, optionally
// attaching consultation notes.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, notes *string, actorID string) error {
	if !KnownStatus(status) {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}

	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !ValidTransition(existing.Status, status) {
		return fmt.Errorf("%w: cannot transition from %q to %q", ErrValidation, existing.Status, status)
	}

	if status == StatusCancelled {
		// Keep the cancel path uniform so the audit action stays "cancel".
		reason := "Cancelled"
		if notes != nil {
			reason = *notes
		}
		return s.Cancel(ctx, id, reason, actorID)
	}

	if _, err := s.repo.UpdateStatus(ctx, id, status, notes); err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	details := map[string]any{"status": status}
	if notes != nil {
		details["notes"] = *notes
	}
	s.recordAudit(ctx, AuditRecord{
		AppointmentID: id,
		ActorID:       actorID,
		Action:        ActionStatusChange,
		Details:       details,
		Previous:      map[string]any{"status": existing.Status},
		Next:          map[string]any{"status": status},
	})
	return nil
}

// StartCall opens a call room for the appointment and moves it to
// in-progress. If a call is already running the existing room is returned so
// both parties join the same session.
func (s *Service) StartCall(ctx context.Context, id uuid.UUID, callType CallType, actorID string) (*Appointment, error) {
	if callType != CallVideo && callType != CallVoice {
		return nil, fmt.Errorf("%w: unknown call type %q", ErrValidation, callType)
	}

	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Status == StatusInProgress && existing.CallRoomID != nil {
		return existing, nil
	}
	if !ValidTransition(existing.Status, StatusInProgress) {
		return nil, fmt.Errorf("%w: cannot start call in status %q", ErrValidation, existing.Status)
	}

	roomID := fmt.Sprintf("carewell-%s", uuid.NewString())
	startedAt := time.Now()

	updated, err := s.repo.SetCallStarted(ctx, id, callType, roomID, startedAt)
	if err != nil {
		return nil, fmt.Errorf("start call: %w", err)
	}

	s.recordAudit(ctx, AuditRecord{
		AppointmentID: id,
		ActorID:       actorID,
		Action:        ActionStatusChange,
		Details: map[string]any{
			"status":     StatusInProgress,
			"callType":   callType,
			"callRoomId": roomID,
		},
		Previous: map[string]any{"status": existing.Status},
		Next:     map[string]any{"status": StatusInProgress},
	})
	return updated, nil
}

// EndCall closes the call, stamps its duration, and completes the
// appointment.
func (s *Service) EndCall(ctx context.Context, id uuid.UUID, actorID string) (*Appointment, error) {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Status != StatusInProgress {
		return nil, fmt.Errorf("%w: no call in progress for status %q", ErrValidation, existing.Status)
	}

	endedAt := time.Now()
	minutes := 0
	if existing.CallStartTime != nil {
		minutes = int(endedAt.Sub(*existing.CallStartTime).Round(time.Minute) / time.Minute)
		if minutes < 1 {
			minutes = 1
		}
	}

	updated, err := s.repo.SetCallEnded(ctx, id, endedAt, minutes)
	if err != nil {
		return nil, fmt.Errorf("end call: %w", err)
	}

	s.recordAudit(ctx, AuditRecord{
		AppointmentID: id,
		ActorID:       actorID,
		Action:        ActionStatusChange,
		Details: map[string]any{
			"status":       StatusCompleted,
			"callDuration": minutes,
		},
		Previous: map[string]any{"status": existing.Status},
		Next:     map[string]any{"status": StatusCompleted},
	})
	return updated, nil
}

// MarkOverdueNoShows sweeps appointments whose interval ended more than
// grace ago and are still scheduled or confirmed, marking each no-show as
// the system actor. Intended to be called periodically by the worker.
func (s *Service) MarkOverdueNoShows(ctx context.Context, grace time.Duration) (int, error) {
	cutoff := time.Now().Add(-grace)
	overdue, err := s.repo.FindOverdue(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("find overdue appointments: %w", err)
	}

	marked := 0
	for _, appt := range overdue {
		if !ValidTransition(appt.Status, StatusNoShow) {
			continue
		}
		if _, err := s.repo.UpdateStatus(ctx, appt.ID, StatusNoShow, nil); err != nil {
			s.log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("failed to mark no-show")
			continue
		}
		s.recordAudit(ctx, AuditRecord{
			AppointmentID: appt.ID,
			ActorID:       SystemActor,
			Action:        ActionStatusChange,
			Details: map[string]any{
				"status": StatusNoShow,
				"reason": "missed appointment window",
			},
			Previous: map[string]any{"status": appt.Status},
			Next:     map[string]any{"status": StatusNoShow},
		})
		marked++
	}

	return marked, nil
}

// GetAppointment retrieves a single appointment by id.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

// ListByPatient returns a patient's appointments, optionally filtered by
// status, most recent first.
func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, status Status) ([]Appointment, error) {
	appts, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list patient appointments: %w", err)
	}
	return filterByStatus(appts, status), nil
}

// ListByDoctor returns a doctor's appointments, optionally narrowed to one
// calendar day and/or one status.
func (s *Service) ListByDoctor(ctx context.Context, doctorID uuid.UUID, date *time.Time, status Status) ([]Appointment, error) {
	var (
		appts []Appointment
		err   error
	)
	if date != nil {
		dayStart, dayEnd := timerange.DayBounds(*date)
		appts, err = s.repo.ListByDoctorBetween(ctx, doctorID, dayStart, dayEnd)
	} else {
		appts, err = s.repo.ListByDoctor(ctx, doctorID)
	}
	if err != nil {
		return nil, fmt.Errorf("list doctor appointments: %w", err)
	}
	return filterByStatus(appts, status), nil
}

// ListDoctors pages through the doctor directory.
func (s *Service) ListDoctors(ctx context.Context, limit, offset int) ([]directory.DoctorProfile, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.dir.ListDoctors(ctx, limit, offset)
}

// ListAudit returns the appointment's audit trail in write order.
func (s *Service) ListAudit(ctx context.Context, appointmentID uuid.UUID) ([]AuditRecord, error) {
	return s.repo.ListAuditByAppointment(ctx, appointmentID)
}

func filterByStatus(appts []Appointment, status Status) []Appointment {
	if status == "" {
		return appts
	}
	var out []Appointment
	for _, a := range appts {
		if a.Status == status {
			out = append(out, a)
		}
	}
	return out
}

// recordAudit appends an audit record for a mutation that already
// succeeded. A failed audit write never fails the operation; it is reported
// so the gap is detectable.
func (s *Service) recordAudit(ctx context.Context, rec AuditRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	if err := s.repo.InsertAudit(ctx, rec); err != nil {
		s.log.Error().
			Err(err).
			Str("appointment_id", rec.AppointmentID.String()).
			Str("action", string(rec.Action)).
			Msg("audit write failed")
	}
}

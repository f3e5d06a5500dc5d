package appointment

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carewell/telemed-scheduling/internal/directory"
	redisclient "github.com/carewell/telemed-scheduling/internal/redis"
)

var (
	// 2026-03-02 is a Monday, 2026-03-03 a Tuesday.
	monday  = time.Date(2026, 3, 2, 0, 0, 0, 0, time.Local)
	tuesday = time.Date(2026, 3, 3, 0, 0, 0, 0, time.Local)
)

func mondayAt(h, m int) time.Time {
	return time.Date(2026, 3, 2, h, m, 0, 0, time.Local)
}

// mondayDoctor has a single Monday morning segment, 09:00-12:00 at 30 min.
func mondayDoctor() *directory.DoctorProfile {
	return &directory.DoctorProfile{
		ID:       uuid.New(),
		FullName: "Dr. Asha Rao",
		Segments: []directory.WeeklySegment{
			{DayOfWeek: 1, StartTime: "09:00", EndTime: "12:00", SlotDuration: 30},
		},
	}
}

func newTestService(repo Repository, doctors ...*directory.DoctorProfile) *Service {
	dir := directory.NewMemoryRepository()
	for _, d := range doctors {
		dir.AddDoctor(*d)
	}
	return NewService(repo, dir, redisclient.NoopLocker{}, zerolog.Nop())
}

func book(t *testing.T, svc *Service, doctorID uuid.UUID, start time.Time, duration int) *Appointment {
	t.Helper()
	appt, err := svc.Book(context.Background(), BookRequest{
		PatientID:      uuid.New(),
		DoctorID:       doctorID,
		ScheduledAt:    start,
		Duration:       duration,
		Type:           TypeVideo,
		Urgency:        UrgencyMedium,
		ReasonForVisit: "checkup",
	})
	require.NoError(t, err)
	return appt
}

func slotStarts(slots []Slot) []time.Time {
	out := make([]time.Time, len(slots))
	for i, s := range slots {
		out[i] = s.Start
	}
	return out
}

func TestGenerateSlots_EmptyDay(t *testing.T) {
	doc := mondayDoctor()
	svc := newTestService(NewMemoryRepository(), doc)

	slots, err := svc.GenerateSlots(context.Background(), doc.ID, monday)
	require.NoError(t, err)

	want := []time.Time{
		mondayAt(9, 0), mondayAt(9, 30), mondayAt(10, 0),
		mondayAt(10, 30), mondayAt(11, 0), mondayAt(11, 30),
	}
	assert.Equal(t, want, slotStarts(slots))
	for _, s := range slots {
		assert.Equal(t, 30*time.Minute, s.End.Sub(s.Start))
	}
	// Last slot ends exactly at segment end.
	assert.Equal(t, mondayAt(12, 0), slots[len(slots)-1].End)
}

func TestGenerateSlots_ExcludesBookedTime(t *testing.T) {
	doc := mondayDoctor()
	repo := NewMemoryRepository()
	svc := newTestService(repo, doc)

	book(t, svc, doc.ID, mondayAt(10, 0), 30)

	slots, err := svc.GenerateSlots(context.Background(), doc.ID, monday)
	require.NoError(t, err)
	require.Len(t, slots, 5)
	for _, s := range slots {
		assert.NotEqual(t, mondayAt(10, 0), s.Start)
	}
}

func TestBook_ConflictRejected(t *testing.T) {
	doc := mondayDoctor()
	repo := NewMemoryRepository()
	svc := newTestService(repo, doc)

	book(t, svc, doc.ID, mondayAt(10, 0), 30)
	auditsBefore := repo.auditCount()

	// 10:15-10:45 overlaps the 10:00 booking.
	_, err := svc.Book(context.Background(), BookRequest{
		PatientID:      uuid.New(),
		DoctorID:       doc.ID,
		ScheduledAt:    mondayAt(10, 15),
		Duration:       30,
		Type:           TypeVideo,
		Urgency:        UrgencyHigh,
		ReasonForVisit: "follow-up",
	})
	assert.ErrorIs(t, err, ErrSlotTaken)
	assert.Equal(t, 1, repo.appointmentCount(), "no record created on conflict")
	assert.Equal(t, auditsBefore, repo.auditCount(), "no audit written on conflict")
}

func TestCancel_FreesSlotAndAudits(t *testing.T) {
	doc := mondayDoctor()
	repo := NewMemoryRepository()
	svc := newTestService(repo, doc)
	ctx := context.Background()

	appt := book(t, svc, doc.ID, mondayAt(10, 0), 30)

	err := svc.Cancel(ctx, appt.ID, "patient request", appt.PatientID.String())
	require.NoError(t, err)

	got, err := svc.GetAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	require.NotNil(t, got.CancelReason)
	assert.Equal(t, "patient request", *got.CancelReason)

	audits, err := svc.ListAudit(ctx, appt.ID)
	require.NoError(t, err)
	require.Len(t, audits, 2) // book + cancel
	assert.Equal(t, ActionCancel, audits[1].Action)
	assert.Equal(t, "patient request", audits[1].Details["reason"])

	// The 10:00 slot reappears.
	slots, err := svc.GenerateSlots(ctx, doc.ID, monday)
	require.NoError(t, err)
	assert.Contains(t, slotStarts(slots), mondayAt(10, 0))
}

func TestCancel_TerminalStatusRejected(t *testing.T) {
	doc := mondayDoctor()
	svc := newTestService(NewMemoryRepository(), doc)
	ctx := context.Background()

	appt := book(t, svc, doc.ID, mondayAt(9, 0), 30)
	require.NoError(t, svc.Cancel(ctx, appt.ID, "first", "u1"))

	err := svc.Cancel(ctx, appt.ID, "again", "u1")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestReschedule_Success(t *testing.T) {
	doc := mondayDoctor()
	repo := NewMemoryRepository()
	svc := newTestService(repo, doc)
	ctx := context.Background()

	appt := book(t, svc, doc.ID, mondayAt(9, 0), 30)

	updated, err := svc.Reschedule(ctx, appt.ID, mondayAt(11, 0), 30, "user-1")
	require.NoError(t, err)
	assert.Equal(t, mondayAt(11, 0), updated.ScheduledAt)

	audits, err := svc.ListAudit(ctx, appt.ID)
	require.NoError(t, err)
	require.Len(t, audits, 2)
	rec := audits[1]
	assert.Equal(t, ActionReschedule, rec.Action)
	assert.Equal(t, "user-1", rec.ActorID)
	assert.Equal(t, mondayAt(9, 0), rec.Previous["scheduledAt"])
	assert.Equal(t, mondayAt(11, 0), rec.Next["scheduledAt"])
}

func TestReschedule_ConflictLeavesAppointmentUntouched(t *testing.T) {
	doc := mondayDoctor()
	repo := NewMemoryRepository()
	svc := newTestService(repo, doc)
	ctx := context.Background()

	book(t, svc, doc.ID, mondayAt(11, 0), 30)
	victim := book(t, svc, doc.ID, mondayAt(9, 0), 30)
	auditsBefore := repo.auditCount()

	_, err := svc.Reschedule(ctx, victim.ID, mondayAt(11, 0), 30, "user-1")
	assert.ErrorIs(t, err, ErrSlotTaken)

	got, err := svc.GetAppointment(ctx, victim.ID)
	require.NoError(t, err)
	assert.Equal(t, mondayAt(9, 0), got.ScheduledAt)
	assert.Equal(t, 30, got.Duration)
	assert.Equal(t, auditsBefore, repo.auditCount())
}

func TestReschedule_IgnoresOwnInterval(t *testing.T) {
	doc := mondayDoctor()
	svc := newTestService(NewMemoryRepository(), doc)

	appt := book(t, svc, doc.ID, mondayAt(9, 0), 30)

	// Shifting within its own current interval must not self-conflict.
	updated, err := svc.Reschedule(context.Background(), appt.ID, mondayAt(9, 15), 30, "user-1")
	require.NoError(t, err)
	assert.Equal(t, mondayAt(9, 15), updated.ScheduledAt)
}

func TestReschedule_NotFound(t *testing.T) {
	svc := newTestService(NewMemoryRepository(), mondayDoctor())
	_, err := svc.Reschedule(context.Background(), uuid.New(), mondayAt(11, 0), 30, "user-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGenerateSlots_FallbackSchedule(t *testing.T) {
	doc := mondayDoctor() // no Tuesday segments
	svc := newTestService(NewMemoryRepository(), doc)

	slots, err := svc.GenerateSlots(context.Background(), doc.ID, tuesday)
	require.NoError(t, err)
	require.Len(t, slots, 14) // 10:00-17:00 at 30 min

	assert.Equal(t, time.Date(2026, 3, 3, 10, 0, 0, 0, time.Local), slots[0].Start)
	assert.Equal(t, time.Date(2026, 3, 3, 17, 0, 0, 0, time.Local), slots[len(slots)-1].End)
}

func TestGenerateSlots_UnknownDoctorIsEmpty(t *testing.T) {
	svc := newTestService(NewMemoryRepository())
	slots, err := svc.GenerateSlots(context.Background(), uuid.New(), monday)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestGenerateSlots_SkipsMalformedSegment(t *testing.T) {
	doc := &directory.DoctorProfile{
		ID: uuid.New(),
		Segments: []directory.WeeklySegment{
			{DayOfWeek: 1, StartTime: "9am", EndTime: "noon", SlotDuration: 30},
			{DayOfWeek: 1, StartTime: "14:00", EndTime: "15:00", SlotDuration: 30},
		},
	}
	svc := newTestService(NewMemoryRepository(), doc)

	slots, err := svc.GenerateSlots(context.Background(), doc.ID, monday)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{mondayAt(14, 0), mondayAt(14, 30)}, slotStarts(slots))
}

func TestGenerateSlots_PreservesSegmentDeclarationOrder(t *testing.T) {
	// Afternoon declared before morning: output keeps declaration order and
	// is deliberately not re-sorted globally.
	doc := &directory.DoctorProfile{
		ID: uuid.New(),
		Segments: []directory.WeeklySegment{
			{DayOfWeek: 1, StartTime: "14:00", EndTime: "15:00", SlotDuration: 30},
			{DayOfWeek: 1, StartTime: "09:00", EndTime: "10:00", SlotDuration: 30},
		},
	}
	svc := newTestService(NewMemoryRepository(), doc)

	slots, err := svc.GenerateSlots(context.Background(), doc.ID, monday)
	require.NoError(t, err)
	want := []time.Time{mondayAt(14, 0), mondayAt(14, 30), mondayAt(9, 0), mondayAt(9, 30)}
	assert.Equal(t, want, slotStarts(slots))
}

func TestGenerateSlots_PartialSlotDropped(t *testing.T) {
	// 09:00-10:15 at 30 min only fits two whole slots.
	doc := &directory.DoctorProfile{
		ID: uuid.New(),
		Segments: []directory.WeeklySegment{
			{DayOfWeek: 1, StartTime: "09:00", EndTime: "10:15", SlotDuration: 30},
		},
	}
	svc := newTestService(NewMemoryRepository(), doc)

	slots, err := svc.GenerateSlots(context.Background(), doc.ID, monday)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{mondayAt(9, 0), mondayAt(9, 30)}, slotStarts(slots))
}

func TestBook_Validation(t *testing.T) {
	doc := mondayDoctor()
	svc := newTestService(NewMemoryRepository(), doc)
	ctx := context.Background()

	base := BookRequest{
		PatientID:   uuid.New(),
		DoctorID:    doc.ID,
		ScheduledAt: mondayAt(9, 0),
		Duration:    30,
		Type:        TypeVideo,
		Urgency:     UrgencyLow,
	}

	cases := []struct {
		name   string
		mutate func(*BookRequest)
	}{
		{"missing patient", func(r *BookRequest) { r.PatientID = uuid.Nil }},
		{"missing doctor", func(r *BookRequest) { r.DoctorID = uuid.Nil }},
		{"zero time", func(r *BookRequest) { r.ScheduledAt = time.Time{} }},
		{"non-positive duration", func(r *BookRequest) { r.Duration = 0 }},
		{"bad type", func(r *BookRequest) { r.Type = "house-call" }},
		{"bad urgency", func(r *BookRequest) { r.Urgency = "extreme" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := base
			tc.mutate(&req)
			_, err := svc.Book(ctx, req)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestBook_UnknownDoctor(t *testing.T) {
	svc := newTestService(NewMemoryRepository())
	_, err := svc.Book(context.Background(), BookRequest{
		PatientID:   uuid.New(),
		DoctorID:    uuid.New(),
		ScheduledAt: mondayAt(9, 0),
		Duration:    30,
		Type:        TypeVideo,
		Urgency:     UrgencyLow,
	})
	assert.ErrorIs(t, err, directory.ErrDoctorNotFound)
}

func TestUpdateStatus_ValidatedTransitions(t *testing.T) {
	doc := mondayDoctor()
	repo := NewMemoryRepository()
	svc := newTestService(repo, doc)
	ctx := context.Background()

	appt := book(t, svc, doc.ID, mondayAt(9, 0), 30)

	require.NoError(t, svc.UpdateStatus(ctx, appt.ID, StatusConfirmed, nil, "doc-1"))
	notes := "patient arrived"
	require.NoError(t, svc.UpdateStatus(ctx, appt.ID, StatusInProgress, &notes, "doc-1"))
	require.NoError(t, svc.UpdateStatus(ctx, appt.ID, StatusCompleted, nil, "doc-1"))

	got, err := svc.GetAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	require.NotNil(t, got.ConsultationNotes)
	assert.Equal(t, "patient arrived", *got.ConsultationNotes)

	// Terminal: nothing further.
	err = svc.UpdateStatus(ctx, appt.ID, StatusScheduled, nil, "doc-1")
	assert.ErrorIs(t, err, ErrValidation)
	err = svc.UpdateStatus(ctx, appt.ID, Status("archived"), nil, "doc-1")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdateStatus_InvalidTransitionWritesNoAudit(t *testing.T) {
	doc := mondayDoctor()
	repo := NewMemoryRepository()
	svc := newTestService(repo, doc)
	ctx := context.Background()

	appt := book(t, svc, doc.ID, mondayAt(9, 0), 30)
	require.NoError(t, svc.UpdateStatus(ctx, appt.ID, StatusInProgress, nil, "doc-1"))
	before := repo.auditCount()

	err := svc.UpdateStatus(ctx, appt.ID, StatusConfirmed, nil, "doc-1")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, before, repo.auditCount())
}

func TestAuditCompleteness(t *testing.T) {
	doc := mondayDoctor()
	repo := NewMemoryRepository()
	svc := newTestService(repo, doc)
	ctx := context.Background()

	appt := book(t, svc, doc.ID, mondayAt(9, 0), 30)
	_, err := svc.Reschedule(ctx, appt.ID, mondayAt(10, 0), 30, "u1")
	require.NoError(t, err)
	require.NoError(t, svc.UpdateStatus(ctx, appt.ID, StatusConfirmed, nil, "u2"))
	require.NoError(t, svc.Cancel(ctx, appt.ID, "conflict of schedule", "u1"))

	audits, err := svc.ListAudit(ctx, appt.ID)
	require.NoError(t, err)
	require.Len(t, audits, 4)

	wantActions := []AuditAction{ActionBook, ActionReschedule, ActionStatusChange, ActionCancel}
	for i, rec := range audits {
		assert.Equal(t, wantActions[i], rec.Action)
		assert.Equal(t, appt.ID, rec.AppointmentID)
		assert.False(t, rec.Timestamp.IsZero())
	}
}

func TestAuditFailureDoesNotFailOperation(t *testing.T) {
	doc := mondayDoctor()
	repo := NewMemoryRepository()
	svc := newTestService(&failingAuditRepo{Repository: repo, err: errors.New("audit store down")}, doc)
	ctx := context.Background()

	appt := book(t, svc, doc.ID, mondayAt(9, 0), 30)

	err := svc.Cancel(ctx, appt.ID, "reason", "u1")
	require.NoError(t, err, "audit failure must not fail the mutation")

	got, err := svc.GetAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
}

func TestStartAndEndCall(t *testing.T) {
	doc := mondayDoctor()
	repo := NewMemoryRepository()
	svc := newTestService(repo, doc)
	ctx := context.Background()

	appt := book(t, svc, doc.ID, mondayAt(9, 0), 30)

	started, err := svc.StartCall(ctx, appt.ID, CallVideo, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, started.Status)
	require.NotNil(t, started.CallRoomID)
	require.NotNil(t, started.CallStartTime)

	// Second start reuses the existing room.
	again, err := svc.StartCall(ctx, appt.ID, CallVideo, "patient-1")
	require.NoError(t, err)
	assert.Equal(t, *started.CallRoomID, *again.CallRoomID)

	ended, err := svc.EndCall(ctx, appt.ID, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, ended.Status)
	require.NotNil(t, ended.CallDuration)
	assert.GreaterOrEqual(t, *ended.CallDuration, 1)

	// Ending twice is invalid.
	_, err = svc.EndCall(ctx, appt.ID, "doc-1")
	assert.ErrorIs(t, err, ErrValidation)

	audits, err := svc.ListAudit(ctx, appt.ID)
	require.NoError(t, err)
	assert.Len(t, audits, 3) // book, start-call, end-call
}

func TestStartCall_BadType(t *testing.T) {
	doc := mondayDoctor()
	svc := newTestService(NewMemoryRepository(), doc)
	appt := book(t, svc, doc.ID, mondayAt(9, 0), 30)

	_, err := svc.StartCall(context.Background(), appt.ID, CallType("hologram"), "doc-1")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestMarkOverdueNoShows(t *testing.T) {
	doc := mondayDoctor()
	repo := NewMemoryRepository()
	svc := newTestService(repo, doc)
	ctx := context.Background()

	past := time.Now().Add(-3 * time.Hour)
	overdue := book(t, svc, doc.ID, past, 30)
	cancelled := book(t, svc, doc.ID, past.Add(time.Hour), 30)
	require.NoError(t, svc.Cancel(ctx, cancelled.ID, "skip", "u1"))
	upcoming := book(t, svc, doc.ID, time.Now().Add(2*time.Hour), 30)

	marked, err := svc.MarkOverdueNoShows(ctx, 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	got, err := svc.GetAppointment(ctx, overdue.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusNoShow, got.Status)

	stillCancelled, _ := svc.GetAppointment(ctx, cancelled.ID)
	assert.Equal(t, StatusCancelled, stillCancelled.Status)
	stillScheduled, _ := svc.GetAppointment(ctx, upcoming.ID)
	assert.Equal(t, StatusScheduled, stillScheduled.Status)

	audits, err := svc.ListAudit(ctx, overdue.ID)
	require.NoError(t, err)
	last := audits[len(audits)-1]
	assert.Equal(t, SystemActor, last.ActorID)
	assert.Equal(t, ActionStatusChange, last.Action)
}

func TestListByDoctorAndPatientFilters(t *testing.T) {
	doc := mondayDoctor()
	repo := NewMemoryRepository()
	svc := newTestService(repo, doc)
	ctx := context.Background()

	a := book(t, svc, doc.ID, mondayAt(9, 0), 30)
	b := book(t, svc, doc.ID, mondayAt(10, 0), 30)
	require.NoError(t, svc.Cancel(ctx, b.ID, "reason", "u1"))
	// Different day.
	book(t, svc, doc.ID, time.Date(2026, 3, 3, 10, 0, 0, 0, time.Local), 30)

	day := monday
	sameDay, err := svc.ListByDoctor(ctx, doc.ID, &day, "")
	require.NoError(t, err)
	assert.Len(t, sameDay, 2)

	scheduledOnly, err := svc.ListByDoctor(ctx, doc.ID, nil, StatusScheduled)
	require.NoError(t, err)
	assert.Len(t, scheduledOnly, 2)

	mine, err := svc.ListByPatient(ctx, a.PatientID, "")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, a.ID, mine[0].ID)
}

// TestNoOverlapInvariant drives a random mix of book/reschedule/cancel
// operations and asserts after every step that no two non-cancelled
// appointments of the doctor overlap.
func TestNoOverlapInvariant(t *testing.T) {
	doc := mondayDoctor()
	repo := NewMemoryRepository()
	svc := newTestService(repo, doc)
	ctx := context.Background()

	rng := rand.New(rand.NewSource(42))
	randomStart := func() time.Time {
		hour := 8 + rng.Intn(10)
		minute := 15 * rng.Intn(4)
		return mondayAt(hour, minute)
	}

	var ids []uuid.UUID
	for i := 0; i < 200; i++ {
		switch op := rng.Intn(3); {
		case op == 0 || len(ids) == 0:
			appt, err := svc.Book(ctx, BookRequest{
				PatientID:      uuid.New(),
				DoctorID:       doc.ID,
				ScheduledAt:    randomStart(),
				Duration:       15 + 15*rng.Intn(3),
				Type:           TypeVideo,
				Urgency:        UrgencyMedium,
				ReasonForVisit: "invariant run",
			})
			if err == nil {
				ids = append(ids, appt.ID)
			} else {
				require.ErrorIs(t, err, ErrSlotTaken)
			}
		case op == 1:
			id := ids[rng.Intn(len(ids))]
			if _, err := svc.Reschedule(ctx, id, randomStart(), 15+15*rng.Intn(3), "u"); err != nil {
				require.True(t, errors.Is(err, ErrSlotTaken) || errors.Is(err, ErrValidation))
			}
		default:
			id := ids[rng.Intn(len(ids))]
			if err := svc.Cancel(ctx, id, "random", "u"); err != nil {
				require.ErrorIs(t, err, ErrValidation) // already cancelled
			}
		}

		assertNoOverlaps(t, repo, doc.ID)
	}
}

func assertNoOverlaps(t *testing.T, repo *MemoryRepository, doctorID uuid.UUID) {
	t.Helper()
	appts, err := repo.ListByDoctor(context.Background(), doctorID)
	require.NoError(t, err)

	var blocking []Appointment
	for _, a := range appts {
		if a.Blocking() {
			blocking = append(blocking, a)
		}
	}
	for i := 0; i < len(blocking); i++ {
		for j := i + 1; j < len(blocking); j++ {
			a, b := blocking[i], blocking[j]
			if a.ScheduledAt.Before(b.EndsAt()) && a.EndsAt().After(b.ScheduledAt) {
				t.Fatalf("overlap between %s [%s,%s) and %s [%s,%s)",
					a.ID, a.ScheduledAt, a.EndsAt(), b.ID, b.ScheduledAt, b.EndsAt())
			}
		}
	}
}

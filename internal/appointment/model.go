package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no-show"
)

// statusRank orders the forward chain. Terminal side-exits (cancelled,
// no-show) are handled separately in ValidTransition.
var statusRank = map[Status]int{
	StatusScheduled:  0,
	StatusConfirmed:  1,
	StatusInProgress: 2,
	StatusCompleted:  3,
}

// KnownStatus reports whether s is one of the defined appointment statuses.
func KnownStatus(s Status) bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed out of s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// ValidTransition reports whether an appointment may move from one status to
// another. The lifecycle is scheduled -> confirmed -> in-progress ->
// completed; forward jumps are allowed (a call may start straight from
// scheduled), and cancelled / no-show are reachable from any non-terminal
// state.
func ValidTransition(from, to Status) bool {
	if from.Terminal() || from == to {
		return false
	}
	if to == StatusCancelled || to == StatusNoShow {
		return true
	}
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}

type Type string

const (
	TypeVideo    Type = "video"
	TypeInPerson Type = "in-person"
)

type Urgency string

const (
	UrgencyLow       Urgency = "low"
	UrgencyMedium    Urgency = "medium"
	UrgencyHigh      Urgency = "high"
	UrgencyEmergency Urgency = "emergency"
)

type CallType string

const (
	CallVideo CallType = "video"
	CallVoice CallType = "voice"
)

// Appointment is the central scheduling record. It is never physically
// deleted; cancellation is a status change.
type Appointment struct {
	ID          uuid.UUID
	PatientID   uuid.UUID
	DoctorID    uuid.UUID
	ScheduledAt time.Time
	Duration    int // minutes
	Type        Type
	Urgency     Urgency
	Status      Status

	ReasonForVisit    string
	Symptoms          []string
	ConsultationNotes *string
	CancelReason      *string

	// Call metadata, populated by start-call / end-call.
	CallType      *CallType
	CallRoomID    *string
	CallStartTime *time.Time
	CallEndTime   *time.Time
	CallDuration  *int // minutes

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EndsAt is the exclusive end of the appointment's occupied interval.
func (a *Appointment) EndsAt() time.Time {
	return a.ScheduledAt.Add(time.Duration(a.Duration) * time.Minute)
}

// Blocking reports whether the appointment still occupies its time interval
// for conflict purposes.
func (a *Appointment) Blocking() bool {
	return a.Status != StatusCancelled
}

// Slot is a bookable interval derived from a doctor's availability. It is
// generated fresh per query and never persisted.
type Slot struct {
	Start time.Time
	End   time.Time
}

type AuditAction string

const (
	ActionBook         AuditAction = "book"
	ActionReschedule   AuditAction = "reschedule"
	ActionCancel       AuditAction = "cancel"
	ActionStatusChange AuditAction = "status_change"
)

// SystemActor identifies automated transitions (workers) in audit records.
const SystemActor = "system"

// AuditRecord is one immutable entry in the appointment audit trail. Exactly
// one is written per lifecycle-affecting operation, after the mutation it
// documents.
type AuditRecord struct {
	ID            int64
	AppointmentID uuid.UUID
	ActorID       string // user id, or SystemActor
	Action        AuditAction
	Timestamp     time.Time
	Details       map[string]any
	Previous      map[string]any
	Next          map[string]any
}

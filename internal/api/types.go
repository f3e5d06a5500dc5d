package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/carewell/telemed-scheduling/internal/appointment"
)

type SlotResponse struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type SlotsResponse struct {
	Slots []SlotResponse `json:"slots"`
}

type BookAppointmentRequest struct {
	DoctorID       string   `json:"doctorId"`
	ScheduledAt    string   `json:"scheduledAt"` // ISO-8601
	Duration       int      `json:"duration"`    // minutes, default 30
	Type           string   `json:"type"`        // default video
	Urgency        string   `json:"urgency"`     // default medium
	ReasonForVisit string   `json:"reasonForVisit"`
	Symptoms       []string `json:"symptoms"`
}

type UpdateStatusRequest struct {
	ID     string  `json:"id"`
	Status string  `json:"status"`
	Notes  *string `json:"notes,omitempty"`
}

// ModifyAppointmentRequest drives the PATCH endpoint; action selects
// reschedule or cancel.
type ModifyAppointmentRequest struct {
	Action         string `json:"action"` // "reschedule" | "cancel"
	ID             string `json:"id"`
	NewScheduledAt string `json:"newScheduledAt,omitempty"`
	Duration       int    `json:"duration,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

type StartCallRequest struct {
	CallType string `json:"callType,omitempty"` // "video" | "voice", default video
}

type AppointmentResponse struct {
	ID                uuid.UUID  `json:"id"`
	PatientID         uuid.UUID  `json:"patientId"`
	DoctorID          uuid.UUID  `json:"doctorId"`
	ScheduledAt       time.Time  `json:"scheduledAt"`
	Duration          int        `json:"duration"`
	Type              string     `json:"type"`
	Urgency           string     `json:"urgency"`
	Status            string     `json:"status"`
	ReasonForVisit    string     `json:"reasonForVisit"`
	Symptoms          []string   `json:"symptoms,omitempty"`
	ConsultationNotes *string    `json:"consultationNotes,omitempty"`
	CancelReason      *string    `json:"cancelReason,omitempty"`
	CallType          *string    `json:"callType,omitempty"`
	CallRoomID        *string    `json:"callRoomId,omitempty"`
	CallStartTime     *time.Time `json:"callStartTime,omitempty"`
	CallEndTime       *time.Time `json:"callEndTime,omitempty"`
	CallDuration      *int       `json:"callDuration,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	resp := AppointmentResponse{
		ID:                a.ID,
		PatientID:         a.PatientID,
		DoctorID:          a.DoctorID,
		ScheduledAt:       a.ScheduledAt,
		Duration:          a.Duration,
		Type:              string(a.Type),
		Urgency:           string(a.Urgency),
		Status:            string(a.Status),
		ReasonForVisit:    a.ReasonForVisit,
		Symptoms:          a.Symptoms,
		ConsultationNotes: a.ConsultationNotes,
		CancelReason:      a.CancelReason,
		CallRoomID:        a.CallRoomID,
		CallStartTime:     a.CallStartTime,
		CallEndTime:       a.CallEndTime,
		CallDuration:      a.CallDuration,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
	if a.CallType != nil {
		ct := string(*a.CallType)
		resp.CallType = &ct
	}
	return resp
}

type AuditResponse struct {
	ID            int64          `json:"id"`
	AppointmentID uuid.UUID      `json:"appointmentId"`
	ActorID       string         `json:"userId"`
	Action        string         `json:"action"`
	Timestamp     time.Time      `json:"timestamp"`
	Details       map[string]any `json:"details,omitempty"`
	Previous      map[string]any `json:"previous,omitempty"`
	Next          map[string]any `json:"next,omitempty"`
}

type DoctorResponse struct {
	ID        uuid.UUID `json:"id"`
	FullName  string    `json:"fullName"`
	Specialty string    `json:"specialty"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

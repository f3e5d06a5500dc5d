package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/carewell/telemed-scheduling/internal/appointment"
	"github.com/carewell/telemed-scheduling/internal/directory"
)

func slotsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorIDStr := r.URL.Query().Get("doctorId")
		if doctorIDStr == "" {
			writeError(w, http.StatusBadRequest, "missing_doctor_id", "doctorId is required")
			return
		}
		doctorID, err := uuid.Parse(doctorIDStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorId must be a valid UUID")
			return
		}

		date := time.Now()
		if dateStr := r.URL.Query().Get("date"); dateStr != "" {
			date, err = time.ParseInLocation("2006-01-02", dateStr, time.Local)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
				return
			}
		}

		slots, err := svc.GenerateSlots(r.Context(), doctorID, date)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := SlotsResponse{Slots: make([]SlotResponse, 0, len(slots))}
		for _, s := range slots {
			resp.Slots = append(resp.Slots, SlotResponse{Start: s.Start, End: s.End})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func bookAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(ActorID(r.Context()))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "session subject is not a valid user id")
			return
		}
		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorId must be a valid UUID")
			return
		}
		scheduledAt, err := time.Parse(time.RFC3339, req.ScheduledAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_scheduled_at", "scheduledAt must be an ISO-8601 timestamp")
			return
		}

		bookReq := appointment.BookRequest{
			PatientID:      patientID,
			DoctorID:       doctorID,
			ScheduledAt:    scheduledAt.Local(),
			Duration:       req.Duration,
			Type:           appointment.Type(req.Type),
			Urgency:        appointment.Urgency(req.Urgency),
			ReasonForVisit: req.ReasonForVisit,
			Symptoms:       req.Symptoms,
		}
		// Booking form defaults.
		if bookReq.Duration == 0 {
			bookReq.Duration = 30
		}
		if bookReq.Type == "" {
			bookReq.Type = appointment.TypeVideo
		}
		if bookReq.Urgency == "" {
			bookReq.Urgency = appointment.UrgencyMedium
		}

		appt, err := svc.Book(r.Context(), bookReq)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(ActorID(r.Context()))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "session subject is not a valid user id")
			return
		}

		role := r.URL.Query().Get("role")
		status := appointment.Status(r.URL.Query().Get("status"))

		var appts []appointment.Appointment
		switch role {
		case "doctor":
			var date *time.Time
			if dateStr := r.URL.Query().Get("date"); dateStr != "" {
				d, err := time.ParseInLocation("2006-01-02", dateStr, time.Local)
				if err != nil {
					writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
					return
				}
				date = &d
			}
			appts, err = svc.ListByDoctor(r.Context(), userID, date, status)
		default:
			appts, err = svc.ListByPatient(r.Context(), userID, status)
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			resp = append(resp, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func updateStatusHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UpdateStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.ID == "" {
			writeError(w, http.StatusBadRequest, "missing_id", "appointment id is required")
			return
		}
		id, err := uuid.Parse(req.ID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		// Status updates through this endpoint are attributed to the system
		// actor in the audit trail.
		err = svc.UpdateStatus(r.Context(), id, appointment.Status(req.Status), req.Notes, appointment.SystemActor)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
	}
}

func modifyAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ModifyAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.ID == "" || req.Action == "" {
			writeError(w, http.StatusBadRequest, "missing_fields", "id and action are required")
			return
		}
		id, err := uuid.Parse(req.ID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}
		actorID := ActorID(r.Context())

		switch req.Action {
		case "reschedule":
			if req.NewScheduledAt == "" {
				writeError(w, http.StatusBadRequest, "missing_new_scheduled_at", "newScheduledAt is required for reschedule")
				return
			}
			newStart, err := time.Parse(time.RFC3339, req.NewScheduledAt)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_new_scheduled_at", "newScheduledAt must be an ISO-8601 timestamp")
				return
			}
			duration := req.Duration
			if duration == 0 {
				duration = 30
			}
			if _, err := svc.Reschedule(r.Context(), id, newStart.Local(), duration, actorID); err != nil {
				handleServiceError(w, err)
				return
			}
		case "cancel":
			reason := req.Reason
			if reason == "" {
				reason = "Cancelled"
			}
			if err := svc.Cancel(r.Context(), id, reason, actorID); err != nil {
				handleServiceError(w, err)
				return
			}
		default:
			writeError(w, http.StatusBadRequest, "invalid_action", "action must be reschedule or cancel")
			return
		}

		writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
	}
}

func startCallHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req StartCallRequest
		_ = json.NewDecoder(r.Body).Decode(&req) // body is optional
		callType := appointment.CallVideo
		if req.CallType == string(appointment.CallVoice) {
			callType = appointment.CallVoice
		}

		appt, err := svc.StartCall(r.Context(), id, callType, ActorID(r.Context()))
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func endCallHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.EndCall(r.Context(), id, ActorID(r.Context()))
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func auditTrailHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		records, err := svc.ListAudit(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := make([]AuditResponse, 0, len(records))
		for _, rec := range records {
			resp = append(resp, AuditResponse{
				ID:            rec.ID,
				AppointmentID: rec.AppointmentID,
				ActorID:       rec.ActorID,
				Action:        string(rec.Action),
				Timestamp:     rec.Timestamp,
				Details:       rec.Details,
				Previous:      rec.Previous,
				Next:          rec.Next,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listDoctorsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		doctors, err := svc.ListDoctors(r.Context(), limit, offset)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]DoctorResponse, 0, len(doctors))
		for _, d := range doctors {
			resp = append(resp, DoctorResponse{ID: d.ID, FullName: d.FullName, Specialty: d.Specialty})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, appointment.ErrScheduleBusy):
		writeError(w, http.StatusConflict, "schedule_busy", err.Error())
	case errors.Is(err, appointment.ErrNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, directory.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, appointment.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

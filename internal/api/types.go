package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/carelane/clinic-booking/internal/clinic"
)

type BookAppointmentRequest struct {
	PatientID string `json:"patient_id"`
	DoctorID  string `json:"doctor_id"`
	SlotDate  string `json:"slot_date"`
	SlotTime  string `json:"slot_time"`
	Reason    string `json:"reason,omitempty"`
}

type CancelAppointmentRequest struct {
	Actor   string `json:"actor"`              // admin, doctor or patient
	ActorID string `json:"actor_id,omitempty"` // required unless actor is admin
	Reason  string `json:"reason,omitempty"`
}

type CompleteAppointmentRequest struct {
	DoctorID string `json:"doctor_id"`
}

type ConsultationSummaryRequest struct {
	DoctorID string `json:"doctor_id"`
	Summary  string `json:"summary"`
}

type DayOffRequest struct {
	DayOff string `json:"day_off"` // weekday name or empty to clear
}

type AppointmentResponse struct {
	ID                  uuid.UUID `json:"id"`
	PatientID           uuid.UUID `json:"patient_id"`
	DoctorID            uuid.UUID `json:"doctor_id"`
	SlotDate            string    `json:"slot_date"`
	SlotTime            string    `json:"slot_time"`
	Reason              string    `json:"reason,omitempty"`
	Amount              int64     `json:"amount"`
	Status              string    `json:"status"`
	CancellationReason  string    `json:"cancellation_reason,omitempty"`
	CancelledBy         string    `json:"cancelled_by,omitempty"`
	Paid                bool      `json:"paid"`
	Read                bool      `json:"read"`
	ConsultationSummary string    `json:"consultation_summary,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

func toAppointmentResponse(a *clinic.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                  a.ID,
		PatientID:           a.PatientID,
		DoctorID:            a.DoctorID,
		SlotDate:            string(a.SlotDate),
		SlotTime:            a.SlotTime,
		Reason:              a.Reason,
		Amount:              a.Amount,
		Status:              string(a.Status),
		CancellationReason:  a.CancellationReason,
		CancelledBy:         string(a.CancelledBy),
		Paid:                a.Paid,
		Read:                a.Read,
		ConsultationSummary: a.ConsultationSummary,
		CreatedAt:           a.CreatedAt,
	}
}

type AvailabilityResponse struct {
	DoctorID  uuid.UUID `json:"doctor_id"`
	Available bool      `json:"available"`
}

type ReconcileResponse struct {
	Changed int `json:"changed"`
}

type BookedSlotsResponse struct {
	BookedSlots map[string][]string `json:"booked_slots"`
}

type BookedDatesResponse struct {
	BookedDates []string `json:"booked_dates"`
}

type DoctorSlotsResponse struct {
	SlotDate string   `json:"slot_date"`
	Slots    []string `json:"slots"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

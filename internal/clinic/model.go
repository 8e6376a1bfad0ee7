package clinic

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
)

// CancelActor identifies who cancelled an appointment.
type CancelActor string

const (
	CancelledByAdmin   CancelActor = "admin"
	CancelledByDoctor  CancelActor = "doctor"
	CancelledByPatient CancelActor = "patient"
)

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Doctor carries the per-doctor booked-slot ledger and the availability
// flag derived from the weekly day-off setting.
type Doctor struct {
	ID          uuid.UUID
	Name        string
	Email       string
	Specialty   *string
	Fees        int64
	Available   bool
	DayOff      string // weekday name, empty means no day off
	SlotsBooked map[SlotDate][]string
	Archived    bool
	ArchivedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Appointment is a historical record: the patient and doctor snapshots are
// frozen at booking time and never follow the live profiles.
type Appointment struct {
	ID                  uuid.UUID
	PatientID           uuid.UUID
	DoctorID            uuid.UUID
	SlotDate            SlotDate
	SlotTime            string
	Reason              string
	Amount              int64
	PatientSnapshot     []byte
	DoctorSnapshot      []byte
	Status              AppointmentStatus
	CancellationReason  string
	CancelledBy         CancelActor // empty unless cancelled
	Paid                bool
	Read                bool
	ConsultationSummary string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	DoctorID      *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

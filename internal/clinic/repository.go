package clinic

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrSlotUnavailable     = errors.New("slot not available")
)

// Repository contains all store interactions needed by the service.
//
// The conditional mutations (ReserveSlot, CancelAppointment,
// CompleteAppointment, SetConsultationSummary) carry their precondition into
// the store update itself so that concurrent callers cannot both win:
// the implementation must re-check the guard inside the same atomic update.
type Repository interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	ListDoctorsWithDayOff(ctx context.Context) ([]Doctor, error)
	SetDoctorAvailability(ctx context.Context, id uuid.UUID, available bool) error
	SetDoctorDayOff(ctx context.Context, id uuid.UUID, dayOff string) error
	ArchiveDoctor(ctx context.Context, id uuid.UUID) error

	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	// Slot ledger. ReserveSlot fails with ErrSlotUnavailable when the time
	// label is already present under the date key; ReleaseSlot is a no-op
	// for absent entries.
	ReserveSlot(ctx context.Context, docID uuid.UUID, date SlotDate, timeLabel string) error
	ReleaseSlot(ctx context.Context, docID uuid.UUID, date SlotDate, timeLabel string) error
	BookedSlots(ctx context.Context, docID uuid.UUID, date SlotDate) ([]string, error)

	CreateAppointment(ctx context.Context, appt Appointment) (*Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	HasActiveBooking(ctx context.Context, patientID uuid.UUID, date SlotDate, timeLabel string) (bool, error)

	// Guarded status transitions: return ErrAppointmentNotFound when the
	// row no longer satisfies the guard (lost race or wrong state).
	CancelAppointment(ctx context.Context, id uuid.UUID, reason string, by CancelActor) (*Appointment, error)
	CompleteAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	SetConsultationSummary(ctx context.Context, id uuid.UUID, summary string) (*Appointment, error)

	MarkAppointmentPaid(ctx context.Context, id uuid.UUID) (*Appointment, error)
	MarkAppointmentRead(ctx context.Context, id uuid.UUID) (*Appointment, error)

	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListAppointmentsByDoctor(ctx context.Context, docID uuid.UUID, limit, offset int) ([]Appointment, error)
	PatientBookedSlots(ctx context.Context, patientID uuid.UUID, from, to SlotDate) (map[SlotDate][]string, error)
	PatientBookedDates(ctx context.Context, patientID, docID uuid.UUID) ([]SlotDate, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}

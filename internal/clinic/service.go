package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/carelane/clinic-booking/internal/redis"
)

const (
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventPaymentReceived      = "PAYMENT_RECEIVED"
	EventSlotReleaseFailed    = "SLOT_RELEASE_FAILED"
	EventAvailabilityChanged  = "AVAILABILITY_CHANGED"
)

// Booking window: an appointment must be at least this many days ahead and
// no more than one calendar month ahead.
const minLeadDays = 5

var (
	ErrInvalidSlotDate   = errors.New("invalid slot date")
	ErrMissingTimeLabel  = errors.New("time label is required")
	ErrOutOfWindow       = errors.New("appointment date is outside the booking window")
	ErrDuplicateBooking  = errors.New("patient already has an appointment at this time")
	ErrDoctorUnavailable = errors.New("doctor is not available")
	ErrSlotContended     = errors.New("slot is currently being booked, please retry")
	ErrInvalidTransition = errors.New("invalid appointment status transition")
	ErrNotCompleted      = errors.New("appointment is not completed")
	ErrEmptySummary      = errors.New("consultation summary is required")
	ErrNotAllowed        = errors.New("actor does not own this appointment")
	ErrUnknownActor      = errors.New("unknown cancel actor")
)

// Notifier delivers booking and status emails. Implementations are called
// synchronously but their failures never abort the triggering operation.
type Notifier interface {
	DoctorBooked(ctx context.Context, email string, appt *Appointment) error
	PatientStatusChanged(ctx context.Context, email string, appt *Appointment, status string) error
}

type Service struct {
	repo     Repository
	locker   redisclient.Locker
	notifier Notifier
	log      zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, notifier Notifier, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		locker:   locker,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

type BookingRequest struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Date      SlotDate
	TimeLabel string
	Reason    string
}

// Book validates a booking request against the window, duplicate, and
// availability rules, then reserves the slot and creates the appointment
// inside a per-slot lock so concurrent requests for the same slot cannot
// both succeed.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	if req.TimeLabel == "" {
		return nil, ErrMissingTimeLabel
	}

	day, err := req.Date.Time()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSlotDate, err)
	}

	today := startOfDay(s.now())
	lead := int(day.Sub(today).Hours() / 24)
	if lead < minLeadDays {
		return nil, fmt.Errorf("%w: must be booked at least %d days in advance", ErrOutOfWindow, minLeadDays)
	}
	if day.After(today.AddDate(0, 1, 0)) {
		return nil, fmt.Errorf("%w: cannot be booked more than 1 month in advance", ErrOutOfWindow)
	}

	dup, err := s.repo.HasActiveBooking(ctx, req.PatientID, req.Date, req.TimeLabel)
	if err != nil {
		return nil, fmt.Errorf("check duplicate booking: %w", err)
	}
	if dup {
		return nil, ErrDuplicateBooking
	}

	patient, err := s.repo.GetPatientByID(ctx, req.PatientID)
	if err != nil {
		return nil, err
	}

	doctor, err := s.repo.GetDoctorByID(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}
	if doctor.Archived {
		return nil, ErrDoctorNotFound
	}
	if !doctor.Available {
		return nil, ErrDoctorUnavailable
	}

	var created *Appointment

	err = s.locker.WithSlotLock(ctx, req.DoctorID, string(req.Date), req.TimeLabel, func(lockCtx context.Context) error {
		if err := s.repo.ReserveSlot(lockCtx, req.DoctorID, req.Date, req.TimeLabel); err != nil {
			return err
		}

		appt := Appointment{
			PatientID:       req.PatientID,
			DoctorID:        req.DoctorID,
			SlotDate:        req.Date,
			SlotTime:        req.TimeLabel,
			Reason:          req.Reason,
			Amount:          doctor.Fees,
			PatientSnapshot: snapshotPatient(patient),
			DoctorSnapshot:  snapshotDoctor(doctor),
		}

		created, err = s.repo.CreateAppointment(lockCtx, appt)
		if err != nil {
			// The slot was reserved but the record never landed; release
			// so it is not stranded.
			if relErr := s.repo.ReleaseSlot(lockCtx, req.DoctorID, req.Date, req.TimeLabel); relErr != nil {
				s.log.Error().Err(relErr).
					Stringer("doctor_id", req.DoctorID).
					Str("slot_date", string(req.Date)).
					Str("slot_time", req.TimeLabel).
					Msg("slot release after failed create also failed")
				s.logDoctorEvent(lockCtx, req.DoctorID, EventSlotReleaseFailed, map[string]any{
					"slot_date": string(req.Date),
					"slot_time": req.TimeLabel,
					"stage":     "create_failed",
				})
			}
			return fmt.Errorf("create appointment: %w", err)
		}

		s.logEvent(lockCtx, created.ID, EventAppointmentBooked, map[string]any{
			"patient_id": req.PatientID.String(),
			"doctor_id":  req.DoctorID.String(),
			"slot_date":  string(req.Date),
			"slot_time":  req.TimeLabel,
			"amount":     doctor.Fees,
		})

		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotContended
		}
		return nil, err
	}

	s.notifyDoctor(ctx, doctor.Email, created)

	return created, nil
}

// Cancel moves a pending appointment to cancelled and releases its slot.
// The actor precondition mirrors the panel rules: a patient or doctor may
// only cancel their own appointments, admins may cancel any. If the slot
// release fails after the transition committed, the error is surfaced but
// the cancellation stands; the event log keeps the stranded slot visible.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor CancelActor, actorID uuid.UUID, reason string) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch actor {
	case CancelledByPatient:
		if appt.PatientID != actorID {
			return nil, ErrNotAllowed
		}
	case CancelledByDoctor:
		if appt.DoctorID != actorID {
			return nil, ErrNotAllowed
		}
	case CancelledByAdmin:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownActor, actor)
	}

	if !appt.Status.CanTransition(StatusCancelled) {
		return nil, ErrInvalidTransition
	}

	if reason == "" {
		reason = "Cancelled by " + string(actor)
	}

	cancelled, err := s.repo.CancelAppointment(ctx, id, reason, actor)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Lost a race with another transition.
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	s.logEvent(ctx, cancelled.ID, EventAppointmentCancelled, map[string]any{
		"cancelled_by": string(actor),
		"reason":       reason,
	})

	if err := s.repo.ReleaseSlot(ctx, appt.DoctorID, appt.SlotDate, appt.SlotTime); err != nil {
		s.log.Error().Err(err).
			Stringer("appointment_id", cancelled.ID).
			Stringer("doctor_id", appt.DoctorID).
			Str("slot_date", string(appt.SlotDate)).
			Str("slot_time", appt.SlotTime).
			Msg("slot release after cancellation failed")
		s.logEvent(ctx, cancelled.ID, EventSlotReleaseFailed, map[string]any{
			"slot_date": string(appt.SlotDate),
			"slot_time": appt.SlotTime,
			"stage":     "cancel",
		})
		return cancelled, fmt.Errorf("release slot after cancellation: %w", err)
	}

	s.notifyPatient(ctx, cancelled, "cancelled")

	return cancelled, nil
}

// Complete moves a pending appointment to completed. Only the owning doctor
// may complete it; a cancelled appointment can never be completed.
func (s *Service) Complete(ctx context.Context, id, docID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.DoctorID != docID {
		return nil, ErrNotAllowed
	}
	if !appt.Status.CanTransition(StatusCompleted) {
		return nil, ErrInvalidTransition
	}

	completed, err := s.repo.CompleteAppointment(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("complete appointment: %w", err)
	}

	s.logEvent(ctx, completed.ID, EventAppointmentCompleted, map[string]any{
		"doctor_id": docID.String(),
	})

	s.notifyPatient(ctx, completed, "completed")

	return completed, nil
}

// MarkPaid records a payment confirmation from the gateway. Idempotent and
// orthogonal to the status machine: a callback may land after completion or
// even after a racing cancellation, and the flag is recorded either way.
func (s *Service) MarkPaid(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Paid {
		return appt, nil
	}

	paid, err := s.repo.MarkAppointmentPaid(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("mark appointment paid: %w", err)
	}

	s.logEvent(ctx, paid.ID, EventPaymentReceived, map[string]any{
		"amount": paid.Amount,
	})

	return paid, nil
}

// MarkRead flips the notification read flag; valid in any state.
func (s *Service) MarkRead(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.MarkAppointmentRead(ctx, id)
	if err != nil {
		return nil, err
	}
	return appt, nil
}

// AddConsultationSummary attaches the doctor's summary to a completed
// appointment. The completed guard is re-checked inside the store update.
func (s *Service) AddConsultationSummary(ctx context.Context, id, docID uuid.UUID, summary string) (*Appointment, error) {
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return nil, ErrEmptySummary
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.DoctorID != docID {
		return nil, ErrNotAllowed
	}
	if appt.Status != StatusCompleted {
		return nil, ErrNotCompleted
	}

	updated, err := s.repo.SetConsultationSummary(ctx, id, summary)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrNotCompleted
		}
		return nil, fmt.Errorf("set consultation summary: %w", err)
	}

	s.notifyPatient(ctx, updated, "summary added")

	return updated, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointmentByID(ctx, id)
}

func (s *Service) ListPatientAppointments(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	limit, offset = clampPage(limit, offset)
	appts, err := s.repo.ListAppointmentsByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appts, nil
}

func (s *Service) ListDoctorAppointments(ctx context.Context, docID uuid.UUID, limit, offset int) ([]Appointment, error) {
	limit, offset = clampPage(limit, offset)
	appts, err := s.repo.ListAppointmentsByDoctor(ctx, docID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by doctor: %w", err)
	}
	return appts, nil
}

func (s *Service) PatientBookedSlots(ctx context.Context, patientID uuid.UUID, from, to SlotDate) (map[SlotDate][]string, error) {
	return s.repo.PatientBookedSlots(ctx, patientID, from, to)
}

func (s *Service) PatientBookedDates(ctx context.Context, patientID, docID uuid.UUID) ([]SlotDate, error) {
	return s.repo.PatientBookedDates(ctx, patientID, docID)
}

// DoctorBookedSlots reads the ledger entry for one date key.
func (s *Service) DoctorBookedSlots(ctx context.Context, docID uuid.UUID, date SlotDate) ([]string, error) {
	return s.repo.BookedSlots(ctx, docID, date)
}

// ArchiveDoctor soft-deletes a doctor; archived doctors cannot take
// bookings and drop out of the reconcile pass.
func (s *Service) ArchiveDoctor(ctx context.Context, docID uuid.UUID) error {
	return s.repo.ArchiveDoctor(ctx, docID)
}

// Helpers

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func snapshotPatient(p *Patient) []byte {
	b, _ := json.Marshal(map[string]any{
		"id":    p.ID.String(),
		"name":  p.Name,
		"email": p.Email,
	})
	return b
}

// snapshotDoctor excludes the ledger: the appointment owns a frozen copy of
// the profile, not the live calendar.
func snapshotDoctor(d *Doctor) []byte {
	b, _ := json.Marshal(map[string]any{
		"id":        d.ID.String(),
		"name":      d.Name,
		"email":     d.Email,
		"specialty": d.Specialty,
		"fees":      d.Fees,
	})
	return b
}

func (s *Service) notifyDoctor(ctx context.Context, email string, appt *Appointment) {
	if err := s.notifier.DoctorBooked(ctx, email, appt); err != nil {
		s.log.Warn().Err(err).Stringer("appointment_id", appt.ID).Msg("doctor booking notification failed")
	}
}

func (s *Service) notifyPatient(ctx context.Context, appt *Appointment, status string) {
	patient, err := s.repo.GetPatientByID(ctx, appt.PatientID)
	if err != nil {
		s.log.Warn().Err(err).Stringer("appointment_id", appt.ID).Msg("load patient for notification failed")
		return
	}
	if patient.Email == nil {
		return
	}
	if err := s.notifier.PatientStatusChanged(ctx, *patient.Email, appt, status); err != nil {
		s.log.Warn().Err(err).Stringer("appointment_id", appt.ID).Str("status", status).Msg("patient status notification failed")
	}
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).Str("event_type", eventType).Stringer("appointment_id", appointmentID).Msg("failed to insert event log")
	}
}

func (s *Service) logDoctorEvent(ctx context.Context, docID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	id := docID

	ev := EventLog{
		EventType: eventType,
		DoctorID:  &id,
		Payload:   data,
		CreatedAt: s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).Str("event_type", eventType).Stringer("doctor_id", docID).Msg("failed to insert event log")
	}
}

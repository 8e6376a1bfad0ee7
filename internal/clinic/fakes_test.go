package clinic

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// In-memory repository used by the service tests. Mutations hold the mutex
// across check-then-act so it honors the same atomicity contract as the
// Postgres implementation.
type memRepo struct {
	mu          sync.Mutex
	doctors     map[uuid.UUID]*Doctor
	patients    map[uuid.UUID]*Patient
	appts       map[uuid.UUID]*Appointment
	events      []EventLog
	failRelease bool
}

func newMemRepo() *memRepo {
	return &memRepo{
		doctors:  map[uuid.UUID]*Doctor{},
		patients: map[uuid.UUID]*Patient{},
		appts:    map[uuid.UUID]*Appointment{},
	}
}

func (m *memRepo) addDoctor(d Doctor) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.SlotsBooked == nil {
		d.SlotsBooked = map[SlotDate][]string{}
	}
	m.doctors[d.ID] = &d
	return d.ID
}

func (m *memRepo) addPatient(p Patient) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	m.patients[p.ID] = &p
	return p.ID
}

func (m *memRepo) eventCount(eventType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, ev := range m.events {
		if ev.EventType == eventType {
			n++
		}
	}
	return n
}

func copyDoctor(d *Doctor) *Doctor {
	cp := *d
	cp.SlotsBooked = map[SlotDate][]string{}
	for k, v := range d.SlotsBooked {
		cp.SlotsBooked[k] = append([]string(nil), v...)
	}
	return &cp
}

func (m *memRepo) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return copyDoctor(d), nil
}

func (m *memRepo) ListDoctorsWithDayOff(ctx context.Context) ([]Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Doctor
	for _, d := range m.doctors {
		if d.DayOff != "" && !d.Archived {
			out = append(out, *copyDoctor(d))
		}
	}
	return out, nil
}

func (m *memRepo) SetDoctorAvailability(ctx context.Context, id uuid.UUID, available bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return ErrDoctorNotFound
	}
	d.Available = available
	return nil
}

func (m *memRepo) SetDoctorDayOff(ctx context.Context, id uuid.UUID, dayOff string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return ErrDoctorNotFound
	}
	d.DayOff = dayOff
	return nil
}

func (m *memRepo) ArchiveDoctor(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok || d.Archived {
		return ErrDoctorNotFound
	}
	d.Archived = true
	d.Available = false
	now := time.Now()
	d.ArchivedAt = &now
	return nil
}

func (m *memRepo) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memRepo) ReserveSlot(ctx context.Context, docID uuid.UUID, date SlotDate, timeLabel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[docID]
	if !ok {
		return ErrDoctorNotFound
	}
	for _, label := range d.SlotsBooked[date] {
		if label == timeLabel {
			return ErrSlotUnavailable
		}
	}
	d.SlotsBooked[date] = append(d.SlotsBooked[date], timeLabel)
	return nil
}

func (m *memRepo) ReleaseSlot(ctx context.Context, docID uuid.UUID, date SlotDate, timeLabel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRelease {
		return errors.New("store unreachable")
	}
	d, ok := m.doctors[docID]
	if !ok {
		return nil
	}
	labels := d.SlotsBooked[date]
	kept := labels[:0]
	for _, label := range labels {
		if label != timeLabel {
			kept = append(kept, label)
		}
	}
	d.SlotsBooked[date] = kept
	return nil
}

func (m *memRepo) BookedSlots(ctx context.Context, docID uuid.UUID, date SlotDate) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[docID]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return append([]string(nil), d.SlotsBooked[date]...), nil
}

func (m *memRepo) CreateAppointment(ctx context.Context, appt Appointment) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	appt.ID = uuid.New()
	appt.Status = StatusPending
	appt.CreatedAt = time.Now()
	appt.UpdatedAt = appt.CreatedAt
	cp := appt
	m.appts[appt.ID] = &cp
	out := appt
	return &out, nil
}

func (m *memRepo) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memRepo) HasActiveBooking(ctx context.Context, patientID uuid.UUID, date SlotDate, timeLabel string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.appts {
		if a.PatientID == patientID && a.SlotDate == date && a.SlotTime == timeLabel && a.Status != StatusCancelled {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) CancelAppointment(ctx context.Context, id uuid.UUID, reason string, by CancelActor) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok || a.Status != StatusPending {
		return nil, ErrAppointmentNotFound
	}
	a.Status = StatusCancelled
	a.CancellationReason = reason
	a.CancelledBy = by
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (m *memRepo) CompleteAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok || a.Status != StatusPending {
		return nil, ErrAppointmentNotFound
	}
	a.Status = StatusCompleted
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (m *memRepo) SetConsultationSummary(ctx context.Context, id uuid.UUID, summary string) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok || a.Status != StatusCompleted {
		return nil, ErrAppointmentNotFound
	}
	a.ConsultationSummary = summary
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (m *memRepo) MarkAppointmentPaid(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	a.Paid = true
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (m *memRepo) MarkAppointmentRead(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	a.Read = true
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (m *memRepo) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appts {
		if a.PatientID == patientID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memRepo) ListAppointmentsByDoctor(ctx context.Context, docID uuid.UUID, limit, offset int) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appts {
		if a.DoctorID == docID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memRepo) PatientBookedSlots(ctx context.Context, patientID uuid.UUID, from, to SlotDate) (map[SlotDate][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[SlotDate][]string{}
	for _, a := range m.appts {
		if a.PatientID != patientID || a.Status == StatusCancelled {
			continue
		}
		if from != "" && to != "" && (string(a.SlotDate) < string(from) || string(a.SlotDate) > string(to)) {
			continue
		}
		out[a.SlotDate] = append(out[a.SlotDate], a.SlotTime)
	}
	return out, nil
}

func (m *memRepo) PatientBookedDates(ctx context.Context, patientID, docID uuid.UUID) ([]SlotDate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[SlotDate]bool{}
	var out []SlotDate
	for _, a := range m.appts {
		if a.PatientID == patientID && a.DoctorID == docID && a.Status != StatusCancelled && !seen[a.SlotDate] {
			seen[a.SlotDate] = true
			out = append(out, a.SlotDate)
		}
	}
	return out, nil
}

func (m *memRepo) InsertEvent(ctx context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.ID = int64(len(m.events) + 1)
	m.events = append(m.events, ev)
	return nil
}

// memLocker serializes callers per slot key, standing in for the Redis
// locker.
type memLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *memLocker) WithSlotLock(ctx context.Context, docID uuid.UUID, dateKey, timeLabel string, fn func(ctx context.Context) error) error {
	key := docID.String() + "|" + dateKey + "|" + timeLabel

	l.mu.Lock()
	if l.locks == nil {
		l.locks = map[string]*sync.Mutex{}
	}
	mu, ok := l.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		l.locks[key] = mu
	}
	l.mu.Unlock()

	mu.Lock()
	defer mu.Unlock()
	return fn(ctx)
}

type recordingNotifier struct {
	mu             sync.Mutex
	doctorBooked   int
	patientChanges []string
	fail           bool
}

func (n *recordingNotifier) DoctorBooked(ctx context.Context, email string, appt *Appointment) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.doctorBooked++
	if n.fail {
		return errors.New("smtp down")
	}
	return nil
}

func (n *recordingNotifier) PatientStatusChanged(ctx context.Context, email string, appt *Appointment, status string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.patientChanges = append(n.patientChanges, status)
	if n.fail {
		return errors.New("smtp down")
	}
	return nil
}

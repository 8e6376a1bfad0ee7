// Package notify delivers booking and status-change emails. Senders are
// called synchronously from the booking service but their errors are always
// downgraded to logs by the caller; nothing here may unwind a booking.
package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"

	"github.com/carelane/clinic-booking/internal/clinic"
)

type EmailNotifier struct {
	dialer *gomail.Dialer
	from   string
}

func NewEmailNotifier(host string, port int, username, password, from string) *EmailNotifier {
	return &EmailNotifier{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

func (n *EmailNotifier) DoctorBooked(ctx context.Context, email string, appt *clinic.Appointment) error {
	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", email)
	m.SetHeader("Subject", "New appointment booked")
	m.SetBody("text/plain", fmt.Sprintf(
		"A new appointment has been booked for %s at %s.\nReason: %s",
		appt.SlotDate, appt.SlotTime, appt.Reason,
	))

	return n.dialer.DialAndSend(m)
}

func (n *EmailNotifier) PatientStatusChanged(ctx context.Context, email string, appt *clinic.Appointment, status string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", email)
	m.SetHeader("Subject", fmt.Sprintf("Appointment update: %s", status))
	m.SetBody("text/plain", fmt.Sprintf(
		"Your appointment on %s at %s has been updated: %s.",
		appt.SlotDate, appt.SlotTime, status,
	))

	return n.dialer.DialAndSend(m)
}

// LogNotifier stands in when SMTP is not configured.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) DoctorBooked(ctx context.Context, email string, appt *clinic.Appointment) error {
	n.log.Info().
		Str("to", email).
		Stringer("appointment_id", appt.ID).
		Str("slot_date", string(appt.SlotDate)).
		Str("slot_time", appt.SlotTime).
		Msg("doctor booking notification (smtp disabled)")
	return nil
}

func (n *LogNotifier) PatientStatusChanged(ctx context.Context, email string, appt *clinic.Appointment, status string) error {
	n.log.Info().
		Str("to", email).
		Stringer("appointment_id", appt.ID).
		Str("status", status).
		Msg("patient status notification (smtp disabled)")
	return nil
}

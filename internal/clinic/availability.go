package clinic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidDayOff = errors.New("day off must be a weekday name or empty")

// ValidDayOff accepts the empty string (no day off) or a full weekday name
// as produced by time.Weekday.String, e.g. "Monday".
func ValidDayOff(dayOff string) bool {
	if dayOff == "" {
		return true
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		if dayOff == d.String() {
			return true
		}
	}
	return false
}

// ComputeAvailability derives a doctor's available flag from their weekly
// day-off setting. On the day off the doctor is forced unavailable; on any
// other day a doctor with a day off set is forced available, so a manual
// override does not survive the next pass. Doctors without a day off keep
// whatever the manual toggle chose.
func ComputeAvailability(dayOff string, current bool, today time.Weekday) bool {
	if dayOff == "" {
		return current
	}
	if dayOff == today.String() {
		return false
	}
	return true
}

// ReconcileAvailability applies the day-off policy across every doctor that
// has one set, writing only when the derived value differs from the stored
// one. Per-doctor failures are logged and skipped; the next run retries.
// Returns the number of doctors whose flag changed.
func (s *Service) ReconcileAvailability(ctx context.Context) (int, error) {
	doctors, err := s.repo.ListDoctorsWithDayOff(ctx)
	if err != nil {
		return 0, fmt.Errorf("list doctors with day off: %w", err)
	}

	today := s.now().Weekday()
	changed := 0

	for i := range doctors {
		doc := &doctors[i]
		want := ComputeAvailability(doc.DayOff, doc.Available, today)
		if want == doc.Available {
			continue
		}

		if err := s.repo.SetDoctorAvailability(ctx, doc.ID, want); err != nil {
			s.log.Error().Err(err).Stringer("doctor_id", doc.ID).Msg("availability update failed")
			continue
		}
		changed++

		s.logDoctorEvent(ctx, doc.ID, EventAvailabilityChanged, map[string]any{
			"available": want,
			"day_off":   doc.DayOff,
			"source":    "reconcile",
		})
	}

	return changed, nil
}

// SyncDoctorAvailability applies the policy to a single doctor, used right
// after a profile edit that changes the day off. Returns the flag in effect.
func (s *Service) SyncDoctorAvailability(ctx context.Context, docID uuid.UUID) (bool, error) {
	doc, err := s.repo.GetDoctorByID(ctx, docID)
	if err != nil {
		return false, err
	}

	want := ComputeAvailability(doc.DayOff, doc.Available, s.now().Weekday())
	if want == doc.Available {
		return want, nil
	}

	if err := s.repo.SetDoctorAvailability(ctx, docID, want); err != nil {
		return doc.Available, fmt.Errorf("set availability: %w", err)
	}

	s.logDoctorEvent(ctx, docID, EventAvailabilityChanged, map[string]any{
		"available": want,
		"day_off":   doc.DayOff,
		"source":    "sync",
	})

	return want, nil
}

// SetDoctorDayOff stores a new weekly day off and immediately re-derives
// the availability flag so the change takes effect without waiting for the
// next reconcile run.
func (s *Service) SetDoctorDayOff(ctx context.Context, docID uuid.UUID, dayOff string) (bool, error) {
	if !ValidDayOff(dayOff) {
		return false, fmt.Errorf("%w: %q", ErrInvalidDayOff, dayOff)
	}

	if err := s.repo.SetDoctorDayOff(ctx, docID, dayOff); err != nil {
		return false, err
	}

	return s.SyncDoctorAvailability(ctx, docID)
}

// ToggleDoctorAvailability flips the manual availability flag.
func (s *Service) ToggleDoctorAvailability(ctx context.Context, docID uuid.UUID) (bool, error) {
	doc, err := s.repo.GetDoctorByID(ctx, docID)
	if err != nil {
		return false, err
	}

	next := !doc.Available
	if err := s.repo.SetDoctorAvailability(ctx, docID, next); err != nil {
		return doc.Available, fmt.Errorf("set availability: %w", err)
	}

	s.logDoctorEvent(ctx, docID, EventAvailabilityChanged, map[string]any{
		"available": next,
		"source":    "manual",
	})

	return next, nil
}

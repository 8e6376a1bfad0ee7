package clinic

// Terminal reports whether no further status transition is possible.
// Cancelled and completed are mutually exclusive end states.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// CanTransition reports whether an appointment may move to the target
// status. Only pending appointments move anywhere; payment and read flags
// are orthogonal and not part of the status machine.
func (s AppointmentStatus) CanTransition(to AppointmentStatus) bool {
	switch to {
	case StatusCancelled, StatusCompleted:
		return s == StatusPending
	default:
		return false
	}
}

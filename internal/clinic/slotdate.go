package clinic

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SlotDate is the literal day_month_year key used for the booked-slot ledger
// and for appointment lookups, e.g. "7_3_2026". Equality and ledger lookups
// are string based; the parsed form exists only for booking-window math.
type SlotDate string

// NewSlotDate builds the key for a calendar day.
func NewSlotDate(t time.Time) SlotDate {
	y, m, d := t.Date()
	return SlotDate(fmt.Sprintf("%d_%d_%d", d, int(m), y))
}

// Time parses the key into a UTC midnight timestamp. It rejects keys that do
// not have exactly three numeric parts or that name an impossible day.
func (d SlotDate) Time() (time.Time, error) {
	parts := strings.Split(string(d), "_")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("slot date %q: want day_month_year", string(d))
	}

	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return time.Time{}, fmt.Errorf("slot date %q: part %q is not a number", string(d), p)
		}
		nums[i] = n
	}

	day, month, year := nums[0], nums[1], nums[2]
	if month < 1 || month > 12 || day < 1 || day > 31 || year < 1970 {
		return time.Time{}, fmt.Errorf("slot date %q: out of range", string(d))
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month || t.Year() != year {
		// time.Date normalizes overflow, e.g. 30_2_2026 becomes March 2nd.
		return time.Time{}, fmt.Errorf("slot date %q: no such calendar day", string(d))
	}

	return t, nil
}

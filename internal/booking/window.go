// Package booking implements the time-gated booking flow: computing when a
// travel date opens for reservation, waiting for that instant, and driving
// the carrier's site to completion.
package booking

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata"
)

// All window math happens in the carrier's civil timezone so client and
// server clocks can't drift the opening instant.
var timezone = mustLoadLocation("Europe/Rome")

// Timezone returns the fixed civil timezone used for all booking calculations.
func Timezone() *time.Location { return timezone }

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("booking: load timezone %s: %v", name, err))
	}
	return loc
}

const (
	// DateFormat is the only accepted travel-date format.
	DateFormat = "2006-01-02"

	// openOffsetDays is how many days before departure reservation opens.
	openOffsetDays = 7
)

var (
	// ErrInvalidFormat marks a travel date that isn't YYYY-MM-DD.
	ErrInvalidFormat = errors.New("invalid date format")

	// ErrTooSoon marks a travel date at or before tomorrow.
	ErrTooSoon = errors.New("date too soon or invalid")
)

// Window holds the reservation bounds for one travel date.
type Window struct {
	OpensAt time.Time // reservation opens: travel date − 7 days, local midnight
	Travel  time.Time // departure day at local midnight
}

// ParseDate parses a travel date in strict YYYY-MM-DD form.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateFormat, s, timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q (want YYYY-MM-DD)", ErrInvalidFormat, s)
	}
	return t, nil
}

// ComputeWindow derives the booking window for a travel date. Pure; the date's
// own clock fields are ignored, only its civil day matters.
func ComputeWindow(travelDate time.Time) Window {
	y, m, d := travelDate.Date()
	travel := time.Date(y, m, d, 0, 0, 0, 0, timezone)
	return Window{
		OpensAt: time.Date(y, m, d-openOffsetDays, 0, 0, 0, 0, timezone),
		Travel:  travel,
	}
}

// Validate rejects travel instants at or before now + 1 day. Same-day and
// next-day departures cannot be booked.
func (w Window) Validate(now time.Time) error {
	if !w.Travel.After(now.Add(24 * time.Hour)) {
		return fmt.Errorf("%w: departure %s", ErrTooSoon, w.Travel.Format(DateFormat))
	}
	return nil
}

// OpenAt reports whether reservation is open at the given instant.
func (w Window) OpenAt(now time.Time) bool {
	return !now.Before(w.OpensAt)
}

package model

import (
	"fmt"
	"time"
)

// Date is a civil calendar date with no time-of-day and no zone.
// The zero value is not a valid date; use IsZero to check.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// In returns midnight of d in loc.
func (d Date) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// Compare returns -1, 0 or +1 depending on whether d is before, equal to or
// after other.
func (d Date) Compare(other Date) int {
	switch {
	case d.Year != other.Year:
		return cmpInt(d.Year, other.Year)
	case d.Month != other.Month:
		return cmpInt(int(d.Month), int(other.Month))
	default:
		return cmpInt(d.Day, other.Day)
	}
}

func (d Date) Before(other Date) bool { return d.Compare(other) < 0 }
func (d Date) After(other Date) bool  { return d.Compare(other) > 0 }

// String renders the ISO-8601 form, e.g. 2024-06-01.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Basic renders the RFC 5545 DATE form, e.g. 20240601.
func (d Date) Basic() string {
	return fmt.Sprintf("%04d%02d%02d", d.Year, int(d.Month), d.Day)
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// StayInterval is a half-open day range [Start, End) used by merge mode.
// End is the checkout date and is not itself occupied.
type StayInterval struct {
	Start Date
	End   Date
}

// Valid reports whether the interval covers at least one day.
func (s StayInterval) Valid() bool {
	return s.End.After(s.Start)
}

func (s StayInterval) String() string {
	return "[" + s.Start.String() + ", " + s.End.String() + ")"
}

// FieldFailure records one timestamp field that could not be normalized and
// was left at its original value.
type FieldFailure struct {
	Property string
	Value    string
	Err      error
}

// Report summarizes one transformation run. It is the only output of the
// core besides the mutated document.
type Report struct {
	// Mode is "normalize" or "merge".
	Mode string

	EventsIn  int
	EventsOut int

	// Pruned counts events (or merged intervals) dropped by the cutoff.
	Pruned int

	// Collapsed counts events turned into whole-day spans (normal mode).
	Collapsed int

	// Intervals and Merged describe merge mode: valid source intervals and
	// merged blocks before the cutoff is applied.
	Intervals int
	Merged    int

	// Discarded counts merge-mode events with no usable span.
	Discarded int

	FieldFailures []FieldFailure

	Cutoff time.Time
}

package anon

import (
	"time"
	_ "time/tzdata"
)

// TargetZoneID is the only zone the output is ever expressed in.
const TargetZoneID = "Asia/Tokyo"

// TargetZone is loaded from the embedded tzdata so results do not depend on
// the host's zoneinfo.
var TargetZone = mustLoadLocation(TargetZoneID)

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic("anon: load " + name + ": " + err.Error())
	}
	return loc
}

// ToTargetZone expresses v in TargetZone.
//
// A floating (unzoned) instant is taken to already be wall-clock time in the
// target zone and is tagged, not shifted. Zoned instants are converted.
// Dates and Absent pass through unchanged.
func ToTargetZone(v Temporal) Temporal {
	if v.Kind != Instant {
		return v
	}
	if !v.Zoned {
		w := v.Time
		v.Time = time.Date(w.Year(), w.Month(), w.Day(), w.Hour(), w.Minute(), w.Second(), w.Nanosecond(), TargetZone)
		v.Zoned = true
		return v
	}
	v.Time = v.Time.In(TargetZone)
	return v
}

// endOfDay is 23:59:59 of d in the target zone.
func endOfDay(v Temporal) time.Time {
	return time.Date(v.Date.Year, v.Date.Month, v.Date.Day, 23, 59, 59, 0, TargetZone)
}

// oneYearBefore returns now, in the target zone, minus one calendar year.
// Feb 29 maps to Feb 28 instead of overflowing into March.
func oneYearBefore(now time.Time) time.Time {
	n := now.In(TargetZone)
	c := n.AddDate(-1, 0, 0)
	if c.Day() != n.Day() {
		c = c.AddDate(0, 0, -c.Day())
	}
	return c
}

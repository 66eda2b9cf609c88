package anon

import (
	ical "github.com/arran4/golang-ical"

	"icsanon/internal/ics"
)

const (
	ProductID     = "-//anonymized-availability//ical-anonymizer//EN"
	CalendarScale = "GREGORIAN"

	// Minimal STANDARD block used when the source has no definition for the
	// target zone. Japan has observed +0900 without DST since 1951.
	targetStdStart      = "19510909T000000"
	targetStdName       = "JST"
	targetStdOffsetFrom = "+1000"
	targetStdOffsetTo   = "+0900"
)

// identifyingCalendarProps name, describe or fingerprint the source feed.
var identifyingCalendarProps = []ical.Property{
	"X-WR-CALNAME",
	"X-WR-CALDESC",
	"REFRESH-INTERVAL",
	"X-PUBLISHED-TTL",
}

// SanitizeMetadata rewrites calendar-level properties in place and makes sure
// a VTIMEZONE for the target zone is present exactly once.
func SanitizeMetadata(cal *ical.Calendar) {
	cal.SetProductId(ProductID)
	cal.SetCalscale(CalendarScale)
	if calendarProp(cal, ical.PropertyVersion) == nil {
		cal.SetVersion("2.0")
	}
	for _, name := range identifyingCalendarProps {
		removeCalendarProp(cal, name)
	}
	cal.SetXWRTimezone(TargetZoneID)

	ensureTargetTimezone(cal)
}

func ensureTargetTimezone(cal *ical.Calendar) {
	for _, c := range cal.Components {
		if tz, ok := c.(*ical.VTimezone); ok && timezoneID(tz) == TargetZoneID {
			return
		}
	}

	std := cal.AddTimezone(TargetZoneID).AddStandard()
	std.AddProperty(propDtStart, targetStdStart)
	std.AddProperty(propTZName, targetStdName)
	std.AddProperty(propTZOffsetFrom, targetStdOffsetFrom)
	std.AddProperty(propTZOffsetTo, targetStdOffsetTo)
}

func timezoneID(tz *ical.VTimezone) string {
	if p := tz.GetProperty(propTZID); p != nil {
		return zoneKey(p.Value)
	}
	return ""
}

// dropUnusedTimezones removes every VTIMEZONE other than the target zone's
// that no remaining TZID parameter refers to, and returns how many it
// removed.
func dropUnusedTimezones(cal *ical.Calendar) int {
	used := map[string]bool{TargetZoneID: true}
	var collect func(cs []ical.Component)
	collect = func(cs []ical.Component) {
		for _, c := range cs {
			if _, ok := c.(*ical.VTimezone); ok {
				continue
			}
			cb := ics.Base(c)
			if cb == nil {
				continue
			}
			for i := range cb.Properties {
				if tzid := param(&cb.Properties[i], paramTZID); tzid != "" {
					used[zoneKey(tzid)] = true
				}
			}
			collect(cb.Components)
		}
	}
	collect(cal.Components)

	kept := make([]ical.Component, 0, len(cal.Components))
	removed := 0
	for _, c := range cal.Components {
		if tz, ok := c.(*ical.VTimezone); ok && !used[timezoneID(tz)] {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	cal.Components = kept
	return removed
}

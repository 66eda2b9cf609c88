package anon

import (
	"time"

	ical "github.com/arran4/golang-ical"

	"icsanon/internal/ics"
)

// effectiveEnd is the instant used to decide staleness: DTEND if present,
// else DTSTART, with bare dates taken as 23:59:59 in the target zone. When
// neither can be read it is now, so an unreadable event is never deleted.
func effectiveEnd(cb *ical.ComponentBase, now time.Time, zones *Zones) time.Time {
	for _, name := range []ical.ComponentProperty{propDtEnd, propDtStart} {
		v, err := ReadTemporal(cb, name, zones)
		if err != nil {
			return now
		}
		switch v.Kind {
		case CalendarDate:
			return endOfDay(v)
		case Instant:
			return ToTargetZone(v).Time
		}
	}
	return now
}

// isStale reports whether the event ended strictly before cutoff.
func (t *Transformer) isStale(cb *ical.ComponentBase, cutoff, now time.Time, zones *Zones) bool {
	end := effectiveEnd(cb, now, zones)
	if !end.Before(cutoff) {
		return false
	}
	if t.opts.RecurrenceAwarePrune && t.recursPast(cb, cutoff, zones) {
		return false
	}
	return true
}

// recursPast reports whether the event's RRULE still produces an occurrence
// that overlaps cutoff or later. Any doubt keeps the event.
func (t *Transformer) recursPast(cb *ical.ComponentBase, cutoff time.Time, zones *Zones) bool {
	p := cb.GetProperty(propRRule)
	if p == nil {
		return false
	}
	start, err := ReadTemporal(cb, propDtStart, zones)
	if err != nil || start.Kind == Absent {
		return true
	}

	var dtstart time.Time
	span := time.Duration(0)
	if start.Kind == CalendarDate {
		dtstart = start.Date.In(TargetZone)
		span = 24 * time.Hour
	} else {
		dtstart = ToTargetZone(start).Time
	}
	if end, err := ReadTemporal(cb, propDtEnd, zones); err == nil && end.Kind != Absent {
		switch end.Kind {
		case CalendarDate:
			span = end.Date.In(TargetZone).Sub(dtstart)
		case Instant:
			span = ToTargetZone(end).Time.Sub(dtstart)
		}
	}

	active, err := ics.RecurrenceActiveAfter(p.Value, dtstart, cutoff.Add(-span))
	if err != nil {
		t.log.Debug().Err(err).Msg("unparseable RRULE, keeping event")
		return true
	}
	return active
}

package anon

import (
	ical "github.com/arran4/golang-ical"

	"icsanon/internal/model"
)

// timestampProps are converted to the target zone on every event.
var timestampProps = []ical.ComponentProperty{propDtStart, propDtEnd, propRecurrenceID, propDtStamp}

// normalizeEvent scrubs one event in place. Every step is idempotent.
func (t *Transformer) normalizeEvent(ev *ical.VEvent, zones *Zones, rep *model.Report) {
	cb := &ev.ComponentBase

	setText(cb, propSummary, t.opts.Summary)
	setText(cb, propDescription, t.opts.Description)

	for _, name := range sensitiveProps {
		cb.RemoveProperty(name)
	}
	if !t.opts.KeepLocation {
		cb.RemoveProperty(propLocation)
		cb.RemoveProperty(propAppleStructLoc)
	}

	// VALARM is the only subcomponent a VEVENT may carry; email alarms hold
	// attendees and free text.
	if len(cb.Components) > 0 {
		t.log.Debug().Int("alarms", len(cb.Components)).Msg("dropping event alarms")
		cb.Components = nil
	}

	for _, name := range timestampProps {
		if err := t.normalizeTimestamp(cb, name, zones); err != nil {
			rep.FieldFailures = append(rep.FieldFailures, model.FieldFailure{
				Property: string(name),
				Value:    cb.GetProperty(name).Value,
				Err:      err,
			})
			t.log.Warn().Err(err).Str("property", string(name)).Msg("timestamp left unchanged")
		}
	}

	if t.collapseDaySpan(cb, zones) {
		rep.Collapsed++
	}

	if cb.GetProperty(propSequence) != nil {
		setProp(cb, propSequence, "0")
	}

	setProp(cb, propUID, UID(cb))
}

// normalizeTimestamp re-expresses one property in the target zone. On error
// the property is not touched.
func (t *Transformer) normalizeTimestamp(cb *ical.ComponentBase, name ical.ComponentProperty, zones *Zones) error {
	v, err := ReadTemporal(cb, name, zones)
	if err != nil {
		return err
	}
	if v.Kind == Absent {
		return nil
	}
	WriteTemporal(cb, name, ToTargetZone(v))
	return nil
}

// collapseDaySpan turns an instant-bounded event that crosses a date
// boundary in the target zone into a whole-day event with an exclusive end
// date, and marks it busy. It reports whether it did so.
func (t *Transformer) collapseDaySpan(cb *ical.ComponentBase, zones *Zones) bool {
	start, err := ReadTemporal(cb, propDtStart, zones)
	if err != nil || start.Kind != Instant {
		return false
	}
	end, err := ReadTemporal(cb, propDtEnd, zones)
	if err != nil || end.Kind != Instant {
		return false
	}

	startDay := model.DateOf(ToTargetZone(start).Time)
	endDay := model.DateOf(ToTargetZone(end).Time)
	if !endDay.After(startDay) {
		return false
	}

	WriteTemporal(cb, propDtStart, DateValue(startDay))
	WriteTemporal(cb, propDtEnd, DateValue(endDay))
	setProp(cb, propTransp, transpOpaque)
	return true
}

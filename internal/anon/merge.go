package anon

import (
	"sort"
	"time"

	ical "github.com/arran4/golang-ical"

	"icsanon/internal/model"
)

// stayInterval derives the [start, end) day span of an event in the target
// zone. It fails when either bound is missing or unreadable, or when the span
// is empty.
func stayInterval(cb *ical.ComponentBase, zones *Zones) (model.StayInterval, bool) {
	start, ok := boundaryDate(cb, propDtStart, zones)
	if !ok {
		return model.StayInterval{}, false
	}
	end, ok := boundaryDate(cb, propDtEnd, zones)
	if !ok {
		return model.StayInterval{}, false
	}
	iv := model.StayInterval{Start: start, End: end}
	return iv, iv.Valid()
}

func boundaryDate(cb *ical.ComponentBase, name ical.ComponentProperty, zones *Zones) (model.Date, bool) {
	v, err := ReadTemporal(cb, name, zones)
	if err != nil {
		return model.Date{}, false
	}
	switch v.Kind {
	case CalendarDate:
		return v.Date, true
	case Instant:
		return model.DateOf(ToTargetZone(v).Time), true
	default:
		return model.Date{}, false
	}
}

// MergeIntervals sorts by (start, end) and coalesces intervals that overlap
// or touch. In the result every interval starts strictly after the previous
// one ends. The input slice is not modified.
func MergeIntervals(in []model.StayInterval) []model.StayInterval {
	if len(in) == 0 {
		return nil
	}
	sorted := append([]model.StayInterval(nil), in...)
	sort.Slice(sorted, func(i, j int) bool {
		if c := sorted[i].Start.Compare(sorted[j].Start); c != 0 {
			return c < 0
		}
		return sorted[i].End.Before(sorted[j].End)
	})

	merged := []model.StayInterval{sorted[0]}
	for _, iv := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// mergeStays replaces every VEVENT in cal with one all-day busy block per
// merged stay. Non-event components keep their relative order and come
// first.
func (t *Transformer) mergeStays(cal *ical.Calendar, cutoff time.Time, zones *Zones, rep *model.Report) {
	var intervals []model.StayInterval
	kept := make([]ical.Component, 0, len(cal.Components))
	for _, c := range cal.Components {
		ev, ok := c.(*ical.VEvent)
		if !ok {
			kept = append(kept, c)
			continue
		}
		rep.EventsIn++
		iv, ok := stayInterval(&ev.ComponentBase, zones)
		if !ok {
			rep.Discarded++
			continue
		}
		intervals = append(intervals, iv)
	}
	rep.Intervals = len(intervals)

	merged := MergeIntervals(intervals)
	rep.Merged = len(merged)

	for _, iv := range merged {
		lastNight := iv.End.In(TargetZone).Add(-time.Second)
		if lastNight.Before(cutoff) {
			rep.Pruned++
			continue
		}
		kept = append(kept, t.stayEvent(iv))
		rep.EventsOut++
	}
	cal.Components = kept

	t.log.Info().
		Int("intervals", rep.Intervals).
		Int("merged", rep.Merged).
		Int("discarded", rep.Discarded).
		Msg("merged stays")
}

func (t *Transformer) stayEvent(iv model.StayInterval) *ical.VEvent {
	ev := &ical.VEvent{}
	cb := &ev.ComponentBase
	setText(cb, propSummary, t.opts.Summary)
	setText(cb, propDescription, t.opts.Description)
	WriteTemporal(cb, propDtStart, DateValue(iv.Start))
	WriteTemporal(cb, propDtEnd, DateValue(iv.End))
	setProp(cb, propTransp, transpOpaque)
	setProp(cb, propUID, UID(cb))
	return ev
}

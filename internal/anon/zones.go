package anon

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"icsanon/internal/ics"
)

// Zones resolves the TZID parameters of one document. A TZID is looked up,
// in order, as an IANA name, as a Windows zone name, and finally against the
// document's own VTIMEZONE definitions.
//
// A nil *Zones resolves names only.
type Zones struct {
	defs map[string]*zoneDef
}

// zoneDef is a VTIMEZONE reduced to its observances.
type zoneDef struct {
	id  string
	obs []observance
}

// observance is one STANDARD or DAYLIGHT block. Onsets are wall-clock times
// in the offset that was in force before them, held in UTC as placeholders.
type observance struct {
	start      time.Time
	offsetFrom int
	offsetTo   int
	rule       string
	rdates     []time.Time
}

// NewZones collects the VTIMEZONE definitions of cal. Blocks without a TZID
// or without a usable observance are skipped.
func NewZones(cal *ical.Calendar) *Zones {
	z := &Zones{defs: map[string]*zoneDef{}}
	for _, c := range cal.Components {
		tz, ok := c.(*ical.VTimezone)
		if !ok {
			continue
		}
		def, err := parseZoneDef(tz)
		if err != nil {
			continue
		}
		z.defs[def.id] = def
	}
	return z
}

// At interprets wall, a wall-clock time held in UTC, in the zone named by
// tzid.
func (z *Zones) At(tzid string, wall time.Time) (time.Time, error) {
	id := zoneKey(tzid)
	if loc := lookupLocation(id); loc != nil {
		return inLocation(wall, loc), nil
	}
	if z != nil {
		if def, ok := z.defs[id]; ok {
			return def.at(wall), nil
		}
	}
	return time.Time{}, fmt.Errorf("unknown TZID %q", tzid)
}

// zoneKey strips quoting and the RFC 5545 globally-unique prefix.
func zoneKey(tzid string) string {
	return strings.TrimPrefix(strings.Trim(strings.TrimSpace(tzid), `"`), "/")
}

func lookupLocation(id string) *time.Location {
	switch id {
	case TargetZoneID:
		return TargetZone
	case "", "Local":
		return nil
	}
	if loc, err := time.LoadLocation(id); err == nil {
		return loc
	}
	if name, ok := windowsZones[id]; ok {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return nil
}

func inLocation(wall time.Time, loc *time.Location) time.Time {
	return time.Date(wall.Year(), wall.Month(), wall.Day(), wall.Hour(), wall.Minute(), wall.Second(), wall.Nanosecond(), loc)
}

// at picks the observance with the most recent onset at or before wall. A
// time earlier than every onset uses the offset the earliest observance
// transitions from. Within a repeated or skipped hour the result follows
// the new offset.
func (d *zoneDef) at(wall time.Time) time.Time {
	var (
		best      *observance
		bestOnset time.Time
	)
	for i := range d.obs {
		o := &d.obs[i]
		onset, ok := o.lastOnset(wall)
		if !ok {
			continue
		}
		utc := onset.Add(-time.Duration(o.offsetFrom) * time.Second)
		if best == nil || utc.After(bestOnset) {
			best, bestOnset = o, utc
		}
	}

	if best == nil {
		best = &d.obs[0]
		for i := range d.obs[1:] {
			if d.obs[i+1].start.Before(best.start) {
				best = &d.obs[i+1]
			}
		}
		return inLocation(wall, time.FixedZone(d.id, best.offsetFrom))
	}
	return inLocation(wall, time.FixedZone(d.id, best.offsetTo))
}

func (o *observance) lastOnset(wall time.Time) (time.Time, bool) {
	var last time.Time
	if !o.start.After(wall) {
		last = o.start
	}
	if o.rule != "" {
		if t, ok, err := ics.LastOccurrence(o.rule, o.start, wall); err == nil && ok && t.After(last) {
			last = t
		}
	}
	for _, rd := range o.rdates {
		if !rd.After(wall) && rd.After(last) {
			last = rd
		}
	}
	return last, !last.IsZero()
}

func parseZoneDef(tz *ical.VTimezone) (*zoneDef, error) {
	p := tz.GetProperty(propTZID)
	if p == nil || zoneKey(p.Value) == "" {
		return nil, fmt.Errorf("VTIMEZONE without TZID")
	}
	def := &zoneDef{id: zoneKey(p.Value)}
	for _, c := range tz.Components {
		var cb *ical.ComponentBase
		switch c := c.(type) {
		case *ical.Standard:
			cb = &c.ComponentBase
		case *ical.Daylight:
			cb = &c.ComponentBase
		default:
			continue
		}
		o, err := parseObservance(cb)
		if err != nil {
			continue
		}
		def.obs = append(def.obs, o)
	}
	if len(def.obs) == 0 {
		return nil, fmt.Errorf("VTIMEZONE %q: no usable observance", def.id)
	}
	return def, nil
}

func parseObservance(cb *ical.ComponentBase) (observance, error) {
	var o observance

	start := cb.GetProperty(propDtStart)
	if start == nil {
		return o, fmt.Errorf("observance without DTSTART")
	}
	t, err := time.Parse(layoutDateTime, strings.TrimSpace(start.Value))
	if err != nil {
		return o, fmt.Errorf("observance DTSTART: %w", err)
	}
	o.start = t

	if o.offsetFrom, err = offsetProp(cb, propTZOffsetFrom); err != nil {
		return o, err
	}
	if o.offsetTo, err = offsetProp(cb, propTZOffsetTo); err != nil {
		return o, err
	}

	if p := cb.GetProperty(propRRule); p != nil {
		o.rule = p.Value
	}
	for _, v := range propValues(cb, propRDate) {
		for _, s := range strings.Split(v, ",") {
			if rd, err := time.Parse(layoutDateTime, strings.TrimSpace(s)); err == nil {
				o.rdates = append(o.rdates, rd)
			}
		}
	}
	return o, nil
}

func offsetProp(cb *ical.ComponentBase, name ical.ComponentProperty) (int, error) {
	p := cb.GetProperty(name)
	if p == nil {
		return 0, fmt.Errorf("observance without %s", name)
	}
	n, err := parseUTCOffset(p.Value)
	if err != nil {
		return 0, fmt.Errorf("observance %s: %w", name, err)
	}
	return n, nil
}

// parseUTCOffset reads an RFC 5545 UTC-OFFSET (+HHMM or +HHMMSS) as seconds
// east of UTC.
func parseUTCOffset(s string) (int, error) {
	s = strings.TrimSpace(s)
	if (len(s) != 5 && len(s) != 7) || (s[0] != '+' && s[0] != '-') {
		return 0, fmt.Errorf("bad UTC offset %q", s)
	}
	n := 0
	for i, unit := range []int{3600, 60, 1} {
		if 1+2*i >= len(s) {
			break
		}
		v, err := strconv.Atoi(s[1+2*i : 3+2*i])
		if err != nil {
			return 0, fmt.Errorf("bad UTC offset %q", s)
		}
		n += v * unit
	}
	if s[0] == '-' {
		n = -n
	}
	return n, nil
}

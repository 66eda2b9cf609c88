package anon

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"icsanon/internal/model"
)

const (
	layoutDate        = "20060102"
	layoutDateTime    = "20060102T150405"
	layoutDateTimeUTC = "20060102T150405Z"
)

// Kind tags the variant held by a Temporal.
type Kind int

const (
	Absent Kind = iota
	CalendarDate
	Instant
)

func (k Kind) String() string {
	switch k {
	case CalendarDate:
		return "date"
	case Instant:
		return "instant"
	default:
		return "absent"
	}
}

// Temporal is the typed view of a DTSTART-like property value.
//
// For Instant, Zoned is false when the source carried neither a UTC suffix
// nor a TZID; Time then holds the wall clock in UTC as a placeholder and
// must go through ToTargetZone before it means anything.
type Temporal struct {
	Kind  Kind
	Date  model.Date
	Time  time.Time
	Zoned bool
}

func DateValue(d model.Date) Temporal { return Temporal{Kind: CalendarDate, Date: d} }

func InstantValue(t time.Time) Temporal { return Temporal{Kind: Instant, Time: t, Zoned: true} }

// ReadTemporal reads the first occurrence of name from cb, resolving TZID
// through zones. A missing property yields Absent with a nil error; an
// unparseable value yields an error.
func ReadTemporal(cb *ical.ComponentBase, name ical.ComponentProperty, zones *Zones) (Temporal, error) {
	p := cb.GetProperty(name)
	if p == nil {
		return Temporal{}, nil
	}
	return parseTemporal(p, zones)
}

func parseTemporal(p *ical.IANAProperty, zones *Zones) (Temporal, error) {
	value := strings.TrimSpace(p.Value)
	if value == "" {
		return Temporal{}, fmt.Errorf("%s: empty value", p.IANAToken)
	}

	if strings.EqualFold(param(p, paramValue), "DATE") || !strings.Contains(value, "T") {
		t, err := time.Parse(layoutDate, value)
		if err != nil {
			return Temporal{}, fmt.Errorf("%s: parse date %q: %w", p.IANAToken, value, err)
		}
		return DateValue(model.DateOf(t)), nil
	}

	if strings.HasSuffix(value, "Z") {
		t, err := time.Parse(layoutDateTimeUTC, value)
		if err != nil {
			return Temporal{}, fmt.Errorf("%s: parse utc date-time %q: %w", p.IANAToken, value, err)
		}
		return InstantValue(t), nil
	}

	wall, err := time.Parse(layoutDateTime, value)
	if err != nil {
		return Temporal{}, fmt.Errorf("%s: parse date-time %q: %w", p.IANAToken, value, err)
	}
	if tzid := param(p, paramTZID); tzid != "" {
		t, err := zones.At(tzid, wall)
		if err != nil {
			return Temporal{}, fmt.Errorf("%s: %w", p.IANAToken, err)
		}
		return InstantValue(t), nil
	}
	return Temporal{Kind: Instant, Time: wall}, nil
}

// WriteTemporal overwrites name with v. Dates are written as VALUE=DATE
// without a zone; zoned instants are written as local time with TZID set to
// the instant's location. Other parameters survive. Absent removes the
// property.
func WriteTemporal(cb *ical.ComponentBase, name ical.ComponentProperty, v Temporal) {
	var params []ical.PropertyParameter
	if p := cb.GetProperty(name); p != nil {
		params = carriedParams(p.ICalParameters, paramValue, paramTZID)
	}

	switch v.Kind {
	case CalendarDate:
		params = append(params, &ical.KeyValues{Key: paramValue, Value: []string{"DATE"}})
		setProp(cb, name, v.Date.Basic(), params...)
	case Instant:
		if v.Zoned && v.Time.Location() != time.UTC {
			params = append(params, &ical.KeyValues{Key: paramTZID, Value: []string{v.Time.Location().String()}})
			setProp(cb, name, v.Time.Format(layoutDateTime), params...)
		} else if v.Zoned {
			setProp(cb, name, v.Time.Format(layoutDateTimeUTC), params...)
		} else {
			setProp(cb, name, v.Time.Format(layoutDateTime), params...)
		}
	default:
		cb.RemoveProperty(name)
	}
}

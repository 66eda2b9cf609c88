package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	ical "github.com/arran4/golang-ical"
	eical "github.com/emersion/go-ical"
)

// ErrEmptyBody is returned by Parse for a zero-length payload.
var ErrEmptyBody = errors.New("empty ICS body")

// Parse decodes an RFC 5545 payload. Properties the library does not model
// are kept verbatim so they can be re-emitted unchanged.
//
// Property and parameter names are case-insensitive in RFC 5545; they are
// upper-cased here so lookups through the ical accessors can match exactly.
func Parse(body []byte) (*ical.Calendar, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrEmptyBody
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse calendar: %w", err)
	}
	if cal == nil {
		return nil, errors.New("parse calendar: no VCALENDAR found")
	}
	canonicalizeNames(cal)
	return cal, nil
}

// Base returns the property container of a component, or nil for component
// types this package does not handle.
func Base(c ical.Component) *ical.ComponentBase {
	switch c := c.(type) {
	case *ical.VEvent:
		return &c.ComponentBase
	case *ical.VTodo:
		return &c.ComponentBase
	case *ical.VJournal:
		return &c.ComponentBase
	case *ical.VTimezone:
		return &c.ComponentBase
	case *ical.VAlarm:
		return &c.ComponentBase
	case *ical.Standard:
		return &c.ComponentBase
	case *ical.Daylight:
		return &c.ComponentBase
	case *ical.GeneralComponent:
		return &c.ComponentBase
	default:
		return nil
	}
}

func canonicalizeNames(cal *ical.Calendar) {
	for i := range cal.CalendarProperties {
		canonicalizeProperty(&cal.CalendarProperties[i].BaseProperty)
	}
	var walk func(cs []ical.Component)
	walk = func(cs []ical.Component) {
		for _, c := range cs {
			cb := Base(c)
			if cb == nil {
				continue
			}
			for i := range cb.Properties {
				canonicalizeProperty(&cb.Properties[i].BaseProperty)
			}
			walk(cb.Components)
		}
	}
	walk(cal.Components)
}

func canonicalizeProperty(p *ical.BaseProperty) {
	p.IANAToken = strings.ToUpper(p.IANAToken)
	if len(p.ICalParameters) == 0 {
		return
	}
	params := make(map[string][]string, len(p.ICalParameters))
	for k, vs := range p.ICalParameters {
		k = strings.ToUpper(k)
		params[k] = append(params[k], vs...)
	}
	p.ICalParameters = params
}

// Serialize renders cal with CRLF line endings and folded lines.
func Serialize(cal *ical.Calendar) []byte {
	return []byte(cal.Serialize())
}

// CountEvents returns the number of top-level VEVENT components.
func CountEvents(cal *ical.Calendar) int {
	return len(cal.Events())
}

// Validate proves that out is a well-formed calendar holding wantEvents
// events. It is decoded twice: once with the parser that produced it and once
// with an independent decoder, so a quirk of one library cannot hide a
// malformed document.
func Validate(out []byte, wantEvents int) error {
	cal, err := Parse(out)
	if err != nil {
		return fmt.Errorf("validate: re-parse: %w", err)
	}
	if n := CountEvents(cal); n != wantEvents {
		return fmt.Errorf("validate: re-parse found %d events, want %d", n, wantEvents)
	}

	ecal, err := eical.NewDecoder(bytes.NewReader(out)).Decode()
	if err != nil {
		return fmt.Errorf("validate: decode: %w", err)
	}
	if n := len(ecal.Events()); n != wantEvents {
		return fmt.Errorf("validate: decoder found %d events, want %d", n, wantEvents)
	}
	return nil
}

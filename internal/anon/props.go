package anon

import (
	"strings"

	ical "github.com/arran4/golang-ical"
)

// Names ics.Parse has already upper-cased, so the ical accessors can match
// them exactly.
const (
	propUID            = ical.ComponentPropertyUniqueId
	propSummary        = ical.ComponentPropertySummary
	propDescription    = ical.ComponentPropertyDescription
	propLocation       = ical.ComponentPropertyLocation
	propDtStart        = ical.ComponentPropertyDtStart
	propDtEnd          = ical.ComponentPropertyDtEnd
	propDtStamp        = ical.ComponentPropertyDtstamp
	propDuration       = ical.ComponentPropertyDuration
	propRRule          = ical.ComponentPropertyRrule
	propRDate          = ical.ComponentPropertyRdate
	propExDate         = ical.ComponentPropertyExdate
	propRecurrenceID   = ical.ComponentProperty("RECURRENCE-ID")
	propSequence       = ical.ComponentPropertySequence
	propTransp         = ical.ComponentPropertyTransp
	propTZID           = ical.ComponentPropertyTzid
	propTZName         = ical.ComponentProperty("TZNAME")
	propTZOffsetFrom   = ical.ComponentProperty("TZOFFSETFROM")
	propTZOffsetTo     = ical.ComponentProperty("TZOFFSETTO")
	propAppleStructLoc = ical.ComponentProperty("X-APPLE-STRUCTURED-LOCATION")

	paramValue = string(ical.ParameterValue)
	paramTZID  = string(ical.ParameterTzid)

	transpOpaque = "OPAQUE"
)

// sensitiveProps are removed from every event regardless of configuration.
var sensitiveProps = []ical.ComponentProperty{
	ical.ComponentPropertyOrganizer,
	ical.ComponentPropertyAttendee,
	ical.ComponentPropertyContact,
	ical.ComponentPropertyUrl,
	ical.ComponentPropertyComment,
	ical.ComponentPropertyResources,
	ical.ComponentPropertyGeo,
	ical.ComponentPropertyCategories,
	ical.ComponentPropertyRelatedTo,
	ical.ComponentPropertyAttach,
}

// propValues returns the raw value of every occurrence of name, in order.
func propValues(cb *ical.ComponentBase, name ical.ComponentProperty) []string {
	var out []string
	for _, p := range cb.GetProperties(name) {
		out = append(out, p.Value)
	}
	return out
}

// setProp is SetProperty that also drops any repeated occurrences, so exactly
// one value survives.
func setProp(cb *ical.ComponentBase, name ical.ComponentProperty, value string, params ...ical.PropertyParameter) {
	if len(cb.GetProperties(name)) > 1 {
		cb.RemoveProperty(name)
	}
	cb.SetProperty(name, value, params...)
}

// setText is setProp for TEXT values. CRLF is folded to LF first so it
// escapes to a single \n.
func setText(cb *ical.ComponentBase, name ical.ComponentProperty, value string) {
	setProp(cb, name, ical.ToText(strings.ReplaceAll(value, "\r\n", "\n")))
}

// param returns the first value of a parameter with any quoting removed.
func param(p *ical.IANAProperty, key string) string {
	if vs := p.ICalParameters[key]; len(vs) > 0 {
		return strings.Trim(vs[0], `"`)
	}
	return ""
}

// carriedParams turns every parameter except drop into setter arguments.
func carriedParams(params map[string][]string, drop ...string) []ical.PropertyParameter {
	var out []ical.PropertyParameter
next:
	for k, vs := range params {
		for _, d := range drop {
			if k == d {
				continue next
			}
		}
		out = append(out, &ical.KeyValues{Key: k, Value: append([]string(nil), vs...)})
	}
	return out
}

// The ical Calendar type has setters for the standard calendar properties
// but no lookup or removal, so those two work on CalendarProperties directly.

func calendarProp(cal *ical.Calendar, name ical.Property) *ical.CalendarProperty {
	for i := range cal.CalendarProperties {
		if cal.CalendarProperties[i].IANAToken == string(name) {
			return &cal.CalendarProperties[i]
		}
	}
	return nil
}

func removeCalendarProp(cal *ical.Calendar, name ical.Property) {
	kept := cal.CalendarProperties[:0]
	for _, p := range cal.CalendarProperties {
		if p.IANAToken != string(name) {
			kept = append(kept, p)
		}
	}
	cal.CalendarProperties = kept
}

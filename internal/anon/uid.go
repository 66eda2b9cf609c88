package anon

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	ical "github.com/arran4/golang-ical"
)

const (
	uidPrefix    = "anon-"
	uidSuffix    = "@anonymized"
	uidHexLen    = 20
	uidSeparator = "|"
	dateMarker   = "(DATE)"
	isoUTC       = "2006-01-02T15:04:05Z"
)

// UID derives the anonymized identifier of an event from its timing fields
// only: DTSTART, DTEND, DURATION, RRULE, RDATE, EXDATE, RECURRENCE-ID.
// Missing fields contribute an empty string, so the position of each field
// in the hashed basis is fixed.
//
// TZIDs are resolved by name only; callers normalize timestamps first.
func UID(cb *ical.ComponentBase) string {
	parts := []string{
		temporalBasis(cb, propDtStart),
		temporalBasis(cb, propDtEnd),
		rawBasis(cb, propDuration),
		rawBasis(cb, propRRule),
		rawBasis(cb, propRDate),
		rawBasis(cb, propExDate),
		temporalBasis(cb, propRecurrenceID),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, uidSeparator)))
	return uidPrefix + hex.EncodeToString(sum[:])[:uidHexLen] + uidSuffix
}

// temporalBasis renders instants as UTC ISO-8601 with a Z suffix and dates
// as ISO dates with the date marker. Unreadable values hash as raw text.
func temporalBasis(cb *ical.ComponentBase, name ical.ComponentProperty) string {
	v, err := ReadTemporal(cb, name, nil)
	if err != nil {
		return rawBasis(cb, name)
	}
	switch v.Kind {
	case CalendarDate:
		return v.Date.String() + dateMarker
	case Instant:
		return ToTargetZone(v).Time.UTC().Format(isoUTC)
	default:
		return ""
	}
}

// rawBasis joins the values of every occurrence with commas; multi-valued
// properties such as EXDATE may be split across lines or not.
func rawBasis(cb *ical.ComponentBase, name ical.ComponentProperty) string {
	return strings.Join(propValues(cb, name), ",")
}

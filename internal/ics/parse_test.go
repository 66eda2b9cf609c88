package ics

import (
	"strings"
	"testing"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(strings.TrimLeft(s, "\n"), "\n", "\r\n"))
}

var twoEvents = crlf(`
BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//Example Corp//Bookings 1.0//EN
BEGIN:VEVENT
UID:1@example.com
DTSTART:20240501T100000Z
END:VEVENT
BEGIN:VEVENT
UID:2@example.com
DTSTART;VALUE=DATE:20240502
END:VEVENT
END:VCALENDAR
`)

func TestParse(t *testing.T) {
	cal, err := Parse(twoEvents)
	require.NoError(t, err)
	assert.Equal(t, 2, CountEvents(cal))
}

func TestParseEmpty(t *testing.T) {
	_, err := Parse(nil)
	assert.ErrorIs(t, err, ErrEmptyBody)

	_, err = Parse([]byte(" \r\n\t"))
	assert.ErrorIs(t, err, ErrEmptyBody)
}

func TestParseGarbage(t *testing.T) {
	_, err := Parse([]byte("<html><body>Not Found</body></html>"))
	assert.Error(t, err)
}

func TestSerializeRoundTrip(t *testing.T) {
	cal, err := Parse(twoEvents)
	require.NoError(t, err)

	out := Serialize(cal)
	assert.Contains(t, string(out), "\r\n")
	assert.NoError(t, Validate(out, 2))
}

func TestValidateCountMismatch(t *testing.T) {
	err := Validate(twoEvents, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "found 2 events, want 3")
}

func TestValidateRejectsEmpty(t *testing.T) {
	assert.ErrorIs(t, Validate(nil, 0), ErrEmptyBody)
}

func TestParseUpperCasesNames(t *testing.T) {
	cal, err := Parse(crlf(`
BEGIN:VCALENDAR
VERSION:2.0
x-wr-calname:Private
BEGIN:VEVENT
summary:Dentist
dtstart;tzid=Europe/Paris:20240501T100000
END:VEVENT
END:VCALENDAR
`))
	require.NoError(t, err)

	evs := cal.Events()
	require.Len(t, evs, 1)
	require.NotNil(t, evs[0].GetProperty(ical.ComponentPropertySummary))
	start := evs[0].GetProperty(ical.ComponentPropertyDtStart)
	require.NotNil(t, start)
	assert.Equal(t, []string{"Europe/Paris"}, start.ICalParameters["TZID"])

	var names []string
	for _, p := range cal.CalendarProperties {
		names = append(names, p.IANAToken)
	}
	assert.Contains(t, names, "X-WR-CALNAME")
}

func TestBase(t *testing.T) {
	ev := &ical.VEvent{}
	assert.Same(t, &ev.ComponentBase, Base(ev))
	tz := &ical.VTimezone{}
	assert.Same(t, &tz.ComponentBase, Base(tz))
	assert.Nil(t, Base(nil))
}

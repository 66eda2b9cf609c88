package anon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEffectiveEnd(t *testing.T) {
	now := testNow
	jst := func(y int, m time.Month, d, hh, mm, ss int) time.Time {
		return time.Date(y, m, d, hh, mm, ss, 0, TargetZone)
	}

	tests := []struct {
		name string
		body string
		want time.Time
	}{
		{
			name: "dtend instant",
			body: "DTSTART:20230501T000000Z\nDTEND:20230501T010000Z",
			want: jst(2023, 5, 1, 10, 0, 0),
		},
		{
			name: "dtend date is end of that day",
			body: "DTSTART;VALUE=DATE:20230501\nDTEND;VALUE=DATE:20230503",
			want: jst(2023, 5, 3, 23, 59, 59),
		},
		{
			name: "falls back to dtstart",
			body: "DTSTART:20230501T000000Z",
			want: jst(2023, 5, 1, 9, 0, 0),
		},
		{
			name: "no dates is now",
			body: "SUMMARY:Nothing",
			want: now,
		},
		{
			name: "unreadable dtend is now",
			body: "DTSTART:20230501T000000Z\nDTEND;TZID=Nowhere/Special:20230501T010000",
			want: now,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cal := calendar(t, tt.body)
			got := effectiveEnd(only(t, cal), now, NewZones(cal))
			assert.True(t, tt.want.Equal(got), "got %s want %s", got, tt.want)
		})
	}
}

func TestPruneCutoffBoundary(t *testing.T) {
	// Cutoff is 2023-10-01T12:00:00+09:00 and the comparison is strict.
	tests := []struct {
		name  string
		dtend string
		kept  bool
	}{
		{name: "one second before", dtend: "DTEND;TZID=Asia/Tokyo:20231001T115959", kept: false},
		{name: "exactly at cutoff", dtend: "DTEND;TZID=Asia/Tokyo:20231001T120000", kept: true},
		{name: "one second after", dtend: "DTEND;TZID=Asia/Tokyo:20231001T120001", kept: true},
		{name: "date before cutoff day", dtend: "DTEND;VALUE=DATE:20230930", kept: false},
		{name: "date on cutoff day", dtend: "DTEND;VALUE=DATE:20231001", kept: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cal := calendar(t, "DTSTART;VALUE=DATE:20230901\n"+tt.dtend)
			rep := newTestTransformer(Options{}).Transform(cal)
			if tt.kept {
				assert.Equal(t, 1, rep.EventsOut)
				assert.Zero(t, rep.Pruned)
			} else {
				assert.Zero(t, rep.EventsOut)
				assert.Equal(t, 1, rep.Pruned)
			}
			assert.Len(t, vevents(cal), rep.EventsOut)
		})
	}
}

func TestPruneKeepsEventsWithoutDates(t *testing.T) {
	cal := calendar(t, "SUMMARY:Someday")
	rep := newTestTransformer(Options{}).Transform(cal)
	assert.Equal(t, 1, rep.EventsOut)
	assert.Zero(t, rep.Pruned)
}

func TestPruneMixedCalendarKeepsOrder(t *testing.T) {
	cal := calendar(t,
		"SUMMARY:a\nDTSTART:20240501T000000Z",
		"SUMMARY:b\nDTSTART:20200101T000000Z",
		"SUMMARY:c\nDTSTART:20240601T000000Z",
		"SUMMARY:d\nDTSTART:20210101T000000Z",
		"SUMMARY:e\nDTSTART:20240701T000000Z",
	)
	rep := newTestTransformer(Options{}).Transform(cal)
	assert.Equal(t, 5, rep.EventsIn)
	assert.Equal(t, 3, rep.EventsOut)
	assert.Equal(t, 2, rep.Pruned)

	var starts []string
	for _, ev := range vevents(cal) {
		starts = append(starts, value(&ev.ComponentBase, propDtStart))
	}
	assert.Equal(t, []string{"20240501T090000", "20240601T090000", "20240701T090000"}, starts)
}

func TestRecurrenceAwarePrune(t *testing.T) {
	open := "DTSTART:20200106T010000Z\nDTEND:20200106T020000Z\nRRULE:FREQ=WEEKLY"
	ended := "DTSTART:20200106T010000Z\nDTEND:20200106T020000Z\nRRULE:FREQ=WEEKLY;UNTIL=20210101T000000Z"
	counted := "DTSTART:20200106T010000Z\nDTEND:20200106T020000Z\nRRULE:FREQ=YEARLY;COUNT=10"
	broken := "DTSTART:20200106T010000Z\nDTEND:20200106T020000Z\nRRULE:FREQ=SOMETIMES"

	tests := []struct {
		name  string
		body  string
		aware bool
		kept  bool
	}{
		{name: "open rule pruned by default", body: open, aware: false, kept: false},
		{name: "open rule kept", body: open, aware: true, kept: true},
		{name: "ended rule pruned", body: ended, aware: true, kept: false},
		{name: "count still running", body: counted, aware: true, kept: true},
		{name: "unparseable rule kept", body: broken, aware: true, kept: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cal := calendar(t, tt.body)
			rep := newTestTransformer(Options{RecurrenceAwarePrune: tt.aware}).Transform(cal)
			if tt.kept {
				assert.Equal(t, 1, rep.EventsOut)
			} else {
				assert.Zero(t, rep.EventsOut)
			}
		})
	}
}

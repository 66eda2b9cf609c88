package ics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecurrenceActiveAfter(t *testing.T) {
	dtstart := time.Date(2020, 1, 6, 10, 0, 0, 0, time.UTC)
	cutoff := time.Date(2023, 10, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		rule string
		want bool
	}{
		{name: "unbounded", rule: "FREQ=WEEKLY;BYDAY=MO", want: true},
		{name: "prefixed", rule: "RRULE:FREQ=DAILY", want: true},
		{name: "until before cutoff", rule: "FREQ=WEEKLY;UNTIL=20210101T000000Z", want: false},
		{name: "until after cutoff", rule: "FREQ=MONTHLY;UNTIL=20250101T000000Z", want: true},
		{name: "count exhausted", rule: "FREQ=DAILY;COUNT=30", want: false},
		{name: "count remaining", rule: "FREQ=YEARLY;COUNT=10", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RecurrenceActiveAfter(tt.rule, dtstart, cutoff)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecurrenceActiveAfterErrors(t *testing.T) {
	now := time.Now()
	_, err := RecurrenceActiveAfter("", now, now)
	assert.Error(t, err)

	_, err = RecurrenceActiveAfter("FREQ=FORTNIGHTLY", now, now)
	assert.Error(t, err)
}

func TestLastOccurrence(t *testing.T) {
	// EU summer time onset: last Sunday of March at 02:00 wall clock.
	dtstart := time.Date(1981, 3, 29, 2, 0, 0, 0, time.UTC)
	rule := "FREQ=YEARLY;BYMONTH=3;BYDAY=-1SU"

	last, ok, err := LastOccurrence(rule, dtstart, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 31, 2, 0, 0, 0, time.UTC), last)

	last, ok, err = LastOccurrence(rule, dtstart, time.Date(2024, 3, 31, 2, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 31, 2, 0, 0, 0, time.UTC), last, "inclusive")

	_, ok, err = LastOccurrence(rule, dtstart, time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = LastOccurrence("FREQ=FORTNIGHTLY", dtstart, dtstart)
	assert.Error(t, err)
}

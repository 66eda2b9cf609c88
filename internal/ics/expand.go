package ics

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

func parseRule(rule string) (*rrule.RRule, error) {
	rule = strings.TrimPrefix(strings.TrimSpace(rule), "RRULE:")
	if rule == "" {
		return nil, fmt.Errorf("empty RRULE")
	}
	r, err := rrule.StrToRRule(rule)
	if err != nil {
		return nil, fmt.Errorf("parse RRULE %q: %w", rule, err)
	}
	return r, nil
}

// RecurrenceActiveAfter reports whether a recurrence rule anchored at
// dtstart yields an occurrence starting at or after t. Rules with neither
// COUNT nor UNTIL never end and are always active.
//
// The rule is only probed, never expanded into instances.
func RecurrenceActiveAfter(rule string, dtstart, t time.Time) (bool, error) {
	r, err := parseRule(rule)
	if err != nil {
		return false, err
	}
	if r.OrigOptions.Count == 0 && r.OrigOptions.Until.IsZero() {
		return true, nil
	}

	r.DTStart(dtstart)
	next := r.After(t, true)
	return !next.IsZero(), nil
}

// LastOccurrence returns the latest occurrence of a rule anchored at dtstart
// that starts at or before t. ok is false when the rule has none yet.
func LastOccurrence(rule string, dtstart, t time.Time) (last time.Time, ok bool, err error) {
	r, err := parseRule(rule)
	if err != nil {
		return time.Time{}, false, err
	}
	r.DTStart(dtstart)
	last = r.Before(t, true)
	return last, !last.IsZero(), nil
}

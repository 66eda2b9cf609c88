// Package anon turns a parsed calendar into a privacy-preserving, stable
// variant: identifying metadata stripped, timestamps pinned to one zone,
// identifiers derived from timing alone and stale events pruned. Merge mode
// instead collapses all events into non-overlapping whole-day blocks.
//
// Nothing here performs I/O. The only non-deterministic input is the clock,
// which callers inject through Options.Now.
package anon

import (
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/rs/zerolog"

	"icsanon/internal/model"
)

const (
	DefaultReplacementText = "Unavailable"

	ModeNormalize = "normalize"
	ModeMerge     = "merge"
)

// Options configures a Transformer.
type Options struct {
	// Summary and Description replace the text of every event.
	Summary     string
	Description string

	// KeepLocation leaves LOCATION untouched instead of removing it.
	KeepLocation bool

	// MergeStays selects merge mode.
	MergeStays bool

	// RecurrenceAwarePrune keeps a past-dated recurring event while its
	// RRULE still yields occurrences after the cutoff.
	RecurrenceAwarePrune bool

	// Now defaults to time.Now.
	Now func() time.Time
}

// Transformer applies the anonymization pipeline to one calendar at a time.
// It holds no per-document state and may be reused.
type Transformer struct {
	opts Options
	log  zerolog.Logger
}

func New(opts Options, logger zerolog.Logger) *Transformer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Transformer{opts: opts, log: logger}
}

// Transform mutates cal in place and reports what it did. It never fails:
// per-field problems are recorded in the report and otherwise ignored.
func (t *Transformer) Transform(cal *ical.Calendar) model.Report {
	now := t.opts.Now().In(TargetZone)
	rep := model.Report{Mode: ModeNormalize, Cutoff: oneYearBefore(now)}
	if t.opts.MergeStays {
		rep.Mode = ModeMerge
	}

	// Definitions are read before anything is rewritten.
	zones := NewZones(cal)
	SanitizeMetadata(cal)

	if t.opts.MergeStays {
		t.mergeStays(cal, rep.Cutoff, zones, &rep)
	} else {
		t.normalizeAll(cal, now, zones, &rep)
	}

	if n := dropUnusedTimezones(cal); n > 0 {
		t.log.Debug().Int("timezones", n).Msg("dropped unreferenced timezones")
	}

	t.log.Info().
		Str("mode", rep.Mode).
		Int("events_in", rep.EventsIn).
		Int("events_out", rep.EventsOut).
		Int("pruned", rep.Pruned).
		Int("field_failures", len(rep.FieldFailures)).
		Time("cutoff", rep.Cutoff).
		Msg("calendar anonymized")
	return rep
}

// normalizeAll scrubs every event, then drops the stale ones. Survivors are
// collected into a new slice that replaces cal.Components once every event
// has been evaluated; the slice being ranged over is never modified.
func (t *Transformer) normalizeAll(cal *ical.Calendar, now time.Time, zones *Zones, rep *model.Report) {
	kept := make([]ical.Component, 0, len(cal.Components))
	for _, c := range cal.Components {
		ev, ok := c.(*ical.VEvent)
		if !ok {
			kept = append(kept, c)
			continue
		}
		rep.EventsIn++

		t.normalizeEvent(ev, zones, rep)

		if t.isStale(&ev.ComponentBase, rep.Cutoff, now, zones) {
			rep.Pruned++
			t.log.Debug().Str("uid", ev.GetProperty(propUID).Value).Msg("pruning stale event")
			continue
		}
		kept = append(kept, c)
		rep.EventsOut++
	}
	cal.Components = kept
}

package anon

import (
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"icsanon/internal/ics"
)

// testNow is the injected clock for every test: the cutoff is
// 2023-10-01T12:00:00+09:00.
var testNow = time.Date(2024, 10, 1, 12, 0, 0, 0, TargetZone)

func newTestTransformer(opts Options) *Transformer {
	if opts.Summary == "" {
		opts.Summary = DefaultReplacementText
	}
	if opts.Description == "" {
		opts.Description = DefaultReplacementText
	}
	opts.Now = func() time.Time { return testNow }
	return New(opts, zerolog.Nop())
}

// calendar wraps VEVENT bodies (LF separated) into a full document and
// parses it.
func calendar(t *testing.T, events ...string) *ical.Calendar {
	t.Helper()
	var b strings.Builder
	b.WriteString("BEGIN:VCALENDAR\nVERSION:2.0\nPRODID:-//Example Corp//Bookings 1.0//EN\n")
	for _, ev := range events {
		b.WriteString("BEGIN:VEVENT\n")
		b.WriteString(strings.TrimSpace(ev))
		b.WriteString("\nEND:VEVENT\n")
	}
	b.WriteString("END:VCALENDAR\n")
	return parse(t, b.String())
}

func parse(t *testing.T, doc string) *ical.Calendar {
	t.Helper()
	doc = strings.ReplaceAll(strings.TrimLeft(doc, "\n"), "\n", "\r\n")
	cal, err := ics.Parse([]byte(doc))
	require.NoError(t, err)
	return cal
}

func vevents(cal *ical.Calendar) []*ical.VEvent {
	var out []*ical.VEvent
	for _, c := range cal.Components {
		if ev, ok := c.(*ical.VEvent); ok {
			out = append(out, ev)
		}
	}
	return out
}

func only(t *testing.T, cal *ical.Calendar) *ical.ComponentBase {
	t.Helper()
	evs := vevents(cal)
	require.Len(t, evs, 1)
	return &evs[0].ComponentBase
}

func value(cb *ical.ComponentBase, name ical.ComponentProperty) string {
	if p := cb.GetProperty(name); p != nil {
		return p.Value
	}
	return ""
}

func paramOf(cb *ical.ComponentBase, name ical.ComponentProperty, key string) string {
	if p := cb.GetProperty(name); p != nil {
		return param(p, key)
	}
	return ""
}

func hasProp(cb *ical.ComponentBase, name ical.ComponentProperty) bool {
	return cb.GetProperty(name) != nil
}

func newProp(name ical.ComponentProperty, value string, params map[string][]string) ical.IANAProperty {
	if params == nil {
		params = map[string][]string{}
	}
	return ical.IANAProperty{BaseProperty: ical.BaseProperty{
		IANAToken:      string(name),
		ICalParameters: params,
		Value:          value,
	}}
}

func component(props ...ical.IANAProperty) *ical.ComponentBase {
	return &ical.ComponentBase{Properties: props}
}

// Package metrics records per-run statistics and writes them in the
// Prometheus text format, for node_exporter's textfile collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"icsanon/internal/model"
)

const namespace = "icsanon"

// Recorder owns a private registry so several recorders (e.g. in tests) do
// not collide.
type Recorder struct {
	reg *prometheus.Registry

	runs          *prometheus.CounterVec
	events        *prometheus.GaugeVec
	pruned        prometheus.Gauge
	collapsed     prometheus.Gauge
	merged        prometheus.Gauge
	fieldFailures prometheus.Gauge
	duration      prometheus.Gauge
	lastSuccess   prometheus.Gauge
}

func NewRecorder() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by result.",
		}, []string{"result"}),
		events: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "events",
			Help:      "Events read and written by the last successful run.",
		}, []string{"stage"}),
		pruned: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "events_pruned",
			Help:      "Events or merged stays dropped by the one-year cutoff in the last run.",
		}),
		collapsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "events_collapsed",
			Help:      "Events turned into whole-day spans in the last run.",
		}),
		merged: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stays_merged",
			Help:      "Merged stay blocks before the cutoff in the last run.",
		}),
		fieldFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "field_failures",
			Help:      "Timestamp fields left unnormalized in the last run.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
	}
	r.reg.MustRegister(r.runs, r.events, r.pruned, r.collapsed, r.merged, r.fieldFailures, r.duration, r.lastSuccess)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// ObserveSuccess records a completed run.
func (r *Recorder) ObserveSuccess(rep model.Report, took time.Duration, finished time.Time) {
	r.runs.WithLabelValues("success").Inc()
	r.events.WithLabelValues("in").Set(float64(rep.EventsIn))
	r.events.WithLabelValues("out").Set(float64(rep.EventsOut))
	r.pruned.Set(float64(rep.Pruned))
	r.collapsed.Set(float64(rep.Collapsed))
	r.merged.Set(float64(rep.Merged))
	r.fieldFailures.Set(float64(len(rep.FieldFailures)))
	r.duration.Set(took.Seconds())
	r.lastSuccess.Set(float64(finished.Unix()))
}

// ObserveFailure records a failed run; last-run gauges keep their values.
func (r *Recorder) ObserveFailure(took time.Duration) {
	r.runs.WithLabelValues("failure").Inc()
	r.duration.Set(took.Seconds())
}

// WriteFile atomically writes the current values to path.
func (r *Recorder) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, r.reg)
}

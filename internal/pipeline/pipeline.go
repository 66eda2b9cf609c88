// Package pipeline runs one fetch → anonymize → write cycle.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"icsanon/internal/anon"
	"icsanon/internal/ics"
	appLog "icsanon/internal/log"
	"icsanon/internal/metrics"
	"icsanon/internal/model"
	"icsanon/internal/output"
)

// Fetcher produces the raw source document.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Publisher receives the finished document after it has been written.
type Publisher interface {
	Publish(ctx context.Context, data []byte) error
}

// Options are the parts of the configuration a run needs.
type Options struct {
	Source string
	Output string
	// MetricsFile, if set, is rewritten after every run.
	MetricsFile string
}

// Runner is safe to call repeatedly but not concurrently.
type Runner struct {
	opts        Options
	fetcher     Fetcher
	transformer *anon.Transformer
	publisher   Publisher
	metrics     *metrics.Recorder
	log         zerolog.Logger
	clock       func() time.Time
}

// New wires a Runner. publisher and recorder may be nil.
func New(opts Options, fetcher Fetcher, transformer *anon.Transformer, publisher Publisher, recorder *metrics.Recorder, logger zerolog.Logger) *Runner {
	return &Runner{
		opts:        opts,
		fetcher:     fetcher,
		transformer: transformer,
		publisher:   publisher,
		metrics:     recorder,
		log:         logger,
		clock:       time.Now,
	}
}

// Run executes one cycle. Any error means the output file was not replaced,
// except a publish error, which happens after the local write.
func (r *Runner) Run(ctx context.Context) (model.Report, error) {
	started := r.clock()
	rep, err := r.run(ctx)
	took := r.clock().Sub(started)

	if r.metrics != nil {
		if err != nil {
			r.metrics.ObserveFailure(took)
		} else {
			r.metrics.ObserveSuccess(rep, took, r.clock())
		}
		if r.opts.MetricsFile != "" {
			if werr := r.metrics.WriteFile(r.opts.MetricsFile); werr != nil {
				r.log.Warn().Err(werr).Str("path", r.opts.MetricsFile).Msg("metrics write failed")
			}
		}
	}
	return rep, err
}

func (r *Runner) run(ctx context.Context) (model.Report, error) {
	r.log.Info().Str("source", appLog.RedactURL(r.opts.Source)).Msg("fetching calendar")
	body, err := r.fetcher.Fetch(ctx, r.opts.Source)
	if err != nil {
		return model.Report{}, fmt.Errorf("fetch: %w", err)
	}

	r.log.Debug().Int("bytes", len(body)).Msg("parsing calendar")
	cal, err := ics.Parse(body)
	if err != nil {
		return model.Report{}, err
	}

	rep := r.transformer.Transform(cal)
	for _, ff := range rep.FieldFailures {
		r.log.Debug().Err(ff.Err).Str("property", ff.Property).Msg("recovered field failure")
	}

	out := ics.Serialize(cal)
	if err := ics.Validate(out, rep.EventsOut); err != nil {
		return rep, err
	}

	r.log.Info().Str("path", r.opts.Output).Msg("writing output atomically")
	if err := output.WriteAtomic(r.opts.Output, out, 0o644); err != nil {
		return rep, fmt.Errorf("write %s: %w", r.opts.Output, err)
	}

	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, out); err != nil {
			return rep, fmt.Errorf("publish: %w", err)
		}
	}
	return rep, nil
}

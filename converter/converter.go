// Package converter implements the pipeline's second stage: it dequeues a
// Job from the convert queue, drives the Ghostscript Engine with the job's
// argv, and on success forwards the job to the send queue -- unless the job
// has no printers, in which case it is a convert-only request and the
// Converter drops it after logging.
//
// A single Converter instance must process one job at a time, because the
// underlying engine is not guaranteed reentrant; running more than
// one worker is a deployment decision the operator makes with eyes open
// (config.ConverterWorkers), not something this package second-guesses.
package converter

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/alephprint/gsprintd/engine"
	"github.com/alephprint/gsprintd/events"
	"github.com/alephprint/gsprintd/job"
	"github.com/alephprint/gsprintd/queue"
)

// Notifier receives a JobEvent for every lifecycle transition the Converter
// makes. It must not block; the status feed and audit ledger both fan out
// internally and return immediately.
type Notifier func(events.JobEvent)

// Converter is one conversion worker.
type Converter struct {
	id             string
	in             *queue.Queue
	out            *queue.Queue
	engine         engine.Engine
	dequeueTimeout time.Duration
	notify         Notifier
	log            zerolog.Logger
}

// New builds a Converter. notify may be nil, in which case events are
// dropped.
func New(id string, in, out *queue.Queue, eng engine.Engine, dequeueTimeout time.Duration, notify Notifier, log zerolog.Logger) *Converter {
	if notify == nil {
		notify = func(events.JobEvent) {}
	}
	return &Converter{
		id:             id,
		in:             in,
		out:            out,
		engine:         eng,
		dequeueTimeout: dequeueTimeout,
		notify:         notify,
		log:            log.With().Str("component", "converter").Str("worker", id).Logger(),
	}
}

// Run drives the worker loop until ctx is cancelled. It checks for
// cancellation between dequeues only -- a job already running the engine
// runs to completion rather than being preempted mid-conversion.
func (c *Converter) Run(ctx context.Context) {
	c.log.Info().Msg("converter starting")
	defer c.log.Info().Msg("converter stopped")

	for {
		if ctx.Err() != nil {
			return
		}
		j, ok := c.in.Dequeue(ctx, c.dequeueTimeout)
		if !ok {
			continue
		}
		c.process(j)
	}
}

func (c *Converter) process(j *job.Job) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Str("job_id", j.ID).Msg("recovered panic while converting job")
		}
	}()

	if err := j.Validate(); err != nil {
		c.log.Error().Err(err).Str("job_id", j.ID).Msg("job failed validation, dropping")
		return
	}

	c.log.Info().Str("job_id", j.ID).Str("format", j.FormatLabel).Msg("converting")
	j.Status = job.StatusConverting
	c.notify(c.event(j, ""))

	if err := c.engine.Run(j.GSArgs); err != nil {
		c.fail(j, fmt.Errorf("engine: %w", err))
		return
	}

	info, err := os.Stat(j.OutputPath)
	if err != nil {
		c.fail(j, fmt.Errorf("output file missing after conversion: %w", err))
		return
	}
	if info.Size() == 0 {
		c.fail(j, fmt.Errorf("output file %s is empty after conversion", j.OutputPath))
		return
	}

	j.Status = job.StatusConverted
	c.log.Info().Str("job_id", j.ID).Msg("conversion succeeded")
	c.notify(c.event(j, ""))

	if len(j.Printers) == 0 {
		c.log.Info().Str("job_id", j.ID).Msg("conversion only, no printers, dropping job")
		return
	}

	j.Status = job.StatusSending
	c.notify(c.event(j, ""))
	if !c.out.TryEnqueue(j) {
		c.log.Warn().Str("job_id", j.ID).Msg("send queue full, dropping converted job")
		return
	}
}

func (c *Converter) fail(j *job.Job, err error) {
	j.Status = job.StatusConvertError
	j.Err = err.Error()
	c.log.Error().Err(err).Str("job_id", j.ID).Msg("conversion failed, input file retained")
	c.notify(c.event(j, err.Error()))
}

func (c *Converter) event(j *job.Job, msg string) events.JobEvent {
	return events.JobEvent{
		JobID:      j.ID,
		Status:     string(j.Status),
		Format:     j.FormatLabel,
		Printers:   len(j.Printers),
		Message:    msg,
		OccurredAt: time.Now(),
	}
}

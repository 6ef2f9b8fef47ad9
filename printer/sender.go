// Package printer implements the pipeline's third stage: it dequeues a
// converted Job from the send queue, dispatches the output file to every
// configured printer concurrently over a raw TCP stream, and applies the
// cleanup policy if and only if every printer succeeded and disposal is
// enabled.
package printer

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/alephprint/gsprintd/events"
	"github.com/alephprint/gsprintd/job"
	"github.com/alephprint/gsprintd/queue"
)

// Notifier receives a JobEvent for every lifecycle transition the Sender
// makes.
type Notifier func(events.JobEvent)

// Sender is one send worker. It processes one job at a time; the
// per-printer fan-out within a job is internal.
type Sender struct {
	id             string
	in             *queue.Queue
	dequeueTimeout time.Duration

	readonly bool
	disposal bool

	connectTimeout time.Duration
	ioTimeout      time.Duration
	softTimeout    time.Duration

	notify Notifier
	log    zerolog.Logger
}

// Config bundles the Sender's policy knobs.
type Config struct {
	DequeueTimeout time.Duration
	Readonly       bool
	Disposal       bool
	ConnectTimeout time.Duration
	IOTimeout      time.Duration
	SoftTimeout    time.Duration
}

// New builds a Sender. notify may be nil, in which case events are dropped.
func New(id string, in *queue.Queue, cfg Config, notify Notifier, log zerolog.Logger) *Sender {
	if notify == nil {
		notify = func(events.JobEvent) {}
	}
	return &Sender{
		id:             id,
		in:             in,
		dequeueTimeout: cfg.DequeueTimeout,
		readonly:       cfg.Readonly,
		disposal:       cfg.Disposal,
		connectTimeout: cfg.ConnectTimeout,
		ioTimeout:      cfg.IOTimeout,
		softTimeout:    cfg.SoftTimeout,
		notify:         notify,
		log:            log.With().Str("component", "sender").Str("worker", id).Logger(),
	}
}

// Run drives the worker loop until ctx is cancelled. A job already
// fanning out to printers runs to completion; cancellation is only observed
// between dequeues.
func (s *Sender) Run(ctx context.Context) {
	s.log.Info().Msg("sender starting")
	defer s.log.Info().Msg("sender stopped")

	for {
		if ctx.Err() != nil {
			return
		}
		j, ok := s.in.Dequeue(ctx, s.dequeueTimeout)
		if !ok {
			continue
		}
		s.process(j)
	}
}

func (s *Sender) process(j *job.Job) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("job_id", j.ID).Msg("recovered panic while sending job")
		}
	}()

	s.log.Info().Str("job_id", j.ID).Int("printers", len(j.Printers)).Msg("sending")

	results := make([]bool, len(j.Printers))
	var wg sync.WaitGroup
	for i, printer := range j.Printers {
		wg.Add(1)
		go func(i int, printer string) {
			defer wg.Done()
			results[i] = s.sendOne(j, printer)
		}(i, printer)
	}
	wg.Wait()

	allOK := true
	for _, ok := range results {
		if !ok {
			allOK = false
			break
		}
	}

	if !allOK {
		j.Status = job.StatusSendError
		j.Err = "one or more printers failed"
		s.log.Error().Str("job_id", j.ID).Msg("send failed for at least one printer, files retained")
		s.notify(s.event(j, j.Err))
		return
	}

	j.Status = job.StatusSent
	s.log.Info().Str("job_id", j.ID).Msg("send succeeded for all printers")
	s.notify(s.event(j, ""))

	if s.disposal {
		s.cleanup(j)
	}
}

func (s *Sender) sendOne(j *job.Job, printer string) bool {
	start := time.Now()
	timer := time.AfterFunc(s.softTimeout, func() {
		s.log.Warn().Str("job_id", j.ID).Str("printer", printer).
			Dur("elapsed", time.Since(start)).
			Msg("printer send exceeding soft timeout, still waiting")
	})
	defer timer.Stop()

	if s.readonly {
		s.log.Info().Str("job_id", j.ID).Str("printer", printer).Str("file", j.OutputPath).
			Msg("READONLY: would send file to printer")
		return true
	}

	if _, err := os.Stat(j.OutputPath); err != nil {
		s.log.Error().Err(err).Str("job_id", j.ID).Str("printer", printer).Msg("output file missing, cannot send")
		return false
	}

	conn, err := net.DialTimeout("tcp", printer, s.connectTimeout)
	if err != nil {
		s.log.Error().Err(err).Str("job_id", j.ID).Str("printer", printer).Msg("connect failed")
		return false
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(s.ioTimeout)); err != nil {
		s.log.Error().Err(err).Str("job_id", j.ID).Str("printer", printer).Msg("failed to set socket deadline")
		return false
	}

	f, err := os.Open(j.OutputPath)
	if err != nil {
		s.log.Error().Err(err).Str("job_id", j.ID).Str("printer", printer).Msg("failed to open output file")
		return false
	}
	defer f.Close()

	if _, err := io.Copy(conn, f); err != nil {
		s.log.Error().Err(err).Str("job_id", j.ID).Str("printer", printer).Msg("stream failed")
		return false
	}

	s.log.Debug().Str("job_id", j.ID).Str("printer", printer).Msg("send completed")
	return true
}

func (s *Sender) cleanup(j *job.Job) {
	for _, path := range []string{j.OutputPath, j.InputPath} {
		if err := os.Remove(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				s.log.Error().Str("path", path).Msg("cleanup: file not found")
				continue
			}
			s.log.Error().Err(err).Str("path", path).Msg("cleanup failed")
			continue
		}
		s.log.Debug().Str("path", path).Msg("cleanup: deleted")
	}
}

func (s *Sender) event(j *job.Job, msg string) events.JobEvent {
	return events.JobEvent{
		JobID:      j.ID,
		Status:     string(j.Status),
		Format:     j.FormatLabel,
		Printers:   len(j.Printers),
		Message:    msg,
		OccurredAt: time.Now(),
	}
}

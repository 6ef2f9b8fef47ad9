// Package supervisor owns the convert and send queues and the lifetime of
// every worker and the HTTP server built on top of them. It starts stages
// in dependency order (senders before converters before the HTTP front
// door, so nothing is ever handed a job with nowhere downstream to put it).
// On shutdown it stops the HTTP server first, applies the drain policy, and
// then cancels converters and senders together through one shared context.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/alephprint/gsprintd/converter"
	"github.com/alephprint/gsprintd/printer"
	"github.com/alephprint/gsprintd/queue"
	"github.com/alephprint/gsprintd/server"
)

// ShutdownPolicy controls what happens to in-flight queue contents when the
// supervisor is asked to stop.
type ShutdownPolicy struct {
	Grace             time.Duration
	DrainConvertQueue bool
	DrainSendQueue    bool
}

// Supervisor coordinates the convert queue, the send queue, their workers,
// and the HTTP server sitting in front of the convert queue.
type Supervisor struct {
	qc *queue.Queue
	qs *queue.Queue

	converters []*converter.Converter
	senders    []*printer.Sender
	httpServer *server.Server

	policy ShutdownPolicy
	log    zerolog.Logger
}

// New builds a Supervisor. qc and qs are the convert and send queues the
// caller has already constructed and threaded into converters/senders/the
// HTTP server.
func New(qc, qs *queue.Queue, converters []*converter.Converter, senders []*printer.Sender, httpServer *server.Server, policy ShutdownPolicy, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		qc:         qc,
		qs:         qs,
		converters: converters,
		senders:    senders,
		httpServer: httpServer,
		policy:     policy,
		log:        log.With().Str("component", "supervisor").Logger(),
	}
}

// Run starts every stage and blocks until ctx is cancelled, then drives
// shutdown in reverse dependency order: the HTTP front door stops accepting
// new work first, then converters and senders are given a chance to drain
// per the configured policy before their contexts are cancelled.
func (sv *Supervisor) Run(ctx context.Context) error {
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	var wg sync.WaitGroup

	// Senders first: nothing should be able to reach the send queue before
	// something is there to drain it.
	for _, s := range sv.senders {
		wg.Add(1)
		go func(s *printer.Sender) {
			defer wg.Done()
			s.Run(workerCtx)
		}(s)
	}

	for _, c := range sv.converters {
		wg.Add(1)
		go func(c *converter.Converter) {
			defer wg.Done()
			c.Run(workerCtx)
		}(c)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- sv.httpServer.ListenAndServe()
	}()

	sv.log.Info().Msg("supervisor running")

	select {
	case <-ctx.Done():
		sv.log.Info().Msg("shutdown requested")
	case err := <-serverErrCh:
		sv.log.Error().Err(err).Msg("HTTP server exited unexpectedly")
		cancelWorkers()
		wg.Wait()
		return err
	}

	if err := sv.httpServer.Shutdown(sv.policy.Grace); err != nil {
		sv.log.Error().Err(err).Msg("HTTP server shutdown did not complete cleanly")
	}

	sv.drain()

	cancelWorkers()
	wg.Wait()
	sv.log.Info().Msg("supervisor stopped")
	return nil
}

// drain applies the configured drain policy: when enabled for a queue, wait
// (bounded by the grace period) for it to empty before workers are
// cancelled, so already-accepted work isn't silently abandoned.
func (sv *Supervisor) drain() {
	deadline := time.Now().Add(sv.policy.Grace)

	if sv.policy.DrainConvertQueue {
		sv.waitEmpty(sv.qc, deadline)
	}
	if sv.policy.DrainSendQueue {
		sv.waitEmpty(sv.qs, deadline)
	}
}

func (sv *Supervisor) waitEmpty(q *queue.Queue, deadline time.Time) {
	for q.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if q.Len() > 0 {
		sv.log.Warn().Int("remaining", q.Len()).Msg("grace period expired with jobs still queued")
	}
}

// Package server wires the HTTP surface: the conversion endpoint, the live
// status WebSocket feed, and a health check, behind a permissive CORS
// posture and plain mux-based routing.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/alephprint/gsprintd/intake"
	"github.com/alephprint/gsprintd/wsapi"
)

// Server owns the http.Server and the mux that routes to intake, the
// WebSocket feed, and the health check.
type Server struct {
	httpAddr string
	inner    *http.Server
	log      zerolog.Logger
	upgrader websocket.Upgrader
	ws       *wsapi.Manager
}

// New builds a Server. intakeHandler serves the conversion endpoint at "/";
// ws is the status feed manager, already started by the caller.
func New(httpAddr string, intakeHandler *intake.Handler, ws *wsapi.Manager, log zerolog.Logger) *Server {
	s := &Server{
		httpAddr: httpAddr,
		log:      log.With().Str("component", "server").Logger(),
		ws:       ws,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.Handle("/healthz", corsMiddleware(http.HandlerFunc(s.handleHealthz)))
	mux.Handle("/ws", corsMiddleware(http.HandlerFunc(s.handleWebSocket)))
	mux.Handle("/", corsMiddleware(intakeHandler))

	s.inner = &http.Server{
		Addr:    httpAddr,
		Handler: mux,
	}

	return s
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ListenAndServe blocks serving HTTP until the listener is closed via
// Shutdown, returning nil in that case rather than http.ErrServerClosed.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.httpAddr).Msg("HTTP server listening")
	err := s.inner.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown closes the listener at once and gives in-flight requests up to
// the given grace period to finish. If they have not finished by then it
// returns the context's error; it does not force those connections closed.
func (s *Server) Shutdown(grace time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	return s.inner.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK\n"))
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to upgrade to WebSocket")
		return
	}

	s.ws.Register(conn)

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.ws.Unregister(conn)
				return
			}
		}
	}()
}

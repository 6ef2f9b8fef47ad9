// Package wsapi broadcasts job lifecycle transitions to connected WebSocket
// clients. It is purely observational: nothing in the convert/send pipeline
// waits on it, and a slow or disconnected client never blocks a stage.
package wsapi

import (
	"encoding/json"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/alephprint/gsprintd/events"
)

// Manager tracks connected clients and fans a JobEvent out to all of them.
// Unlike a naive single shared broadcast channel, each client gets its own
// buffered channel and write pump, so one slow client gets dropped instead
// of stalling every subsequent broadcast call.
type Manager struct {
	log zerolog.Logger

	clients    map[*websocket.Conn]chan []byte
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
}

// NewManager creates a Manager. Call Start once before Broadcast is used.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		log:        log.With().Str("component", "wsapi").Logger(),
		clients:    make(map[*websocket.Conn]chan []byte),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

// Start launches the manager's event loop in a background goroutine. The
// loop has no stop signal and runs for the life of the process.
func (m *Manager) Start() {
	go func() {
		for {
			select {
			case conn := <-m.register:
				ch := make(chan []byte, 16)
				m.clients[conn] = ch
				go m.writePump(conn, ch)
				m.log.Info().Int("clients", len(m.clients)).Msg("status feed client connected")
			case conn := <-m.unregister:
				if ch, ok := m.clients[conn]; ok {
					delete(m.clients, conn)
					close(ch)
					conn.Close()
				}
				m.log.Info().Int("clients", len(m.clients)).Msg("status feed client disconnected")
			case message := <-m.broadcast:
				for conn, ch := range m.clients {
					select {
					case ch <- message:
					default:
						m.log.Warn().Msg("status feed client too slow, dropping")
						delete(m.clients, conn)
						close(ch)
						conn.Close()
					}
				}
			}
		}
	}()
}

func (m *Manager) writePump(conn *websocket.Conn, ch chan []byte) {
	for msg := range ch {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			m.log.Warn().Err(err).Msg("status feed write failed")
			return
		}
	}
}

// Broadcast encodes ev and fans it out to every connected client. It never
// blocks on a slow client and never returns an error to the caller -- a
// marshal failure is logged and the event is simply dropped.
func (m *Manager) Broadcast(ev events.JobEvent) {
	payload := map[string]any{
		"type":      "job_update",
		"job_id":    ev.JobID,
		"status":    ev.Status,
		"format":    ev.Format,
		"printers":  ev.Printers,
		"timestamp": ev.OccurredAt,
	}
	if ev.Message != "" {
		payload["error"] = ev.Message
	}

	data, err := json.Marshal(payload)
	if err != nil {
		m.log.Error().Err(err).Msg("failed to marshal job event")
		return
	}

	select {
	case m.broadcast <- data:
	default:
		m.log.Warn().Msg("broadcast channel full, dropping job event")
	}
}

// Register admits a new client connection to the broadcast set.
func (m *Manager) Register(conn *websocket.Conn) {
	m.register <- conn
}

// Unregister removes a client connection from the broadcast set.
func (m *Manager) Unregister(conn *websocket.Conn) {
	m.unregister <- conn
}

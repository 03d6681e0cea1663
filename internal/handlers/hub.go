// internal/handlers/hub.go
package handlers

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	outboundBuffer = 64
	writeTimeout   = 3 * time.Second
)

// Sender delivers events to connected players.
type Sender interface {
	Send(playerID uuid.UUID, ev Event)
	Connected(playerID uuid.UUID) bool
}

// client is one registered connection with its own ordered outbound queue.
type client struct {
	conn *websocket.Conn
	out  chan []byte
	done chan struct{}
}

// Hub tracks live connections by player id. Writes are queued per connection so that
// callers holding a session lock never block on the network.
type Hub struct {
	mu      sync.Mutex
	clients map[uuid.UUID]*client
	logger  *logrus.Logger
}

func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		clients: make(map[uuid.UUID]*client),
		logger:  logger,
	}
}

// Register attaches conn to playerID and starts its writer. The writer stops when ctx is
// done or the player is unregistered.
func (h *Hub) Register(ctx context.Context, playerID uuid.UUID, conn *websocket.Conn) {
	cl := &client{
		conn: conn,
		out:  make(chan []byte, outboundBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if old, ok := h.clients[playerID]; ok {
		close(old.done)
	}
	h.clients[playerID] = cl
	h.mu.Unlock()

	go h.writeLoop(ctx, playerID, cl)
}

// Unregister detaches playerID. Queued messages are dropped.
func (h *Hub) Unregister(playerID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cl, ok := h.clients[playerID]; ok {
		close(cl.done)
		delete(h.clients, playerID)
	}
}

func (h *Hub) Connected(playerID uuid.UUID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.clients[playerID]
	return ok
}

// Send queues ev for playerID. Unknown players are ignored; a full queue closes the connection.
func (h *Hub) Send(playerID uuid.UUID, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.WithError(err).Errorf("failed to marshal %s event", ev.Type)
		return
	}

	h.mu.Lock()
	cl, ok := h.clients[playerID]
	h.mu.Unlock()
	if !ok {
		return
	}

	select {
	case cl.out <- data:
	case <-cl.done:
	default:
		h.logger.WithField("player_id", playerID).Warn("outbound queue full, closing connection")
		go cl.conn.Close(SlowConsumerError, "Client is not reading messages.")
	}
}

func (h *Hub) writeLoop(ctx context.Context, playerID uuid.UUID, cl *client) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-cl.done:
			return
		case data := <-cl.out:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := cl.conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				h.logger.WithField("player_id", playerID).Debugf("failed to write message: %v", err)
				return
			}
		}
	}
}

package ws

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

const writeTimeout = 5 * time.Second

// Client is one WebSocket subscriber. Messages are queued on send and
// drained by writePump; a full queue drops messages rather than
// blocking the broadcaster.
type Client struct {
	conn   *websocket.Conn
	name   string
	send   chan Message
	logger *zap.Logger
}

// trySend queues msg without blocking. Returns false if the client's
// buffer is full.
func (c *Client) trySend(msg Message) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// writePump drains the send queue onto the wire until the context ends
// or the hub closes the channel.
func (c *Client) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, open := <-c.send:
			if !open {
				return
			}
			if err := c.writeOne(ctx, msg); err != nil {
				c.logger.Debug("websocket write error", zap.Error(err))
				return
			}
		}
	}
}

func (c *Client) writeOne(ctx context.Context, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, c.conn, msg)
}

// readPump blocks until the peer disconnects. Clients never send
// application messages, so inbound frames are discarded.
func (c *Client) readPump(ctx context.Context) {
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}

// Hub fans broadcast messages out to every registered client.
type Hub struct {
	logger *zap.Logger

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*Client]struct{}),
	}
}

// Register adds c to the broadcast set.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", zap.String("client", c.name))
}

// Unregister removes c and closes its send queue, which stops its
// writePump. Safe to call more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, registered := h.clients[c]
	if registered {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	if registered {
		h.logger.Debug("websocket client disconnected", zap.String("client", c.name))
	}
}

// Broadcast queues msg for every client. Slow clients lose messages
// instead of stalling the rest.
func (h *Hub) Broadcast(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !c.trySend(msg) {
			h.logger.Warn("client send buffer full, dropping message",
				zap.String("client", c.name))
		}
	}
}

// ClientCount reports how many clients are connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

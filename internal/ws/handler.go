// Package ws streams drift events to WebSocket subscribers.
package ws

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/HerbHall/driftwatch/internal/auth"
	"github.com/HerbHall/driftwatch/internal/watch"
	"github.com/HerbHall/driftwatch/pkg/plugin"
)

// Handler upgrades HTTP requests to WebSocket connections and relays
// watch events to every connected client.
type Handler struct {
	hub    *Hub
	tokens *auth.TokenService
	bus    plugin.EventBus
	logger *zap.Logger
}

var _ interface {
	RegisterRoutes(mux *http.ServeMux)
} = (*Handler)(nil)

// NewHandler builds the handler and wires it to the event bus. A nil
// TokenService skips the token check (auth disabled).
func NewHandler(tokens *auth.TokenService, bus plugin.EventBus, logger *zap.Logger) *Handler {
	h := &Handler{
		hub:    NewHub(logger),
		tokens: tokens,
		bus:    bus,
		logger: logger,
	}
	h.subscribe()
	return h
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/ws/events", h.handleEventStream)
}

// authenticate checks the token query parameter. The browser WebSocket
// API cannot set headers, so the JWT travels in the URL.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.tokens == nil {
		return "anonymous", true
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token parameter", http.StatusUnauthorized)
		return "", false
	}
	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return "", false
	}
	return claims.Client, true
}

func (h *Handler) handleEventStream(w http.ResponseWriter, r *http.Request) {
	name, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Origin checks add nothing here: the JWT is the credential.
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error("websocket accept failed", zap.Error(err))
		return
	}

	client := &Client{
		conn:   conn,
		name:   name,
		send:   make(chan Message, 256),
		logger: h.logger,
	}
	h.hub.Register(client)

	ctx := r.Context()
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		client.writePump(ctx)
	}()

	// Blocks until the peer goes away.
	client.readPump(ctx)

	h.hub.Unregister(client)
	conn.Close(websocket.StatusNormalClosure, "")
	<-writerDone
}

// subscribe registers bus handlers that translate watch events into
// client messages.
func (h *Handler) subscribe() {
	if h.bus == nil {
		return
	}

	forwardDrift := func(msgType MessageType) plugin.EventHandler {
		return func(_ context.Context, event plugin.Event) {
			ev, ok := event.Payload.(watch.DriftEvent)
			if !ok {
				return
			}
			h.hub.Broadcast(Message{
				Type:      msgType,
				MonitorID: ev.MonitorID,
				Timestamp: event.Timestamp,
				Data:      DriftData{Event: ev},
			})
		}
	}
	h.bus.Subscribe(watch.TopicDriftDetected, forwardDrift(MessageDriftDetected))
	h.bus.Subscribe(watch.TopicDriftCleared, forwardDrift(MessageDriftCleared))

	h.bus.Subscribe(watch.TopicWindowCompleted, func(_ context.Context, event plugin.Event) {
		ev, ok := event.Payload.(watch.WindowEvent)
		if !ok {
			return
		}
		h.hub.Broadcast(Message{
			Type:      MessageWindowCompleted,
			MonitorID: ev.MonitorID,
			Timestamp: event.Timestamp,
			Data:      WindowData{Window: ev},
		})
	})

	h.logger.Info("websocket handler subscribed to watch events")
}

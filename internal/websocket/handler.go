package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"
	"github.com/nfrund/chatroom/internal/events"
	"github.com/nfrund/chatroom/internal/pubsub"
)

// Resolver maps a handshake request to an authenticated user id.
type Resolver interface {
	Resolve(r *http.Request) (string, error)
}

// HandlerOptions tunes the per-connection buffers and timeouts.
type HandlerOptions struct {
	SendBuffer   int
	WriteTimeout time.Duration
	// OriginPatterns lists extra hosts allowed to open a socket. The request
	// host is always allowed.
	OriginPatterns []string
}

// Handler upgrades /ws requests and runs each connection until it closes.
type Handler struct {
	resolver    Resolver
	lifecycle   *Lifecycle
	broadcaster *Broadcaster
	publisher   pubsub.Publisher
	opts        HandlerOptions
	logger      *slog.Logger
}

// NewHandler creates the websocket endpoint.
func NewHandler(resolver Resolver, lifecycle *Lifecycle, broadcaster *Broadcaster, publisher pubsub.Publisher, opts HandlerOptions) *Handler {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	return &Handler{
		resolver:    resolver,
		lifecycle:   lifecycle,
		broadcaster: broadcaster,
		publisher:   publisher,
		opts:        opts,
		logger:      slog.Default().With("component", "websocket"),
	}
}

// Serve is the echo.HandlerFunc for the socket endpoint. It returns once the
// connection has closed and its disconnect has been processed.
func (h *Handler) Serve(c echo.Context) error {
	h.ServeHTTP(c.Response(), c.Request())
	return nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.opts.OriginPatterns,
	})
	if err != nil {
		h.logger.Warn("Failed to upgrade connection to WebSocket", "error", err)
		return
	}

	client := NewClient(conn, h.opts.SendBuffer)
	userID, err := h.resolver.Resolve(r)
	if err != nil {
		h.logger.Info("Rejecting unauthenticated socket", "connID", client.ID(), "error", err)
		client.closeWith(StatusUnauthorized, "Unauthorized")
		return
	}
	client.authenticate(userID)

	// Lifecycle writes must finish even after the request context is gone.
	ctx := context.WithoutCancel(r.Context())

	go client.writePump(h.opts.WriteTimeout)
	if err := h.lifecycle.Connect(ctx, client, userID); err != nil {
		h.logger.Error("Failed to register connection", "connID", client.ID(), "userID", userID, "error", err)
		client.closeWith(websocket.StatusInternalError, "registration failed")
		return
	}

	client.readPump(func(frame []byte) {
		h.handleFrame(ctx, client, frame)
	})
	h.lifecycle.Disconnect(ctx, client)
}

// handleFrame decodes a client frame and forwards chat messages to the bus.
func (h *Handler) handleFrame(ctx context.Context, client *Client, frame []byte) {
	var in events.Inbound
	if err := json.Unmarshal(frame, &in); err != nil {
		h.reply(client, events.Error(events.CodeBadFrame, "frame is not valid JSON"))
		return
	}

	switch in.Type {
	case events.TypeMessage:
		var data events.MessageData
		if err := json.Unmarshal(in.Data, &data); err != nil {
			h.reply(client, events.Error(events.CodeBadFrame, "message frame needs data.content"))
			return
		}
		err := pubsub.Publish(ctx, h.publisher, events.InboundMessages, client.UserID(),
			events.InboundMessage{Content: data.Content},
			map[string]string{events.MetaConnID: client.ID()},
		)
		if err != nil {
			h.logger.Error("Failed to publish inbound message", "connID", client.ID(), "userID", client.UserID(), "error", err)
			h.reply(client, events.Error(events.CodeInternal, "message could not be sent"))
		}
	default:
		h.reply(client, events.Error(events.CodeBadFrame, "unsupported frame type "+string(in.Type)))
	}
}

func (h *Handler) reply(client *Client, ev events.Event) {
	if err := h.broadcaster.SendTo(client.ID(), ev); err != nil {
		h.logger.Debug("Failed to reply to connection", "connID", client.ID(), "error", err)
	}
}

package chat

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nfrund/chatroom/internal/domain"
	"github.com/nfrund/chatroom/internal/events"
	"github.com/nfrund/chatroom/internal/pubsub"
)

// Subscriber feeds messages typed into sockets through the pipeline.
type Subscriber struct {
	subscriber  pubsub.Subscriber
	service     *Service
	broadcaster Broadcaster
}

// NewSubscriber creates the inbound message consumer.
func NewSubscriber(sub pubsub.Subscriber, service *Service, broadcaster Broadcaster) *Subscriber {
	return &Subscriber{subscriber: sub, service: service, broadcaster: broadcaster}
}

// Start subscribes to inbound messages until ctx is canceled.
func (s *Subscriber) Start(ctx context.Context) error {
	slog.Info("Starting chat subscriber", "topic", events.InboundMessages.Name())
	return pubsub.Subscribe(ctx, s.subscriber, events.InboundMessages, s.handleInbound)
}

// handleInbound never fails the bus message: errors go back to the sender.
func (s *Subscriber) handleInbound(ctx context.Context, msg pubsub.Message, payload events.InboundMessage) error {
	connID := msg.Metadata[events.MetaConnID]

	_, err := s.service.Submit(ctx, msg.UserID, payload.Content)
	if err == nil {
		return nil
	}

	var reply events.Event
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		reply = events.Error(events.CodeValidation, "content "+verr.Reason)
	default:
		slog.ErrorContext(ctx, "Failed to submit inbound message", "userID", msg.UserID, "connID", connID, "error", err)
		reply = events.Error(events.CodeInternal, "message could not be stored")
	}

	if connID == "" {
		return nil
	}
	if sendErr := s.broadcaster.SendTo(connID, reply); sendErr != nil {
		slog.DebugContext(ctx, "Failed to reply to sender", "connID", connID, "error", sendErr)
	}
	return nil
}

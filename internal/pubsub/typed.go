package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
)

// Topic[T] names a topic whose payloads are JSON-encoded T values.
type Topic[T any] struct {
	name string
}

// NewTopic declares a typed topic.
func NewTopic[T any](name string) Topic[T] {
	return Topic[T]{name: name}
}

// Name returns the topic name.
func (t Topic[T]) Name() string {
	return t.name
}

// Publish sends a typed payload. The compiler ensures payload matches T.
func Publish[T any](ctx context.Context, p Publisher, topic Topic[T], userID string, payload T, metadata map[string]string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", topic.name, err)
	}
	return p.Publish(ctx, Message{
		Topic:    topic.name,
		UserID:   userID,
		Payload:  data,
		Metadata: metadata,
	})
}

// Subscribe decodes each payload into T before calling handler. Payloads
// that do not decode are reported as handler errors.
func Subscribe[T any](ctx context.Context, s Subscriber, topic Topic[T], handler func(ctx context.Context, msg Message, payload T) error) error {
	return s.Subscribe(ctx, topic.name, func(ctx context.Context, msg Message) error {
		var payload T
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return fmt.Errorf("decode %s payload: %w", topic.name, err)
		}
		return handler(ctx, msg, payload)
	})
}

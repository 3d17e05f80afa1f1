// Package chat validates, persists and announces chat messages.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/nfrund/chatroom/internal/domain"
	"github.com/nfrund/chatroom/internal/events"
)

// MaxContentLength is the longest message accepted, in runes.
const MaxContentLength = 2000

// Broadcaster delivers events to live connections.
type Broadcaster interface {
	Broadcast(ev events.Event) int
	SendTo(connID string, ev events.Event) error
}

// Store is the persistence the pipeline needs.
type Store interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	domain.MessageRepository
}

type submission struct {
	Content string `validate:"required,notblank,max=2000"`
}

// Service is the message pipeline.
type Service struct {
	store       Store
	broadcaster Broadcaster
	validate    *validator.Validate
	now         func() time.Time
	logger      *slog.Logger
}

// NewService creates the pipeline.
func NewService(store Store, broadcaster Broadcaster) *Service {
	v := validator.New()
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	return &Service{
		store:       store,
		broadcaster: broadcaster,
		validate:    v,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      slog.Default().With("component", "chat"),
	}
}

// Submit stores a message from authorID and broadcasts it to every active
// connection. The returned message is the one that was broadcast; callers
// that also hold a socket see it twice and should deduplicate by ID.
func (s *Service) Submit(ctx context.Context, authorID, content string) (*domain.Message, error) {
	if err := s.validate.Struct(submission{Content: content}); err != nil {
		return nil, contentError(err)
	}

	author, err := s.store.GetUser(ctx, authorID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.ErrorContext(ctx, "Message author does not exist", "userID", authorID)
		}
		return nil, fmt.Errorf("resolve author: %w", err)
	}

	created, err := s.store.CreateMessage(ctx, &domain.Message{
		Content:   content,
		UserID:    author.ID,
		CreatedAt: s.now(),
		Reactions: []string{},
	})
	if err != nil {
		return nil, fmt.Errorf("store message: %w", err)
	}
	created.User = author

	delivered := s.broadcaster.Broadcast(events.Message(*created))
	s.logger.DebugContext(ctx, "Message submitted", "messageID", created.ID, "userID", author.ID, "delivered", delivered)
	return created, nil
}

// History returns every message, oldest first, with its author attached.
func (s *Service) History(ctx context.Context) ([]domain.Message, error) {
	messages, err := s.store.ListMessages(ctx)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	domain.AttachAuthors(messages, users)
	return messages, nil
}

func contentError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &domain.ValidationError{Field: "content", Reason: err.Error()}
	}
	switch verrs[0].Tag() {
	case "required", "notblank":
		return &domain.ValidationError{Field: "content", Reason: "is required"}
	case "max":
		return &domain.ValidationError{Field: "content", Reason: fmt.Sprintf("must be at most %d characters", MaxContentLength)}
	}
	return &domain.ValidationError{Field: "content", Reason: "is invalid"}
}

package domain

import (
	"context"
	"time"
)

// Message is a chat message. It is immutable once stored, apart from
// reactions which are appended by an external extension point.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	Reactions []string  `json:"reactions"`
	// User is the author, populated on reads and broadcasts.
	User *User `json:"user,omitempty"`
}

// MessageRepository persists chat messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg *Message) (*Message, error)
	// ListMessages returns all messages ordered by CreatedAt ascending.
	ListMessages(ctx context.Context) ([]Message, error)
}

// Store is the storage capability selected at startup. Every backend
// implements both repositories.
type Store interface {
	UserRepository
	MessageRepository
	Close(ctx context.Context) error
}

// AttachAuthors populates the User field of each message from users.
// Messages whose author is unknown are left without one.
func AttachAuthors(messages []Message, users []User) {
	byID := make(map[string]*User, len(users))
	for i := range users {
		byID[users[i].ID] = &users[i]
	}
	for i := range messages {
		if u, ok := byID[messages[i].UserID]; ok {
			author := *u
			messages[i].User = &author
		}
	}
}

package database

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nfrund/chatroom/internal/domain"
)

// NewUserID returns a short public user identifier.
func NewUserID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}

// MemoryStore keeps users and messages in process memory. Everything is lost
// on restart; it backs development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]*domain.User
	order    []string
	messages []domain.Message
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]*domain.User),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

var _ domain.Store = (*MemoryStore)(nil)

func (s *MemoryStore) CreateUser(_ context.Context, user *domain.User) (*domain.User, error) {
	if user == nil {
		return nil, &domain.ValidationError{Reason: "user is required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Username == user.Username {
			return nil, NewDBError(&domain.ConflictError{Field: "username"}, "username already taken")
		}
		if existing.Email == user.Email {
			return nil, NewDBError(&domain.ConflictError{Field: "email"}, "email already registered")
		}
	}

	created := *user
	created.ID = uuid.NewString()
	if created.UserID == "" {
		created.UserID = NewUserID()
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = s.now()
	}
	if created.Status == "" {
		created.Status = domain.StatusOffline
	}
	s.users[created.ID] = &created
	s.order = append(s.order, created.ID)

	out := created
	return &out, nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, NewDBError(domain.ErrNotFound, "user "+id)
	}
	out := *u
	return &out, nil
}

func (s *MemoryStore) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	return s.find(func(u *domain.User) bool { return u.Username == username }), nil
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	return s.find(func(u *domain.User) bool { return u.Email == email }), nil
}

func (s *MemoryStore) find(match func(*domain.User) bool) *domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.order {
		if u := s.users[id]; match(u) {
			out := *u
			return &out
		}
	}
	return nil
}

func (s *MemoryStore) ListUsers(_ context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.User, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.users[id])
	}
	return out, nil
}

func (s *MemoryStore) UpdateUser(_ context.Context, id string, update domain.UserUpdate) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, NewDBError(domain.ErrNotFound, "user "+id)
	}
	if update.Username != nil {
		for otherID, other := range s.users {
			if otherID != id && other.Username == *update.Username {
				return nil, NewDBError(&domain.ConflictError{Field: "username"}, "update user")
			}
		}
	}

	updated := *u
	update.Apply(&updated)
	s.users[id] = &updated

	out := updated
	return &out, nil
}

func (s *MemoryStore) CreateMessage(_ context.Context, msg *domain.Message) (*domain.Message, error) {
	if msg == nil {
		return nil, &domain.ValidationError{Field: "message", Reason: "is required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[msg.UserID]; !ok {
		return nil, NewDBError(domain.ErrNotFound, "author "+msg.UserID)
	}

	created := *msg
	created.ID = uuid.NewString()
	if created.CreatedAt.IsZero() {
		created.CreatedAt = s.now()
	}
	created.Reactions = append([]string{}, msg.Reactions...)
	created.User = nil
	s.messages = append(s.messages, created)

	out := created
	out.Reactions = append([]string{}, created.Reactions...)
	return &out, nil
}

func (s *MemoryStore) ListMessages(_ context.Context) ([]domain.Message, error) {
	s.mu.RLock()
	out := make([]domain.Message, len(s.messages))
	for i, m := range s.messages {
		m.Reactions = append([]string{}, m.Reactions...)
		out[i] = m
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) Close(context.Context) error { return nil }

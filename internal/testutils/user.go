package testutils

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/nfrund/chatroom/internal/domain"
	"github.com/stretchr/testify/require"
)

// TestPasswordHash is stored as the password of fixture users. It is not a
// valid bcrypt hash, so fixture users cannot sign in.
const TestPasswordHash = "hash"

// Suffix returns a short random string for names that must stay unique
// across runs against a shared database.
func Suffix() string {
	return uuid.NewString()[:8]
}

// NewUser builds an unsaved user called name with a matching email.
func NewUser(name string) *domain.User {
	return &domain.User{
		Username: name,
		Email:    name + "@example.com",
		Password: TestPasswordHash,
		Status:   domain.StatusOffline,
	}
}

// CreateUser stores NewUser(name) in users and fails the test on error.
func CreateUser(t *testing.T, users domain.UserRepository, name string) *domain.User {
	t.Helper()
	u, err := users.CreateUser(context.Background(), NewUser(name))
	require.NoError(t, err)
	return u
}

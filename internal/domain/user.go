package domain

import (
	"context"
	"time"
)

// Status is a user's persisted presence status.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusAway    Status = "away"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusOffline, StatusAway:
		return true
	}
	return false
}

// User represents the core user model in the application domain.
// ID is the storage identifier; UserID is the short public identifier
// handed out at registration and never changed afterwards.
type User struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	Password  string     `json:"-"`
	CreatedAt time.Time  `json:"createdAt"`
	Avatar    *string    `json:"avatar,omitempty"`
	Status    Status     `json:"status"`
	LastSeen  *time.Time `json:"lastSeen"`
}

// UserUpdate carries a partial update of a user record. Nil fields are left
// untouched. ClearLastSeen sets LastSeen to null, which a nil pointer cannot
// express.
type UserUpdate struct {
	Username      *string    `json:"username,omitempty" validate:"omitempty,min=1,max=50"`
	Avatar        *string    `json:"avatar,omitempty" validate:"omitempty,max=2048"`
	Status        *Status    `json:"status,omitempty" validate:"omitempty,oneof=online offline away"`
	LastSeen      *time.Time `json:"lastSeen,omitempty"`
	ClearLastSeen bool       `json:"-"`
}

// Apply copies the set fields of u onto user.
func (u UserUpdate) Apply(user *User) {
	if u.Username != nil {
		user.Username = *u.Username
	}
	if u.Avatar != nil {
		avatar := *u.Avatar
		user.Avatar = &avatar
	}
	if u.Status != nil {
		user.Status = *u.Status
	}
	if u.ClearLastSeen {
		user.LastSeen = nil
	} else if u.LastSeen != nil {
		seen := *u.LastSeen
		user.LastSeen = &seen
	}
}

// UserRepository defines the contract for user data storage operations.
// It lives in the domain because it's a requirement OF the domain, not
// of the database implementation.
type UserRepository interface {
	// CreateUser stores a new user. It returns ErrConflict when the username
	// or email is already taken.
	CreateUser(ctx context.Context, user *User) (*User, error)
	// GetUser returns ErrNotFound when no user has the given id.
	GetUser(ctx context.Context, id string) (*User, error)
	// GetUserByUsername and GetUserByEmail return (nil, nil) when absent.
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	// UpdateUser applies a partial update. A username already used by another
	// user yields ErrConflict.
	UpdateUser(ctx context.Context, id string, update UserUpdate) (*User, error)
}

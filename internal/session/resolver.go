package session

import (
	"context"
	"fmt"
	"net/http"

	"github.com/nfrund/chatroom/internal/domain"
)

// Lookup resolves a session credential to the authenticated principal. An
// empty principal with a nil error means the session exists but nobody is
// signed in.
type Lookup interface {
	Lookup(ctx context.Context, credential string) (principal string, err error)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(ctx context.Context, credential string) (string, error)

func (f LookupFunc) Lookup(ctx context.Context, credential string) (string, error) {
	return f(ctx, credential)
}

// Resolver maps a websocket handshake to the user that owns its session
// cookie. It never writes session state, so calling it twice is harmless.
type Resolver struct {
	cookieName string
	lookup     Lookup
}

// NewResolver creates a resolver reading the named cookie.
func NewResolver(cookieName string, lookup Lookup) *Resolver {
	return &Resolver{cookieName: cookieName, lookup: lookup}
}

// Resolve returns the authenticated user id for r. Every failure wraps
// domain.ErrUnauthorized.
func (r *Resolver) Resolve(req *http.Request) (string, error) {
	cookie, err := req.Cookie(r.cookieName)
	if err != nil || cookie.Value == "" {
		return "", fmt.Errorf("%w: no session cookie", domain.ErrUnauthorized)
	}

	principal, err := r.lookup.Lookup(req.Context(), cookie.Value)
	if err != nil {
		return "", fmt.Errorf("%w: session lookup: %w", domain.ErrUnauthorized, err)
	}
	if principal == "" {
		return "", fmt.Errorf("%w: session has no user", domain.ErrUnauthorized)
	}
	return principal, nil
}

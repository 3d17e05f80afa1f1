package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nfrund/chatroom/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLookup is an in-memory session store keyed by credential.
type fakeLookup struct {
	sessions map[string]string
	err      error
	calls    int
}

func (f *fakeLookup) Lookup(_ context.Context, credential string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.sessions[credential], nil
}

func handshake(cookie *http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return req
}

func TestResolver_Resolve(t *testing.T) {
	lookup := &fakeLookup{sessions: map[string]string{
		"good":      "user-1",
		"anonymous": "",
	}}
	resolver := NewResolver("chat.sid", lookup)

	t.Run("valid session", func(t *testing.T) {
		userID, err := resolver.Resolve(handshake(&http.Cookie{Name: "chat.sid", Value: "good"}))
		require.NoError(t, err)
		assert.Equal(t, "user-1", userID)
	})

	t.Run("is idempotent", func(t *testing.T) {
		req := handshake(&http.Cookie{Name: "chat.sid", Value: "good"})
		first, err := resolver.Resolve(req)
		require.NoError(t, err)
		second, err := resolver.Resolve(req)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	tests := []struct {
		name   string
		cookie *http.Cookie
	}{
		{"no cookie", nil},
		{"other cookie", &http.Cookie{Name: "theme", Value: "dark"}},
		{"empty cookie", &http.Cookie{Name: "chat.sid", Value: ""}},
		{"unknown credential", &http.Cookie{Name: "chat.sid", Value: "forged"}},
		{"session without user", &http.Cookie{Name: "chat.sid", Value: "anonymous"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			userID, err := resolver.Resolve(handshake(tt.cookie))
			assert.ErrorIs(t, err, domain.ErrUnauthorized)
			assert.Empty(t, userID)
		})
	}
}

func TestResolver_LookupError(t *testing.T) {
	storeDown := errors.New("store down")
	resolver := NewResolver("chat.sid", &fakeLookup{err: storeDown})

	_, err := resolver.Resolve(handshake(&http.Cookie{Name: "chat.sid", Value: "good"}))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.ErrorIs(t, err, storeDown)
}

func TestResolver_SkipsLookupWithoutCookie(t *testing.T) {
	lookup := &fakeLookup{}
	resolver := NewResolver("chat.sid", lookup)

	_, err := resolver.Resolve(handshake(nil))
	assert.Error(t, err)
	assert.Zero(t, lookup.calls)
}

func TestLookupFunc(t *testing.T) {
	var lookup Lookup = LookupFunc(func(_ context.Context, credential string) (string, error) {
		return "u-" + credential, nil
	})
	principal, err := lookup.Lookup(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "u-x", principal)
}

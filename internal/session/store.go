package session

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/sessions"
	echosession "github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
)

// UserIDKey is the session value holding the signed-in user's id.
const UserIDKey = "user_id"

// ErrNoSession is returned when the credential does not decode to a stored
// session.
var ErrNoSession = errors.New("session not found")

// Options returns the cookie options shared by every backend.
func Options(maxAge int) *sessions.Options {
	return &sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// NewCookieStore keeps the whole session in the signed cookie.
func NewCookieStore(secret string, maxAge int) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = Options(maxAge)
	store.MaxAge(maxAge)
	return store
}

// StoreLookup reads principals through a gorilla sessions.Store, so the
// websocket handshake sees exactly what the HTTP handlers wrote.
type StoreLookup struct {
	store sessions.Store
	name  string
}

// NewStoreLookup creates a lookup for sessions saved under name.
func NewStoreLookup(store sessions.Store, name string) *StoreLookup {
	return &StoreLookup{store: store, name: name}
}

func (l *StoreLookup) Lookup(ctx context.Context, credential string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "/", nil)
	if err != nil {
		return "", err
	}
	req.AddCookie(&http.Cookie{Name: l.name, Value: credential})

	sess, err := l.store.New(req, l.name)
	if err != nil {
		return "", err
	}
	if sess.IsNew {
		return "", ErrNoSession
	}
	userID, _ := sess.Values[UserIDKey].(string)
	return userID, nil
}

// SetUser stores userID in the request's session and writes the cookie.
func SetUser(c echo.Context, name, userID string) error {
	sess, err := echosession.Get(name, c)
	if err != nil && sess == nil {
		return err
	}
	sess.Values[UserIDKey] = userID
	return sess.Save(c.Request(), c.Response())
}

// UserID returns the user id stored in the request's session.
func UserID(c echo.Context, name string) (string, bool) {
	sess, err := echosession.Get(name, c)
	if err != nil || sess == nil {
		return "", false
	}
	userID, ok := sess.Values[UserIDKey].(string)
	return userID, ok && userID != ""
}

// Clear expires the session and its cookie.
func Clear(c echo.Context, name string) error {
	sess, err := echosession.Get(name, c)
	if err != nil && sess == nil {
		return err
	}
	delete(sess.Values, UserIDKey)
	sess.Options.MaxAge = -1
	return sess.Save(c.Request(), c.Response())
}

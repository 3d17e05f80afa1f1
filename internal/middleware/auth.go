package middleware

import (
	"errors"
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/chatroom/internal/domain"
	"github.com/nfrund/chatroom/internal/session"
)

const UserContextKey = "user"

// Auth protects API routes. It loads the user named by the session and
// stores it in the context; requests without one fail with
// domain.ErrUnauthorized, which the error handler turns into a 401.
func Auth(users domain.UserRepository, sessionName string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, ok := session.UserID(c, sessionName)
			if !ok {
				return fmt.Errorf("%w: not signed in", domain.ErrUnauthorized)
			}

			user, err := users.GetUser(c.Request().Context(), userID)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					// The session outlived its user record.
					FromContext(c.Request().Context()).Warn("Session names an unknown user", "userID", userID)
					return fmt.Errorf("%w: unknown user", domain.ErrUnauthorized)
				}
				return err
			}

			c.Set(UserContextKey, user)
			return next(c)
		}
	}
}

// CurrentUser returns the user stored by Auth.
func CurrentUser(c echo.Context) (*domain.User, bool) {
	user, ok := c.Get(UserContextKey).(*domain.User)
	return user, ok && user != nil
}

package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/chatroom/internal/domain"
	"github.com/nfrund/chatroom/internal/middleware"
	"github.com/nfrund/chatroom/internal/session"
	"golang.org/x/crypto/bcrypt"
)

// AuthHandler handles registration and sign-in.
type AuthHandler struct {
	users       domain.UserRepository
	sessionName string
	hashCost    int
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(users domain.UserRepository, sessionName string) *AuthHandler {
	return &AuthHandler{
		users:       users,
		sessionName: sessionName,
		hashCost:    bcrypt.DefaultCost,
	}
}

// Register creates an account and signs it in (POST /api/register).
func (h *AuthHandler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return &domain.ValidationError{Reason: "malformed request body"}
	}
	req.Username = normalizeUsername(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := c.Validate(&req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	if existing, err := h.users.GetUserByEmail(ctx, req.Email); err != nil {
		return err
	} else if existing != nil {
		return &domain.ConflictError{Field: "email"}
	}
	if existing, err := h.users.GetUserByUsername(ctx, req.Username); err != nil {
		return err
	} else if existing != nil {
		return &domain.ConflictError{Field: "username"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), h.hashCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	user, err := h.users.CreateUser(ctx, &domain.User{
		Username: req.Username,
		Email:    req.Email,
		Password: string(hash),
		Avatar:   req.Avatar,
		Status:   domain.StatusOffline,
	})
	if err != nil {
		return err
	}

	if err := session.SetUser(c, h.sessionName, user.ID); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	middleware.FromContext(ctx).Info("User registered", "userID", user.ID, "username", user.Username)
	return c.JSON(http.StatusCreated, user)
}

// Login signs a user in by username or email (POST /api/login).
func (h *AuthHandler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return &domain.ValidationError{Reason: "malformed request body"}
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	user, err := h.findByLogin(c, normalizeUsername(req.Username))
	if err != nil {
		return err
	}
	if user == nil {
		return domain.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return domain.ErrInvalidCredentials
		}
		return fmt.Errorf("compare password: %w", err)
	}

	if err := session.SetUser(c, h.sessionName, user.ID); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	middleware.FromContext(c.Request().Context()).Info("User logged in", "userID", user.ID)
	return c.JSON(http.StatusOK, user)
}

func (h *AuthHandler) findByLogin(c echo.Context, login string) (*domain.User, error) {
	ctx := c.Request().Context()
	user, err := h.users.GetUserByUsername(ctx, login)
	if err != nil || user != nil {
		return user, err
	}
	if strings.Contains(login, "@") {
		return h.users.GetUserByEmail(ctx, strings.ToLower(login))
	}
	return nil, nil
}

// Logout ends the session (POST /api/logout).
func (h *AuthHandler) Logout(c echo.Context) error {
	if err := session.Clear(c, h.sessionName); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Me returns the signed-in user (GET /api/user).
func (h *AuthHandler) Me(c echo.Context) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return domain.ErrUnauthorized
	}
	return c.JSON(http.StatusOK, user)
}

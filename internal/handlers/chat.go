package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/chatroom/internal/chat"
	"github.com/nfrund/chatroom/internal/domain"
	"github.com/nfrund/chatroom/internal/middleware"
)

// ChatHandler serves the REST side of the chatroom.
type ChatHandler struct {
	users domain.UserRepository
	chat  *chat.Service
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(users domain.UserRepository, chat *chat.Service) *ChatHandler {
	return &ChatHandler{users: users, chat: chat}
}

// ListUsers returns every registered user (GET /api/users).
func (h *ChatHandler) ListUsers(c echo.Context) error {
	users, err := h.users.ListUsers(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, users)
}

// ListMessages returns the history, oldest first (GET /api/messages).
func (h *ChatHandler) ListMessages(c echo.Context) error {
	messages, err := h.chat.History(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messages)
}

// PostMessage submits a message as the signed-in user (POST /api/messages).
// The caller gets the stored message here and again over its socket.
func (h *ChatHandler) PostMessage(c echo.Context) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	var req MessageRequest
	if err := c.Bind(&req); err != nil {
		return &domain.ValidationError{Reason: "malformed request body"}
	}

	msg, err := h.chat.Submit(c.Request().Context(), user.ID, req.Content)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, msg)
}

// UpdateUser applies a profile update (PATCH /api/user).
func (h *ChatHandler) UpdateUser(c echo.Context) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	var req UpdateUserRequest
	if err := c.Bind(&req); err != nil {
		return &domain.ValidationError{Reason: "malformed request body"}
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	updated, err := h.users.UpdateUser(c.Request().Context(), user.ID, req.toUpdate())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, updated)
}

// Health reports liveness (GET /health).
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

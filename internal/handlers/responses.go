package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/chatroom/internal/domain"
	"github.com/nfrund/chatroom/internal/middleware"
)

// ErrorResponse is the standard format for API error responses.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// httpError maps an error onto a status and response body. Domain sentinels
// decide the status; anything unrecognised is a 500 with a generic message.
func httpError(err error) (int, ErrorResponse) {
	var verr *domain.ValidationError
	var herr *echo.HTTPError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, ErrorResponse{Code: "validation", Message: verr.Error()}
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, ErrorResponse{Code: "validation", Message: err.Error()}
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, ErrorResponse{Code: "unauthorized", Message: "authentication required"}
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, ErrorResponse{Code: "invalid_credentials", Message: "invalid username or password"}
	case errors.Is(err, domain.ErrConflict):
		return http.StatusBadRequest, ErrorResponse{Code: "conflict", Message: conflictMessage(err)}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Code: "not_found", Message: "resource not found"}
	case errors.Is(err, domain.ErrTransientStore):
		return http.StatusServiceUnavailable, ErrorResponse{Code: "unavailable", Message: "storage is temporarily unavailable"}
	case errors.As(err, &herr):
		msg, ok := herr.Message.(string)
		if !ok {
			msg = http.StatusText(herr.Code)
		}
		return herr.Code, ErrorResponse{Code: codeForStatus(herr.Code), Message: msg}
	}
	return http.StatusInternalServerError, ErrorResponse{Code: "internal", Message: "internal server error"}
}

// conflictMessage names the clashing field when it is known.
func conflictMessage(err error) string {
	var cerr *domain.ConflictError
	if errors.As(err, &cerr) {
		return cerr.Error()
	}
	return domain.ErrConflict.Error()
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusRequestEntityTooLarge:
		return "too_large"
	}
	if status >= 500 {
		return "internal"
	}
	return "error"
}

// ErrorHandler is the Echo HTTPErrorHandler writing ErrorResponse bodies.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, body := httpError(err)
	logger := middleware.FromContext(c.Request().Context())
	if status >= 500 {
		logger.Error("Request failed", "status", status, "error", err)
	} else {
		logger.Debug("Request rejected", "status", status, "error", err)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		logger.Error("Failed to write error response", "error", err)
	}
}

package handlers

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/nfrund/chatroom/internal/domain"
	"golang.org/x/text/unicode/norm"
)

// CustomValidator wraps the go-playground/validator library to implement Echo's Validator interface.
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates a new CustomValidator.
func NewValidator() *CustomValidator {
	v := validator.New()
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	return &CustomValidator{validator: v}
}

// Validate implements the echo.Validator interface. Failures come back as
// *domain.ValidationError for the first offending field.
func (cv *CustomValidator) Validate(i any) error {
	err := cv.validator.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &domain.ValidationError{Reason: err.Error()}
	}
	fe := verrs[0]
	return &domain.ValidationError{Field: jsonName(fe.Field()), Reason: reason(fe)}
}

func jsonName(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return "must be one of " + fe.Param()
	}
	return "is invalid"
}

// RegisterRequest is the body of POST /api/register.
type RegisterRequest struct {
	Username string  `json:"username" validate:"required,notblank,max=50"`
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,min=6,max=72"`
	Avatar   *string `json:"avatar" validate:"omitempty,max=2048"`
}

// LoginRequest is the body of POST /api/login. Username may also be an email.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// MessageRequest is the body of POST /api/messages. Content rules are
// enforced by the chat pipeline.
type MessageRequest struct {
	Content string `json:"content"`
}

// UpdateUserRequest is the body of PATCH /api/user.
type UpdateUserRequest struct {
	Username *string    `json:"username" validate:"omitempty,notblank,max=50"`
	Avatar   *string    `json:"avatar" validate:"omitempty,max=2048"`
	Status   *string    `json:"status" validate:"omitempty,oneof=online offline away"`
	LastSeen *time.Time `json:"lastSeen"`
}

func (r UpdateUserRequest) toUpdate() domain.UserUpdate {
	update := domain.UserUpdate{
		Avatar:   r.Avatar,
		LastSeen: r.LastSeen,
	}
	if r.Username != nil {
		name := normalizeUsername(*r.Username)
		update.Username = &name
	}
	if r.Status != nil {
		status := domain.Status(*r.Status)
		update.Status = &status
	}
	return update
}

// normalizeUsername trims s and puts it in Unicode NFC, so names that render
// identically compare equal in the uniqueness checks.
func normalizeUsername(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

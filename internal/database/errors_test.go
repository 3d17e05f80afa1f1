package database

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/nfrund/chatroom/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestDBError_MatchesDomainSentinels(t *testing.T) {
	err := NewDBError(conflict(errors.New("duplicate key")), "create user").WithQuery("INSERT ...")
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "create user")
	assert.Contains(t, err.Error(), "INSERT ...")

	wrapped := WrapError(err, "register")
	assert.ErrorIs(t, wrapped, domain.ErrConflict)
	assert.Contains(t, wrapped.Error(), "register: create user")
}

func TestDBError_WithParamsRedactsPasswords(t *testing.T) {
	err := NewDBError(errors.New("boom"), "query").WithParams(map[string]any{
		"email":    "a@example.com",
		"password": "hunter2",
	})
	assert.NotContains(t, err.Error(), "hunter2")
	assert.Contains(t, err.Error(), "a@example.com")
}

func TestErrNotConnectedIsTransient(t *testing.T) {
	assert.ErrorIs(t, NewDBError(ErrNotConnected, "surrealdb"), domain.ErrTransientStore)
}

func TestClassifyPostgres(t *testing.T) {
	assert.ErrorIs(t, classifyPostgres(&pgconn.PgError{Code: pgUniqueViolation}), domain.ErrConflict)
	assert.ErrorIs(t, classifyPostgres(&pgconn.PgError{Code: pgForeignKeyViolation}), domain.ErrNotFound)

	var cerr *domain.ConflictError
	named := classifyPostgres(&pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "users_email_key"})
	assert.ErrorIs(t, named, domain.ErrConflict)
	if assert.ErrorAs(t, named, &cerr) {
		assert.Equal(t, "email", cerr.Field)
	}
	assert.ErrorIs(t, classifyPostgres(context.DeadlineExceeded), domain.ErrTransientStore)

	other := &pgconn.PgError{Code: "42601"}
	assert.Equal(t, error(other), classifyPostgres(other))
	assert.Nil(t, classifyPostgres(nil))
}

func TestClassifySurreal(t *testing.T) {
	dup := errors.New("Database index `user_email` already contains 'a@example.com'")
	assert.ErrorIs(t, classifySurreal(dup), domain.ErrConflict)
	assert.ErrorIs(t, classifySurreal(errors.New("dial tcp: connection refused")), domain.ErrTransientStore)
	assert.Nil(t, classifySurreal(nil))
}

func TestIsConnectionError(t *testing.T) {
	assert.True(t, isConnectionError(context.Canceled))
	assert.True(t, isConnectionError(errors.New("write: broken pipe")))
	assert.False(t, isConnectionError(errors.New("syntax error")))
	assert.False(t, isConnectionError(nil))
}

func TestRedactDBURL(t *testing.T) {
	assert.Equal(t, "ws://root:xxxxx@localhost:8000/rpc", redactDBURL("ws://root:secret@localhost:8000/rpc"))
}

func TestRetryer_StopsOnSuccess(t *testing.T) {
	r := &ExponentialBackoffRetryer{maxRetries: 3, baseDelay: 1, maxDelay: 1, multiplier: 1}
	calls := 0
	err := r.Retry(context.Background(), func() error {
		calls++
		if calls < 2 {
			return errors.New("not yet")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryer_GivesUp(t *testing.T) {
	r := &ExponentialBackoffRetryer{maxRetries: 2, baseDelay: 1, maxDelay: 1, multiplier: 1}
	calls := 0
	sentinel := errors.New("down")
	err := r.Retry(context.Background(), func() error {
		calls++
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 3, calls)
}

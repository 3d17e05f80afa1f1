package server_test

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/nfrund/chatroom/internal/handlers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp := env.request(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "OK", string(body))
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}

func TestAPIRequiresSession(t *testing.T) {
	env := newTestEnv(t)
	resp := env.request(t, http.MethodGet, "/api/users", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body handlers.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "unauthorized", body.Code)
}

func TestSessionFlow(t *testing.T) {
	env := newTestEnv(t)
	alice, cookie := env.register(t, "alice")

	resp := env.request(t, http.MethodGet, "/api/user", "", cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&me))
	assert.Equal(t, alice.ID, me.ID)

	resp = env.request(t, http.MethodPost, "/api/login", `{"username":"alice","password":"wrong"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.request(t, http.MethodPost, "/api/login", `{"username":"alice@example.com","password":"secret123"}`, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLoginIsRateLimited(t *testing.T) {
	env := newTestEnv(t)
	status := 0
	for i := 0; i < 11; i++ {
		resp := env.request(t, http.MethodPost, "/api/login", `{"username":"nobody","password":"secret123"}`, nil)
		status = resp.StatusCode
	}
	assert.Equal(t, http.StatusTooManyRequests, status)
}

package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/nfrund/chatroom/internal/app"
	"github.com/nfrund/chatroom/internal/config"
	"github.com/nfrund/chatroom/internal/domain"
	"github.com/nfrund/chatroom/internal/events"
	"github.com/nfrund/chatroom/internal/server"
	"github.com/stretchr/testify/require"
)

const sessionName = "chat.sid"

func testConfig() *config.Config {
	return &config.Config{
		AppAddr:            "127.0.0.1:0",
		AppBaseURL:         "http://localhost:8080",
		SessionSecret:      "a-very-secret-key-for-testing-!",
		SessionName:        sessionName,
		SessionMaxAge:      3600,
		SessionBackend:     config.SessionCookie,
		StorageBackend:     config.StorageMemory,
		DBQueryTimeout:     time.Second,
		DBExecuteTimeout:   time.Second,
		WSSendBuffer:       64,
		WSWriteTimeout:     time.Second,
		TracingServiceName: "chatroom-test",
	}
}

type testEnv struct {
	srv *server.Server
	ts  *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	a, err := app.New(ctx, testConfig())
	require.NoError(t, err)
	require.NoError(t, a.Start(ctx))

	srv := server.New(a)
	ts := httptest.NewServer(srv.E)
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_ = a.Shutdown(shutdownCtx)
		ts.Close()
	})
	return &testEnv{srv: srv, ts: ts}
}

func (env *testEnv) request(t *testing.T, method, path, body string, cookie *http.Cookie) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, env.ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// register creates an account and returns it with its session cookie.
func (env *testEnv) register(t *testing.T, name string) (*domain.User, *http.Cookie) {
	t.Helper()
	resp := env.request(t, http.MethodPost, "/api/register",
		`{"username":"`+name+`","email":"`+name+`@example.com","password":"secret123"}`, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var user domain.User
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&user))
	for _, c := range resp.Cookies() {
		if c.Name == sessionName {
			return &user, c
		}
	}
	t.Fatal("register set no session cookie")
	return nil, nil
}

func (env *testEnv) dial(t *testing.T, cookie *http.Cookie) *gws.Conn {
	t.Helper()
	header := http.Header{}
	if cookie != nil {
		header.Set("Cookie", cookie.Name+"="+cookie.Value)
	}
	url := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/ws"
	conn, _, err := gws.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type frame struct {
	Type events.Type     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// expectFrame reads until a frame of type typ arrives.
func expectFrame(t *testing.T, conn *gws.Conn, typ events.Type) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var f frame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type == typ {
			return f
		}
	}
}

func onlineNames(t *testing.T, f frame) []string {
	t.Helper()
	var users []domain.User
	require.NoError(t, json.Unmarshal(f.Data, &users))
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.Username)
	}
	return names
}

func messageOf(t *testing.T, f frame) domain.Message {
	t.Helper()
	var m domain.Message
	require.NoError(t, json.Unmarshal(f.Data, &m))
	return m
}

func closeNormally(t *testing.T, conn *gws.Conn) {
	t.Helper()
	_ = conn.WriteMessage(gws.CloseMessage, gws.FormatCloseMessage(gws.CloseNormalClosure, ""))
	_ = conn.Close()
}

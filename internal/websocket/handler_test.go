package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/nfrund/chatroom/internal/domain"
	"github.com/nfrund/chatroom/internal/events"
	"github.com/nfrund/chatroom/internal/pubsub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// headerResolver authenticates the user named in X-User.
type headerResolver struct{}

func (headerResolver) Resolve(r *http.Request) (string, error) {
	if id := r.Header.Get("X-User"); id != "" {
		return id, nil
	}
	return "", domain.ErrUnauthorized
}

type handlerFixture struct {
	*fixture
	bus    *pubsub.WatermillBridge
	server *httptest.Server
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	f := newFixture()
	bus := pubsub.NewWatermillBridge()
	h := NewHandler(headerResolver{}, f.lifecycle, f.broadcaster, bus, HandlerOptions{SendBuffer: 16, WriteTimeout: time.Second})
	server := httptest.NewServer(h)
	t.Cleanup(func() {
		server.Close()
		_ = bus.Close()
	})
	return &handlerFixture{fixture: f, bus: bus, server: server}
}

func (hf *handlerFixture) dial(t *testing.T, userID string) (*gws.Conn, *http.Response, error) {
	t.Helper()
	header := http.Header{}
	if userID != "" {
		header.Set("X-User", userID)
	}
	url := "ws" + strings.TrimPrefix(hf.server.URL, "http")
	return gws.DefaultDialer.Dial(url, header)
}

func readFrame(t *testing.T, conn *gws.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestHandler_RejectsUnauthenticated(t *testing.T) {
	hf := newHandlerFixture(t)

	conn, _, err := hf.dial(t, "")
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	var closeErr *gws.CloseError
	require.True(t, errors.As(err, &closeErr), "expected close error, got %v", err)
	assert.Equal(t, int(StatusUnauthorized), closeErr.Code)
	assert.Equal(t, 0, hf.registry.Len())
}

func TestHandler_ConnectAndDisconnect(t *testing.T) {
	hf := newHandlerFixture(t)
	alice := hf.createUser(t, "alice")

	conn, _, err := hf.dial(t, alice.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{alice.ID}, onlineIDs(t, readFrame(t, conn)))
	assert.Equal(t, domain.StatusOnline, hf.user(t, alice.ID).Status)

	require.NoError(t, conn.WriteMessage(gws.CloseMessage, gws.FormatCloseMessage(gws.CloseNormalClosure, "")))
	conn.Close()

	assert.Eventually(t, func() bool {
		return hf.user(t, alice.ID).Status == domain.StatusOffline
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, hf.registry.Len())
}

func TestHandler_PublishesMessageFrames(t *testing.T) {
	hf := newHandlerFixture(t)
	alice := hf.createUser(t, "alice")

	type received struct {
		userID  string
		connID  string
		content string
	}
	got := make(chan received, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, pubsub.Subscribe(ctx, hf.bus, events.InboundMessages,
		func(_ context.Context, msg pubsub.Message, payload events.InboundMessage) error {
			got <- received{userID: msg.UserID, connID: msg.Metadata[events.MetaConnID], content: payload.Content}
			return nil
		}))

	conn, _, err := hf.dial(t, alice.ID)
	require.NoError(t, err)
	defer conn.Close()
	readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "message",
		"data": map[string]string{"content": "hello", "userId": "someone-else"},
	}))

	select {
	case r := <-got:
		assert.Equal(t, alice.ID, r.userID)
		assert.Equal(t, "hello", r.content)
		_, ok := hf.registry.Lookup(r.connID)
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("inbound message was not published")
	}
}

func TestHandler_RepliesToBadFrames(t *testing.T) {
	hf := newHandlerFixture(t)
	alice := hf.createUser(t, "alice")

	conn, _, err := hf.dial(t, alice.ID)
	require.NoError(t, err)
	defer conn.Close()
	readFrame(t, conn)

	for _, raw := range []string{`not json`, `{"type":"message"}`, `{"type":"typing","data":{}}`} {
		require.NoError(t, conn.WriteMessage(gws.TextMessage, []byte(raw)))
		f := readFrame(t, conn)
		assert.Equal(t, events.TypeError, f.Type, raw)
		assert.Contains(t, string(f.Data), events.CodeBadFrame, raw)
	}
}

func TestHandler_ShutdownClosesGoingAway(t *testing.T) {
	hf := newHandlerFixture(t)
	alice := hf.createUser(t, "alice")

	conn, _, err := hf.dial(t, alice.ID)
	require.NoError(t, err)
	defer conn.Close()
	readFrame(t, conn)

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		done <- hf.lifecycle.Shutdown(ctx)
	}()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, gws.IsCloseError(err, gws.CloseGoingAway), "got %v", err)

	require.NoError(t, <-done)
	assert.Equal(t, domain.StatusOffline, hf.user(t, alice.ID).Status)
}

package app

import (
	"context"
	"testing"
	"time"

	"github.com/nfrund/chatroom/internal/config"
	"github.com/nfrund/chatroom/internal/domain"
	"github.com/nfrund/chatroom/internal/events"
	"github.com/nfrund/chatroom/internal/pubsub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() *config.Config {
	return &config.Config{
		AppBaseURL:     "http://chat.example.com:8080",
		SessionSecret:  "test-secret",
		SessionName:    "chat.sid",
		SessionMaxAge:  3600,
		SessionBackend: config.SessionCookie,
		StorageBackend: config.StorageMemory,
		WSSendBuffer:   8,
		WSWriteTimeout: time.Second,
	}
}

func TestNew_WiresServices(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, memoryConfig())
	require.NoError(t, err)

	assert.NotNil(t, a.Store)
	assert.NotNil(t, a.Sessions)
	assert.NotNil(t, a.Registry)
	assert.NotNil(t, a.Broadcaster)
	assert.NotNil(t, a.Lifecycle)
	assert.NotNil(t, a.Bus)
	assert.NotNil(t, a.Chat)
	assert.NotNil(t, a.Socket)

	require.NoError(t, a.Start(ctx))
	require.NoError(t, a.Shutdown(ctx))
}

func TestNew_UnknownStorageBackend(t *testing.T) {
	cfg := memoryConfig()
	cfg.StorageBackend = "cassandra"

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open store")
}

func TestStart_RoutesInboundMessagesToChat(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, memoryConfig())
	require.NoError(t, err)
	require.NoError(t, a.Start(ctx))
	t.Cleanup(func() { _ = a.Shutdown(ctx) })

	user, err := a.Store.CreateUser(ctx, &domain.User{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "hash",
		Status:   domain.StatusOffline,
	})
	require.NoError(t, err)

	err = pubsub.Publish(ctx, a.Bus, events.InboundMessages, user.ID,
		events.InboundMessage{Content: "hello"}, map[string]string{events.MetaConnID: "conn-1"})
	require.NoError(t, err)

	messages, err := a.Store.ListMessages(ctx)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "hello", messages[0].Content)
	assert.Equal(t, user.ID, messages[0].UserID)
}

func TestShutdown_ClosesBackendsInReverseOrder(t *testing.T) {
	a := &App{}
	var order []string
	a.onClose("first", func(context.Context) error { order = append(order, "first"); return nil })
	a.onClose("second", func(context.Context) error { order = append(order, "second"); return nil })

	require.NoError(t, a.close(context.Background()))
	assert.Equal(t, []string{"second", "first"}, order)
	assert.Empty(t, a.closers)
}

func TestOriginPatterns(t *testing.T) {
	assert.Equal(t, []string{"chat.example.com:8080"}, originPatterns("http://chat.example.com:8080"))
	assert.Nil(t, originPatterns(""))
	assert.Nil(t, originPatterns("::not a url"))
}

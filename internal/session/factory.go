package session

import (
	"context"
	"fmt"

	"github.com/gorilla/sessions"
	"github.com/nfrund/chatroom/internal/config"
	"github.com/redis/go-redis/v9"
)

// NewStore builds the session store selected by SESSION_BACKEND. The returned
// close function releases backend connections.
func NewStore(ctx context.Context, cfg config.Provider) (sessions.Store, func() error, error) {
	switch cfg.GetSessionBackend() {
	case config.SessionRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.GetRedisAddr(),
			Password: cfg.GetRedisPassword(),
			DB:       cfg.GetRedisDB(),
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.GetRedisAddr(), err)
		}
		return NewRedisStore(client, cfg.GetSessionMaxAge(), []byte(cfg.GetSessionSecret())), client.Close, nil
	default:
		return NewCookieStore(cfg.GetSessionSecret(), cfg.GetSessionMaxAge()), func() error { return nil }, nil
	}
}

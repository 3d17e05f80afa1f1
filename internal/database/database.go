package database

import (
	"context"
	"fmt"

	"github.com/nfrund/chatroom/internal/config"
	"github.com/nfrund/chatroom/internal/domain"
)

// Open returns the store selected by STORAGE_BACKEND. Core code only sees
// domain.Store.
func Open(ctx context.Context, cfg config.Provider) (domain.Store, error) {
	switch cfg.GetStorageBackend() {
	case config.StorageMemory, "":
		return NewMemoryStore(), nil
	case config.StorageSurreal:
		s, err := NewSurrealStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StoragePostgres:
		s, err := NewPostgresStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.GetStorageBackend())
	}
}

package websocket

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/nfrund/chatroom/internal/domain"
	"github.com/nfrund/chatroom/internal/events"
	"github.com/nfrund/chatroom/internal/presence"
)

// Lifecycle owns every registry mutation. Connects and disconnects of the
// same user run one at a time, so the persisted status always agrees with
// the registry once a transition finishes.
type Lifecycle struct {
	registry    *presence.Registry[*Client]
	users       domain.UserRepository
	broadcaster *Broadcaster
	locks       *keyedMutex
	// broadcastMu orders users events across users: each one is computed
	// and queued before the next starts, so the last queued list is the
	// most recent registry read.
	broadcastMu sync.Mutex
	now         func() time.Time
	logger      *slog.Logger
}

// NewLifecycle creates the connection lifecycle manager.
func NewLifecycle(registry *presence.Registry[*Client], users domain.UserRepository, broadcaster *Broadcaster) *Lifecycle {
	return &Lifecycle{
		registry:    registry,
		users:       users,
		broadcaster: broadcaster,
		locks:       newKeyedMutex(),
		now:         func() time.Time { return time.Now().UTC() },
		logger:      slog.Default().With("component", "lifecycle"),
	}
}

// Connect registers an authenticated client, marks its user online and
// announces the new online list. Store failures are logged; the connection
// stays up.
func (l *Lifecycle) Connect(ctx context.Context, client *Client, userID string) error {
	if !client.authenticate(userID) && client.UserID() != userID {
		return ErrClientClosed
	}

	unlock := l.locks.Lock(userID)
	defer unlock()

	if err := l.registry.Register(client, userID); err != nil {
		return err
	}
	if !client.activate() {
		// Closed while waiting for the lock.
		l.registry.Unregister(client)
		return ErrClientClosed
	}

	online := domain.StatusOnline
	if _, err := l.users.UpdateUser(ctx, userID, domain.UserUpdate{Status: &online, ClearLastSeen: true}); err != nil {
		l.logStoreError(ctx, "Failed to mark user online", userID, err)
	}

	l.logger.InfoContext(ctx, "Client connected", "connID", client.ID(), "userID", userID, "connections", l.registry.ConnectionCount(userID))
	l.broadcastUsers(ctx)
	return nil
}

// Disconnect removes client. The user goes offline only when this was their
// last live connection. Unknown or repeated disconnects do nothing.
func (l *Lifecycle) Disconnect(ctx context.Context, client *Client) {
	userID, ok := l.registry.UserOf(client)
	if !ok {
		client.Close()
		return
	}

	unlock := l.locks.Lock(userID)
	defer unlock()

	if _, ok := l.registry.Unregister(client); !ok {
		return
	}
	client.Close()

	remaining := l.registry.ConnectionCount(userID)
	l.logger.InfoContext(ctx, "Client disconnected", "connID", client.ID(), "userID", userID, "connections", remaining)
	if remaining > 0 {
		return
	}

	offline := domain.StatusOffline
	seen := l.now()
	if _, err := l.users.UpdateUser(ctx, userID, domain.UserUpdate{Status: &offline, LastSeen: &seen}); err != nil {
		l.logStoreError(ctx, "Failed to mark user offline", userID, err)
	}
	l.broadcastUsers(ctx)
}

// OnlineUsers returns the users with a live connection, read from the
// registry now. If the store cannot be read, entries carry only the id.
func (l *Lifecycle) OnlineUsers(ctx context.Context) []domain.User {
	ids := l.registry.OnlineUserIDs()
	online := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		online[id] = struct{}{}
	}

	all, err := l.users.ListUsers(ctx)
	if err != nil {
		l.logStoreError(ctx, "Failed to list users for presence", "", err)
		out := make([]domain.User, 0, len(ids))
		for _, id := range ids {
			out = append(out, domain.User{ID: id, Status: domain.StatusOnline})
		}
		return out
	}

	out := make([]domain.User, 0, len(ids))
	for _, u := range all {
		if _, ok := online[u.ID]; !ok {
			continue
		}
		u.Status = domain.StatusOnline
		u.LastSeen = nil
		out = append(out, u)
	}
	return out
}

func (l *Lifecycle) broadcastUsers(ctx context.Context) {
	l.broadcastMu.Lock()
	defer l.broadcastMu.Unlock()
	l.broadcaster.Broadcast(events.Users(l.OnlineUsers(ctx)))
}

// Shutdown closes every live connection with StatusGoingAway and waits for
// their disconnects, including the offline writes, to finish or ctx to expire.
func (l *Lifecycle) Shutdown(ctx context.Context) error {
	clients := l.registry.Connections()
	l.logger.InfoContext(ctx, "Closing live connections", "count", len(clients))

	var wg sync.WaitGroup
	for _, client := range clients {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			c.closeWith(websocket.StatusGoingAway, "server shutting down")
		}(client)
	}
	wg.Wait()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for l.registry.Len() > 0 || l.locks.size() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func (l *Lifecycle) logStoreError(ctx context.Context, msg, userID string, err error) {
	level := slog.LevelError
	if errors.Is(err, domain.ErrTransientStore) {
		level = slog.LevelWarn
	}
	l.logger.Log(ctx, level, msg, "userID", userID, "error", err)
}

// keyedMutex hands out one mutex per key and forgets it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock blocks until key is free and returns the matching unlock.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

package presence

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConn struct{ id string }

func (c *testConn) ID() string { return c.id }

func newConn(id string) *testConn { return &testConn{id: id} }

func TestRegistry_RegisterAndUnregister(t *testing.T) {
	reg := NewRegistry[*testConn]()
	c1 := newConn("c1")

	require.NoError(t, reg.Register(c1, "alice"))
	assert.Equal(t, []string{"alice"}, reg.OnlineUserIDs())
	assert.Equal(t, 1, reg.Len())

	found, ok := reg.Lookup("c1")
	require.True(t, ok)
	assert.Same(t, c1, found)

	userID, ok := reg.Unregister(c1)
	assert.True(t, ok)
	assert.Equal(t, "alice", userID)
	assert.Empty(t, reg.OnlineUserIDs())

	_, ok = reg.Lookup("c1")
	assert.False(t, ok)
}

func TestRegistry_DoubleRegisterFails(t *testing.T) {
	reg := NewRegistry[*testConn]()
	c1 := newConn("c1")

	require.NoError(t, reg.Register(c1, "alice"))
	assert.ErrorIs(t, reg.Register(c1, "alice"), ErrAlreadyRegistered)
	assert.Equal(t, 1, reg.ConnectionCount("alice"))
}

func TestRegistry_UnregisterUnknownIsNoop(t *testing.T) {
	reg := NewRegistry[*testConn]()
	c1 := newConn("c1")
	require.NoError(t, reg.Register(c1, "alice"))

	userID, ok := reg.Unregister(newConn("stranger"))
	assert.False(t, ok)
	assert.Empty(t, userID)

	// Double close of the same connection.
	_, ok = reg.Unregister(c1)
	assert.True(t, ok)
	assert.NotPanics(t, func() {
		_, ok = reg.Unregister(c1)
	})
	assert.False(t, ok)
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_MultipleConnectionsPerUser(t *testing.T) {
	reg := NewRegistry[*testConn]()
	tab1, tab2 := newConn("tab1"), newConn("tab2")

	require.NoError(t, reg.Register(tab1, "alice"))
	require.NoError(t, reg.Register(tab2, "alice"))
	assert.Equal(t, []string{"alice"}, reg.OnlineUserIDs())
	assert.Equal(t, 2, reg.ConnectionCount("alice"))

	reg.Unregister(tab1)
	assert.True(t, reg.IsOnline("alice"), "closing one tab keeps the user online")

	reg.Unregister(tab2)
	assert.False(t, reg.IsOnline("alice"))
	assert.Empty(t, reg.OnlineUserIDs())
}

// For any sequence of register/unregister calls, the online set equals the
// users with a positive count of registered connections.
func TestRegistry_OnlineSetMatchesModel(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	users := []string{"alice", "bob", "carol", "dave"}

	for round := 0; round < 50; round++ {
		reg := NewRegistry[*testConn]()
		pool := make([]*testConn, 12)
		for i := range pool {
			pool[i] = newConn(fmt.Sprintf("r%d-c%d", round, i))
		}
		owner := map[*testConn]string{}

		for step := 0; step < 200; step++ {
			conn := pool[rng.Intn(len(pool))]
			if rng.Intn(2) == 0 {
				user := users[rng.Intn(len(users))]
				err := reg.Register(conn, user)
				if _, exists := owner[conn]; exists {
					assert.ErrorIs(t, err, ErrAlreadyRegistered)
				} else {
					require.NoError(t, err)
					owner[conn] = user
				}
			} else {
				userID, ok := reg.Unregister(conn)
				expected, exists := owner[conn]
				assert.Equal(t, exists, ok)
				assert.Equal(t, expected, userID)
				delete(owner, conn)
			}

			counts := map[string]int{}
			for _, u := range owner {
				counts[u]++
			}
			want := make([]string, 0, len(counts))
			for u, n := range counts {
				if n > 0 {
					want = append(want, u)
				}
				assert.Equal(t, n, reg.ConnectionCount(u))
			}
			sort.Strings(want)
			assert.Equal(t, want, reg.OnlineUserIDs())
			assert.Equal(t, len(owner), reg.Len())
		}
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg := NewRegistry[*testConn]()

	const numGoroutines = 8
	const numOperations = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			userID := fmt.Sprintf("user_%d", id%3)
			for j := 0; j < numOperations; j++ {
				conn := newConn(fmt.Sprintf("client_%d_%d", id, j))
				assert.NoError(t, reg.Register(conn, userID))
				_ = reg.OnlineUserIDs()
				_ = reg.Connections()
				_, ok := reg.Unregister(conn)
				assert.True(t, ok)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, reg.Len())
	assert.Empty(t, reg.OnlineUserIDs())
}

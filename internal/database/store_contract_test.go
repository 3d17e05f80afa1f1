package database

import (
	"context"
	"testing"
	"time"

	"github.com/nfrund/chatroom/internal/domain"
	"github.com/nfrund/chatroom/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreContract exercises the behaviour every domain.Store backend must share.
func runStoreContract(t *testing.T, store domain.Store) {
	t.Helper()
	ctx := context.Background()
	suffix := testutils.Suffix()

	newUser := func(name string) *domain.User {
		return testutils.NewUser(name + "_" + suffix)
	}

	alice, err := store.CreateUser(ctx, newUser("alice"))
	require.NoError(t, err)
	bob, err := store.CreateUser(ctx, newUser("bob"))
	require.NoError(t, err)

	t.Run("create assigns identifiers and defaults", func(t *testing.T) {
		assert.NotEmpty(t, alice.ID)
		assert.Len(t, alice.UserID, 10)
		assert.Equal(t, domain.StatusOffline, alice.Status)
		assert.Nil(t, alice.LastSeen)
		assert.False(t, alice.CreatedAt.IsZero())
		assert.NotEqual(t, alice.ID, bob.ID)
	})

	t.Run("duplicate username or email is a conflict", func(t *testing.T) {
		dup := newUser("alice")
		dup.Email = "other_" + suffix + "@example.com"
		_, err := store.CreateUser(ctx, dup)
		assert.ErrorIs(t, err, domain.ErrConflict)

		dup = newUser("alice")
		dup.Username = "other_" + suffix
		_, err = store.CreateUser(ctx, dup)
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("lookups", func(t *testing.T) {
		got, err := store.GetUser(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, alice.Username, got.Username)
		assert.Equal(t, "hash", got.Password)

		byName, err := store.GetUserByUsername(ctx, bob.Username)
		require.NoError(t, err)
		require.NotNil(t, byName)
		assert.Equal(t, bob.ID, byName.ID)

		byEmail, err := store.GetUserByEmail(ctx, alice.Email)
		require.NoError(t, err)
		require.NotNil(t, byEmail)
		assert.Equal(t, alice.ID, byEmail.ID)

		missing, err := store.GetUserByUsername(ctx, "nobody_"+suffix)
		assert.NoError(t, err)
		assert.Nil(t, missing)

		_, err = store.GetUser(ctx, "999999999")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("status updates", func(t *testing.T) {
		online := domain.StatusOnline
		got, err := store.UpdateUser(ctx, alice.ID, domain.UserUpdate{Status: &online, ClearLastSeen: true})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusOnline, got.Status)
		assert.Nil(t, got.LastSeen)

		offline := domain.StatusOffline
		seen := time.Now().UTC().Truncate(time.Millisecond)
		got, err = store.UpdateUser(ctx, alice.ID, domain.UserUpdate{Status: &offline, LastSeen: &seen})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusOffline, got.Status)
		require.NotNil(t, got.LastSeen)
		assert.WithinDuration(t, seen, *got.LastSeen, time.Millisecond)
	})

	t.Run("username update conflicts with another user", func(t *testing.T) {
		taken := bob.Username
		_, err := store.UpdateUser(ctx, alice.ID, domain.UserUpdate{Username: &taken})
		assert.ErrorIs(t, err, domain.ErrConflict)

		got, err := store.GetUser(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, alice.Username, got.Username)

		same := alice.Username
		_, err = store.UpdateUser(ctx, alice.ID, domain.UserUpdate{Username: &same})
		assert.NoError(t, err, "keeping your own username is not a conflict")
	})

	t.Run("update of unknown user", func(t *testing.T) {
		online := domain.StatusOnline
		_, err := store.UpdateUser(ctx, "999999999", domain.UserUpdate{Status: &online})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("messages are listed oldest first", func(t *testing.T) {
		before, err := store.ListMessages(ctx)
		require.NoError(t, err)

		base := time.Now().UTC().Truncate(time.Millisecond)
		first, err := store.CreateMessage(ctx, &domain.Message{Content: "first", UserID: alice.ID, CreatedAt: base})
		require.NoError(t, err)
		second, err := store.CreateMessage(ctx, &domain.Message{Content: "second", UserID: bob.ID, CreatedAt: base.Add(time.Second)})
		require.NoError(t, err)

		assert.NotEmpty(t, first.ID)
		assert.Empty(t, first.Reactions)
		assert.NotNil(t, first.Reactions)

		all, err := store.ListMessages(ctx)
		require.NoError(t, err)
		require.Len(t, all, len(before)+2)
		tail := all[len(all)-2:]
		assert.Equal(t, first.ID, tail[0].ID)
		assert.Equal(t, second.ID, tail[1].ID)
		for i := 1; i < len(all); i++ {
			assert.False(t, all[i].CreatedAt.Before(all[i-1].CreatedAt))
		}
	})

	t.Run("message author must exist", func(t *testing.T) {
		_, err := store.CreateMessage(ctx, &domain.Message{Content: "ghost", UserID: "999999999"})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

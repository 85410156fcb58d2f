package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macdonc2/llm-app-template/internal/domain"
	"github.com/macdonc2/llm-app-template/internal/repository"
)

func newUser(id, email string, created time.Time, active bool) *domain.User {
	return &domain.User{ID: id, Email: email, PasswordHash: []byte("hash"), IsActive: active, CreatedAt: created}
}

func TestUsersEmailUniqueness(t *testing.T) {
	ctx := context.Background()
	store := NewUsers()
	now := time.Now()

	require.NoError(t, store.CreateUser(ctx, newUser("1", "a@example.com", now, false)))
	assert.ErrorIs(t, store.CreateUser(ctx, newUser("2", " A@example.com", now, false)), repository.ErrConflict)

	got, err := store.GetUserByEmail(ctx, "A@EXAMPLE.COM")
	require.NoError(t, err)
	assert.Equal(t, "1", got.ID)

	require.NoError(t, store.CreateUser(ctx, newUser("2", "b@example.com", now, false)))
	got.Email = "b@example.com"
	assert.ErrorIs(t, store.UpdateUser(ctx, got), repository.ErrConflict)
}

func TestUsersReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewUsers()
	require.NoError(t, store.CreateUser(ctx, newUser("1", "a@example.com", time.Now(), false)))

	got, err := store.GetUserByID(ctx, "1")
	require.NoError(t, err)
	got.IsActive = true
	got.PasswordHash[0] = 'X'

	again, err := store.GetUserByID(ctx, "1")
	require.NoError(t, err)
	assert.False(t, again.IsActive)
	assert.Equal(t, "hash", string(again.PasswordHash))
}

func TestListUsersFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	store := NewUsers()
	base := time.Now()
	require.NoError(t, store.CreateUser(ctx, newUser("c", "c@example.com", base.Add(2*time.Second), false)))
	require.NoError(t, store.CreateUser(ctx, newUser("a", "a@example.com", base, false)))
	require.NoError(t, store.CreateUser(ctx, newUser("b", "b@example.com", base.Add(time.Second), true)))

	all, err := store.ListUsers(ctx, domain.UserFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{all[0].ID, all[1].ID, all[2].ID})

	inactive := false
	pending, err := store.ListUsers(ctx, domain.UserFilter{Active: &inactive})
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "a", pending[0].ID)

	page, err := store.ListUsers(ctx, domain.UserFilter{Limit: 1, Offset: 5})
	require.NoError(t, err)
	assert.Empty(t, page)

	_, err = store.GetUserByID(ctx, "zzz")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, store.UpdateUser(ctx, &domain.User{ID: "zzz"}), repository.ErrNotFound)
}

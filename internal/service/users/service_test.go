package users

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macdonc2/llm-app-template/internal/domain"
	"github.com/macdonc2/llm-app-template/internal/repository/memory"
	"github.com/macdonc2/llm-app-template/internal/service/auth"
	"github.com/macdonc2/llm-app-template/pkg/crypto"
)

const (
	idAda = "0b6b1c1e-1f0e-4a57-9d3c-6f4e2a9b7c10"
	idBob = "7d2f4c8a-5e3b-4f61-8a2d-1c9e0b3f6a24"
)

func seed(t *testing.T, repo *memory.Users, id, email string, created time.Time) *domain.User {
	t.Helper()
	hash, err := crypto.HashPassword("old-password")
	require.NoError(t, err)
	u := &domain.User{ID: id, Email: email, PasswordHash: hash, CreatedAt: created}
	require.NoError(t, repo.CreateUser(context.Background(), u))
	return u
}

func newService(repo *memory.Users) Service {
	return New(repo, "enc-key", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestUpdatePasswordRehashes(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewUsers()
	user := seed(t, repo, idAda, "a@example.com", time.Now())
	svc := newService(repo)

	newPass := "new-password"
	_, err := svc.Update(ctx, user, UpdateInput{Password: &newPass})
	require.NoError(t, err)

	stored, err := repo.GetUserByID(ctx, idAda)
	require.NoError(t, err)
	assert.ErrorIs(t, crypto.ComparePassword(stored.PasswordHash, "old-password"), crypto.ErrPasswordMismatch)
	assert.NoError(t, crypto.ComparePassword(stored.PasswordHash, "new-password"))
}

func TestUpdateKeysAndEmail(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewUsers()
	user := seed(t, repo, idAda, "a@example.com", time.Now())
	seed(t, repo, idBob, "b@example.com", time.Now())
	svc := newService(repo)

	key := "tvly-abcdef123"
	updated, err := svc.Update(ctx, user, UpdateInput{TavilyKey: &key})
	require.NoError(t, err)
	creds, err := svc.Credentials(updated)
	require.NoError(t, err)
	assert.Equal(t, "tvly-abcdef123", creds.Tavily)
	assert.Equal(t, "**********f123", svc.View(updated).TavilyAPIKey)

	clear := ""
	updated, err = svc.Update(ctx, updated, UpdateInput{TavilyKey: &clear})
	require.NoError(t, err)
	assert.Nil(t, updated.Keys.Tavily)

	taken := "B@example.com"
	_, err = svc.Update(ctx, updated, UpdateInput{Email: &taken})
	assert.ErrorIs(t, err, auth.ErrEmailTaken)

	bad := "nope"
	_, err = svc.Update(ctx, updated, UpdateInput{Email: &bad})
	assert.ErrorIs(t, err, auth.ErrInvalidInput)
}

func TestApproveVerifyAndPending(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewUsers()
	base := time.Now()
	seed(t, repo, idAda, "a@example.com", base)
	seed(t, repo, idBob, "b@example.com", base.Add(time.Second))
	svc := newService(repo)

	pending, err := svc.Pending(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	approved, err := svc.Approve(ctx, idAda)
	require.NoError(t, err)
	assert.True(t, approved.IsActive)
	assert.False(t, approved.IsVerified)

	verified, err := svc.Verify(ctx, idAda)
	require.NoError(t, err)
	assert.True(t, verified.IsVerified)

	pending, err = svc.Pending(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, idBob, pending[0].ID)

	all, err := svc.List(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	page, err := svc.Pending(ctx, 1, 1)
	require.NoError(t, err)
	assert.Empty(t, page)

	_, err = svc.Approve(ctx, "3c1f8e2a-0000-4000-8000-000000000000")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

type lookupCounter struct {
	*memory.Users
	lookups int
}

func (l *lookupCounter) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	l.lookups++
	return l.Users.GetUserByID(ctx, id)
}

func TestMalformedIDsSkipTheRepository(t *testing.T) {
	ctx := context.Background()
	repo := &lookupCounter{Users: memory.NewUsers()}
	svc := New(repo, "enc-key", slog.New(slog.NewTextHandler(io.Discard, nil)))

	for _, id := range []string{"", "not-a-uuid", "123", "0b6b1c1e-1f0e-4a57-9d3c"} {
		_, err := svc.Get(ctx, id)
		assert.ErrorIs(t, err, ErrNotFound, id)
		_, err = svc.Approve(ctx, id)
		assert.ErrorIs(t, err, ErrNotFound, id)
		_, err = svc.Verify(ctx, id)
		assert.ErrorIs(t, err, ErrNotFound, id)
	}
	assert.Zero(t, repo.lookups)

	_, err := svc.Get(ctx, idAda)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, repo.lookups)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "", Mask(""))
	assert.Equal(t, "***", Mask("abc"))
	assert.Equal(t, "****", Mask("abcd"))
	assert.Equal(t, "****1234", Mask("sk--1234"))
	assert.Equal(t, "********1234", Mask("abcdefgh1234"))
	assert.Equal(t, "*****ñøπé", Mask("sk-prñøπé"))
}

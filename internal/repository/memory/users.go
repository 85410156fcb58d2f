// Package memory keeps users in process memory. It backs local runs without
// a database and the HTTP tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/macdonc2/llm-app-template/internal/domain"
	"github.com/macdonc2/llm-app-template/internal/repository"
)

// Users is a concurrency-safe UserRepository.
type Users struct {
	mu    sync.RWMutex
	byID  map[string]domain.User
	email map[string]string
}

// NewUsers returns an empty store.
func NewUsers() *Users {
	return &Users{byID: make(map[string]domain.User), email: make(map[string]string)}
}

var _ repository.UserRepository = (*Users)(nil)

func (u *Users) CreateUser(_ context.Context, user *domain.User) error {
	if user == nil || user.ID == "" || len(user.PasswordHash) == 0 {
		return repository.ErrInvalidArgument
	}
	key := normalizeEmail(user.Email)
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.byID[user.ID]; ok {
		return repository.ErrConflict
	}
	if _, ok := u.email[key]; ok {
		return repository.ErrConflict
	}
	u.byID[user.ID] = cloneUser(*user)
	u.email[key] = user.ID
	return nil
}

func (u *Users) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	id, ok := u.email[normalizeEmail(email)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	user := cloneUser(u.byID[id])
	return &user, nil
}

func (u *Users) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	stored, ok := u.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	user := cloneUser(stored)
	return &user, nil
}

func (u *Users) UpdateUser(_ context.Context, user *domain.User) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	current, ok := u.byID[user.ID]
	if !ok {
		return repository.ErrNotFound
	}
	oldKey, newKey := normalizeEmail(current.Email), normalizeEmail(user.Email)
	if oldKey != newKey {
		if _, taken := u.email[newKey]; taken {
			return repository.ErrConflict
		}
		delete(u.email, oldKey)
		u.email[newKey] = user.ID
	}
	updated := cloneUser(*user)
	updated.Salt = current.Salt
	updated.CreatedAt = current.CreatedAt
	u.byID[user.ID] = updated
	return nil
}

func (u *Users) ListUsers(_ context.Context, filter domain.UserFilter) ([]domain.User, error) {
	u.mu.RLock()
	all := make([]domain.User, 0, len(u.byID))
	for _, user := range u.byID {
		if filter.Active != nil && user.IsActive != *filter.Active {
			continue
		}
		all = append(all, cloneUser(user))
	}
	u.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	limit := filter.PageSize()
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return []domain.User{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func cloneUser(u domain.User) domain.User {
	u.PasswordHash = append([]byte(nil), u.PasswordHash...)
	u.Keys.OpenAI = cloneBytes(u.Keys.OpenAI)
	u.Keys.Tavily = cloneBytes(u.Keys.Tavily)
	u.Keys.Firecrawl = cloneBytes(u.Keys.Firecrawl)
	return u
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

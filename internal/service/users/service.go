// Package users implements profile and admin user management.
package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/macdonc2/llm-app-template/internal/domain"
	"github.com/macdonc2/llm-app-template/internal/repository"
	"github.com/macdonc2/llm-app-template/internal/service/auth"
	"github.com/macdonc2/llm-app-template/pkg/crypto"
)

// ErrNotFound is returned when the target user does not exist.
var ErrNotFound = errors.New("user not found")

// Service manages existing accounts.
type Service struct {
	repo   repository.UserRepository
	sealer crypto.Sealer
	logger *slog.Logger
	now    func() time.Time
}

// New constructs a Service. encryptionKey seals provider keys at rest.
func New(repo repository.UserRepository, encryptionKey string, logger *slog.Logger) Service {
	return Service{repo: repo, sealer: crypto.NewSealer(encryptionKey), logger: logger, now: time.Now}
}

// UpdateInput is a partial update; nil fields are left unchanged and an
// empty key clears it.
type UpdateInput struct {
	Email        *string
	Password     *string
	OpenAIKey    *string
	TavilyKey    *string
	FirecrawlKey *string
}

// View is the outward representation of a user with masked keys.
type View struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	IsActive        bool      `json:"is_active"`
	IsVerified      bool      `json:"is_verified"`
	IsSuperuser     bool      `json:"is_superuser"`
	OpenAIAPIKey    string    `json:"openai_api_key,omitempty"`
	TavilyAPIKey    string    `json:"tavily_api_key,omitempty"`
	FirecrawlAPIKey string    `json:"firecrawl_api_key,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Get loads one user. Ids that are not UUIDs cannot exist and are
// reported as not found without a lookup.
func (s Service) Get(ctx context.Context, id string) (*domain.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

// Update applies in to user and persists it.
func (s Service) Update(ctx context.Context, user *domain.User, in UpdateInput) (*domain.User, error) {
	updated := *user
	if in.Email != nil {
		email, err := auth.NormalizeEmail(*in.Email)
		if err != nil {
			return nil, err
		}
		updated.Email = email
	}
	if in.Password != nil {
		if *in.Password == "" {
			return nil, fmt.Errorf("%w: password required", auth.ErrInvalidInput)
		}
		hash, err := crypto.HashPassword(*in.Password)
		if err != nil {
			if errors.Is(err, crypto.ErrPasswordTooLong) {
				return nil, fmt.Errorf("%w: %v", auth.ErrInvalidInput, err)
			}
			return nil, err
		}
		updated.PasswordHash = hash
	}
	for _, field := range []struct {
		in  *string
		out *[]byte
	}{
		{in.OpenAIKey, &updated.Keys.OpenAI},
		{in.TavilyKey, &updated.Keys.Tavily},
		{in.FirecrawlKey, &updated.Keys.Firecrawl},
	} {
		if field.in == nil {
			continue
		}
		sealed, err := s.sealer.Seal(strings.TrimSpace(*field.in))
		if err != nil {
			return nil, fmt.Errorf("seal key: %w", err)
		}
		*field.out = sealed
	}
	updated.UpdatedAt = s.now().UTC()

	if err := s.repo.UpdateUser(ctx, &updated); err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return nil, auth.ErrEmailTaken
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	s.logger.Info("user updated", "user_id", updated.ID, "password_changed", in.Password != nil)
	return &updated, nil
}

// List pages through every user. A page holds at most domain.MaxPageSize rows.
func (s Service) List(ctx context.Context, limit, offset int) ([]domain.User, error) {
	return s.repo.ListUsers(ctx, domain.UserFilter{Limit: limit, Offset: offset})
}

// Pending pages through users awaiting approval, oldest first.
func (s Service) Pending(ctx context.Context, limit, offset int) ([]domain.User, error) {
	inactive := false
	return s.repo.ListUsers(ctx, domain.UserFilter{Active: &inactive, Limit: limit, Offset: offset})
}

// Approve activates a user.
func (s Service) Approve(ctx context.Context, id string) (*domain.User, error) {
	return s.setFlag(ctx, id, "approved", func(u *domain.User) { u.IsActive = true })
}

// Verify marks a user as verified.
func (s Service) Verify(ctx context.Context, id string) (*domain.User, error) {
	return s.setFlag(ctx, id, "verified", func(u *domain.User) { u.IsVerified = true })
}

func (s Service) setFlag(ctx context.Context, id, action string, apply func(*domain.User)) (*domain.User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	apply(user)
	user.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	s.logger.Info("user "+action, "user_id", id)
	return user, nil
}

// Credentials decrypts the provider keys of user.
func (s Service) Credentials(user *domain.User) (domain.Credentials, error) {
	var (
		creds domain.Credentials
		err   error
	)
	if creds.OpenAI, err = s.sealer.Open(user.Keys.OpenAI); err != nil {
		return creds, fmt.Errorf("open openai key: %w", err)
	}
	if creds.Tavily, err = s.sealer.Open(user.Keys.Tavily); err != nil {
		return creds, fmt.Errorf("open tavily key: %w", err)
	}
	if creds.Firecrawl, err = s.sealer.Open(user.Keys.Firecrawl); err != nil {
		return creds, fmt.Errorf("open firecrawl key: %w", err)
	}
	return creds, nil
}

// View renders user for API responses. Keys that fail to decrypt are omitted.
func (s Service) View(user *domain.User) View {
	v := View{
		ID:          user.ID,
		Email:       user.Email,
		IsActive:    user.IsActive,
		IsVerified:  user.IsVerified,
		IsSuperuser: user.IsSuperuser,
		CreatedAt:   user.CreatedAt,
	}
	creds, err := s.Credentials(user)
	if err != nil {
		s.logger.Warn("decrypt keys for view failed", "user_id", user.ID, "error", err)
		return v
	}
	v.OpenAIAPIKey = Mask(creds.OpenAI)
	v.TavilyAPIKey = Mask(creds.Tavily)
	v.FirecrawlAPIKey = Mask(creds.Firecrawl)
	return v
}

// Mask hides all but the last four characters of key.
func Mask(key string) string {
	if key == "" {
		return ""
	}
	runes := []rune(key)
	if len(runes) <= 4 {
		return strings.Repeat("*", len(runes))
	}
	return strings.Repeat("*", len(runes)-4) + string(runes[len(runes)-4:])
}

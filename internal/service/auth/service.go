// Package auth registers users, issues access tokens and resolves bearer
// tokens back to users.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/macdonc2/llm-app-template/internal/domain"
	"github.com/macdonc2/llm-app-template/internal/repository"
	"github.com/macdonc2/llm-app-template/pkg/config"
	"github.com/macdonc2/llm-app-template/pkg/crypto"
	jwtpkg "github.com/macdonc2/llm-app-template/pkg/jwt"
)

var (
	// ErrInvalidCredentials covers unknown emails, wrong passwords and inactive accounts.
	ErrInvalidCredentials = errors.New("LOGIN_BAD_CREDENTIALS")
	// ErrEmailTaken is returned when the email already belongs to a user.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidToken is returned for unparsable, expired or orphaned tokens.
	ErrInvalidToken = errors.New("authentication failed")
	// ErrInvalidInput is returned for malformed registration data.
	ErrInvalidInput = errors.New("invalid registration data")
)

// Service handles authentication workflows.
type Service struct {
	users  repository.UserRepository
	sealer crypto.Sealer
	logger *slog.Logger
	cfg    config.APIConfig
	now    func() time.Time
}

// New constructs a Service.
func New(users repository.UserRepository, logger *slog.Logger, cfg config.APIConfig) Service {
	return Service{
		users:  users,
		sealer: crypto.NewSealer(cfg.APIKeyEncryptionKey),
		logger: logger,
		cfg:    cfg,
		now:    time.Now,
	}
}

// RegisterInput is the data accepted at signup.
type RegisterInput struct {
	Email        string
	Password     string
	OpenAIKey    string
	TavilyKey    string
	FirecrawlKey string
}

// Token is an issued access token.
type Token struct {
	AccessToken string
	TokenType   string
	ExpiresIn   time.Duration
}

// Register creates an inactive, unverified user.
func (s Service) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	email, err := NormalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if in.Password == "" {
		return nil, fmt.Errorf("%w: password required", ErrInvalidInput)
	}

	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup email: %w", err)
	}

	user, err := s.newUser(email, in.Password)
	if err != nil {
		return nil, err
	}
	if user.Keys, err = s.SealKeys(domain.Credentials{
		OpenAI:    in.OpenAIKey,
		Tavily:    in.TavilyKey,
		Firecrawl: in.FirecrawlKey,
	}); err != nil {
		return nil, err
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.logger.Info("user registered", "user_id", user.ID)
	return user, nil
}

// Login verifies credentials and issues an access token.
func (s Service) Login(ctx context.Context, email, password string) (*domain.User, Token, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, Token{}, ErrInvalidCredentials
		}
		return nil, Token{}, err
	}
	if err := crypto.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, Token{}, ErrInvalidCredentials
	}
	if !user.IsActive {
		s.logger.Info("login refused for inactive user", "user_id", user.ID)
		return nil, Token{}, ErrInvalidCredentials
	}
	token, err := s.issueToken(user.ID)
	if err != nil {
		return nil, Token{}, err
	}
	s.logger.Info("user logged in", "user_id", user.ID)
	return user, token, nil
}

// Authorize validates a bearer token and returns the associated user.
func (s Service) Authorize(ctx context.Context, token string) (*domain.User, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, ErrInvalidToken
	}
	claims, err := jwtpkg.Parse(trimmed, s.cfg.SecretKey)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if _, err := uuid.Parse(claims.UserID()); err != nil {
		return nil, ErrInvalidToken
	}
	user, err := s.users.GetUserByID(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return user, nil
}

// Bootstrap makes sure an active, verified superuser exists for email.
// An existing account is promoted; its password is left alone.
func (s Service) Bootstrap(ctx context.Context, email, password string) error {
	if strings.TrimSpace(email) == "" {
		return nil
	}
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return err
	}

	existing, err := s.users.GetUserByEmail(ctx, normalized)
	switch {
	case err == nil:
		if existing.IsActive && existing.IsVerified && existing.IsSuperuser {
			return nil
		}
		existing.IsActive, existing.IsVerified, existing.IsSuperuser = true, true, true
		existing.UpdatedAt = s.now().UTC()
		if err := s.users.UpdateUser(ctx, existing); err != nil {
			return fmt.Errorf("promote bootstrap admin: %w", err)
		}
		s.logger.Info("bootstrap admin promoted", "user_id", existing.ID)
		return nil
	case !errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("lookup bootstrap admin: %w", err)
	}

	if password == "" {
		return fmt.Errorf("%w: bootstrap admin password required", ErrInvalidInput)
	}
	user, err := s.newUser(normalized, password)
	if err != nil {
		return err
	}
	user.IsActive, user.IsVerified, user.IsSuperuser = true, true, true
	if err := s.users.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("create bootstrap admin: %w", err)
	}
	s.logger.Info("bootstrap admin created", "user_id", user.ID)
	return nil
}

// SealKeys encrypts provider keys for storage. Blank keys stay empty.
func (s Service) SealKeys(creds domain.Credentials) (domain.SealedKeys, error) {
	var (
		keys domain.SealedKeys
		err  error
	)
	if keys.OpenAI, err = s.sealer.Seal(strings.TrimSpace(creds.OpenAI)); err != nil {
		return keys, fmt.Errorf("seal openai key: %w", err)
	}
	if keys.Tavily, err = s.sealer.Seal(strings.TrimSpace(creds.Tavily)); err != nil {
		return keys, fmt.Errorf("seal tavily key: %w", err)
	}
	if keys.Firecrawl, err = s.sealer.Seal(strings.TrimSpace(creds.Firecrawl)); err != nil {
		return keys, fmt.Errorf("seal firecrawl key: %w", err)
	}
	return keys, nil
}

// NormalizeEmail trims, lower-cases and syntax-checks an address.
func NormalizeEmail(email string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized {
		return "", fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	return normalized, nil
}

func (s Service) newUser(email, password string) (*domain.User, error) {
	hash, err := crypto.HashPassword(password)
	if err != nil {
		if errors.Is(err, crypto.ErrPasswordTooLong) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return nil, err
	}
	salt, err := crypto.NewSalt()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	return &domain.User{
		ID:           crypto.DeriveUserID(s.cfg.UserSalt, salt, email).String(),
		Email:        email,
		Salt:         salt,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (s Service) issueToken(userID string) (Token, error) {
	access, err := jwtpkg.GenerateToken(userID, s.cfg.SecretKey, s.cfg.AccessTokenTTL)
	if err != nil {
		return Token{}, err
	}
	return Token{AccessToken: access, TokenType: "bearer", ExpiresIn: s.cfg.AccessTokenTTL}, nil
}

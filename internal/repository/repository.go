package repository

import (
	"context"

	"github.com/macdonc2/llm-app-template/internal/domain"
)

// UserRepository persists users.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	UpdateUser(ctx context.Context, user *domain.User) error
	ListUsers(ctx context.Context, filter domain.UserFilter) ([]domain.User, error)
}

// DocumentRepository stores passages for similarity retrieval.
type DocumentRepository interface {
	InsertDocuments(ctx context.Context, docs []domain.Document) ([]int64, error)
	NearestDocuments(ctx context.Context, embedding []float32, k int) ([]domain.Document, error)
}

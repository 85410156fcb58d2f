// Package rag answers questions from the stored document corpus.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/macdonc2/llm-app-template/internal/domain"
	"github.com/macdonc2/llm-app-template/internal/embedding"
	"github.com/macdonc2/llm-app-template/internal/llm"
	"github.com/macdonc2/llm-app-template/internal/prompt"
	"github.com/macdonc2/llm-app-template/internal/repository"
	"github.com/macdonc2/llm-app-template/internal/service/providers"
)

// DefaultTopK is used when the caller does not ask for a count.
const DefaultTopK = 5

// ErrEmptyQuery is returned for blank questions.
var ErrEmptyQuery = errors.New("query must not be empty")

// Resolver supplies the adapters for a caller.
type Resolver interface {
	LLM(user *domain.User) (llm.LLM, error)
	Embedder(user *domain.User) (embedding.Embedder, error)
}

// Renderer renders prompt templates.
type Renderer interface {
	Render(name string, data any) (string, error)
}

// Answer is a generated answer with the passages it was grounded on.
type Answer struct {
	Answer   string   `json:"answer"`
	Contexts []string `json:"contexts"`
}

// Service runs retrieval-augmented generation.
type Service struct {
	docs     repository.DocumentRepository
	resolver Resolver
	prompts  Renderer
	logger   *slog.Logger
}

// New constructs a Service.
func New(docs repository.DocumentRepository, resolver Resolver, prompts Renderer, logger *slog.Logger) Service {
	return Service{docs: docs, resolver: resolver, prompts: prompts, logger: logger}
}

// Query embeds query, fetches the topK nearest passages and asks the LLM.
func (s Service) Query(ctx context.Context, user *domain.User, query string, topK int) (Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Answer{}, ErrEmptyQuery
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	model, err := s.resolver.LLM(user)
	if err != nil {
		return Answer{}, err
	}
	embedder, err := s.resolver.Embedder(user)
	if err != nil {
		return Answer{}, err
	}

	vector, err := embedder.Embed(ctx, query)
	if err != nil {
		return Answer{}, providers.Upstream(fmt.Errorf("embed query: %w", err))
	}
	docs, err := s.docs.NearestDocuments(ctx, vector, topK)
	if err != nil {
		return Answer{}, fmt.Errorf("retrieve documents: %w", err)
	}
	contexts := make([]string, 0, len(docs))
	for _, d := range docs {
		contexts = append(contexts, d.Content)
	}

	rendered, err := s.prompts.Render(prompt.RAGAnswer, map[string]any{"Query": query, "Contexts": contexts})
	if err != nil {
		return Answer{}, err
	}
	answer, err := model.Chat(ctx, rendered)
	if err != nil {
		return Answer{}, providers.Upstream(err)
	}
	s.logger.Info("rag query answered", "user_id", user.ID, "contexts", len(contexts))
	return Answer{Answer: strings.TrimSpace(answer), Contexts: contexts}, nil
}

// Ingest embeds texts and stores them as documents in one batch.
func (s Service) Ingest(ctx context.Context, user *domain.User, texts []string) ([]int64, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: no documents", repository.ErrInvalidArgument)
	}
	embedder, err := s.resolver.Embedder(user)
	if err != nil {
		return nil, err
	}
	docs := make([]domain.Document, 0, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("%w: document %d is empty", repository.ErrInvalidArgument, i)
		}
		vector, err := embedder.Embed(ctx, text)
		if err != nil {
			return nil, providers.Upstream(fmt.Errorf("embed document %d: %w", i, err))
		}
		docs = append(docs, domain.Document{Content: text, Embedding: vector})
	}
	ids, err := s.docs.InsertDocuments(ctx, docs)
	if err != nil {
		return nil, fmt.Errorf("store documents: %w", err)
	}
	s.logger.Info("documents ingested", "user_id", user.ID, "count", len(ids))
	return ids, nil
}

// Package summarize expands a question into a web search and summarizes
// what comes back.
package summarize

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/macdonc2/llm-app-template/internal/domain"
	"github.com/macdonc2/llm-app-template/internal/llm"
	"github.com/macdonc2/llm-app-template/internal/prompt"
	"github.com/macdonc2/llm-app-template/internal/search"
	"github.com/macdonc2/llm-app-template/internal/service/providers"
)

// DefaultTopK is used when the caller does not ask for a count.
const DefaultTopK = 5

// ErrEmptyQuery is returned for blank questions.
var ErrEmptyQuery = errors.New("query must not be empty")

// Resolver supplies the adapters for a caller.
type Resolver interface {
	LLM(user *domain.User) (llm.LLM, error)
	Searcher(user *domain.User) (search.Searcher, error)
}

// Renderer renders prompt templates.
type Renderer interface {
	Render(name string, data any) (string, error)
}

// Summary is the result of one summarize call.
type Summary struct {
	Summary       string                `json:"summary"`
	ExpandedQuery string                `json:"expanded_query"`
	Contexts      []domain.SearchResult `json:"contexts"`
}

// Service chains query expansion, search and summarization.
type Service struct {
	resolver Resolver
	prompts  Renderer
	logger   *slog.Logger
}

// New constructs a Service.
func New(resolver Resolver, prompts Renderer, logger *slog.Logger) Service {
	return Service{resolver: resolver, prompts: prompts, logger: logger}
}

// Summarize answers query from at most topK search results.
func (s Service) Summarize(ctx context.Context, user *domain.User, query string, topK int) (Summary, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Summary{}, ErrEmptyQuery
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	searcher, err := s.resolver.Searcher(user)
	if err != nil {
		return Summary{}, err
	}
	model, err := s.resolver.LLM(user)
	if err != nil {
		return Summary{}, err
	}

	expansionPrompt, err := s.prompts.Render(prompt.TavilyExpansion, map[string]any{"Query": query})
	if err != nil {
		return Summary{}, err
	}
	expanded, err := model.Chat(ctx, expansionPrompt)
	if err != nil {
		return Summary{}, providers.Upstream(err)
	}
	expanded = strings.Trim(strings.TrimSpace(expanded), `"`)
	if expanded == "" {
		expanded = query
	}

	results, err := searcher.Search(ctx, expanded, topK)
	if err != nil {
		return Summary{}, providers.Upstream(err)
	}
	if len(results) > topK {
		results = results[:topK]
	}
	if results == nil {
		results = []domain.SearchResult{}
	}

	contents := make([]string, 0, len(results))
	for _, r := range results {
		if text := strings.TrimSpace(r.RawContent); text != "" {
			contents = append(contents, text)
		}
	}
	summaryPrompt, err := s.prompts.Render(prompt.TavilySummarization, map[string]any{"Query": query, "Contexts": contents})
	if err != nil {
		return Summary{}, err
	}
	summary, err := model.Chat(ctx, summaryPrompt)
	if err != nil {
		return Summary{}, providers.Upstream(err)
	}

	s.logger.Info("search summarized", "user_id", user.ID, "results", len(results))
	return Summary{Summary: strings.TrimSpace(summary), ExpandedQuery: expanded, Contexts: results}, nil
}

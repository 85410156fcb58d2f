// Package search defines the web search port and the Tavily adapter.
package search

import (
	"context"
	"errors"

	"github.com/macdonc2/llm-app-template/internal/domain"
)

// ErrMissingAPIKey is returned when the caller has no Tavily key.
var ErrMissingAPIKey = errors.New("no Tavily API key set for this user")

// Searcher returns up to topK results for query.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]domain.SearchResult, error)
}

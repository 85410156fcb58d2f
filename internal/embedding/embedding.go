// Package embedding defines the text embedding port and its adapters.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/macdonc2/llm-app-template/internal/llm"
	"github.com/macdonc2/llm-app-template/internal/provider"
	"github.com/macdonc2/llm-app-template/pkg/config"
)

// ErrMissingAPIKey is returned when neither the server nor the caller has a key.
var ErrMissingAPIKey = errors.New("no API key available for embeddings")

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Params carries what a factory needs to build an adapter.
type Params struct {
	APIKey     string
	Config     config.APIConfig
	HTTPClient *http.Client
}

// Factory builds an Embedder.
type Factory func(Params) (Embedder, error)

// NewRegistry returns the registry of built-in embedding providers.
func NewRegistry() *provider.Registry[Factory] {
	reg := provider.NewRegistry[Factory]("embedding")
	reg.Register("openai", NewOpenAI)
	return reg
}

// OpenAI embeds text with the configured embedding model.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI builds the OpenAI embedding adapter.
func NewOpenAI(p Params) (Embedder, error) {
	if strings.TrimSpace(p.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	model := p.Config.OpenAIEmbeddingModel
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	return &OpenAI{
		client: llm.NewOpenAIClient(p.APIKey, p.Config.OpenAIBaseURL, p.HTTPClient),
		model:  model,
	}, nil
}

// Embed returns the embedding of text.
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(o.model),
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response for model %s was empty", o.model)
	}
	return resp.Data[0].Embedding, nil
}

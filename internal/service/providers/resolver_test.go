package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macdonc2/llm-app-template/internal/domain"
	"github.com/macdonc2/llm-app-template/internal/embedding"
	"github.com/macdonc2/llm-app-template/internal/llm"
	"github.com/macdonc2/llm-app-template/internal/mcp"
	"github.com/macdonc2/llm-app-template/internal/provider"
	"github.com/macdonc2/llm-app-template/internal/search"
	"github.com/macdonc2/llm-app-template/pkg/config"
)

type staticCreds domain.Credentials

func (s staticCreds) Credentials(*domain.User) (domain.Credentials, error) {
	return domain.Credentials(s), nil
}

type fakeSession struct {
	name   string
	closed bool
}

func (f *fakeSession) Name() string { return f.name }
func (f *fakeSession) ListTools(context.Context) ([]mcp.Tool, error) {
	return nil, nil
}
func (f *fakeSession) CallTool(context.Context, string, json.RawMessage) (mcp.CallResult, error) {
	return mcp.CallResult{}, nil
}
func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func baseConfig() config.APIConfig {
	return config.APIConfig{
		LLMProvider:       "openai",
		EmbeddingProvider: "openai",
		MCPBaseURL:        "http://mcp",
		ToolProviders:     []string{"calculator"},
	}
}

func TestUnknownProviderNamesKey(t *testing.T) {
	cfg := baseConfig()
	cfg.LLMProvider = "claude"
	r := New(cfg, staticCreds{OpenAI: "sk"}, discard())

	_, err := r.LLM(&domain.User{})
	var unknown *provider.UnknownError
	require.ErrorAs(t, err, &unknown)
	assert.EqualError(t, err, "unknown LLM provider 'claude'")
	assert.Error(t, r.Validate())
}

func TestLLMRequiresUserKey(t *testing.T) {
	r := New(baseConfig(), staticCreds{}, discard())
	_, err := r.LLM(&domain.User{})
	assert.ErrorIs(t, err, llm.ErrMissingAPIKey)

	r = New(baseConfig(), staticCreds{OpenAI: "sk"}, discard())
	got, err := r.LLM(&domain.User{})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.NoError(t, r.Validate())
}

func TestEmbedderPrefersServerKey(t *testing.T) {
	var seen string
	reg := provider.NewRegistry[embedding.Factory]("embedding")
	reg.Register("openai", func(p embedding.Params) (embedding.Embedder, error) {
		seen = p.APIKey
		return nil, nil
	})

	cfg := baseConfig()
	cfg.OpenAIAPIKey = "server-key"
	_, err := New(cfg, staticCreds{OpenAI: "user-key"}, discard(), WithEmbeddingRegistry(reg)).Embedder(&domain.User{})
	require.NoError(t, err)
	assert.Equal(t, "server-key", seen)

	_, err = New(baseConfig(), staticCreds{OpenAI: "user-key"}, discard(), WithEmbeddingRegistry(reg)).Embedder(&domain.User{})
	require.NoError(t, err)
	assert.Equal(t, "user-key", seen)
}

func TestSearcherAndChatRequireKeys(t *testing.T) {
	r := New(baseConfig(), staticCreds{}, discard())
	_, err := r.Searcher(&domain.User{})
	assert.ErrorIs(t, err, search.ErrMissingAPIKey)
	_, err = r.Chat(&domain.User{})
	assert.ErrorIs(t, err, ErrMissingAgentKey)

	r = New(baseConfig(), staticCreds{OpenAI: "sk", Tavily: "tv"}, discard())
	_, err = r.Searcher(&domain.User{})
	assert.NoError(t, err)
	_, err = r.Chat(&domain.User{})
	assert.NoError(t, err)
}

func TestToolsClosesOpenedSessionsOnFailure(t *testing.T) {
	cfg := baseConfig()
	cfg.ToolProviders = []string{"calculator", "firecrawl"}
	opened := []*fakeSession{}
	connect := func(_ context.Context, spec mcp.ServerSpec) (Session, error) {
		if spec.Name == "firecrawl" {
			return nil, errors.New("connection refused")
		}
		s := &fakeSession{name: spec.Name}
		opened = append(opened, s)
		return s, nil
	}
	r := New(cfg, staticCreds{Firecrawl: "fc"}, discard(), WithConnector(connect))

	_, err := r.Tools(context.Background(), &domain.User{})
	var connErr *ToolConnectError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "firecrawl", connErr.Tool)
	assert.EqualError(t, err, "could not connect to tool 'firecrawl': connection refused")
	require.Len(t, opened, 1)
	assert.True(t, opened[0].closed)
}

func TestToolsResolvesSpecsBeforeConnecting(t *testing.T) {
	cfg := baseConfig()
	cfg.ToolProviders = []string{"calculator", "firecrawl"}
	connects := 0
	connect := func(context.Context, mcp.ServerSpec) (Session, error) {
		connects++
		return &fakeSession{}, nil
	}
	r := New(cfg, staticCreds{}, discard(), WithConnector(connect))

	_, err := r.Tools(context.Background(), &domain.User{})
	assert.ErrorIs(t, err, mcp.ErrMissingFirecrawlKey)
	assert.Zero(t, connects)

	cfg.ToolProviders = []string{"weather"}
	_, err = New(cfg, staticCreds{}, discard()).Tools(context.Background(), &domain.User{})
	assert.EqualError(t, err, "unknown tool provider 'weather'")

	cfg.ToolProviders = []string{"calculator"}
	sessions, err := New(cfg, staticCreds{}, discard(), WithConnector(connect)).Tools(context.Background(), &domain.User{})
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

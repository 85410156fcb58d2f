// Package providers resolves the per-caller adapters (LLM, embedder,
// searcher, tool sessions) from configuration and the caller's keys.
package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/macdonc2/llm-app-template/internal/agent"
	"github.com/macdonc2/llm-app-template/internal/domain"
	"github.com/macdonc2/llm-app-template/internal/embedding"
	"github.com/macdonc2/llm-app-template/internal/llm"
	"github.com/macdonc2/llm-app-template/internal/mcp"
	"github.com/macdonc2/llm-app-template/internal/provider"
	"github.com/macdonc2/llm-app-template/internal/search"
	"github.com/macdonc2/llm-app-template/pkg/config"
)

// ErrMissingAgentKey is returned when the caller has no OpenAI key for the agent.
var ErrMissingAgentKey = errors.New("no OpenAI API key available for agent")

// ToolConnectError reports a tool server that could not be reached.
type ToolConnectError struct {
	Tool string
	Err  error
}

func (e *ToolConnectError) Error() string {
	return fmt.Sprintf("could not connect to tool '%s': %v", e.Tool, e.Err)
}

func (e *ToolConnectError) Unwrap() error { return e.Err }

// Session is a tool session the caller must close.
type Session interface {
	agent.ToolSession
	Close() error
}

// Connector opens a tool session.
type Connector func(ctx context.Context, spec mcp.ServerSpec) (Session, error)

// CredentialSource decrypts a user's provider keys.
type CredentialSource interface {
	Credentials(user *domain.User) (domain.Credentials, error)
}

// Resolver builds adapters for one request at a time.
type Resolver struct {
	cfg        config.APIConfig
	creds      CredentialSource
	llms       *provider.Registry[llm.Factory]
	embedders  *provider.Registry[embedding.Factory]
	tools      *provider.Registry[mcp.ToolFactory]
	connect    Connector
	httpClient *http.Client
	log        *slog.Logger
}

// Option customises a Resolver.
type Option func(*Resolver)

// WithConnector overrides how tool sessions are opened.
func WithConnector(c Connector) Option {
	return func(r *Resolver) {
		if c != nil {
			r.connect = c
		}
	}
}

// WithHTTPClient sets the client used by outbound adapters.
func WithHTTPClient(h *http.Client) Option {
	return func(r *Resolver) {
		if h != nil {
			r.httpClient = h
		}
	}
}

// WithLLMRegistry replaces the built-in LLM registry.
func WithLLMRegistry(reg *provider.Registry[llm.Factory]) Option {
	return func(r *Resolver) { r.llms = reg }
}

// WithEmbeddingRegistry replaces the built-in embedding registry.
func WithEmbeddingRegistry(reg *provider.Registry[embedding.Factory]) Option {
	return func(r *Resolver) { r.embedders = reg }
}

// New constructs a Resolver with the built-in registries.
func New(cfg config.APIConfig, creds CredentialSource, log *slog.Logger, opts ...Option) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	r := &Resolver{
		cfg:        cfg,
		creds:      creds,
		llms:       llm.NewRegistry(),
		embedders:  embedding.NewRegistry(),
		tools:      mcp.NewToolRegistry(),
		httpClient: &http.Client{Timeout: cfg.UpstreamTimeout},
		log:        log,
	}
	r.connect = func(ctx context.Context, spec mcp.ServerSpec) (Session, error) {
		return mcp.Connect(ctx, spec)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Validate checks that the configured provider keys are registered.
func (r *Resolver) Validate() error {
	if _, err := r.llms.Lookup(r.cfg.LLMProvider); err != nil {
		return err
	}
	if _, err := r.embedders.Lookup(r.cfg.EmbeddingProvider); err != nil {
		return err
	}
	for _, name := range r.cfg.ToolProviders {
		if _, err := r.tools.Lookup(name); err != nil {
			return err
		}
	}
	return nil
}

// ToolNames lists the configured tool providers.
func (r *Resolver) ToolNames() []string {
	return append([]string(nil), r.cfg.ToolProviders...)
}

// LLM builds the configured chat adapter with the caller's key.
func (r *Resolver) LLM(user *domain.User) (llm.LLM, error) {
	factory, err := r.llms.Lookup(r.cfg.LLMProvider)
	if err != nil {
		return nil, err
	}
	creds, err := r.creds.Credentials(user)
	if err != nil {
		return nil, err
	}
	return factory(llm.Params{APIKey: creds.OpenAI, Config: r.cfg, HTTPClient: r.httpClient})
}

// Embedder builds the configured embedding adapter. The server key wins
// over the caller's key.
func (r *Resolver) Embedder(user *domain.User) (embedding.Embedder, error) {
	factory, err := r.embedders.Lookup(r.cfg.EmbeddingProvider)
	if err != nil {
		return nil, err
	}
	key := strings.TrimSpace(r.cfg.OpenAIAPIKey)
	if key == "" && user != nil {
		creds, err := r.creds.Credentials(user)
		if err != nil {
			return nil, err
		}
		key = creds.OpenAI
	}
	return factory(embedding.Params{APIKey: key, Config: r.cfg, HTTPClient: r.httpClient})
}

// Searcher builds the Tavily adapter with the caller's key.
func (r *Resolver) Searcher(user *domain.User) (search.Searcher, error) {
	creds, err := r.creds.Credentials(user)
	if err != nil {
		return nil, err
	}
	return search.NewTavily(r.cfg.TavilyBaseURL, creds.Tavily, r.log)
}

// Chat builds the OpenAI client the agent talks to.
func (r *Resolver) Chat(user *domain.User) (agent.ChatClient, error) {
	creds, err := r.creds.Credentials(user)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(creds.OpenAI) == "" {
		return nil, ErrMissingAgentKey
	}
	return llm.NewOpenAIClient(creds.OpenAI, r.cfg.OpenAIBaseURL, r.httpClient), nil
}

// Tools connects to every configured tool server. On failure the sessions
// already opened are closed before returning.
func (r *Resolver) Tools(ctx context.Context, user *domain.User) ([]Session, error) {
	creds, err := r.creds.Credentials(user)
	if err != nil {
		return nil, err
	}

	specs := make([]mcp.ServerSpec, 0, len(r.cfg.ToolProviders))
	for _, name := range r.cfg.ToolProviders {
		factory, err := r.tools.Lookup(name)
		if err != nil {
			return nil, err
		}
		spec, err := factory(r.cfg, creds)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}

	sessions := make([]Session, 0, len(specs))
	for _, spec := range specs {
		sess, err := r.connect(ctx, spec)
		if err != nil {
			CloseAll(sessions, r.log)
			r.log.Warn("tool connect failed", "tool", spec.Name, "error", err)
			return nil, &ToolConnectError{Tool: spec.Name, Err: err}
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// CloseAll closes sessions, logging failures.
func CloseAll(sessions []Session, log *slog.Logger) {
	for _, s := range sessions {
		if err := s.Close(); err != nil {
			log.Warn("close tool session failed", "tool", s.Name(), "error", err)
		}
	}
}

// UpstreamError wraps a failure of a third-party provider call.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream provider failed: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Upstream marks err as a provider failure. Context errors pass through.
func Upstream(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}
	var already *UpstreamError
	if errors.As(err, &already) {
		return err
	}
	return &UpstreamError{Err: err}
}

// Package agentsvc answers questions with the tool-calling agent.
package agentsvc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/macdonc2/llm-app-template/internal/agent"
	"github.com/macdonc2/llm-app-template/internal/domain"
	"github.com/macdonc2/llm-app-template/internal/prompt"
	"github.com/macdonc2/llm-app-template/internal/service/providers"
)

// ErrEmptyQuery is returned for blank questions.
var ErrEmptyQuery = errors.New("query must not be empty")

// AgentError wraps a failed agent run.
type AgentError struct {
	Err error
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("agent failed with error: %v", e.Err)
}

func (e *AgentError) Unwrap() error { return e.Err }

// Resolver supplies the chat client and tool sessions for a caller.
type Resolver interface {
	Chat(user *domain.User) (agent.ChatClient, error)
	Tools(ctx context.Context, user *domain.User) ([]providers.Session, error)
	ToolNames() []string
}

// Renderer renders prompt templates.
type Renderer interface {
	Render(name string, data any) (string, error)
}

// Config tunes agent runs.
type Config struct {
	Model    string
	MaxTurns int
}

// Service runs one agent per request.
type Service struct {
	resolver Resolver
	prompts  Renderer
	sink     agent.EventSink
	cfg      Config
	logger   *slog.Logger
}

// New constructs a Service. sink receives run events and may be nil.
func New(resolver Resolver, prompts Renderer, sink agent.EventSink, cfg Config, logger *slog.Logger) Service {
	return Service{resolver: resolver, prompts: prompts, sink: sink, cfg: cfg, logger: logger}
}

// Ask runs the agent for query. Tool sessions are always closed on return.
func (s Service) Ask(ctx context.Context, user *domain.User, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrEmptyQuery
	}

	chat, err := s.resolver.Chat(user)
	if err != nil {
		return "", err
	}
	instructions, err := s.prompts.Render(prompt.AgentInstructions, map[string]any{"ToolProviders": s.resolver.ToolNames()})
	if err != nil {
		return "", err
	}

	sessions, err := s.resolver.Tools(ctx, user)
	if err != nil {
		return "", err
	}
	defer providers.CloseAll(sessions, s.logger)

	tools := make([]agent.ToolSession, 0, len(sessions))
	for _, sess := range sessions {
		tools = append(tools, sess)
	}

	runner := agent.New(chat, agent.Config{
		Model:        s.cfg.Model,
		Instructions: instructions,
		MaxTurns:     s.cfg.MaxTurns,
	}, s.sink, s.logger)

	result, err := runner.Run(ctx, user.ID, query, tools)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", &AgentError{Err: err}
	}
	return result.Output, nil
}

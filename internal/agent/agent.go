// Package agent runs a function-calling loop between a chat model and the
// tools exposed by connected MCP servers.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"

	"github.com/macdonc2/llm-app-template/internal/domain"
	"github.com/macdonc2/llm-app-template/internal/mcp"
)

// Name identifies the agent in logs and events.
const Name = "UnifiedAgent"

const (
	defaultModel    = "gpt-4o-mini"
	defaultMaxTurns = 10
)

var (
	// ErrMaxTurns is returned when the model keeps calling tools past the turn limit.
	ErrMaxTurns = errors.New("max turns exceeded")
	// ErrNoChoices is returned when a completion carries no message.
	ErrNoChoices = errors.New("completion returned no choices")
)

// ChatClient is the subset of *openai.Client the runner needs.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ToolSession is a connected tool server.
type ToolSession interface {
	Name() string
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	CallTool(ctx context.Context, name string, args json.RawMessage) (mcp.CallResult, error)
}

// EventSink receives run progress.
type EventSink interface {
	Publish(event domain.AgentEvent)
}

// Config tunes a Runner.
type Config struct {
	Model        string
	Instructions string
	MaxTurns     int
}

// Result is the outcome of a completed run.
type Result struct {
	RunID  string
	Output string
	Turns  int
}

// Runner drives one agent run at a time per call; it holds no per-run state.
type Runner struct {
	chat   ChatClient
	cfg    Config
	sink   EventSink
	log    *slog.Logger
	now    func() time.Time
	idFunc func() string
}

// New constructs a Runner. sink may be nil.
func New(chat ChatClient, cfg Config, sink EventSink, log *slog.Logger) *Runner {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = defaultMaxTurns
	}
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		chat:   chat,
		cfg:    cfg,
		sink:   sink,
		log:    log,
		now:    time.Now,
		idFunc: func() string { return uuid.NewString() },
	}
}

// Run answers query for userID using the tools of sessions.
func (r *Runner) Run(ctx context.Context, userID, query string, sessions []ToolSession) (Result, error) {
	runID := r.idFunc()
	emit := func(ev domain.AgentEvent) {
		if r.sink == nil {
			return
		}
		ev.RunID = runID
		ev.UserID = userID
		ev.OccurredAt = r.now().UTC()
		r.sink.Publish(ev)
	}
	fail := func(turn int, err error) (Result, error) {
		emit(domain.AgentEvent{Type: domain.AgentEventRunFailed, Turn: turn, Message: err.Error()})
		r.log.Warn("agent run failed", "agent", Name, "run_id", runID, "turn", turn, "error", err)
		return Result{RunID: runID, Turns: turn}, err
	}

	emit(domain.AgentEvent{Type: domain.AgentEventRunStarted, Message: query})

	tools, owners, err := collectTools(ctx, sessions)
	if err != nil {
		return fail(0, err)
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: r.cfg.Instructions},
		{Role: openai.ChatMessageRoleUser, Content: query},
	}

	for turn := 1; turn <= r.cfg.MaxTurns; turn++ {
		resp, err := r.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    r.cfg.Model,
			Messages: messages,
			Tools:    tools,
		})
		if err != nil {
			return fail(turn, fmt.Errorf("chat completion: %w", err))
		}
		if len(resp.Choices) == 0 {
			return fail(turn, fmt.Errorf("chat completion: %w", ErrNoChoices))
		}
		reply := resp.Choices[0].Message
		if len(reply.ToolCalls) == 0 {
			emit(domain.AgentEvent{Type: domain.AgentEventRunCompleted, Turn: turn, Message: reply.Content})
			r.log.Info("agent run completed", "agent", Name, "run_id", runID, "turns", turn)
			return Result{RunID: runID, Output: reply.Content, Turns: turn}, nil
		}

		messages = append(messages, reply)
		for _, call := range reply.ToolCalls {
			args := json.RawMessage(call.Function.Arguments)
			if !json.Valid(args) {
				args = json.RawMessage(`{}`)
			}
			emit(domain.AgentEvent{Type: domain.AgentEventToolCall, Turn: turn, Tool: call.Function.Name, Arguments: args})

			output := r.invoke(ctx, owners, call.Function.Name, args)
			emit(domain.AgentEvent{Type: domain.AgentEventToolResult, Turn: turn, Tool: call.Function.Name, Message: output})

			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: call.ID,
				Content:    output,
			})
		}
		if err := ctx.Err(); err != nil {
			return fail(turn, err)
		}
	}
	return fail(r.cfg.MaxTurns, fmt.Errorf("%w (%d)", ErrMaxTurns, r.cfg.MaxTurns))
}

// invoke runs one tool call. Failures are reported back to the model as text.
func (r *Runner) invoke(ctx context.Context, owners map[string]ToolSession, name string, args json.RawMessage) string {
	sess, ok := owners[name]
	if !ok {
		return fmt.Sprintf("error: unknown tool %q", name)
	}
	res, err := sess.CallTool(ctx, name, args)
	if err != nil {
		r.log.Warn("tool call failed", "server", sess.Name(), "tool", name, "error", err)
		return "error: " + err.Error()
	}
	if res.IsError {
		return "error: " + res.Text
	}
	return res.Text
}

// collectTools lists every session's tools. The first server to offer a
// name owns it.
func collectTools(ctx context.Context, sessions []ToolSession) ([]openai.Tool, map[string]ToolSession, error) {
	var tools []openai.Tool
	owners := make(map[string]ToolSession)
	for _, sess := range sessions {
		listed, err := sess.ListTools(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("list tools of %s: %w", sess.Name(), err)
		}
		for _, t := range listed {
			name := strings.TrimSpace(t.Name)
			if name == "" {
				continue
			}
			if _, taken := owners[name]; taken {
				continue
			}
			owners[name] = sess
			params := t.InputSchema
			if len(params) == 0 {
				params = json.RawMessage(`{"type":"object","properties":{}}`)
			}
			tools = append(tools, openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        name,
					Description: t.Description,
					Parameters:  params,
				},
			})
		}
	}
	return tools, owners, nil
}

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macdonc2/llm-app-template/internal/domain"
	"github.com/macdonc2/llm-app-template/internal/mcp"
)

type scriptedChat struct {
	replies  []openai.ChatCompletionMessage
	requests []openai.ChatCompletionRequest
	err      error
}

func (s *scriptedChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return openai.ChatCompletionResponse{}, s.err
	}
	next := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "done"}
	if len(s.replies) > 0 {
		next = s.replies[0]
		s.replies = s.replies[1:]
	}
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{Message: next}}}, nil
}

type fakeSession struct {
	name    string
	tools   []mcp.Tool
	callFn  func(name string, args json.RawMessage) (mcp.CallResult, error)
	listErr error
}

func (f *fakeSession) Name() string { return f.name }

func (f *fakeSession) ListTools(context.Context) ([]mcp.Tool, error) {
	return f.tools, f.listErr
}

func (f *fakeSession) CallTool(_ context.Context, name string, args json.RawMessage) (mcp.CallResult, error) {
	return f.callFn(name, args)
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.AgentEvent
}

func (r *recordingSink) Publish(ev domain.AgentEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) types() []domain.AgentEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AgentEventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func toolCall(id, name, args string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, ToolCalls: []openai.ToolCall{{
		ID: id, Type: openai.ToolTypeFunction, Function: openai.FunctionCall{Name: name, Arguments: args},
	}}}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunExecutesToolThenAnswers(t *testing.T) {
	chat := &scriptedChat{replies: []openai.ChatCompletionMessage{
		toolCall("c1", "add", `{"a":2,"b":3}`),
		{Role: "assistant", Content: "2 + 3 = 5"},
	}}
	calc := &fakeSession{
		name:  "calculator",
		tools: []mcp.Tool{{Name: "add", Description: "adds"}},
		callFn: func(name string, args json.RawMessage) (mcp.CallResult, error) {
			assert.Equal(t, "add", name)
			assert.JSONEq(t, `{"a":2,"b":3}`, string(args))
			return mcp.CallResult{Text: "5"}, nil
		},
	}
	sink := &recordingSink{}
	runner := New(chat, Config{Instructions: "be helpful", MaxTurns: 4}, sink, discardLogger())

	res, err := runner.Run(context.Background(), "user-1", "what is 2+3?", []ToolSession{calc})
	require.NoError(t, err)
	assert.Equal(t, "2 + 3 = 5", res.Output)
	assert.Equal(t, 2, res.Turns)

	require.Len(t, chat.requests, 2)
	first := chat.requests[0]
	assert.Equal(t, defaultModel, first.Model)
	require.Len(t, first.Tools, 1)
	assert.Equal(t, "add", first.Tools[0].Function.Name)
	assert.Equal(t, "system", first.Messages[0].Role)
	assert.Equal(t, "be helpful", first.Messages[0].Content)

	second := chat.requests[1].Messages
	last := second[len(second)-1]
	assert.Equal(t, "tool", last.Role)
	assert.Equal(t, "c1", last.ToolCallID)
	assert.Equal(t, "5", last.Content)

	assert.Equal(t, []domain.AgentEventType{
		domain.AgentEventRunStarted,
		domain.AgentEventToolCall,
		domain.AgentEventToolResult,
		domain.AgentEventRunCompleted,
	}, sink.types())
	for _, ev := range sink.events {
		assert.Equal(t, res.RunID, ev.RunID)
		assert.Equal(t, "user-1", ev.UserID)
	}
}

func TestRunStopsAtMaxTurns(t *testing.T) {
	chat := &scriptedChat{}
	for i := 0; i < 5; i++ {
		chat.replies = append(chat.replies, toolCall("c", "add", `{}`))
	}
	calc := &fakeSession{
		name:  "calculator",
		tools: []mcp.Tool{{Name: "add"}},
		callFn: func(string, json.RawMessage) (mcp.CallResult, error) {
			return mcp.CallResult{Text: "0"}, nil
		},
	}
	sink := &recordingSink{}
	runner := New(chat, Config{MaxTurns: 3}, sink, discardLogger())

	_, err := runner.Run(context.Background(), "u", "loop", []ToolSession{calc})
	require.ErrorIs(t, err, ErrMaxTurns)
	assert.Len(t, chat.requests, 3)
	types := sink.types()
	assert.Equal(t, domain.AgentEventRunFailed, types[len(types)-1])
}

func TestToolFailuresAreFedBackToModel(t *testing.T) {
	chat := &scriptedChat{replies: []openai.ChatCompletionMessage{
		toolCall("c1", "scrape", `not json`),
		toolCall("c2", "missing", `{}`),
		{Role: "assistant", Content: "sorry"},
	}}
	fc := &fakeSession{
		name:  "firecrawl",
		tools: []mcp.Tool{{Name: "scrape"}},
		callFn: func(_ string, args json.RawMessage) (mcp.CallResult, error) {
			assert.JSONEq(t, `{}`, string(args))
			return mcp.CallResult{}, errors.New("timeout")
		},
	}
	runner := New(chat, Config{}, nil, discardLogger())

	res, err := runner.Run(context.Background(), "u", "scrape it", []ToolSession{fc})
	require.NoError(t, err)
	assert.Equal(t, "sorry", res.Output)

	msgs := chat.requests[2].Messages
	assert.Equal(t, "error: timeout", msgs[3].Content)
	assert.Equal(t, `error: unknown tool "missing"`, msgs[5].Content)
}

func TestDuplicateToolNamesKeepFirstServer(t *testing.T) {
	chat := &scriptedChat{replies: []openai.ChatCompletionMessage{toolCall("c1", "echo", `{}`), {Content: "ok"}}}
	first := &fakeSession{name: "a", tools: []mcp.Tool{{Name: "echo"}}, callFn: func(string, json.RawMessage) (mcp.CallResult, error) {
		return mcp.CallResult{Text: "from a"}, nil
	}}
	second := &fakeSession{name: "b", tools: []mcp.Tool{{Name: "echo"}}, callFn: func(string, json.RawMessage) (mcp.CallResult, error) {
		t.Fatal("second server should not be called")
		return mcp.CallResult{}, nil
	}}
	runner := New(chat, Config{}, nil, discardLogger())

	_, err := runner.Run(context.Background(), "u", "echo", []ToolSession{first, second})
	require.NoError(t, err)
	assert.Len(t, chat.requests[0].Tools, 1)
	msgs := chat.requests[1].Messages
	assert.Equal(t, "from a", msgs[len(msgs)-1].Content)
}

func TestChatErrorFailsRun(t *testing.T) {
	chat := &scriptedChat{err: errors.New("boom")}
	sink := &recordingSink{}
	runner := New(chat, Config{}, sink, discardLogger())

	_, err := runner.Run(context.Background(), "u", "hi", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, []domain.AgentEventType{domain.AgentEventRunStarted, domain.AgentEventRunFailed}, sink.types())
}

type emptyChat struct{}

func (emptyChat) CreateChatCompletion(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return openai.ChatCompletionResponse{}, nil
}

func TestEmptyCompletionFailsRun(t *testing.T) {
	runner := New(emptyChat{}, Config{}, nil, discardLogger())

	_, err := runner.Run(context.Background(), "u", "hi", nil)
	assert.ErrorIs(t, err, ErrNoChoices)
}

package domain

import (
	"encoding/json"
	"time"
)

// AgentEventType enumerates agent run lifecycle events.
type AgentEventType string

const (
	AgentEventRunStarted   AgentEventType = "run_started"
	AgentEventToolCall     AgentEventType = "tool_call"
	AgentEventToolResult   AgentEventType = "tool_result"
	AgentEventRunCompleted AgentEventType = "run_completed"
	AgentEventRunFailed    AgentEventType = "run_failed"
)

// AgentEvent is streamed to subscribers while an agent run progresses.
type AgentEvent struct {
	RunID      string          `json:"run_id"`
	UserID     string          `json:"user_id"`
	Type       AgentEventType  `json:"type"`
	Turn       int             `json:"turn,omitempty"`
	Tool       string          `json:"tool,omitempty"`
	Arguments  json.RawMessage `json:"arguments,omitempty"`
	Message    string          `json:"message,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Package mcp connects the agent to Model Context Protocol tool servers
// over the SSE transport.
package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

const (
	clientName    = "llm-app"
	clientVersion = "1.0.0"
)

// ErrClosed is returned for calls on a closed session.
var ErrClosed = errors.New("mcp: session closed")

// ServerSpec locates one tool server.
type ServerSpec struct {
	Name    string
	URL     string
	Headers map[string]string
}

// Tool is a callable tool advertised by a server.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// CallResult is the flattened outcome of tools/call.
type CallResult struct {
	Text    string
	IsError bool
}

// Session is one connected tool server.
type Session struct {
	spec   ServerSpec
	client *mcpclient.Client
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

type options struct {
	httpClient *http.Client
}

// Option customises a session.
type Option func(*options)

// WithHTTPClient overrides the HTTP client. It must not carry a total
// timeout since the event stream stays open for the session lifetime.
func WithHTTPClient(h *http.Client) Option {
	return func(o *options) {
		if h != nil {
			o.httpClient = h
		}
	}
}

// Connect opens the event stream and performs the initialize handshake.
// ctx bounds the handshake only; the stream lives until Close.
func Connect(ctx context.Context, spec ServerSpec, opts ...Option) (*Session, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var topts []transport.ClientOption
	if len(spec.Headers) > 0 {
		topts = append(topts, transport.WithHeaders(spec.Headers))
	}
	if o.httpClient != nil {
		topts = append(topts, transport.WithHTTPClient(o.httpClient))
	}
	cli, err := mcpclient.NewSSEMCPClient(spec.URL, topts...)
	if err != nil {
		return nil, fmt.Errorf("mcp %s: %w", spec.Name, err)
	}

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	s := &Session{spec: spec, client: cli, cancel: cancel}
	if err := cli.Start(streamCtx); err != nil {
		s.Close()
		return nil, fmt.Errorf("open %s event stream: %w", spec.Name, err)
	}

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{Name: clientName, Version: clientVersion}
	if _, err := cli.Initialize(ctx, initReq); err != nil {
		s.Close()
		return nil, fmt.Errorf("initialize %s: %w", spec.Name, err)
	}
	return s, nil
}

// Name reports the server name from its spec.
func (s *Session) Name() string {
	return s.spec.Name
}

// ListTools returns the tools the server offers.
func (s *Session) ListTools(ctx context.Context) ([]Tool, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	res, err := s.client.ListTools(ctx, mcpgo.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list %s tools: %w", s.spec.Name, err)
	}
	tools := make([]Tool, 0, len(res.Tools))
	for _, t := range res.Tools {
		schema, err := json.Marshal(t.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("encode %s schema: %w", t.Name, err)
		}
		tools = append(tools, Tool{Name: t.Name, Description: t.Description, InputSchema: schema})
	}
	return tools, nil
}

// CallTool invokes name with JSON-encoded arguments and joins the text content.
func (s *Session) CallTool(ctx context.Context, name string, args json.RawMessage) (CallResult, error) {
	if s.isClosed() {
		return CallResult{}, ErrClosed
	}
	arguments := map[string]any{}
	if len(bytes.TrimSpace(args)) > 0 {
		if err := json.Unmarshal(args, &arguments); err != nil {
			return CallResult{}, fmt.Errorf("decode %s arguments: %w", name, err)
		}
	}

	req := mcpgo.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = arguments
	res, err := s.client.CallTool(ctx, req)
	if err != nil {
		return CallResult{}, fmt.Errorf("call %s: %w", name, err)
	}

	parts := make([]string, 0, len(res.Content))
	for _, c := range res.Content {
		if text, ok := mcpgo.AsTextContent(c); ok {
			parts = append(parts, text.Text)
		}
	}
	return CallResult{Text: strings.Join(parts, "\n"), IsError: res.IsError}, nil
}

// Close tears down the event stream. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.client.Close()
	s.cancel()
	return err
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

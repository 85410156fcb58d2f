package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCalculator(t *testing.T) *httptest.Server {
	t.Helper()
	s := server.NewMCPServer("calculator", "0.1.0", server.WithToolCapabilities(false))
	s.AddTool(mcpgo.NewTool("add",
		mcpgo.WithDescription("adds two numbers"),
		mcpgo.WithNumber("a", mcpgo.Required()),
		mcpgo.WithNumber("b", mcpgo.Required()),
	), func(_ context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		args := req.GetArguments()
		a, okA := args["a"].(float64)
		b, okB := args["b"].(float64)
		if !okA || !okB {
			return mcpgo.NewToolResultError("a and b must be numbers"), nil
		}
		return mcpgo.NewToolResultText(fmt.Sprint(a + b)), nil
	})
	ts := server.NewTestServer(s)
	t.Cleanup(ts.Close)
	return ts
}

func connect(t *testing.T, spec ServerSpec) *Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sess, err := Connect(ctx, spec)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })
	return sess
}

func TestSessionHandshakeListAndCall(t *testing.T) {
	ts := newCalculator(t)
	sess := connect(t, ServerSpec{Name: "calculator", URL: ts.URL + "/sse"})
	assert.Equal(t, "calculator", sess.Name())

	ctx := context.Background()
	tools, err := sess.ListTools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "add", tools[0].Name)
	assert.Equal(t, "adds two numbers", tools[0].Description)

	var schema struct {
		Type       string         `json:"type"`
		Properties map[string]any `json:"properties"`
		Required   []string       `json:"required"`
	}
	require.NoError(t, json.Unmarshal(tools[0].InputSchema, &schema))
	assert.Equal(t, "object", schema.Type)
	assert.Contains(t, schema.Properties, "a")
	assert.ElementsMatch(t, []string{"a", "b"}, schema.Required)

	res, err := sess.CallTool(ctx, "add", json.RawMessage(`{"a":2,"b":3}`))
	require.NoError(t, err)
	assert.Equal(t, CallResult{Text: "5"}, res)
}

func TestToolErrorsAreFlagged(t *testing.T) {
	ts := newCalculator(t)
	sess := connect(t, ServerSpec{Name: "calculator", URL: ts.URL + "/sse"})

	res, err := sess.CallTool(context.Background(), "add", nil)
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, "a and b must be numbers", res.Text)

	_, err = sess.CallTool(context.Background(), "add", json.RawMessage(`not json`))
	assert.Error(t, err)
}

func TestUnknownToolReturnsError(t *testing.T) {
	ts := newCalculator(t)
	sess := connect(t, ServerSpec{Name: "calculator", URL: ts.URL + "/sse"})

	_, err := sess.CallTool(context.Background(), "divide", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "call divide")
}

func TestHeadersReachServer(t *testing.T) {
	backend := newCalculator(t)
	var (
		mu   sync.Mutex
		seen []string
	)
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get("Authorization"))
		mu.Unlock()
		backend.Config.Handler.ServeHTTP(w, r)
	}))
	t.Cleanup(proxy.Close)

	connect(t, ServerSpec{
		Name:    "firecrawl",
		URL:     proxy.URL + "/sse",
		Headers: map[string]string{"Authorization": "Bearer fc-key"},
	})

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	assert.Equal(t, "Bearer fc-key", seen[0])
}

func TestCallAfterCloseFails(t *testing.T) {
	ts := newCalculator(t)
	sess := connect(t, ServerSpec{Name: "calculator", URL: ts.URL + "/sse"})

	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())

	_, err := sess.CallTool(context.Background(), "add", json.RawMessage(`{"a":1,"b":1}`))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = sess.ListTools(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestConnectRejectsBadStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	_, err := Connect(context.Background(), ServerSpec{Name: "firecrawl", URL: ts.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestConnectHonoursContext(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := Connect(ctx, ServerSpec{Name: "slow", URL: ts.URL})
	assert.Error(t, err)
}

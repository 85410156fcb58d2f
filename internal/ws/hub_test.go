package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macdonc2/llm-app-template/internal/domain"
)

type chanSubscriber struct {
	mu      sync.Mutex
	got     chan []byte
	failing bool
	closed  bool
}

func newChanSubscriber() *chanSubscriber {
	return &chanSubscriber{got: make(chan []byte, 8)}
}

func (c *chanSubscriber) Send(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return errors.New("broken pipe")
	}
	c.got <- p
	return nil
}

func (c *chanSubscriber) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *chanSubscriber) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHubRoutesEventsByUser(t *testing.T) {
	hub := NewHub(discardLogger())
	defer hub.Stop()

	alice, bob := newChanSubscriber(), newChanSubscriber()
	hub.Register("alice", alice)
	hub.Register("bob", bob)
	require.Equal(t, 1, hub.Subscribers("alice"))

	hub.Publish(domain.AgentEvent{RunID: "r1", UserID: "alice", Type: domain.AgentEventRunStarted})

	select {
	case payload := <-alice.got:
		var ev domain.AgentEvent
		require.NoError(t, json.Unmarshal(payload, &ev))
		assert.Equal(t, "r1", ev.RunID)
		assert.Equal(t, domain.AgentEventRunStarted, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("alice did not receive the event")
	}
	assert.Equal(t, 1, hub.Subscribers("bob"))
	assert.Empty(t, bob.got)
}

func TestHubDropsFailingSubscribers(t *testing.T) {
	hub := NewHub(discardLogger())
	defer hub.Stop()

	sub := newChanSubscriber()
	sub.failing = true
	hub.Register("u", sub)
	hub.Publish(domain.AgentEvent{UserID: "u", Type: domain.AgentEventToolCall})

	assert.Eventually(t, func() bool { return hub.Subscribers("u") == 0 }, time.Second, 5*time.Millisecond)
	assert.True(t, sub.isClosed())
}

type stalledSubscriber struct {
	once    sync.Once
	release chan struct{}
	sends   chan struct{}
}

func (s *stalledSubscriber) Send([]byte) error {
	select {
	case s.sends <- struct{}{}:
	default:
	}
	<-s.release
	return io.EOF
}

func (s *stalledSubscriber) Close() {
	s.once.Do(func() { close(s.release) })
}

func (s *stalledSubscriber) isClosed() bool {
	select {
	case <-s.release:
		return true
	default:
		return false
	}
}

func TestStalledSubscriberDoesNotBlockOthers(t *testing.T) {
	hub := NewHub(discardLogger())
	defer hub.Stop()

	stalled := &stalledSubscriber{release: make(chan struct{}), sends: make(chan struct{}, 1)}
	healthy := newChanSubscriber()
	hub.Register("u", stalled)
	hub.Register("u", healthy)

	published := make(chan struct{})
	go func() {
		defer close(published)
		for i := 0; i < queueSize+2; i++ {
			hub.Publish(domain.AgentEvent{RunID: fmt.Sprint(i), UserID: "u", Type: domain.AgentEventToolResult})
			<-healthy.got
			if i == 0 {
				<-stalled.sends
			}
		}
	}()

	select {
	case <-published:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a stalled subscriber")
	}
	assert.Equal(t, 1, hub.Subscribers("u"))
	assert.Eventually(t, stalled.isClosed, time.Second, 5*time.Millisecond)
	assert.False(t, healthy.isClosed())
}

func TestHubStopClosesSubscribers(t *testing.T) {
	hub := NewHub(discardLogger())
	sub := newChanSubscriber()
	hub.Register("u", sub)
	hub.Unregister("nobody", sub)
	hub.Stop()
	hub.Stop()

	assert.True(t, sub.isClosed())
	assert.Equal(t, 0, hub.Subscribers("u"))
	hub.Publish(domain.AgentEvent{UserID: "u"})
}

func TestSSEClientFramesEvents(t *testing.T) {
	rec := httptest.NewRecorder()
	client := NewSSEClient(rec, rec, discardLogger())

	require.NoError(t, client.Send([]byte(`{"type":"run_started"}`)))
	require.NoError(t, client.Heartbeat())
	client.Close()

	select {
	case <-client.Done():
	default:
		t.Fatal("done not closed")
	}
	assert.ErrorIs(t, client.Send([]byte("x")), io.EOF)

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "event: agent\ndata: {\"type\":\"run_started\"}\n\n"))
	assert.Contains(t, body, ": ping\n\n")
}

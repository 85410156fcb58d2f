// Package ws fans agent run events out to websocket and SSE subscribers.
package ws

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/macdonc2/llm-app-template/internal/domain"
)

// queueSize bounds the events buffered per subscriber. A subscriber that
// falls this far behind is dropped.
const queueSize = 32

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub manages event subscriptions by user ID.
type Hub struct {
	clients   map[string]map[Subscriber]*peer
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
	count     chan countRequest
	stop      chan struct{}
	done      chan struct{}
	log       *slog.Logger
}

// peer owns the outbound queue of one subscriber and the goroutine
// draining it.
type peer struct {
	client Subscriber
	queue  chan []byte
	once   sync.Once
}

func (p *peer) pump(h *Hub, userID string) {
	for payload := range p.queue {
		if err := p.client.Send(payload); err != nil {
			p.closeClient()
			go h.Unregister(userID, p.client)
			for range p.queue {
			}
			return
		}
	}
}

func (p *peer) closeClient() {
	p.once.Do(p.client.Close)
}

type message struct {
	userID  string
	payload []byte
}

type subscription struct {
	userID string
	client Subscriber
}

type countRequest struct {
	userID string
	reply  chan int
}

// NewHub creates a running Hub. Call Stop to release it.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	h := &Hub{
		clients:   make(map[string]map[Subscriber]*peer),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message),
		count:     make(chan countRequest),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		log:       log,
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	defer close(h.done)
	for {
		select {
		case sub := <-h.register:
			clients, ok := h.clients[sub.userID]
			if !ok {
				clients = make(map[Subscriber]*peer)
				h.clients[sub.userID] = clients
			}
			if _, dup := clients[sub.client]; dup {
				continue
			}
			p := &peer{client: sub.client, queue: make(chan []byte, queueSize)}
			clients[sub.client] = p
			go p.pump(h, sub.userID)
		case sub := <-h.unreg:
			if p, ok := h.clients[sub.userID][sub.client]; ok {
				h.remove(sub.userID, p, false)
			}
		case msg := <-h.broadcast:
			for _, p := range h.clients[msg.userID] {
				select {
				case p.queue <- msg.payload:
				default:
					h.log.Warn("dropping slow event subscriber", "user_id", msg.userID, "queued", len(p.queue))
					h.remove(msg.userID, p, true)
				}
			}
		case req := <-h.count:
			req.reply <- len(h.clients[req.userID])
		case <-h.stop:
			for userID, clients := range h.clients {
				for _, p := range clients {
					h.remove(userID, p, false)
					p.closeClient()
				}
			}
			return
		}
	}
}

// remove detaches p and ends its pump. Closing an evicted client may
// block behind a stalled write, so it runs off the hub goroutine.
func (h *Hub) remove(userID string, p *peer, evict bool) {
	clients := h.clients[userID]
	delete(clients, p.client)
	if len(clients) == 0 {
		delete(h.clients, userID)
	}
	close(p.queue)
	if evict {
		go p.closeClient()
	}
}

// Register adds a client to a user's stream.
func (h *Hub) Register(userID string, client Subscriber) {
	select {
	case h.register <- subscription{userID: userID, client: client}:
	case <-h.done:
		client.Close()
	}
}

// Unregister removes a client.
func (h *Hub) Unregister(userID string, client Subscriber) {
	select {
	case h.unreg <- subscription{userID: userID, client: client}:
	case <-h.done:
	}
}

// Subscribers reports how many clients listen for userID.
func (h *Hub) Subscribers(userID string) int {
	reply := make(chan int, 1)
	select {
	case h.count <- countRequest{userID: userID, reply: reply}:
		return <-reply
	case <-h.done:
		return 0
	}
}

// Publish encodes ev and queues it for the subscribers of ev.UserID. It
// never waits on a subscriber's connection.
func (h *Hub) Publish(ev domain.AgentEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.log.Warn("encode agent event failed", "run_id", ev.RunID, "error", err)
		return
	}
	select {
	case h.broadcast <- message{userID: ev.UserID, payload: payload}:
	case <-h.done:
	}
}

// Stop closes every subscriber and ends the hub loop.
func (h *Hub) Stop() {
	select {
	case <-h.done:
		return
	default:
	}
	close(h.stop)
	<-h.done
}

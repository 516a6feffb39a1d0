package transport

import (
	"context"
	"math/rand/v2"
	"sync"
)

// Hub connects transports living in the same process. In manual mode
// payloads queue up until Flush is called, which lets tests pick the order.
type Hub struct {
	mu     sync.Mutex
	rooms  map[string]map[*HubConn]bool
	manual bool
	queue  []delivery
}

type delivery struct {
	to      *HubConn
	payload []byte
}

type HubOption func(*Hub)

func WithManualDelivery() HubOption {
	return func(h *Hub) { h.manual = true }
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{rooms: make(map[string]map[*HubConn]bool)}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Connect returns a new endpoint on the hub.
func (h *Hub) Connect() *HubConn {
	return &HubConn{hub: h}
}

// Pending is the number of queued payloads in manual mode.
func (h *Hub) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.queue)
}

// Flush delivers every queued payload in send order, including ones queued
// while flushing.
func (h *Hub) Flush() int {
	return h.flush(nil)
}

// FlushShuffled delivers queued payloads in a random order.
func (h *Hub) FlushShuffled(rng *rand.Rand) int {
	return h.flush(rng)
}

func (h *Hub) flush(rng *rand.Rand) int {
	n := 0
	for {
		h.mu.Lock()
		batch := h.queue
		h.queue = nil
		h.mu.Unlock()
		if len(batch) == 0 {
			return n
		}
		if rng != nil {
			rng.Shuffle(len(batch), func(i, j int) { batch[i], batch[j] = batch[j], batch[i] })
		}
		for _, d := range batch {
			if d.to.deliver(d.payload) {
				n++
			}
		}
	}
}

// HubConn is one peer's endpoint.
type HubConn struct {
	hub *Hub

	mu      sync.Mutex
	room    string
	handler Handler
	inbox   chan []byte
	done    chan struct{}
	down    bool
}

func (c *HubConn) Join(_ context.Context, room string, h Handler) error {
	c.mu.Lock()
	c.room, c.handler = room, h
	if !c.hub.manual {
		c.inbox = make(chan []byte, 256)
		c.done = make(chan struct{})
		go c.pump(c.inbox, c.done, h)
	}
	c.mu.Unlock()

	c.hub.mu.Lock()
	members := c.hub.rooms[room]
	if members == nil {
		members = make(map[*HubConn]bool)
		c.hub.rooms[room] = members
	}
	members[c] = true
	c.hub.mu.Unlock()

	h.Link(true)
	return nil
}

func (c *HubConn) pump(inbox <-chan []byte, done chan<- struct{}, h Handler) {
	defer close(done)
	for p := range inbox {
		h.Message(p)
	}
}

func (c *HubConn) Send(_ context.Context, payload []byte) error {
	c.mu.Lock()
	room, down := c.room, c.down
	c.mu.Unlock()
	if room == "" {
		return ErrNotJoined
	}
	if down {
		return ErrNotConnected
	}

	c.hub.mu.Lock()
	var targets []*HubConn
	for m := range c.hub.rooms[room] {
		if m != c {
			targets = append(targets, m)
		}
	}
	if c.hub.manual {
		for _, m := range targets {
			c.hub.queue = append(c.hub.queue, delivery{to: m, payload: payload})
		}
		targets = nil
	}
	c.hub.mu.Unlock()

	for _, m := range targets {
		m.deliver(payload)
	}
	return nil
}

func (c *HubConn) deliver(payload []byte) bool {
	c.mu.Lock()
	h, inbox := c.handler, c.inbox
	if h == nil || c.down {
		c.mu.Unlock()
		return false
	}
	if inbox != nil {
		inbox <- payload
		c.mu.Unlock()
		return true
	}
	c.mu.Unlock()
	h.Message(payload)
	return true
}

// SetLink simulates the link dropping or coming back.
func (c *HubConn) SetLink(up bool) {
	c.mu.Lock()
	h := c.handler
	changed := c.down == up
	c.down = !up
	c.mu.Unlock()
	if h != nil && changed {
		h.Link(up)
	}
}

func (c *HubConn) Leave() error {
	c.mu.Lock()
	room := c.room
	inbox, done := c.inbox, c.done
	c.room, c.handler, c.inbox = "", nil, nil
	c.mu.Unlock()

	if room != "" {
		c.hub.mu.Lock()
		delete(c.hub.rooms[room], c)
		if len(c.hub.rooms[room]) == 0 {
			delete(c.hub.rooms, room)
		}
		c.hub.mu.Unlock()
	}
	if inbox != nil {
		close(inbox)
		<-done
	}
	return nil
}

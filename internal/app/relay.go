package app

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"moodpad/internal/collab"
	"moodpad/internal/rbac"
	"moodpad/internal/transport"
	"moodpad/internal/util"
)

const (
	relayWriteWait  = 10 * time.Second
	relayPongWait   = 60 * time.Second
	relayPingPeriod = relayPongWait * 9 / 10
	relayMaxMessage = 1 << 20
	relaySendBuffer = 256
)

// Relay forwards opaque room payloads between websocket peers. With a Redis
// client, traffic also crosses to other relay nodes and to peers using the
// Redis transport directly.
type Relay struct {
	node  string
	redis *redis.Client

	mu    sync.Mutex
	rooms map[string]*relayRoom
}

type relayRoom struct {
	name    string
	members map[*relayConn]bool
	pubsub  *redis.PubSub
	done    chan struct{}
}

type relayConn struct {
	id   string
	room string
	role rbac.Role
	ws   *websocket.Conn
	send chan []byte
}

// NewRelay creates a relay. client may be nil.
func NewRelay(client *redis.Client) *Relay {
	return &Relay{
		node:  util.NewID("relay"),
		redis: client,
		rooms: make(map[string]*relayRoom),
	}
}

// Members is the number of local connections in room.
func (r *Relay) Members(room string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rm := r.rooms[room]; rm != nil {
		return len(rm.members)
	}
	return 0
}

// Serve runs one peer until its socket closes.
func (r *Relay) Serve(ctx context.Context, ws *websocket.Conn, room string, role rbac.Role) {
	c := &relayConn{
		id:   util.NewID("conn"),
		room: room,
		role: role,
		ws:   ws,
		send: make(chan []byte, relaySendBuffer),
	}
	r.join(ctx, c)
	defer r.leave(c)

	go c.writeLoop()

	ws.SetReadLimit(relayMaxMessage)
	_ = ws.SetReadDeadline(time.Now().Add(relayPongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(relayPongWait))
	})
	for {
		_, payload, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("relay: read from %s: %v", c.id, err)
			}
			return
		}
		// viewers may only announce themselves so editors answer with state
		if !rbac.Can(c.role, rbac.ActionWrite) && !collab.ReadOnlyFrame(payload) {
			continue
		}
		r.broadcast(room, c, payload)
		r.publish(ctx, room, c, payload)
	}
}

func (r *Relay) join(ctx context.Context, c *relayConn) {
	r.mu.Lock()
	rm := r.rooms[c.room]
	fresh := rm == nil
	if fresh {
		rm = &relayRoom{name: c.room, members: make(map[*relayConn]bool)}
		r.rooms[c.room] = rm
	}
	rm.members[c] = true
	r.mu.Unlock()

	if fresh && r.redis != nil {
		r.subscribe(ctx, rm)
	}
}

// subscribe runs without r.mu held. If the room emptied in the meantime the
// subscription is dropped.
func (r *Relay) subscribe(ctx context.Context, rm *relayRoom) {
	channel := transport.RedisChannel(rm.name)
	ps := r.redis.Subscribe(context.WithoutCancel(ctx), channel)
	if _, err := ps.Receive(ctx); err != nil {
		log.Printf("relay: subscribe %s: %v", channel, err)
		_ = ps.Close()
		return
	}

	r.mu.Lock()
	if r.rooms[rm.name] != rm {
		r.mu.Unlock()
		_ = ps.Close()
		return
	}
	done := make(chan struct{})
	rm.pubsub, rm.done = ps, done
	r.mu.Unlock()
	go r.listen(rm.name, ps.Channel(), done)
}

func (r *Relay) listen(room string, msgs <-chan *redis.Message, done chan<- struct{}) {
	defer close(done)
	for msg := range msgs {
		var env transport.Envelope
		if err := msgpack.Unmarshal([]byte(msg.Payload), &env); err != nil {
			log.Printf("relay: decode redis payload: %v", err)
			continue
		}
		if strings.HasPrefix(env.From, r.node+"/") {
			continue
		}
		r.broadcast(room, nil, env.Body)
	}
}

func (r *Relay) leave(c *relayConn) {
	r.mu.Lock()
	rm := r.rooms[c.room]
	var ps *redis.PubSub
	var done chan struct{}
	if rm != nil {
		delete(rm.members, c)
		if len(rm.members) == 0 {
			delete(r.rooms, c.room)
			ps, done = rm.pubsub, rm.done
		}
	}
	close(c.send)
	r.mu.Unlock()

	if ps != nil {
		_ = ps.Close()
		<-done
	}
}

// broadcast queues payload for every local member except from. A member
// whose buffer is full is disconnected.
func (r *Relay) broadcast(room string, from *relayConn, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm := r.rooms[room]
	if rm == nil {
		return
	}
	for m := range rm.members {
		if m == from {
			continue
		}
		select {
		case m.send <- payload:
		default:
			log.Printf("relay: %s is too slow, dropping connection", m.id)
			_ = m.ws.Close()
		}
	}
}

func (r *Relay) publish(ctx context.Context, room string, from *relayConn, payload []byte) {
	if r.redis == nil {
		return
	}
	b, err := msgpack.Marshal(transport.Envelope{From: r.node + "/" + from.id, Body: payload})
	if err != nil {
		log.Printf("relay: encode envelope: %v", err)
		return
	}
	if err := r.redis.Publish(ctx, transport.RedisChannel(room), b).Err(); err != nil {
		log.Printf("relay: publish %s: %v", room, err)
	}
}

func (c *relayConn) writeLoop() {
	ticker := time.NewTicker(relayPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(relayWriteWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.BinaryMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(relayWriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every local peer.
func (r *Relay) Close() {
	r.mu.Lock()
	var conns []*websocket.Conn
	for _, rm := range r.rooms {
		for m := range rm.members {
			conns = append(conns, m.ws)
		}
	}
	r.mu.Unlock()
	for _, ws := range conns {
		_ = ws.Close()
	}
}

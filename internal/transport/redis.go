package transport

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// Envelope tags each published payload with its sender so a peer can drop
// its own echo. The relay in cmd/api publishes the same shape.
type Envelope struct {
	From string `msgpack:"f"`
	Body []byte `msgpack:"b"`
}

// Redis relays payloads through a pub/sub channel per room.
type Redis struct {
	client *redis.Client
	peer   string

	mu      sync.Mutex
	channel string
	pubsub  *redis.PubSub
	done    chan struct{}
	leaving bool
}

const redisRoomPrefix = "moodpad:room:"

// RedisChannel is the pub/sub channel carrying room traffic.
func RedisChannel(room string) string {
	return redisRoomPrefix + room
}

func NewRedis(client *redis.Client, peerID string) *Redis {
	return &Redis{client: client, peer: peerID}
}

func (r *Redis) Join(ctx context.Context, room string, h Handler) error {
	channel := RedisChannel(room)
	ps := r.client.Subscribe(ctx, channel)
	// wait for the subscription to be confirmed before reporting a live link
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}

	done := make(chan struct{})
	r.mu.Lock()
	r.channel, r.pubsub, r.done, r.leaving = channel, ps, done, false
	r.mu.Unlock()

	h.Link(true)
	go r.listen(ps.Channel(), done, h)
	return nil
}

func (r *Redis) listen(msgs <-chan *redis.Message, done chan<- struct{}, h Handler) {
	defer close(done)
	for msg := range msgs {
		var env Envelope
		if err := msgpack.Unmarshal([]byte(msg.Payload), &env); err != nil {
			log.Printf("transport: decode redis payload: %v", err)
			continue
		}
		if env.From == r.peer {
			continue
		}
		h.Message(env.Body)
	}
	r.mu.Lock()
	leaving := r.leaving
	r.mu.Unlock()
	if !leaving {
		h.Link(false)
	}
}

func (r *Redis) Send(ctx context.Context, payload []byte) error {
	r.mu.Lock()
	channel := r.channel
	r.mu.Unlock()
	if channel == "" {
		return ErrNotJoined
	}
	b, err := msgpack.Marshal(Envelope{From: r.peer, Body: payload})
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := r.client.Publish(ctx, channel, b).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

func (r *Redis) Leave() error {
	r.mu.Lock()
	ps, done := r.pubsub, r.done
	r.leaving = true
	r.channel, r.pubsub = "", nil
	r.mu.Unlock()
	if ps == nil {
		return nil
	}
	err := ps.Close()
	<-done
	return err
}

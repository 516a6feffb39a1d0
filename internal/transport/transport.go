// Package transport moves opaque collaboration payloads between peers in a
// room. Implementations never look inside the bytes.
package transport

import (
	"context"
	"errors"
)

var (
	ErrNotJoined    = errors.New("transport has not joined a room")
	ErrNotConnected = errors.New("transport is not connected")
	ErrUnauthorized = errors.New("relay rejected the room token")
)

// Handler receives events from a transport. Calls may come from any
// goroutine.
type Handler interface {
	// Message delivers a payload sent by another peer in the room.
	Message(payload []byte)
	// Link reports that the link to the room came up or went down.
	Link(up bool)
}

type Transport interface {
	Join(ctx context.Context, room string, h Handler) error
	Send(ctx context.Context, payload []byte) error
	// Leave detaches synchronously. No Handler call happens after it returns.
	Leave() error
}

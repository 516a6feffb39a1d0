package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
)

// WebSocket connects to the relay served by cmd/api and reconnects with
// exponential backoff until Leave.
type WebSocket struct {
	baseURL string
	token   string
	dialer  *websocket.Dialer

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
	left   bool
}

// NewWebSocket takes the relay base, e.g. ws://localhost:8080, and the room
// token issued by POST /api/rooms/{room}/tokens.
func NewWebSocket(baseURL, token string) *WebSocket {
	return &WebSocket{
		baseURL: baseURL,
		token:   token,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

func (w *WebSocket) roomURL(room string) string {
	return fmt.Sprintf("%s/ws/rooms/%s?token=%s", w.baseURL, url.PathEscape(room), url.QueryEscape(w.token))
}

func (w *WebSocket) Join(ctx context.Context, room string, h Handler) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return errors.New("websocket transport already joined")
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w.cancel, w.done, w.left = cancel, make(chan struct{}), false
	done := w.done
	w.mu.Unlock()

	go w.run(runCtx, w.roomURL(room), h, done)
	return nil
}

func (w *WebSocket) run(ctx context.Context, target string, h Handler, done chan<- struct{}) {
	defer close(done)
	for ctx.Err() == nil {
		var conn *websocket.Conn
		b := backoff.NewExponentialBackOff()
		b.MaxElapsedTime = 0
		err := backoff.Retry(func() error {
			c, resp, err := w.dialer.DialContext(ctx, target, nil)
			if err != nil {
				if resp != nil && resp.StatusCode == http.StatusUnauthorized {
					return backoff.Permanent(fmt.Errorf("%w: %w", ErrUnauthorized, err))
				}
				return err
			}
			conn = c
			return nil
		}, backoff.WithContext(b, ctx))
		if err != nil {
			// a rejected token will not start working on retry
			if errors.Is(err, ErrUnauthorized) {
				log.Printf("transport: relay rejected token: %v", err)
				h.Link(false)
			}
			return
		}

		w.mu.Lock()
		if w.left {
			w.mu.Unlock()
			_ = conn.Close()
			return
		}
		w.conn = conn
		w.mu.Unlock()
		h.Link(true)

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				break
			}
			h.Message(data)
		}

		w.mu.Lock()
		w.conn = nil
		left := w.left
		w.mu.Unlock()
		_ = conn.Close()
		if left {
			return
		}
		h.Link(false)
	}
}

func (w *WebSocket) Send(_ context.Context, payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel == nil {
		return ErrNotJoined
	}
	if w.conn == nil {
		return ErrNotConnected
	}
	if err := w.conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		return fmt.Errorf("write relay message: %w", err)
	}
	return nil
}

func (w *WebSocket) Leave() error {
	w.mu.Lock()
	cancel, done, conn := w.cancel, w.done, w.conn
	w.left = true
	w.cancel, w.conn = nil, nil
	w.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}
	<-done
	return nil
}

package editor

import (
	"context"
	"sync"
)

// queue serializes work onto the goroutine that owns the document.
type queue struct {
	mu     sync.Mutex
	items  []func()
	signal chan struct{}
}

func newQueue() *queue {
	return &queue{signal: make(chan struct{}, 1)}
}

func (q *queue) post(fn func()) {
	q.mu.Lock()
	q.items = append(q.items, fn)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// drain runs queued work, including work queued while draining, and reports
// how many items ran.
func (q *queue) drain() int {
	n := 0
	for {
		q.mu.Lock()
		items := q.items
		q.items = nil
		q.mu.Unlock()
		if len(items) == 0 {
			return n
		}
		for _, fn := range items {
			fn()
			n++
		}
	}
}

func (q *queue) run(ctx context.Context) error {
	for {
		q.drain()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.signal:
		}
	}
}

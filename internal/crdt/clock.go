package crdt

import (
	"sync"
	"time"
)

// Clock is a hybrid logical clock. Timestamps pack milliseconds since the
// epoch in the high 48 bits and a logical counter in the low 16 bits.
type Clock struct {
	mu     sync.Mutex
	latest int64
	wall   func() int64
}

const logicalMask = 0xFFFF

func NewClock() *Clock {
	return &Clock{wall: func() int64 { return time.Now().UnixMilli() }}
}

// Now returns a timestamp strictly greater than anything returned or
// observed before.
func (c *Clock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	phys := c.wall()
	oldPhys, oldLogical := c.latest>>16, c.latest&logicalMask

	var newPhys, newLogical int64
	if phys > oldPhys {
		newPhys = phys
	} else {
		newPhys, newLogical = oldPhys, oldLogical+1
	}
	c.latest = pack(newPhys, newLogical)
	return c.latest
}

// Observe folds a remote timestamp into the clock.
func (c *Clock) Observe(remote int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	phys := c.wall()
	remotePhys, remoteLogical := remote>>16, remote&logicalMask
	oldPhys, oldLogical := c.latest>>16, c.latest&logicalMask

	newPhys := max(oldPhys, remotePhys, phys)
	var newLogical int64
	switch {
	case newPhys == oldPhys && newPhys == remotePhys:
		newLogical = max(oldLogical, remoteLogical) + 1
	case newPhys == oldPhys:
		newLogical = oldLogical + 1
	case newPhys == remotePhys:
		newLogical = remoteLogical + 1
	}
	c.latest = pack(newPhys, newLogical)
}

func pack(phys, logical int64) int64 {
	// borrow from the physical part instead of wrapping the counter
	if logical > logicalMask {
		phys++
		logical = 0
	}
	return phys<<16 | logical
}

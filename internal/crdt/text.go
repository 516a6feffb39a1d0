// Package crdt implements a replicated text as an RGA over runes.
package crdt

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// HeadID is the invisible vertex every replica starts from.
const HeadID = "head"

var ErrOutOfRange = errors.New("position out of range")

type OpKind uint8

const (
	OpInsert OpKind = iota + 1
	OpDelete
)

// Op is one replicated edit. Inserts carry a single rune.
type Op struct {
	Kind      OpKind `msgpack:"k"`
	ID        string `msgpack:"i"`
	Origin    string `msgpack:"o,omitempty"`
	Timestamp int64  `msgpack:"t,omitempty"`
	Value     rune   `msgpack:"v,omitempty"`
}

type vertex struct {
	id        string
	value     rune
	origin    string
	next      string
	timestamp int64
	deleted   bool
}

// Text is not safe for concurrent use.
type Text struct {
	clock    *Clock
	vertices map[string]*vertex
	edges    map[string][]*vertex

	// ops whose origin has not arrived yet, keyed by that origin
	pending map[string][]Op
	// deletes that arrived before their insert
	tombstones map[string]bool
}

func NewText(clock *Clock) *Text {
	if clock == nil {
		clock = NewClock()
	}
	return &Text{
		clock:      clock,
		vertices:   map[string]*vertex{HeadID: {id: HeadID, deleted: true}},
		edges:      make(map[string][]*vertex),
		pending:    make(map[string][]Op),
		tombstones: make(map[string]bool),
	}
}

func (t *Text) String() string {
	var out []rune
	for v := t.vertices[t.vertices[HeadID].next]; v != nil; v = t.vertices[v.next] {
		if !v.deleted {
			out = append(out, v.value)
		}
	}
	return string(out)
}

func (t *Text) Len() int {
	return len(t.visible())
}

func (t *Text) visible() []*vertex {
	var out []*vertex
	for v := t.vertices[t.vertices[HeadID].next]; v != nil; v = t.vertices[v.next] {
		if !v.deleted {
			out = append(out, v)
		}
	}
	return out
}

// Insert places s before the visible rune at pos and returns the ops to
// broadcast.
func (t *Text) Insert(pos int, s string) ([]Op, error) {
	vis := t.visible()
	if pos < 0 || pos > len(vis) {
		return nil, fmt.Errorf("insert at %d of %d: %w", pos, len(vis), ErrOutOfRange)
	}
	origin := HeadID
	if pos > 0 {
		origin = vis[pos-1].id
	}
	var ops []Op
	for _, r := range s {
		op := Op{
			Kind:      OpInsert,
			ID:        uuid.Must(uuid.NewV7()).String(),
			Origin:    origin,
			Timestamp: t.clock.Now(),
			Value:     r,
		}
		t.integrate(op)
		ops = append(ops, op)
		origin = op.ID
	}
	return ops, nil
}

// Seed inserts s at the start with ids derived from ns, each rune's
// predecessor and the rune itself, and timestamp zero. Replicas that seed
// the same text under the same ns end up with the same vertices, so merging
// them keeps one copy.
func (t *Text) Seed(ns uuid.UUID, s string) []Op {
	origin := HeadID
	ops := make([]Op, 0, len(s))
	for _, r := range s {
		op := Op{
			Kind:   OpInsert,
			ID:     uuid.NewSHA1(ns, []byte(origin+"/"+string(r))).String(),
			Origin: origin,
			Value:  r,
		}
		t.integrate(op)
		ops = append(ops, op)
		origin = op.ID
	}
	return ops
}

// Empty reports whether the replica has never integrated a vertex besides
// the head. Pending ops do not count.
func (t *Text) Empty() bool {
	return len(t.vertices) == 1
}

// Delete tombstones n visible runes starting at pos.
func (t *Text) Delete(pos, n int) ([]Op, error) {
	vis := t.visible()
	if pos < 0 || n < 0 || pos+n > len(vis) {
		return nil, fmt.Errorf("delete %d at %d of %d: %w", n, pos, len(vis), ErrOutOfRange)
	}
	ops := make([]Op, 0, n)
	for _, v := range vis[pos : pos+n] {
		v.deleted = true
		ops = append(ops, Op{Kind: OpDelete, ID: v.id})
	}
	return ops, nil
}

// Apply integrates remote ops. Ops may arrive in any order and more than
// once; ones whose origin is still unknown wait until it shows up.
func (t *Text) Apply(ops ...Op) {
	for _, op := range ops {
		t.integrate(op)
	}
}

func (t *Text) integrate(op Op) {
	switch op.Kind {
	case OpDelete:
		if v, ok := t.vertices[op.ID]; ok {
			v.deleted = true
			return
		}
		t.tombstones[op.ID] = true
	case OpInsert:
		if _, ok := t.vertices[op.ID]; ok {
			return
		}
		if _, ok := t.vertices[op.Origin]; !ok {
			t.pending[op.Origin] = append(t.pending[op.Origin], op)
			return
		}
		t.clock.Observe(op.Timestamp)
		t.link(&vertex{
			id:        op.ID,
			value:     op.Value,
			origin:    op.Origin,
			timestamp: op.Timestamp,
			deleted:   t.tombstones[op.ID],
		})
		delete(t.tombstones, op.ID)
		if waiting, ok := t.pending[op.ID]; ok {
			delete(t.pending, op.ID)
			for _, w := range waiting {
				t.integrate(w)
			}
		}
	}
}

// link inserts v after the last vertex of its preceding sibling's subtree,
// or right after its origin when it sorts first among the siblings.
func (t *Text) link(v *vertex) {
	t.vertices[v.id] = v
	siblings := append(t.edges[v.origin], v)
	sortChildren(siblings)
	t.edges[v.origin] = siblings

	at := t.vertices[v.origin]
	if rank := indexOf(siblings, v); rank > 0 {
		at = t.rightMost(siblings[rank-1])
	}
	v.next = at.next
	at.next = v.id
}

// sortChildren orders by timestamp, then id, both descending.
func sortChildren(children []*vertex) {
	sort.Slice(children, func(i, j int) bool {
		if children[i].timestamp != children[j].timestamp {
			return children[i].timestamp > children[j].timestamp
		}
		return children[i].id > children[j].id
	})
}

func (t *Text) rightMost(v *vertex) *vertex {
	for {
		children := t.edges[v.id]
		if len(children) == 0 {
			return v
		}
		v = children[len(children)-1]
	}
}

func indexOf(list []*vertex, v *vertex) int {
	for i, x := range list {
		if x == v {
			return i
		}
	}
	return -1
}

// State returns ops that rebuild this replica from scratch, tombstones
// included, in an order that never needs buffering.
func (t *Text) State() []Op {
	var ops, deletes []Op
	for v := t.vertices[t.vertices[HeadID].next]; v != nil; v = t.vertices[v.next] {
		ops = append(ops, Op{Kind: OpInsert, ID: v.id, Origin: v.origin, Timestamp: v.timestamp, Value: v.value})
		if v.deleted {
			deletes = append(deletes, Op{Kind: OpDelete, ID: v.id})
		}
	}
	return append(ops, deletes...)
}

// Pending reports how many ops are waiting for a missing origin.
func (t *Text) Pending() int {
	n := 0
	for _, ops := range t.pending {
		n += len(ops)
	}
	return n
}

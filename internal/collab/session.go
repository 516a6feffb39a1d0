// Package collab keeps a document's text converged with other peers in a
// room through a replicated text and a pluggable transport.
package collab

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"moodpad/internal/crdt"
	"moodpad/internal/document"
	"moodpad/internal/transport"
)

var (
	ErrTransport = errors.New("transport failure")
	ErrClosed    = errors.New("session closed")
)

type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// RoomID scopes a room to a page mode so happy and sad pages never share
// state.
func RoomID(mode, room string) string {
	return mode + "-" + room
}

const (
	kindOps   = "ops"
	kindHello = "hello"
	kindState = "state"
)

type message struct {
	Kind string    `msgpack:"k"`
	Peer string    `msgpack:"p"`
	Ops  []crdt.Op `msgpack:"o,omitempty"`
}

// ReadOnlyFrame reports whether payload is a hello without content, the only
// frame a read-only peer sends.
func ReadOnlyFrame(payload []byte) bool {
	var m message
	if err := msgpack.Unmarshal(payload, &m); err != nil {
		return false
	}
	return m.Kind == kindHello && len(m.Ops) == 0
}

type Options struct {
	// PeerID identifies this replica. A random id is used when empty.
	PeerID string
	// Text is the local document's current text. It goes into the room only
	// when the room turns out to be empty; otherwise the room's text replaces
	// it.
	Text string
	// ReadOnly sessions receive the room but never send edits.
	ReadOnly bool
	// Post runs fn on the goroutine that owns the document. Everything the
	// session does to its replica and callbacks goes through it.
	Post func(fn func())
	// SendTimeout bounds each transport send.
	SendTimeout time.Duration
}

type Session struct {
	room      string
	peer      string
	transport transport.Transport
	post      func(func())
	timeout   time.Duration
	readOnly  bool
	ns        uuid.UUID

	// owned by the post goroutine
	text   *crdt.Text
	synced bool
	// local document text, tracked until synced
	local string

	mu       sync.Mutex
	status   Status
	onStatus []func(Status)
	onRemote []func(Delta)

	closed atomic.Bool
}

// Join attaches to room over tr. The session starts out connecting and moves
// to connected once the transport reports a live link.
func Join(ctx context.Context, room string, tr transport.Transport, opts Options) (*Session, error) {
	s := &Session{
		room:      room,
		peer:      opts.PeerID,
		transport: tr,
		post:      opts.Post,
		timeout:   opts.SendTimeout,
		readOnly:  opts.ReadOnly,
		ns:        uuid.NewSHA1(uuid.NameSpaceURL, []byte("moodpad:room:"+room)),
		text:      crdt.NewText(nil),
		local:     opts.Text,
		status:    StatusConnecting,
	}
	if s.peer == "" {
		s.peer = uuid.NewString()
	}
	if s.timeout <= 0 {
		s.timeout = 5 * time.Second
	}
	if s.post == nil {
		var serial sync.Mutex
		s.post = func(fn func()) {
			serial.Lock()
			defer serial.Unlock()
			fn()
		}
	}
	if err := tr.Join(ctx, room, handler{s}); err != nil {
		s.setStatus(StatusDisconnected)
		return nil, fmt.Errorf("join room %s: %w: %w", room, ErrTransport, err)
	}
	return s, nil
}

func (s *Session) Room() string { return s.room }
func (s *Session) Peer() string { return s.peer }

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// OnStatus registers fn for status transitions.
func (s *Session) OnStatus(fn func(Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStatus = append(s.onStatus, fn)
}

// OnRemoteChange registers fn for text changes made by other peers. fn runs
// on the post goroutine.
func (s *Session) OnRemoteChange(fn func(Delta)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRemote = append(s.onRemote, fn)
}

// Text is the replica's current text. Call it from the post goroutine.
func (s *Session) Text() string {
	return s.text.String()
}

// Synced reports whether the replica has adopted the room or seeded it. Call
// it from the post goroutine.
func (s *Session) Synced() bool {
	return s.synced
}

func (s *Session) ReadOnly() bool { return s.readOnly }

// Leave detaches synchronously. After it returns no callback fires.
func (s *Session) Leave() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.setStatus(StatusDisconnected)
	if err := s.transport.Leave(); err != nil {
		return fmt.Errorf("leave room %s: %w", s.room, err)
	}
	return nil
}

// OnChange pushes local edits into the replica and out to the room.
// Remote-origin changes are already in the replica.
func (s *Session) OnChange(c document.Change) {
	if s.closed.Load() || c.Origin == document.OriginRemote || c.SelectionOnly() {
		return
	}
	if !s.synced {
		s.local = c.Doc.Text()
		return
	}
	if s.readOnly {
		return
	}
	s.syncLocal(c.Doc.Text())
}

func (s *Session) syncLocal(after string) {
	d := Diff(s.text.String(), after)
	if d.Empty() {
		return
	}
	var ops []crdt.Op
	if d.Delete > 0 {
		del, err := s.text.Delete(d.Pos, d.Delete)
		if err != nil {
			log.Printf("collab: %s: apply local delete: %v", s.room, err)
			return
		}
		ops = append(ops, del...)
	}
	if d.Insert != "" {
		ins, err := s.text.Insert(d.Pos, d.Insert)
		if err != nil {
			log.Printf("collab: %s: apply local insert: %v", s.room, err)
			return
		}
		ops = append(ops, ins...)
	}
	s.broadcast(kindOps, ops)
}

// broadcast sends only while connected. Anything missed goes out as full
// state when the link comes back.
func (s *Session) broadcast(kind string, ops []crdt.Op) {
	if s.Status() != StatusConnected || s.readOnly && kind != kindHello {
		return
	}
	payload, err := msgpack.Marshal(message{Kind: kind, Peer: s.peer, Ops: ops})
	if err != nil {
		log.Printf("collab: %s: encode %s: %v", s.room, kind, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.transport.Send(ctx, payload); err != nil {
		log.Printf("collab: %s: send %s: %v", s.room, kind, fmt.Errorf("%w: %w", ErrTransport, err))
		s.setStatus(StatusDisconnected)
	}
}

func (s *Session) receive(m message) {
	if m.Peer == s.peer {
		return
	}
	if !s.synced {
		s.text.Apply(m.Ops...)
		if m.Kind != kindOps || !s.text.Empty() {
			s.settle()
		}
		if m.Kind == kindHello {
			s.broadcast(kindState, s.text.State())
		}
		return
	}
	before := s.text.String()
	s.text.Apply(m.Ops...)
	if m.Kind == kindHello {
		s.broadcast(kindState, s.text.State())
	}
	s.emit(Diff(before, s.text.String()))
}

// settle ends the unsynced phase. A replica holding the room's content
// replaces the local text; in an empty room the local text becomes the
// room's, under ids every peer derives the same way.
func (s *Session) settle() {
	if !s.text.Empty() {
		s.synced = true
		s.emit(Diff(s.local, s.text.String()))
		s.local = ""
		return
	}
	if s.readOnly {
		return
	}
	ops := s.text.Seed(s.ns, s.local)
	s.synced = true
	s.local = ""
	if len(ops) > 0 {
		s.broadcast(kindOps, ops)
	}
}

func (s *Session) emit(d Delta) {
	if d.Empty() {
		return
	}
	s.mu.Lock()
	subs := append([]func(Delta){}, s.onRemote...)
	s.mu.Unlock()
	for _, fn := range subs {
		fn(d)
	}
}

func (s *Session) linkUp() {
	s.setStatus(StatusConnected)
	if s.readOnly {
		s.broadcast(kindHello, nil)
		return
	}
	s.broadcast(kindHello, s.text.State())
}

func (s *Session) setStatus(st Status) {
	s.mu.Lock()
	if s.status == st {
		s.mu.Unlock()
		return
	}
	s.status = st
	subs := append([]func(Status){}, s.onStatus...)
	s.mu.Unlock()
	for _, fn := range subs {
		fn(st)
	}
}

// handler adapts transport callbacks onto the post goroutine.
type handler struct{ s *Session }

func (h handler) Message(payload []byte) {
	var m message
	if err := msgpack.Unmarshal(payload, &m); err != nil {
		log.Printf("collab: %s: decode message: %v", h.s.room, err)
		return
	}
	h.s.post(func() {
		if !h.s.closed.Load() {
			h.s.receive(m)
		}
	})
}

func (h handler) Link(up bool) {
	h.s.post(func() {
		if h.s.closed.Load() {
			return
		}
		if up {
			h.s.linkUp()
			return
		}
		h.s.setStatus(StatusDisconnected)
	})
}

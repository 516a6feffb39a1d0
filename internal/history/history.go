// Package history keeps bounded undo and redo stacks of document changes.
package history

import (
	"errors"
	"fmt"
	"time"

	"moodpad/internal/document"
)

var ErrEmpty = errors.New("history is empty")

const (
	DefaultLimit = 100
	DefaultBurst = time.Second
)

// Entry pairs a change with the mutations that undo it.
type Entry struct {
	Forward []document.Mutation
	Inverse []document.Mutation
	At      time.Time
}

// Applier applies a batch tagged with an origin. *document.Document
// satisfies it.
type Applier interface {
	ApplyFrom(origin document.Origin, ms ...document.Mutation) error
}

type Option func(*Manager)

// WithLimit caps each stack. Older entries fall off the bottom.
func WithLimit(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.limit = n
		}
	}
}

// WithBurst sets the window inside which consecutive typing merges into one
// entry. Zero disables merging.
func WithBurst(d time.Duration) Option {
	return func(m *Manager) { m.burst = d }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

type Manager struct {
	doc    Applier
	undo   []Entry
	redo   []Entry
	limit  int
	burst  time.Duration
	now    func() time.Time
	broken bool
}

func New(doc Applier, opts ...Option) *Manager {
	m := &Manager{doc: doc, limit: DefaultLimit, burst: DefaultBurst, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnChange records local and remote edits. Changes made by Undo and Redo
// themselves, and selection-only changes, are skipped.
func (m *Manager) OnChange(c document.Change) {
	if c.Origin == document.OriginHistory || c.SelectionOnly() || len(c.Inverse) == 0 {
		return
	}
	m.Record(c.Forward, c.Inverse)
}

// Record pushes an entry and clears the redo stack.
func (m *Manager) Record(forward, inverse []document.Mutation) {
	now := m.now()
	m.redo = nil
	if n := len(m.undo); n > 0 && !m.broken && m.coalesces(m.undo[n-1], forward, now) {
		top := &m.undo[n-1]
		top.Forward = append(top.Forward, forward...)
		top.Inverse = append(append([]document.Mutation{}, inverse...), top.Inverse...)
		top.At = now
		return
	}
	m.broken = false
	m.undo = push(m.undo, Entry{Forward: forward, Inverse: inverse, At: now}, m.limit)
}

func (m *Manager) coalesces(top Entry, forward []document.Mutation, now time.Time) bool {
	if m.burst <= 0 || now.Sub(top.At) > m.burst {
		return false
	}
	return typing(top.Forward) && typing(forward)
}

func typing(ms []document.Mutation) bool {
	for _, mu := range ms {
		if _, ok := mu.(document.InsertText); !ok {
			return false
		}
	}
	return len(ms) > 0
}

// Break ends the current typing burst so the next edit starts a new entry.
func (m *Manager) Break() {
	m.broken = true
}

func (m *Manager) Undo() error {
	if len(m.undo) == 0 {
		return ErrEmpty
	}
	e := m.undo[len(m.undo)-1]
	if err := m.doc.ApplyFrom(document.OriginHistory, e.Inverse...); err != nil {
		return fmt.Errorf("undo: %w", err)
	}
	m.undo = m.undo[:len(m.undo)-1]
	m.redo = push(m.redo, e, m.limit)
	m.broken = true
	return nil
}

func (m *Manager) Redo() error {
	if len(m.redo) == 0 {
		return ErrEmpty
	}
	e := m.redo[len(m.redo)-1]
	if err := m.doc.ApplyFrom(document.OriginHistory, e.Forward...); err != nil {
		return fmt.Errorf("redo: %w", err)
	}
	m.redo = m.redo[:len(m.redo)-1]
	m.undo = push(m.undo, e, m.limit)
	m.broken = true
	return nil
}

func (m *Manager) CanUndo() bool { return len(m.undo) > 0 }
func (m *Manager) CanRedo() bool { return len(m.redo) > 0 }

func push(stack []Entry, e Entry, limit int) []Entry {
	stack = append(stack, e)
	if len(stack) > limit {
		stack = append(stack[:0], stack[len(stack)-limit:]...)
	}
	return stack
}

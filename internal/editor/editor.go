// Package editor wires a document to its decorations, command trigger,
// history and collaboration session, and serializes everything that touches
// it onto one queue.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"moodpad/internal/collab"
	"moodpad/internal/command"
	"moodpad/internal/decorate"
	"moodpad/internal/document"
	"moodpad/internal/history"
	"moodpad/internal/rewrite"
	"moodpad/internal/transport"
)

var (
	ErrClosed         = errors.New("editor closed")
	ErrRewritePending = errors.New("rewrite already in progress")
	ErrNoRewriter     = errors.New("no rewrite service configured")
	ErrReadOnly       = errors.New("document is read-only")
)

type Options struct {
	Tone     rewrite.Tone
	Rewriter rewrite.Service
	Registry *command.Registry
	Matcher  *decorate.Matcher
	History  []history.Option
	// RewriteTimeout bounds each rewrite call. Defaults to 30s.
	RewriteTimeout time.Duration
	// ReadOnly editors follow their room but only move the selection.
	ReadOnly bool

	OnError       func(error)
	OnDecorations func([]decorate.Decoration)
	OnTrigger     func(command.TriggerState)
	OnStatus      func(collab.Status)
}

// Editor owns a Document. Its methods must run on the goroutine that drains
// the queue; other goroutines hand work over with Post or Do.
type Editor struct {
	doc       *document.Document
	decorator *decorate.Engine
	trigger   *command.Trigger
	history   *history.Manager
	session   *collab.Session

	opts      Options
	queue     *queue
	rewriting bool
	closed    atomic.Bool
}

// New subscribes, in order, the decoration engine, the command trigger, the
// history manager and the collaboration hook to doc.
func New(doc *document.Document, opts Options) *Editor {
	if doc == nil {
		doc = document.Default()
	}
	if opts.Tone == "" {
		opts.Tone = rewrite.ToneUplift
	}
	if opts.RewriteTimeout <= 0 {
		opts.RewriteTimeout = rewrite.DefaultTimeout
	}
	e := &Editor{doc: doc, opts: opts, queue: newQueue()}
	e.decorator = decorate.NewEngine(opts.Matcher, opts.OnDecorations)
	e.trigger = command.NewTrigger(opts.Registry, opts.OnTrigger)
	e.history = history.New(doc, opts.History...)

	doc.Subscribe(e.decorator)
	doc.Subscribe(e.trigger)
	doc.Subscribe(e.history)
	doc.Subscribe(document.ListenerFunc(func(c document.Change) {
		if e.session != nil {
			e.session.OnChange(c)
		}
	}))
	e.decorator.Refresh(doc)
	return e
}

func (e *Editor) Document() *document.Document { return e.doc }
func (e *Editor) Text() string                 { return e.doc.Text() }
func (e *Editor) Tone() rewrite.Tone           { return e.opts.Tone }

func (e *Editor) Decorations() []decorate.Decoration { return e.decorator.Current() }
func (e *Editor) Trigger() command.TriggerState      { return e.trigger.State() }
func (e *Editor) History() *history.Manager          { return e.history }

// Post queues fn to run on the editor goroutine. Safe from any goroutine.
func (e *Editor) Post(fn func()) {
	e.queue.post(fn)
}

// Drain runs everything queued so far on the calling goroutine.
func (e *Editor) Drain() int {
	return e.queue.drain()
}

// Wake receives after Post queued work. Loops that own the editor, like a
// terminal UI, wait on it and call Drain instead of running Run.
func (e *Editor) Wake() <-chan struct{} {
	return e.queue.signal
}

// Run drains the queue until ctx is done.
func (e *Editor) Run(ctx context.Context) error {
	return e.queue.run(ctx)
}

// Do posts fn and waits for it to run. It needs a running Run loop.
func (e *Editor) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	e.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Editor) Apply(ms ...document.Mutation) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if e.opts.ReadOnly {
		for _, m := range ms {
			if _, ok := m.(document.SetSelection); !ok {
				return ErrReadOnly
			}
		}
	}
	return e.doc.Apply(ms...)
}

// Insert types text at the selection, replacing it when expanded.
func (e *Editor) Insert(text string) error {
	if err := e.deleteSelection(); err != nil {
		return err
	}
	return e.Apply(document.InsertText{At: e.doc.Selection().Focus, Text: text})
}

// Backspace deletes the selection, or the character before the cursor.
func (e *Editor) Backspace() error {
	sel := e.doc.Selection()
	if !sel.IsCollapsed() {
		return e.deleteSelection()
	}
	pos, err := e.doc.Linear(sel.Focus)
	if err != nil {
		return err
	}
	if pos == 0 {
		return nil
	}
	prev, err := e.doc.PointAt(pos - 1)
	if err != nil {
		return err
	}
	return e.Apply(document.DeleteRange{At: document.Range{Anchor: prev, Focus: sel.Focus}})
}

func (e *Editor) deleteSelection() error {
	sel := e.doc.Selection()
	if sel.IsCollapsed() {
		return nil
	}
	return e.Apply(document.DeleteRange{At: sel})
}

func (e *Editor) Select(r document.Range) error {
	return e.Apply(document.SetSelection{Selection: r})
}

// MoveToEnd collapses the selection at the end of the document.
func (e *Editor) MoveToEnd() error {
	return e.Select(document.Collapsed(e.doc.End()))
}

func (e *Editor) Undo() error {
	if e.opts.ReadOnly {
		return ErrReadOnly
	}
	e.history.Break()
	return e.history.Undo()
}

func (e *Editor) Redo() error {
	if e.opts.ReadOnly {
		return ErrReadOnly
	}
	return e.history.Redo()
}

func (e *Editor) NextCommand() error { return e.trigger.Next() }
func (e *Editor) PrevCommand() error { return e.trigger.Prev() }
func (e *Editor) CancelCommand()     { e.trigger.Cancel() }

// Confirm runs the highlighted command: the trigger token is deleted first,
// then the action runs at the token's start. A rewrite keeps the trigger
// executing until its result has been handled.
func (e *Editor) Confirm() error {
	if e.closed.Load() {
		return ErrClosed
	}
	if e.opts.ReadOnly {
		return ErrReadOnly
	}
	cmd, rng, err := e.trigger.Confirm()
	if err != nil {
		return err
	}
	start := rng.Start()
	e.history.Break()
	if err := e.doc.Apply(document.DeleteRange{At: rng}); err != nil {
		e.trigger.Finish()
		return fmt.Errorf("delete trigger token: %w", err)
	}
	if err := cmd.Action(target{e}, start); err != nil {
		e.trigger.Finish()
		return fmt.Errorf("run %s: %w", cmd.ID, err)
	}
	if !e.rewriting {
		e.trigger.Finish()
	}
	return nil
}

// target is the command.Target view of an editor.
type target struct{ e *Editor }

func (t target) Doc() *document.Document { return t.e.doc }

func (t target) Apply(ms ...document.Mutation) error { return t.e.Apply(ms...) }

func (t target) Rewrite(text string) error { return t.e.startRewrite(text) }

func (e *Editor) startRewrite(text string) error {
	if e.opts.Rewriter == nil {
		return ErrNoRewriter
	}
	if e.rewriting {
		return ErrRewritePending
	}
	e.rewriting = true
	req := rewrite.Request{Text: text, Tone: e.opts.Tone}
	svc, timeout := e.opts.Rewriter, e.opts.RewriteTimeout
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		out, err := svc.Rewrite(ctx, req)
		e.Post(func() { e.finishRewrite(out, err) })
	}()
	return nil
}

// finishRewrite replaces the whole document with one paragraph holding the
// result. Results arriving after Close are dropped.
func (e *Editor) finishRewrite(out string, err error) {
	if e.closed.Load() {
		return
	}
	e.rewriting = false
	defer e.trigger.Finish()
	if err != nil {
		e.report(fmt.Errorf("rewrite: %w", err))
		return
	}
	e.history.Break()
	if err := e.doc.Apply(replaceAll(e.doc, out)...); err != nil {
		e.report(fmt.Errorf("apply rewrite: %w", err))
	}
}

func replaceAll(doc *document.Document, text string) []document.Mutation {
	n := len(doc.Children())
	ms := []document.Mutation{document.InsertNode{At: document.Path{0}, Node: document.Paragraph(text)}}
	for i := 0; i < n; i++ {
		ms = append(ms, document.RemoveNode{At: document.Path{1}})
	}
	end := document.Point{Path: document.Path{0, 0}, Offset: len([]rune(text))}
	return append(ms, document.SetSelection{Selection: document.Collapsed(end)})
}

func (e *Editor) Rewriting() bool { return e.rewriting }

func (e *Editor) report(err error) {
	if e.opts.OnError != nil {
		e.opts.OnError(err)
		return
	}
	log.Printf("editor: %v", err)
}

// JoinRoom leaves the current room, if any, and joins room over tr.
func (e *Editor) JoinRoom(ctx context.Context, room string, tr transport.Transport, peerID string) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if err := e.LeaveRoom(); err != nil {
		log.Printf("editor: %v", err)
	}
	s, err := collab.Join(ctx, room, tr, collab.Options{
		PeerID:   peerID,
		Text:     e.doc.Text(),
		ReadOnly: e.opts.ReadOnly,
		Post:     e.Post,
	})
	if err != nil {
		return err
	}
	s.OnRemoteChange(e.applyRemote)
	if e.opts.OnStatus != nil {
		s.OnStatus(e.opts.OnStatus)
	}
	e.session = s
	return nil
}

// LeaveRoom detaches from the transport before returning.
func (e *Editor) LeaveRoom() error {
	s := e.session
	if s == nil {
		return nil
	}
	e.session = nil
	return s.Leave()
}

func (e *Editor) Session() *collab.Session { return e.session }

func (e *Editor) applyRemote(d collab.Delta) {
	if e.closed.Load() {
		return
	}
	ms, err := collab.Mutations(e.doc, d)
	if err != nil {
		e.report(fmt.Errorf("map remote change: %w", err))
		return
	}
	if err := e.doc.ApplyFrom(document.OriginRemote, ms...); err != nil {
		e.report(fmt.Errorf("apply remote change: %w", err))
	}
}

// Close leaves the room and drops any rewrite still in flight.
func (e *Editor) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	return e.LeaveRoom()
}

package history

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"moodpad/internal/document"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func setup(t *testing.T, opts ...Option) (*document.Document, *Manager, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	doc := document.New(
		document.Paragraph("Today was bad"),
		document.Block(document.TypeParagraph, document.Leaf("really", document.Marks{Italic: true})),
	)
	m := New(doc, append([]Option{WithClock(clock.now)}, opts...)...)
	doc.Subscribe(m)
	return doc, m, clock
}

func point(offset int, path ...int) document.Point {
	return document.Point{Path: document.Path(path), Offset: offset}
}

func TestUndoEmpty(t *testing.T) {
	_, m, _ := setup(t)
	if err := m.Undo(); !errors.Is(err, ErrEmpty) {
		t.Fatalf("Undo() error = %v, want ErrEmpty", err)
	}
	if err := m.Redo(); !errors.Is(err, ErrEmpty) {
		t.Fatalf("Redo() error = %v, want ErrEmpty", err)
	}
}

func TestUndoRestoresEveryMutation(t *testing.T) {
	muts := []document.Mutation{
		document.InsertText{At: point(5, 0, 0), Text: " and"},
		document.DeleteRange{At: document.Range{Anchor: point(6, 0, 0), Focus: point(3, 1, 0)}},
		document.SetMark{At: document.Range{Anchor: point(0, 0, 0), Focus: point(6, 1, 0)}, Mark: document.MarkBold, Value: true},
		document.InsertNode{At: document.Path{0}, Node: document.Paragraph("first")},
		document.RemoveNode{At: document.Path{1, 0}},
	}
	for _, mu := range muts {
		t.Run(mu.Kind(), func(t *testing.T) {
			doc, m, _ := setup(t)
			before, _ := doc.MarshalJSON()

			if err := doc.Apply(mu); err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			after, _ := doc.MarshalJSON()
			if err := m.Undo(); err != nil {
				t.Fatalf("Undo() error = %v", err)
			}
			got, _ := doc.MarshalJSON()
			if string(got) != string(before) {
				t.Fatalf("after undo = %s, want %s", got, before)
			}
			if err := m.Redo(); err != nil {
				t.Fatalf("Redo() error = %v", err)
			}
			got, _ = doc.MarshalJSON()
			if string(got) != string(after) {
				t.Fatalf("after redo = %s, want %s", got, after)
			}
		})
	}
}

func TestTypingBurstCoalesces(t *testing.T) {
	doc, m, clock := setup(t)
	for i, ch := range []string{"!", "!", "?"} {
		if err := doc.Apply(document.InsertText{At: point(13+i, 0, 0), Text: ch}); err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
		clock.advance(200 * time.Millisecond)
	}
	clock.advance(2 * time.Second)
	if err := doc.Apply(document.InsertText{At: point(0, 1, 0), Text: "so "}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if err := m.Undo(); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	if got := doc.Text(); got != "Today was bad!!?\nreally" {
		t.Fatalf("Text() after first undo = %q", got)
	}
	if err := m.Undo(); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	if got := doc.Text(); got != "Today was bad\nreally" {
		t.Fatalf("Text() after second undo = %q", got)
	}
	if m.CanUndo() {
		t.Fatal("CanUndo() = true, want false")
	}
}

func TestBreakAndBurstZeroKeepEntriesApart(t *testing.T) {
	doc, m, _ := setup(t, WithBurst(0))
	for i := range 3 {
		if err := doc.Apply(document.InsertText{At: point(i, 1, 0), Text: "x"}); err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
	}
	for range 3 {
		if err := m.Undo(); err != nil {
			t.Fatalf("Undo() error = %v", err)
		}
	}
	if got := doc.Text(); got != "Today was bad\nreally" {
		t.Fatalf("Text() = %q", got)
	}

	doc2, m2, _ := setup(t)
	_ = doc2.Apply(document.InsertText{At: point(0, 0, 0), Text: "a"})
	m2.Break()
	_ = doc2.Apply(document.InsertText{At: point(1, 0, 0), Text: "b"})
	if err := m2.Undo(); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	if got := doc2.Text(); got != "aToday was bad\nreally" {
		t.Fatalf("Text() = %q", got)
	}
}

func TestNewEditClearsRedo(t *testing.T) {
	doc, m, _ := setup(t)
	_ = doc.Apply(document.InsertText{At: point(0, 0, 0), Text: "x"})
	if err := m.Undo(); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	if !m.CanRedo() {
		t.Fatal("CanRedo() = false after undo")
	}
	_ = doc.Apply(document.InsertText{At: point(0, 0, 0), Text: "y"})
	if m.CanRedo() {
		t.Fatal("CanRedo() = true after a new edit")
	}
}

func TestLimitDropsOldest(t *testing.T) {
	doc, m, _ := setup(t, WithLimit(2), WithBurst(0))
	for i := range 4 {
		_ = doc.Apply(document.InsertText{At: point(i, 1, 0), Text: "z"})
	}
	undone := 0
	for m.Undo() == nil {
		undone++
	}
	if undone != 2 {
		t.Fatalf("undone = %d, want 2", undone)
	}
	if got := doc.Text(); got != "Today was bad\nzzreally" {
		t.Fatalf("Text() = %q", got)
	}
}

func TestSelectionAndHistoryChangesAreNotRecorded(t *testing.T) {
	doc, m, _ := setup(t)
	_ = doc.Apply(document.SetSelection{Selection: document.Collapsed(point(2, 0, 0))})
	if m.CanUndo() {
		t.Fatal("selection change was recorded")
	}
	_ = doc.ApplyFrom(document.OriginHistory, document.InsertText{At: point(0, 0, 0), Text: "h"})
	if m.CanUndo() {
		t.Fatal("history-origin change was recorded")
	}
	_ = doc.ApplyFrom(document.OriginRemote, document.InsertText{At: point(0, 0, 0), Text: "r"})
	if !m.CanUndo() {
		t.Fatal("remote change was not recorded")
	}
	if !reflect.DeepEqual(m.undo[0].Forward, []document.Mutation{document.InsertText{At: point(0, 0, 0), Text: "r"}}) {
		t.Fatalf("recorded = %+v", m.undo[0].Forward)
	}
}

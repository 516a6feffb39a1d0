package document

import (
	"errors"
	"reflect"
	"testing"
)

func at(offset int, path ...int) Point {
	return Point{Path: Path(path), Offset: offset}
}

func span2(a, b Point) Range {
	return Range{Anchor: a, Focus: b}
}

func fixture() *Document {
	return New(
		Block(TypeParagraph, Text("Hello "), Leaf("bold", Marks{Bold: true})),
		Paragraph("second line"),
	)
}

func TestInsertTextMovesCursor(t *testing.T) {
	d := New(Paragraph("Hello"))
	if err := d.Apply(SetSelection{Selection: Collapsed(at(5, 0, 0))}); err != nil {
		t.Fatalf("SetSelection error = %v", err)
	}
	if err := d.Apply(InsertText{At: at(5, 0, 0), Text: " world"}); err != nil {
		t.Fatalf("InsertText error = %v", err)
	}
	if got := d.Text(); got != "Hello world" {
		t.Fatalf("Text() = %q", got)
	}
	sel := d.Selection()
	if !sel.IsCollapsed() || sel.Focus.Offset != 11 {
		t.Fatalf("selection = %+v, want collapsed at 11", sel)
	}
}

func TestDeleteRangeAcrossBlocksMergesIntoStartLeaf(t *testing.T) {
	d := New(
		Block(TypeParagraph, Leaf("Hel", Marks{Bold: true}), Text("lo")),
		Paragraph("World"),
	)
	if err := d.Apply(SetSelection{Selection: Collapsed(at(3, 1, 0))}); err != nil {
		t.Fatalf("SetSelection error = %v", err)
	}
	if err := d.Apply(DeleteRange{At: span2(at(2, 0, 0), at(1, 1, 0))}); err != nil {
		t.Fatalf("DeleteRange error = %v", err)
	}
	if got := d.Text(); got != "Heorld" {
		t.Fatalf("Text() = %q, want %q", got, "Heorld")
	}
	want := []Node{Block(TypeParagraph, Leaf("Heorld", Marks{Bold: true}))}
	if got := d.Children(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Children() = %+v, want %+v", got, want)
	}
	if sel := d.Selection(); !sel.Focus.Path.Equal(Path{0, 0}) || sel.Focus.Offset != 4 {
		t.Fatalf("selection = %+v, want [0,0]:4", sel)
	}
}

func TestSetMarkSplitsAndMergesLeaves(t *testing.T) {
	d := New(Paragraph("Hello world"))
	r := span2(at(0, 0, 0), at(5, 0, 0))

	if err := d.Apply(SetMark{At: r, Mark: MarkBold, Value: true}); err != nil {
		t.Fatalf("SetMark error = %v", err)
	}
	leaves := d.Leaves()
	if len(leaves) != 2 || leaves[0].Text != "Hello" || !leaves[0].Marks.Bold || leaves[1].Marks.Bold {
		t.Fatalf("Leaves() = %+v", leaves)
	}
	if !d.MarkActive(r, MarkBold) {
		t.Fatal("MarkActive(bold) = false, want true")
	}
	if got := d.Text(); got != "Hello world" {
		t.Fatalf("Text() = %q", got)
	}

	if err := d.Apply(SetMark{At: r, Mark: MarkBold, Value: false}); err != nil {
		t.Fatalf("SetMark off error = %v", err)
	}
	if leaves := d.Leaves(); len(leaves) != 1 || leaves[0].Text != "Hello world" {
		t.Fatalf("Leaves() after unset = %+v", leaves)
	}
}

func TestSetMarkInsideOneLeaf(t *testing.T) {
	d := New(Paragraph("abcdef"))
	if err := d.Apply(SetMark{At: span2(at(4, 0, 0), at(2, 0, 0)), Mark: MarkItalic, Value: true}); err != nil {
		t.Fatalf("SetMark error = %v", err)
	}
	leaves := d.Leaves()
	if len(leaves) != 3 {
		t.Fatalf("len(Leaves()) = %d, want 3", len(leaves))
	}
	if leaves[1].Text != "cd" || !leaves[1].Marks.Italic || leaves[0].Marks.Italic || leaves[2].Marks.Italic {
		t.Fatalf("Leaves() = %+v", leaves)
	}
}

func TestApplyRejectsBadPoints(t *testing.T) {
	tests := []struct {
		name string
		m    Mutation
		want error
	}{
		{"offset past leaf", InsertText{At: at(99, 0, 0), Text: "x"}, ErrOutOfBounds},
		{"negative offset", InsertText{At: at(-1, 0, 0), Text: "x"}, ErrOutOfBounds},
		{"missing block", InsertText{At: at(0, 3, 0), Text: "x"}, ErrInvalidPath},
		{"path to block", InsertText{At: at(0, 0), Text: "x"}, ErrInvalidPath},
		{"remove root", RemoveNode{}, ErrInvalidPath},
		{"insert past end", InsertNode{At: Path{5}, Node: Paragraph("x")}, ErrInvalidPath},
		{"unknown mark", SetMark{At: span2(at(0, 0, 0), at(2, 0, 0)), Mark: "shout", Value: true}, ErrUnknownMark},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := fixture()
			before := d.Root()
			err := d.Apply(tt.m)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Apply() error = %v, want %v", err, tt.want)
			}
			var me *MutationError
			if !errors.As(err, &me) {
				t.Fatalf("Apply() error = %T, want *MutationError", err)
			}
			if !reflect.DeepEqual(d.Root(), before) {
				t.Fatal("document changed after rejected mutation")
			}
		})
	}
}

func TestFailedBatchRollsBack(t *testing.T) {
	d := fixture()
	before := d.Root()
	calls := 0
	d.Subscribe(ListenerFunc(func(Change) { calls++ }))

	err := d.Apply(
		InsertText{At: at(0, 0, 0), Text: "ok "},
		DeleteRange{At: span2(at(0, 0, 0), at(3, 1, 0))},
		InsertText{At: at(50, 0, 0), Text: "boom"},
	)
	if !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("Apply() error = %v, want ErrOutOfBounds", err)
	}
	if !reflect.DeepEqual(d.Root(), before) {
		t.Fatalf("Root() = %+v, want unchanged", d.Root())
	}
	if calls != 0 {
		t.Fatalf("listener calls = %d, want 0", calls)
	}
}

func TestListenersRunInSubscriptionOrder(t *testing.T) {
	d := fixture()
	var order []string
	for _, name := range []string{"decorate", "trigger", "history", "collab"} {
		d.Subscribe(ListenerFunc(func(c Change) {
			if c.Doc != d || c.Origin != OriginLocal {
				t.Errorf("%s got change %+v", name, c)
			}
			order = append(order, name)
		}))
	}
	if err := d.Apply(InsertText{At: at(0, 1, 0), Text: "a "}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	want := []string{"decorate", "trigger", "history", "collab"}
	if !reflect.DeepEqual(order, want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
}

func TestApplyFromListenerIsRejected(t *testing.T) {
	d := fixture()
	var inner error
	d.Subscribe(ListenerFunc(func(Change) {
		inner = d.Apply(InsertText{At: at(0, 0, 0), Text: "x"})
	}))
	if err := d.Apply(InsertText{At: at(0, 0, 0), Text: "y"}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !errors.Is(inner, ErrReentrant) {
		t.Fatalf("nested Apply() error = %v, want ErrReentrant", inner)
	}
}

func TestInverseRestoresDocument(t *testing.T) {
	tests := []struct {
		name string
		m    Mutation
	}{
		{"insert text", InsertText{At: at(2, 0, 0), Text: "XX"}},
		{"delete in leaf", DeleteRange{At: span2(at(1, 0, 0), at(4, 0, 0))}},
		{"delete across leaves", DeleteRange{At: span2(at(1, 0, 0), at(2, 0, 1))}},
		{"delete across blocks", DeleteRange{At: span2(at(2, 0, 1), at(3, 1, 0))}},
		{"set mark across blocks", SetMark{At: span2(at(1, 0, 0), at(4, 1, 0)), Mark: MarkItalic, Value: true}},
		{"clear bold", SetMark{At: span2(at(0, 0, 1), at(4, 0, 1)), Mark: MarkBold}},
		{"insert block", InsertNode{At: Path{1}, Node: Paragraph("mid")}},
		{"remove leaf", RemoveNode{At: Path{0, 1}}},
		{"remove only leaf", RemoveNode{At: Path{1, 0}}},
		{"select", SetSelection{Selection: span2(at(1, 0, 0), at(2, 1, 0))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := fixture()
			before := d.Root()
			beforeSel := d.Selection()
			var change Change
			d.Subscribe(ListenerFunc(func(c Change) { change = c }))

			if err := d.Apply(tt.m); err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if len(change.Inverse) == 0 {
				t.Fatal("change has no inverse")
			}
			if err := d.ApplyFrom(OriginHistory, change.Inverse...); err != nil {
				t.Fatalf("apply inverse error = %v", err)
			}
			if got := d.Root(); !reflect.DeepEqual(got, before) {
				t.Fatalf("Root() = %+v, want %+v", got, before)
			}
			if got := d.Selection(); !reflect.DeepEqual(got, beforeSel) {
				t.Fatalf("Selection() = %+v, want %+v", got, beforeSel)
			}
		})
	}
}

func TestRemoveNodePrunesEmptyBlock(t *testing.T) {
	d := New(Paragraph("a"), Paragraph("b"))
	var change Change
	d.Subscribe(ListenerFunc(func(c Change) { change = c }))

	if err := d.Apply(RemoveNode{At: Path{0, 0}}); err != nil {
		t.Fatalf("RemoveNode error = %v", err)
	}
	if got := d.Text(); got != "b" {
		t.Fatalf("Text() = %q, want %q", got, "b")
	}
	want := InsertNode{At: Path{0}, Node: Paragraph("a")}
	if !reflect.DeepEqual(change.Inverse[0], want) {
		t.Fatalf("inverse = %+v, want %+v", change.Inverse[0], want)
	}
	if sel := d.Selection(); !sel.Anchor.Path.Equal(Path{0, 0}) || sel.Anchor.Offset != 0 {
		t.Fatalf("selection = %+v, want start of remaining leaf", sel)
	}
}

func TestLinearPositions(t *testing.T) {
	d := New(Paragraph("ab"), Block(TypeParagraph, Text("c"), Leaf("d", Marks{Code: true})))
	if got := d.Text(); got != "ab\ncd" {
		t.Fatalf("Text() = %q", got)
	}
	tests := []struct {
		pos  int
		want Point
	}{
		{0, at(0, 0, 0)},
		{2, at(2, 0, 0)},
		{3, at(0, 1, 0)},
		{4, at(1, 1, 0)},
		{5, at(1, 1, 1)},
	}
	for _, tt := range tests {
		got, err := d.PointAt(tt.pos)
		if err != nil {
			t.Fatalf("PointAt(%d) error = %v", tt.pos, err)
		}
		if got.Compare(tt.want) != 0 {
			t.Fatalf("PointAt(%d) = %v, want %v", tt.pos, got, tt.want)
		}
		back, err := d.Linear(got)
		if err != nil || back != tt.pos {
			t.Fatalf("Linear(%v) = %d, %v; want %d", got, back, err, tt.pos)
		}
	}
	if _, err := d.PointAt(6); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("PointAt(6) error = %v, want ErrOutOfBounds", err)
	}
	before, err := d.TextBefore(at(0, 1, 1))
	if err != nil || before != "ab\nc" {
		t.Fatalf("TextBefore() = %q, %v", before, err)
	}
}

func TestEmptyDocumentAcceptsFirstBlock(t *testing.T) {
	d := New()
	if d.Text() != "" || len(d.Leaves()) != 0 {
		t.Fatalf("New() = %q with %d leaves", d.Text(), len(d.Leaves()))
	}
	if err := d.Apply(InsertText{At: at(0, 0, 0), Text: "x"}); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("InsertText on empty document error = %v, want ErrInvalidPath", err)
	}
	if err := d.Apply(InsertNode{At: Path{0}, Node: Block(TypeParagraph)}); err != nil {
		t.Fatalf("InsertNode error = %v", err)
	}
	if got := d.Selection().Anchor; !got.Path.Equal(Path{0, 0}) {
		t.Fatalf("selection anchor = %v, want [0,0]:0", got)
	}
}

func TestJSONShape(t *testing.T) {
	const in = `[{"type":"paragraph","children":[{"text":"Hi "},{"text":"there","bold":true,"underline":true}]}]`
	d, err := Parse([]byte(in))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if d.Text() != "Hi there" {
		t.Fatalf("Text() = %q", d.Text())
	}
	out, err := d.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	if string(out) != in {
		t.Fatalf("MarshalJSON() = %s, want %s", out, in)
	}
	if _, err := Parse([]byte(`[{"bogus":1}]`)); !errors.Is(err, ErrInvalidNode) {
		t.Fatalf("Parse(bogus) error = %v, want ErrInvalidNode", err)
	}
}

func TestDeleteAcrossLeavesKeepsAnchorMarks(t *testing.T) {
	build := func() *Document {
		return New(Block(TypeParagraph, Leaf("ab", Marks{Bold: true}), Text("cd")))
	}
	tests := []struct {
		name     string
		at       Range
		wantBold bool
	}{
		{"forward", span2(at(1, 0, 0), at(1, 0, 1)), true},
		{"backward", span2(at(1, 0, 1), at(1, 0, 0)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := build()
			if err := d.Apply(DeleteRange{At: tt.at}); err != nil {
				t.Fatalf("DeleteRange error = %v", err)
			}
			leaves := d.Leaves()
			if len(leaves) != 1 || leaves[0].Text != "ad" {
				t.Fatalf("leaves = %+v, want one leaf %q", leaves, "ad")
			}
			if leaves[0].Marks.Bold != tt.wantBold {
				t.Fatalf("merged leaf bold = %v, want %v", leaves[0].Marks.Bold, tt.wantBold)
			}
		})
	}
}

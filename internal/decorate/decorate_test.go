package decorate

import (
	"reflect"
	"testing"

	"moodpad/internal/document"
)

func TestDecorateFindsWholeWords(t *testing.T) {
	doc := document.New(
		document.Paragraph("I am Happy, not sad"),
		document.Block(document.TypeParagraph,
			document.Text("happier days"),
			document.Leaf(" so SAD", document.Marks{Bold: true}),
		),
	)

	got := Decorate(doc)
	want := []struct {
		path       document.Path
		start, end int
		emotion    string
	}{
		{document.Path{0, 0}, 5, 10, "happy"},
		{document.Path{0, 0}, 16, 19, "sad"},
		{document.Path{1, 1}, 4, 7, "sad"},
	}
	if len(got) != len(want) {
		t.Fatalf("Decorate() = %+v, want %d decorations", got, len(want))
	}
	for i, w := range want {
		d := got[i]
		if !d.Range.Anchor.Path.Equal(w.path) || d.Range.Anchor.Offset != w.start || d.Range.Focus.Offset != w.end || d.Emotion != w.emotion {
			t.Fatalf("decoration %d = %+v, want %+v", i, d, w)
		}
	}
}

func TestDecorateIgnoresPartialWords(t *testing.T) {
	doc := document.New(document.Paragraph("happier sadness unhappy"))
	if got := Decorate(doc); len(got) != 0 {
		t.Fatalf("Decorate() = %+v, want none", got)
	}
}

func TestDecorateIsIdempotent(t *testing.T) {
	doc := document.New(document.Paragraph("sad happy sad"))
	first := Decorate(doc)
	second := Decorate(doc)
	if !reflect.DeepEqual(first, second) || len(first) != 3 {
		t.Fatalf("Decorate() not stable: %+v vs %+v", first, second)
	}
}

func TestRuneOffsets(t *testing.T) {
	doc := document.New(document.Paragraph("très happy"))
	got := Decorate(doc)
	if len(got) != 1 || got[0].Range.Anchor.Offset != 5 || got[0].Range.Focus.Offset != 10 {
		t.Fatalf("Decorate() = %+v, want happy at 5..10", got)
	}
}

func TestEngineFollowsChanges(t *testing.T) {
	doc := document.New(document.Paragraph("so "))
	var updates int
	e := NewEngine(NewMatcher("happy", "sad", "calm"), func([]Decoration) { updates++ })
	doc.Subscribe(e)

	end := doc.End()
	if err := doc.Apply(document.InsertText{At: end, Text: "calm"}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if cur := e.Current(); len(cur) != 1 || cur[0].Emotion != "calm" {
		t.Fatalf("Current() = %+v", cur)
	}
	if err := doc.Apply(document.SetSelection{Selection: document.Collapsed(doc.Start())}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if updates != 1 {
		t.Fatalf("updates = %d, want 1", updates)
	}
}
